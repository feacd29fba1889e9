package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollwave/rollwave/internal/domain"
)

func TestStoreKeepsNewestSnapshot(t *testing.T) {
	s := NewStore(nil)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "exec-1", domain.PipelineExecutionState{ExecutionID: "exec-1", SequenceNumber: 2}))
	// Reordered older delivery is ignored.
	require.NoError(t, s.Save(ctx, "exec-1", domain.PipelineExecutionState{ExecutionID: "exec-1", SequenceNumber: 1}))

	loaded, err := s.Load(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), loaded.SequenceNumber)
}

func TestStoreLoadUnknown(t *testing.T) {
	s := NewStore(nil)
	_, err := s.Load(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestNotifierFanOut(t *testing.T) {
	n := NewNotifier(nil)
	ch1, cancel1 := n.Subscribe(8)
	ch2, cancel2 := n.Subscribe(8)
	defer cancel2()

	require.NoError(t, n.Publish(context.Background(), domain.PipelineExecutionState{ExecutionID: "exec-1", SequenceNumber: 1}))

	for _, ch := range []<-chan domain.PipelineExecutionState{ch1, ch2} {
		select {
		case snap := <-ch:
			assert.Equal(t, "exec-1", snap.ExecutionID)
		case <-time.After(time.Second):
			t.Fatal("snapshot not delivered")
		}
	}

	cancel1()
	cancel1() // double cancel is safe

	require.NoError(t, n.Publish(context.Background(), domain.PipelineExecutionState{ExecutionID: "exec-1", SequenceNumber: 2}))
	select {
	case snap := <-ch2:
		assert.Equal(t, uint64(2), snap.SequenceNumber)
	case <-time.After(time.Second):
		t.Fatal("snapshot not delivered after unrelated unsubscribe")
	}
}

func TestClusterDeployRollbackAndQuarantine(t *testing.T) {
	c := NewCluster([]string{"n1", "n2"}, nil)
	ctx := context.Background()

	require.NoError(t, c.DeployModule(ctx, "n1", "mod-a", "2.0.0"))
	assert.Equal(t, "2.0.0", c.Version("n1"))

	require.NoError(t, c.RollbackModule(ctx, "n1", "mod-a"))
	assert.Empty(t, c.Version("n1"))

	err := c.DeployModule(ctx, "ghost", "mod-a", "2.0.0")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, c.Quarantine(ctx, "n2"))
	assert.Equal(t, []string{"n1"}, c.ActiveNodes())

	consumers := c.ActiveConsumers()
	require.Len(t, consumers, 2)
	assert.True(t, consumers[0].Active)
	assert.False(t, consumers[1].Active)
}

func TestClusterScriptedFailures(t *testing.T) {
	c := NewCluster([]string{"n1"}, nil)
	ctx := context.Background()

	c.FailDeploys("n1", assert.AnError)
	err := c.DeployModule(ctx, "n1", "mod-a", "2.0.0")
	require.Error(t, err)
	assert.True(t, domain.IsNodeOperationError(err))

	c.SetMetrics("n1", domain.LiveMetrics{LatencyMs: 42})
	m, err := c.HealthCheck(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, 42.0, m.LatencyMs)
}
