package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollwave/rollwave/internal/domain"
)

type fakeStore struct {
	mu        sync.Mutex
	saved     map[string][]domain.PipelineExecutionState
	failSaves bool
	failLoads bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{saved: make(map[string][]domain.PipelineExecutionState)}
}

func (f *fakeStore) Save(ctx context.Context, executionID string, snapshot domain.PipelineExecutionState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSaves {
		return errors.New("store unavailable")
	}
	f.saved[executionID] = append(f.saved[executionID], snapshot)
	return nil
}

func (f *fakeStore) Load(ctx context.Context, executionID string) (*domain.PipelineExecutionState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failLoads {
		return nil, errors.New("store unavailable")
	}
	history := f.saved[executionID]
	if len(history) == 0 {
		return nil, domain.ErrNotFound
	}
	latest := history[len(history)-1]
	return &latest, nil
}

type fakeNotifier struct {
	mu        sync.Mutex
	published []domain.PipelineExecutionState
}

func (f *fakeNotifier) Publish(ctx context.Context, snapshot domain.PipelineExecutionState) error {
	f.mu.Lock()
	f.published = append(f.published, snapshot)
	f.mu.Unlock()
	return nil
}

func stage(name string, status domain.StageStatus) domain.StageResult {
	return domain.StageResult{Name: name, Status: status, StartedAt: time.Now()}
}

func TestUpdateStateCommitsAndDelivers(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	p := New(store, notifier, nil)

	err := p.UpdateState(context.Background(), "exec-1", domain.ExecutionStatusRunning, "validate",
		[]domain.StageResult{stage("validate", domain.StageStatusSucceeded)})
	require.NoError(t, err)

	state, err := p.GetState("exec-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusRunning, state.Status)
	assert.Equal(t, "validate", state.CurrentStage)
	assert.Equal(t, uint64(1), state.SequenceNumber)
	require.Len(t, state.StageResults, 1)

	assert.Len(t, store.saved["exec-1"], 1)
	assert.Len(t, notifier.published, 1)
	assert.Equal(t, uint64(1), notifier.published[0].SequenceNumber)
}

func TestUpdateStateDeepCopiesStageResults(t *testing.T) {
	p := New(newFakeStore(), &fakeNotifier{}, nil)

	incoming := []domain.StageResult{stage("execute", domain.StageStatusRunning)}
	require.NoError(t, p.UpdateState(context.Background(), "exec-1", domain.ExecutionStatusRunning, "execute", incoming))

	// Mutating the caller's slice must not leak into stored history.
	incoming[0].Status = domain.StageStatusFailed
	incoming[0].Message = "mutated by caller"

	state, err := p.GetState("exec-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StageStatusRunning, state.StageResults[0].Status)
	assert.Empty(t, state.StageResults[0].Message)
}

func TestConcurrentUpdatesNoLostWrites(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	p := New(store, notifier, nil)

	const updates = 10
	var wg sync.WaitGroup
	for i := 0; i < updates; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := p.UpdateState(context.Background(), "exec-1", domain.ExecutionStatusRunning,
				fmt.Sprintf("stage-%d", i),
				[]domain.StageResult{stage(fmt.Sprintf("stage-%d", i), domain.StageStatusSucceeded)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	state, err := p.GetState("exec-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(updates), state.SequenceNumber)
	assert.Len(t, state.StageResults, updates)

	// Sequence numbers strictly increase in commit order.
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	require.Len(t, notifier.published, updates)
	for i := 1; i < len(notifier.published); i++ {
		assert.Greater(t, notifier.published[i].SequenceNumber, notifier.published[i-1].SequenceNumber)
	}
}

func TestIndependentExecutionsDoNotContend(t *testing.T) {
	p := New(newFakeStore(), &fakeNotifier{}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			execID := fmt.Sprintf("exec-%d", i)
			for j := 0; j < 5; j++ {
				err := p.UpdateState(context.Background(), execID, domain.ExecutionStatusRunning, "execute", nil)
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 20; i++ {
		state, err := p.GetState(fmt.Sprintf("exec-%d", i))
		require.NoError(t, err)
		assert.Equal(t, uint64(5), state.SequenceNumber)
	}
}

func TestTerminalStateReleasesLockEntry(t *testing.T) {
	p := New(newFakeStore(), &fakeNotifier{}, nil)
	ctx := context.Background()

	require.NoError(t, p.UpdateState(ctx, "exec-1", domain.ExecutionStatusRunning, "execute", nil))
	assert.Equal(t, 1, p.LockTableSize())

	require.NoError(t, p.UpdateState(ctx, "exec-1", domain.ExecutionStatusCompleted, "complete", nil))
	assert.Equal(t, 0, p.LockTableSize())

	// Updates after a terminal state are rejected, not applied.
	err := p.UpdateState(ctx, "exec-1", domain.ExecutionStatusRunning, "execute", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAlreadyTerminal)
	assert.Equal(t, 0, p.LockTableSize())

	state, err := p.GetState("exec-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusCompleted, state.Status)
}

func TestTerminalStateEvictsInMemoryRecord(t *testing.T) {
	store := newFakeStore()
	p := New(store, &fakeNotifier{}, nil)
	ctx := context.Background()

	require.NoError(t, p.UpdateState(ctx, "exec-1", domain.ExecutionStatusRunning, "execute", nil))
	require.NoError(t, p.UpdateState(ctx, "exec-1", domain.ExecutionStatusCompleted, "complete", nil))

	p.mu.Lock()
	_, resident := p.states["exec-1"]
	p.mu.Unlock()
	assert.False(t, resident, "terminal record must not stay resident")

	// Reads of the evicted execution come out of the store.
	state, err := p.GetState("exec-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusCompleted, state.Status)
	assert.Equal(t, uint64(2), state.SequenceNumber)

	// Writes after eviction are still rejected as terminal, and the
	// rejection does not grow the lock table.
	err = p.UpdateState(ctx, "exec-1", domain.ExecutionStatusRunning, "execute", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAlreadyTerminal)
	assert.Equal(t, 0, p.LockTableSize())
}

func TestTerminalDeliveryFailureKeepsRecordReadable(t *testing.T) {
	store := newFakeStore()
	p := New(store, &fakeNotifier{}, nil)
	ctx := context.Background()

	require.NoError(t, p.UpdateState(ctx, "exec-1", domain.ExecutionStatusRunning, "execute", nil))

	store.mu.Lock()
	store.failSaves = true
	store.mu.Unlock()

	err := p.UpdateState(ctx, "exec-1", domain.ExecutionStatusCompleted, "complete", nil)
	require.Error(t, err)
	assert.True(t, domain.IsDeliveryError(err))

	// No durable snapshot exists, so the record stays in memory.
	p.mu.Lock()
	_, resident := p.states["exec-1"]
	p.mu.Unlock()
	assert.True(t, resident)

	state, getErr := p.GetState("exec-1")
	require.NoError(t, getErr)
	assert.Equal(t, domain.ExecutionStatusCompleted, state.Status)
}

func TestDeliveryFailureDoesNotRevertCommit(t *testing.T) {
	store := newFakeStore()
	store.failSaves = true
	p := New(store, &fakeNotifier{}, nil)

	err := p.UpdateState(context.Background(), "exec-1", domain.ExecutionStatusRunning, "execute", nil)
	require.Error(t, err)
	assert.True(t, domain.IsDeliveryError(err))

	// The in-memory transition survived the delivery failure.
	state, getErr := p.GetState("exec-1")
	require.NoError(t, getErr)
	assert.Equal(t, domain.ExecutionStatusRunning, state.Status)
	assert.Equal(t, uint64(1), state.SequenceNumber)
}

func TestGetStateUnknownExecution(t *testing.T) {
	p := New(newFakeStore(), &fakeNotifier{}, nil)
	_, err := p.GetState("missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetStatePropagatesStoreFailures(t *testing.T) {
	store := newFakeStore()
	store.failLoads = true
	p := New(store, &fakeNotifier{}, nil)

	_, err := p.GetState("exec-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, err.Error(), "store unavailable")
}
