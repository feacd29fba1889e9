package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollwave/rollwave/internal/domain"
	"github.com/rollwave/rollwave/internal/ports"
)

type fakePipeline struct {
	mu      sync.Mutex
	updates []pipelineUpdate
}

type pipelineUpdate struct {
	executionID string
	status      domain.ExecutionStatus
	stage       string
	results     []domain.StageResult
}

func (f *fakePipeline) UpdateState(ctx context.Context, executionID string, status domain.ExecutionStatus, stage string, results []domain.StageResult) error {
	f.mu.Lock()
	f.updates = append(f.updates, pipelineUpdate{executionID, status, stage, results})
	f.mu.Unlock()
	return nil
}

func (f *fakePipeline) GetState(executionID string) (*domain.PipelineExecutionState, error) {
	return nil, domain.ErrNotFound
}

func (f *fakePipeline) last() pipelineUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updates[len(f.updates)-1]
}

func (f *fakePipeline) stages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.updates))
	for i, u := range f.updates {
		out[i] = u.stage
	}
	return out
}

type stubStrategy struct {
	name    domain.StrategyType
	outcome *domain.DeploymentOutcome
	block   bool
}

func (s *stubStrategy) Name() domain.StrategyType { return s.name }

func (s *stubStrategy) Execute(ctx context.Context, req domain.DeploymentRequest, targets []string) (*domain.DeploymentOutcome, error) {
	if s.block {
		<-ctx.Done()
		return &domain.DeploymentOutcome{
			ExecutionID: req.ExecutionID,
			Status:      domain.ExecutionStatusRolledBack,
			Reason:      "deployment cancelled",
		}, nil
	}
	out := *s.outcome
	out.ExecutionID = req.ExecutionID
	return &out, nil
}

func (s *stubStrategy) Resume(ctx context.Context, req domain.DeploymentRequest, targets []string, outcome *domain.DeploymentOutcome, proceed bool) (*domain.DeploymentOutcome, error) {
	if !proceed {
		outcome.Status = domain.ExecutionStatusRolledBack
		outcome.Reason = "manual decision: abort"
		return outcome, nil
	}
	results := make([]domain.NodeDeploymentResult, len(targets))
	for i, node := range targets {
		results[i] = domain.NodeDeploymentResult{NodeID: node, Success: true}
	}
	outcome.DeployedNodes = results
	outcome.Status = domain.ExecutionStatusCompleted
	outcome.Reason = "manual decision: proceed, remaining targets deployed"
	return outcome, nil
}

type stubFactory struct {
	strategy ports.DeploymentStrategy
}

func (f *stubFactory) Create(strategy domain.StrategyType) (ports.DeploymentStrategy, error) {
	return f.strategy, nil
}

func succeedingOutcome(n int) *domain.DeploymentOutcome {
	results := make([]domain.NodeDeploymentResult, n)
	for i := range results {
		results[i] = domain.NodeDeploymentResult{NodeID: targetList(n)[i], Success: true}
	}
	return &domain.DeploymentOutcome{
		Status:        domain.ExecutionStatusCompleted,
		DeployedNodes: results,
		Reason:        "all targets deployed and healthy",
	}
}

func targetList(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "node-" + string(rune('a'+i))
	}
	return out
}

func validRequest() domain.DeploymentRequest {
	return domain.DeploymentRequest{
		ExecutionID: "exec-1",
		ModuleID:    "mod-a",
		Version:     "2.0.0",
		Environment: "staging",
		Strategy:    domain.StrategyDirect,
		TotalNodes:  3,
	}
}

func TestExecuteHappyPathDrivesAllStages(t *testing.T) {
	pipe := &fakePipeline{}
	o := New(&stubFactory{strategy: &stubStrategy{name: domain.StrategyDirect, outcome: succeedingOutcome(3)}}, pipe, nil, nil)

	outcome, err := o.Execute(context.Background(), validRequest(), targetList(3))
	require.NoError(t, err)

	assert.Equal(t, domain.ExecutionStatusCompleted, outcome.Status)
	assert.Equal(t, []string{"validate", "verify", "complete"}, pipe.stages())

	final := pipe.last()
	assert.Equal(t, domain.ExecutionStatusCompleted, final.status)
	require.Len(t, final.results, 1)
	assert.NotEmpty(t, final.results[0].Message, "terminal stage carries a readable reason")
}

func TestExecuteRejectsInvalidRequest(t *testing.T) {
	pipe := &fakePipeline{}
	o := New(&stubFactory{strategy: &stubStrategy{}}, pipe, nil, nil)

	req := validRequest()
	req.ModuleID = ""

	_, err := o.Execute(context.Background(), req, targetList(3))
	require.Error(t, err)
	assert.True(t, domain.IsValidationError(err))

	final := pipe.last()
	assert.Equal(t, domain.ExecutionStatusFailed, final.status)
	assert.Equal(t, "validate", final.stage)
}

func TestExecuteRejectsEmptyTargets(t *testing.T) {
	o := New(&stubFactory{strategy: &stubStrategy{}}, &fakePipeline{}, nil, nil)

	_, err := o.Execute(context.Background(), validRequest(), nil)
	require.Error(t, err)
	assert.True(t, domain.IsValidationError(err))
}

func TestExecuteRolledBackOutcomeEndsInRollbackStage(t *testing.T) {
	pipe := &fakePipeline{}
	outcome := &domain.DeploymentOutcome{
		Status: domain.ExecutionStatusRolledBack,
		Reason: "wave-2 unhealthy",
	}
	o := New(&stubFactory{strategy: &stubStrategy{name: domain.StrategyCanary, outcome: outcome}}, pipe, nil, nil)

	req := validRequest()
	req.Strategy = domain.StrategyCanary

	got, err := o.Execute(context.Background(), req, targetList(3))
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusRolledBack, got.Status)

	final := pipe.last()
	assert.Equal(t, "rollback", final.stage)
	assert.Equal(t, domain.ExecutionStatusRolledBack, final.status)
	assert.Contains(t, final.results[0].Message, "unhealthy")
}

func TestExecuteVerificationCatchesIncompleteCoverage(t *testing.T) {
	pipe := &fakePipeline{}
	// Strategy claims completion but only applied 2 of 3 targets.
	o := New(&stubFactory{strategy: &stubStrategy{name: domain.StrategyDirect, outcome: succeedingOutcome(2)}}, pipe, nil, nil)

	outcome, err := o.Execute(context.Background(), validRequest(), targetList(3))
	require.NoError(t, err)

	assert.Equal(t, domain.ExecutionStatusFailed, outcome.Status)
	assert.Contains(t, outcome.Reason, "verification failed")
}

func TestCancelIsIdempotent(t *testing.T) {
	pipe := &fakePipeline{}
	o := New(&stubFactory{strategy: &stubStrategy{name: domain.StrategyDirect, block: true}}, pipe, nil, nil)

	done := make(chan *domain.DeploymentOutcome, 1)
	go func() {
		outcome, _ := o.Execute(context.Background(), validRequest(), targetList(3))
		done <- outcome
	}()

	time.Sleep(50 * time.Millisecond)
	o.Cancel("exec-1")
	o.Cancel("exec-1") // second cancel is a no-op

	select {
	case outcome := <-done:
		require.NotNil(t, outcome)
		assert.Equal(t, domain.ExecutionStatusRolledBack, outcome.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("execution did not stop after cancel")
	}

	// Cancelling after completion is also a no-op.
	o.Cancel("exec-1")
	o.Cancel("unknown-exec")
}

type countingRecorder struct {
	mu       sync.Mutex
	started  int
	finished int
	statuses []string
}

func (c *countingRecorder) ExecutionStarted(strategy string) {
	c.mu.Lock()
	c.started++
	c.mu.Unlock()
}

func (c *countingRecorder) ExecutionFinished(strategy, status string, d time.Duration) {
	c.mu.Lock()
	c.finished++
	c.statuses = append(c.statuses, status)
	c.mu.Unlock()
}

func pausedOutcome() *domain.DeploymentOutcome {
	return &domain.DeploymentOutcome{
		Status: domain.ExecutionStatusPaused,
		Reason: "wave 1 unhealthy; paused awaiting manual decision",
		DeployedNodes: []domain.NodeDeploymentResult{
			{NodeID: "node-a", Success: true},
		},
	}
}

func TestExecutePausedOutcomeParksExecution(t *testing.T) {
	pipe := &fakePipeline{}
	rec := &countingRecorder{}
	o := New(&stubFactory{strategy: &stubStrategy{name: domain.StrategyCanary, outcome: pausedOutcome()}}, pipe, rec, nil)

	req := validRequest()
	req.Strategy = domain.StrategyCanary

	outcome, err := o.Execute(context.Background(), req, targetList(3))
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusPaused, outcome.Status)

	final := pipe.last()
	assert.Equal(t, "paused", final.stage)
	assert.Equal(t, domain.ExecutionStatusPaused, final.status)

	// A paused execution is not finished.
	assert.Equal(t, 1, rec.started)
	assert.Equal(t, 0, rec.finished)
}

func TestResolveAbortRollsBackPausedExecution(t *testing.T) {
	pipe := &fakePipeline{}
	rec := &countingRecorder{}
	o := New(&stubFactory{strategy: &stubStrategy{name: domain.StrategyCanary, outcome: pausedOutcome()}}, pipe, rec, nil)

	req := validRequest()
	req.Strategy = domain.StrategyCanary
	_, err := o.Execute(context.Background(), req, targetList(3))
	require.NoError(t, err)

	outcome, err := o.Resolve(context.Background(), "exec-1", false)
	require.NoError(t, err)

	assert.Equal(t, domain.ExecutionStatusRolledBack, outcome.Status)
	final := pipe.last()
	assert.Equal(t, "rollback", final.stage)
	assert.Equal(t, domain.ExecutionStatusRolledBack, final.status)
	assert.Equal(t, []string{"rolled_back"}, rec.statuses)

	// Resolving twice is rejected; the entry is consumed.
	_, err = o.Resolve(context.Background(), "exec-1", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestResolveProceedCompletesPausedExecution(t *testing.T) {
	pipe := &fakePipeline{}
	rec := &countingRecorder{}
	o := New(&stubFactory{strategy: &stubStrategy{name: domain.StrategyCanary, outcome: pausedOutcome()}}, pipe, rec, nil)

	req := validRequest()
	req.Strategy = domain.StrategyCanary
	_, err := o.Execute(context.Background(), req, targetList(3))
	require.NoError(t, err)

	outcome, err := o.Resolve(context.Background(), "exec-1", true)
	require.NoError(t, err)

	assert.Equal(t, domain.ExecutionStatusCompleted, outcome.Status)
	assert.Equal(t, "complete", pipe.last().stage)
	assert.Equal(t, []string{"completed"}, rec.statuses)
}

func TestResolveUnknownExecution(t *testing.T) {
	o := New(&stubFactory{strategy: &stubStrategy{}}, &fakePipeline{}, nil, nil)

	_, err := o.Resolve(context.Background(), "missing", true)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestExecuteRecordsLifecycle(t *testing.T) {
	rec := &countingRecorder{}
	o := New(&stubFactory{strategy: &stubStrategy{name: domain.StrategyDirect, outcome: succeedingOutcome(3)}}, &fakePipeline{}, rec, nil)

	_, err := o.Execute(context.Background(), validRequest(), targetList(3))
	require.NoError(t, err)

	assert.Equal(t, 1, rec.started)
	assert.Equal(t, 1, rec.finished)
	assert.Equal(t, []string{"completed"}, rec.statuses)
}
