package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rollwave/rollwave/internal/domain"
	"github.com/rollwave/rollwave/internal/ports"
)

// Recorder receives execution lifecycle observations. Implemented by the
// metrics collector; nil disables recording.
type Recorder interface {
	ExecutionStarted(strategy string)
	ExecutionFinished(strategy, status string, duration time.Duration)
}

// Orchestrator selects a strategy per request and drives the pipeline
// through validate → execute → verify → complete/rollback.
type Orchestrator struct {
	factory  ports.StrategyFactory
	pipeline ports.Pipeline
	recorder Recorder
	logger   *slog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	paused  map[string]*pausedExecution
}

// pausedExecution holds everything needed to resolve an execution the
// strategy parked awaiting a manual decision.
type pausedExecution struct {
	req      domain.DeploymentRequest
	targets  []string
	outcome  *domain.DeploymentOutcome
	strategy ports.DeploymentStrategy
	started  time.Time
}

func New(factory ports.StrategyFactory, pipeline ports.Pipeline, recorder Recorder, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		factory:  factory,
		pipeline: pipeline,
		recorder: recorder,
		logger:   logger.With("component", "orchestrator"),
		cancels:  make(map[string]context.CancelFunc),
		paused:   make(map[string]*pausedExecution),
	}
}

// Execute runs one deployment end to end. The returned outcome always
// carries a terminal (or paused) status with a human-readable reason;
// only validation failures and contract violations return an error.
func (o *Orchestrator) Execute(ctx context.Context, req domain.DeploymentRequest, targets []string) (*domain.DeploymentOutcome, error) {
	startedAt := time.Now()

	if err := req.Config.ApplyDefaults(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		o.failValidation(ctx, req, err)
		return nil, err
	}
	if len(targets) == 0 {
		err := domain.NewValidationError("targets", "no deployment targets resolved")
		o.failValidation(ctx, req, err)
		return nil, err
	}

	strategy, err := o.factory.Create(req.Strategy)
	if err != nil {
		o.failValidation(ctx, req, err)
		return nil, err
	}

	o.updateStage(ctx, req.ExecutionID, domain.ExecutionStatusRunning, "validate",
		domain.StageStatusSucceeded, "request validated")

	if o.recorder != nil {
		o.recorder.ExecutionStarted(string(req.Strategy))
	}

	execCtx, cancel := context.WithCancel(ctx)
	o.registerCancel(req.ExecutionID, cancel)
	defer o.unregisterCancel(req.ExecutionID)

	o.logger.Info("executing deployment",
		"execution_id", req.ExecutionID,
		"module_id", req.ModuleID,
		"version", req.Version,
		"strategy", req.Strategy,
		"targets", len(targets))

	outcome, err := strategy.Execute(execCtx, req, targets)
	if err != nil {
		// Contract violation inside the strategy; fail the execution with
		// a readable reason and propagate.
		o.updateStage(ctx, req.ExecutionID, domain.ExecutionStatusFailed, "execute",
			domain.StageStatusFailed, "strategy error: "+err.Error())
		if o.recorder != nil {
			o.recorder.ExecutionFinished(string(req.Strategy), string(domain.ExecutionStatusFailed), time.Since(startedAt))
		}
		return nil, err
	}

	if outcome.Status == domain.ExecutionStatusPaused {
		// The execution is not finished: park it until an operator
		// resolves it, keeping its pipeline entry live.
		o.mu.Lock()
		o.paused[req.ExecutionID] = &pausedExecution{
			req:      req,
			targets:  targets,
			outcome:  outcome,
			strategy: strategy,
			started:  startedAt,
		}
		o.mu.Unlock()
		o.finalize(ctx, req, outcome)
		return outcome, nil
	}

	o.verify(ctx, req, outcome)
	o.finalize(ctx, req, outcome)

	if o.recorder != nil {
		o.recorder.ExecutionFinished(string(req.Strategy), string(outcome.Status), time.Since(startedAt))
	}
	return outcome, nil
}

// Resolve drives a paused execution to a terminal state after a manual
// decision. Proceed resumes the rollout across the remaining targets;
// otherwise the applied nodes are rolled back. An id that is not paused
// returns ErrNotFound.
func (o *Orchestrator) Resolve(ctx context.Context, executionID string, proceed bool) (*domain.DeploymentOutcome, error) {
	o.mu.Lock()
	entry, ok := o.paused[executionID]
	delete(o.paused, executionID)
	o.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("paused execution %s: %w", executionID, domain.ErrNotFound)
	}

	resumable, ok := entry.strategy.(ports.ResumableStrategy)
	if !ok {
		return nil, fmt.Errorf("strategy %s cannot resume a paused execution: %w",
			entry.strategy.Name(), domain.ErrInvalidConfig)
	}

	o.logger.Info("resolving paused execution",
		"execution_id", executionID,
		"proceed", proceed)

	outcome, err := resumable.Resume(ctx, entry.req, entry.targets, entry.outcome, proceed)
	if err != nil {
		o.updateStage(ctx, executionID, domain.ExecutionStatusFailed, "execute",
			domain.StageStatusFailed, "resume error: "+err.Error())
		if o.recorder != nil {
			o.recorder.ExecutionFinished(string(entry.req.Strategy), string(domain.ExecutionStatusFailed), time.Since(entry.started))
		}
		return nil, err
	}

	o.verify(ctx, entry.req, outcome)
	o.finalize(ctx, entry.req, outcome)

	if o.recorder != nil {
		o.recorder.ExecutionFinished(string(entry.req.Strategy), string(outcome.Status), time.Since(entry.started))
	}
	return outcome, nil
}

// Cancel aborts a running execution. Idempotent: cancelling twice, or
// cancelling after natural completion, is a no-op.
func (o *Orchestrator) Cancel(executionID string) {
	o.mu.Lock()
	cancel, ok := o.cancels[executionID]
	o.mu.Unlock()
	if ok {
		o.logger.Info("cancelling execution", "execution_id", executionID)
		cancel()
	}
}

func (o *Orchestrator) registerCancel(executionID string, cancel context.CancelFunc) {
	o.mu.Lock()
	o.cancels[executionID] = cancel
	o.mu.Unlock()
}

func (o *Orchestrator) unregisterCancel(executionID string) {
	o.mu.Lock()
	cancel, ok := o.cancels[executionID]
	delete(o.cancels, executionID)
	o.mu.Unlock()
	if ok {
		cancel()
	}
}

// verify checks the finished outcome against the request before the
// terminal transition.
func (o *Orchestrator) verify(ctx context.Context, req domain.DeploymentRequest, outcome *domain.DeploymentOutcome) {
	if outcome.Status != domain.ExecutionStatusCompleted {
		return
	}
	applied := len(outcome.AppliedNodes())
	if req.Strategy != domain.StrategyBlueGreen && applied < req.TotalNodes {
		// A completed rollout that did not cover every target is a
		// bookkeeping defect; surface it instead of reporting success.
		outcome.Status = domain.ExecutionStatusFailed
		outcome.Reason = fmt.Sprintf("verification failed: %d of %d targets applied", applied, req.TotalNodes)
		o.updateStage(ctx, req.ExecutionID, domain.ExecutionStatusRunning, "verify",
			domain.StageStatusFailed, outcome.Reason)
		return
	}
	o.updateStage(ctx, req.ExecutionID, domain.ExecutionStatusRunning, "verify",
		domain.StageStatusSucceeded, "deployment verified")
}

func (o *Orchestrator) finalize(ctx context.Context, req domain.DeploymentRequest, outcome *domain.DeploymentOutcome) {
	stage := "complete"
	stageStatus := domain.StageStatusSucceeded
	switch outcome.Status {
	case domain.ExecutionStatusRolledBack:
		stage = "rollback"
	case domain.ExecutionStatusFailed:
		stage = "rollback"
		stageStatus = domain.StageStatusFailed
	case domain.ExecutionStatusPaused:
		stage = "paused"
	}

	o.updateStage(ctx, req.ExecutionID, outcome.Status, stage, stageStatus, outcome.Reason)

	o.logger.Info("deployment finished",
		"execution_id", req.ExecutionID,
		"status", outcome.Status,
		"reason", outcome.Reason)
}

func (o *Orchestrator) failValidation(ctx context.Context, req domain.DeploymentRequest, cause error) {
	o.logger.Warn("deployment rejected",
		"execution_id", req.ExecutionID,
		"error", cause.Error())
	if req.ExecutionID == "" {
		return
	}
	o.updateStage(ctx, req.ExecutionID, domain.ExecutionStatusFailed, "validate",
		domain.StageStatusFailed, cause.Error())
}

func (o *Orchestrator) updateStage(ctx context.Context, executionID string, status domain.ExecutionStatus, stage string, stageStatus domain.StageStatus, message string) {
	now := time.Now()
	result := domain.StageResult{
		Name:        stage,
		Status:      stageStatus,
		StartedAt:   now,
		CompletedAt: &now,
		Message:     message,
	}
	if err := o.pipeline.UpdateState(ctx, executionID, status, stage, []domain.StageResult{result}); err != nil {
		o.logger.Warn("pipeline update failed",
			"execution_id", executionID,
			"stage", stage,
			"error", err.Error())
	}
}
