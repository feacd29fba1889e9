package strategy

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rollwave/rollwave/internal/domain"
)

// TargetSet is one side of a blue-green pair: a module version and the
// nodes serving it.
type TargetSet struct {
	Version string
	Nodes   []string
}

// BlueGreen deploys the full new version to the inactive target set, runs
// smoke checks, and switches traffic with a single atomic pointer swap.
// The previous set is retained for an instant reverse swap until released
// (or until the configured retention expires).
type BlueGreen struct {
	base
	active   atomic.Pointer[TargetSet]
	previous atomic.Pointer[TargetSet]
}

func NewBlueGreen(deps Deps) *BlueGreen {
	return &BlueGreen{base: newBase(deps, "blue_green")}
}

func (bg *BlueGreen) Name() domain.StrategyType {
	return domain.StrategyBlueGreen
}

// Active returns the target set currently receiving traffic.
func (bg *BlueGreen) Active() *TargetSet {
	return bg.active.Load()
}

// Retained returns the previous set still held for a reverse swap, if any.
func (bg *BlueGreen) Retained() *TargetSet {
	return bg.previous.Load()
}

// Release drops the retained previous set, making the cutover permanent.
// Safe to call when nothing is retained.
func (bg *BlueGreen) Release() {
	if prev := bg.previous.Swap(nil); prev != nil {
		bg.logger.Info("previous target set released", "version", prev.Version)
	}
}

// Revert swaps traffic back to the retained previous set. Returns false
// when nothing is retained.
func (bg *BlueGreen) Revert() bool {
	prev := bg.previous.Swap(nil)
	if prev == nil {
		return false
	}
	bg.active.Store(prev)
	bg.logger.Warn("traffic reverted to previous target set", "version", prev.Version)
	return true
}

func (bg *BlueGreen) Execute(ctx context.Context, req domain.DeploymentRequest, targets []string) (*domain.DeploymentOutcome, error) {
	outcome := newOutcome(req)
	baseline := bg.captureBaseline(ctx, targets)

	startedAt := time.Now()
	results := bg.deployWave(ctx, req, targets)
	outcome.DeployedNodes = results

	if !allSucceeded(results) {
		bg.reportProgress(ctx, req.ExecutionID, domain.ExecutionStatusRunning, "execute",
			[]domain.StageResult{stageResult("deploy-inactive", domain.StageStatusFailed, startedAt, "inactive set deployment failed", results)})
		return bg.rollbackApplied(ctx, req, outcome, "deployment to inactive set failed"), nil
	}

	bg.reportProgress(ctx, req.ExecutionID, domain.ExecutionStatusRunning, "execute",
		[]domain.StageResult{stageResult("deploy-inactive", domain.StageStatusSucceeded, startedAt, "new version deployed to inactive set", results)})

	if err := ctx.Err(); err != nil {
		return bg.rollbackApplied(ctx, req, outcome, "deployment cancelled before cutover"), nil
	}

	smokeStarted := time.Now()
	verdict := bg.deps.Health.Evaluate(bg.sampleLive(ctx, targets), baseline, req.Config.Thresholds)
	if !verdict.Healthy {
		bg.reportProgress(ctx, req.ExecutionID, domain.ExecutionStatusRunning, "execute",
			[]domain.StageResult{stageResult("smoke-check", domain.StageStatusFailed, smokeStarted,
				fmt.Sprintf("%d metric(s) out of threshold", len(verdict.Violations)), nil)})
		return bg.rollbackApplied(ctx, req, outcome, "smoke checks failed on inactive set"), nil
	}

	bg.reportProgress(ctx, req.ExecutionID, domain.ExecutionStatusRunning, "execute",
		[]domain.StageResult{stageResult("smoke-check", domain.StageStatusSucceeded, smokeStarted, "inactive set healthy", nil)})

	// Single atomic swap: traffic moves as one unit, never per node.
	next := &TargetSet{Version: req.Version, Nodes: append([]string(nil), targets...)}
	old := bg.active.Swap(next)
	bg.previous.Store(old)

	bg.logger.Info("traffic switched",
		"execution_id", req.ExecutionID,
		"version", req.Version,
		"nodes", len(targets))

	if old != nil && req.Config.RetainPrevious > 0 {
		go bg.expireRetained(old, req.Config.RetainPrevious)
	}

	return completeOutcome(outcome, "traffic switched to new target set"), nil
}

// expireRetained auto-releases the retained set after the configured
// retention window, unless it was already released or reverted.
func (bg *BlueGreen) expireRetained(retained *TargetSet, after time.Duration) {
	timer := time.NewTimer(after)
	defer timer.Stop()
	<-timer.C
	if bg.previous.CompareAndSwap(retained, nil) {
		bg.logger.Info("previous target set retention expired", "version", retained.Version)
	}
}
