package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/rollwave/rollwave/internal/domain"
)

// Canary ramps through configurable wave percentages. Each wave is
// followed by an evaluation-period delay and one health check; a failed
// check either auto-rolls-back or parks the execution in Paused awaiting
// a manual decision.
type Canary struct {
	base
}

func NewCanary(deps Deps) *Canary {
	return &Canary{base: newBase(deps, "canary")}
}

func (c *Canary) Name() domain.StrategyType {
	return domain.StrategyCanary
}

func (c *Canary) Execute(ctx context.Context, req domain.DeploymentRequest, targets []string) (*domain.DeploymentOutcome, error) {
	outcome := newOutcome(req)
	baseline := c.captureBaseline(ctx, targets)

	percentages := req.Config.WavePercentages
	boundaries := waveBoundaries(len(targets), percentages)
	deployed := 0

	for i, boundary := range boundaries {
		if err := ctx.Err(); err != nil {
			return c.rollbackApplied(ctx, req, outcome, "deployment cancelled"), nil
		}

		waveName := fmt.Sprintf("wave-%d", i+1)
		startedAt := time.Now()
		wave := targets[deployed:boundary]

		c.logger.Info("deploying canary wave",
			"execution_id", req.ExecutionID,
			"wave", waveName,
			"percent", clampPercent(percentages[i]),
			"new_nodes", len(wave),
			"cumulative", boundary)

		results := c.deployWave(ctx, req, wave)
		outcome.DeployedNodes = append(outcome.DeployedNodes, results...)
		deployed = boundary

		if !allSucceeded(results) {
			c.reportProgress(ctx, req.ExecutionID, domain.ExecutionStatusRunning, "execute",
				[]domain.StageResult{stageResult(waveName, domain.StageStatusFailed, startedAt, "wave deployment failed", results)})
			return c.handleWaveFailure(ctx, req, outcome, waveName+" failed to deploy")
		}

		if err := waitEvaluation(ctx, req.Config.EvaluationPeriod); err != nil {
			return c.rollbackApplied(ctx, req, outcome, "deployment cancelled during evaluation period"), nil
		}

		verdict := c.deps.Health.Evaluate(c.sampleLive(ctx, targets[:deployed]), baseline, req.Config.Thresholds)
		if !verdict.Healthy {
			c.reportProgress(ctx, req.ExecutionID, domain.ExecutionStatusRunning, "execute",
				[]domain.StageResult{stageResult(waveName, domain.StageStatusFailed, startedAt, "wave health check failed", results)})
			reason := fmt.Sprintf("%s unhealthy: %d metric(s) out of threshold", waveName, len(verdict.Violations))
			return c.handleWaveFailure(ctx, req, outcome, reason)
		}

		c.reportProgress(ctx, req.ExecutionID, domain.ExecutionStatusRunning, "execute",
			[]domain.StageResult{stageResult(waveName, domain.StageStatusSucceeded, startedAt,
				fmt.Sprintf("wave healthy at %d%% of targets", clampPercent(percentages[i])), results)})
	}

	return completeOutcome(outcome, "canary reached 100% with all waves healthy"), nil
}

// handleWaveFailure rolls back every node deployed up to and including the
// failed wave when auto-rollback is on; otherwise the execution pauses for
// a manual decision, keeping its applied-node history intact.
func (c *Canary) handleWaveFailure(ctx context.Context, req domain.DeploymentRequest, outcome *domain.DeploymentOutcome, reason string) (*domain.DeploymentOutcome, error) {
	autoRollback := req.Config.AutoRollback == nil || *req.Config.AutoRollback
	if autoRollback {
		return c.rollbackApplied(ctx, req, outcome, reason), nil
	}

	c.logger.Warn("canary paused awaiting manual decision",
		"execution_id", req.ExecutionID,
		"reason", reason)
	outcome.Status = domain.ExecutionStatusPaused
	outcome.Reason = reason + "; paused awaiting manual decision"
	outcome.CompletedAt = time.Now()
	return outcome, nil
}

// Resume completes a paused rollout after a manual decision. Proceeding
// collapses the remaining ramp into one final wave; aborting rolls back
// every applied node.
func (c *Canary) Resume(ctx context.Context, req domain.DeploymentRequest, targets []string, outcome *domain.DeploymentOutcome, proceed bool) (*domain.DeploymentOutcome, error) {
	if !proceed {
		return c.rollbackApplied(ctx, req, outcome, "manual decision: abort"), nil
	}

	attempted := len(outcome.DeployedNodes)
	if attempted > len(targets) {
		attempted = len(targets)
	}
	remaining := targets[attempted:]
	if len(remaining) == 0 {
		return completeOutcome(outcome, "manual decision: proceed, all targets already deployed"), nil
	}

	startedAt := time.Now()
	c.logger.Info("resuming paused canary",
		"execution_id", req.ExecutionID,
		"remaining", len(remaining))

	results := c.deployWave(ctx, req, remaining)
	outcome.DeployedNodes = append(outcome.DeployedNodes, results...)

	if !allSucceeded(results) {
		c.reportProgress(ctx, req.ExecutionID, domain.ExecutionStatusRunning, "execute",
			[]domain.StageResult{stageResult("resume", domain.StageStatusFailed, startedAt, "resume deployment failed", results)})
		return c.rollbackApplied(ctx, req, outcome, "resume deployment failed"), nil
	}

	c.reportProgress(ctx, req.ExecutionID, domain.ExecutionStatusRunning, "execute",
		[]domain.StageResult{stageResult("resume", domain.StageStatusSucceeded, startedAt, "remaining targets deployed", results)})
	return completeOutcome(outcome, "manual decision: proceed, remaining targets deployed"), nil
}
