package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/rollwave/rollwave/internal/domain"
)

// Direct deploys one wave covering 100% of the targets with no gating.
// Any post-deploy health failure triggers an immediate full rollback.
type Direct struct {
	base
}

func NewDirect(deps Deps) *Direct {
	return &Direct{base: newBase(deps, "direct")}
}

func (d *Direct) Name() domain.StrategyType {
	return domain.StrategyDirect
}

func (d *Direct) Execute(ctx context.Context, req domain.DeploymentRequest, targets []string) (*domain.DeploymentOutcome, error) {
	outcome := newOutcome(req)
	baseline := d.captureBaseline(ctx, targets)

	started := time.Now()
	results := d.deployWave(ctx, req, targets)
	outcome.DeployedNodes = results

	if !allSucceeded(results) {
		d.reportProgress(ctx, req.ExecutionID, domain.ExecutionStatusRunning, "execute",
			[]domain.StageResult{stageResult("deploy-all", domain.StageStatusFailed, started, "one or more nodes failed to deploy", results)})
		return d.rollbackApplied(ctx, req, outcome, "direct deployment failed on one or more nodes"), nil
	}

	d.reportProgress(ctx, req.ExecutionID, domain.ExecutionStatusRunning, "execute",
		[]domain.StageResult{stageResult("deploy-all", domain.StageStatusSucceeded, started, "all targets deployed", results)})

	if err := ctx.Err(); err != nil {
		return d.rollbackApplied(ctx, req, outcome, "deployment cancelled"), nil
	}

	verdict := d.deps.Health.Evaluate(d.sampleLive(ctx, targets), baseline, req.Config.Thresholds)
	if !verdict.Healthy {
		reason := fmt.Sprintf("post-deploy health check failed: %d metric(s) out of threshold", len(verdict.Violations))
		return d.rollbackApplied(ctx, req, outcome, reason), nil
	}

	return completeOutcome(outcome, "all targets deployed and healthy"), nil
}
