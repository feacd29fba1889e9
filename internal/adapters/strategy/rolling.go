package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/rollwave/rollwave/internal/domain"
)

// Rolling deploys fixed-size batches, waiting for each batch's health
// before starting the next. A batch failure rolls back only the nodes
// deployed so far and stops the rollout.
type Rolling struct {
	base
}

func NewRolling(deps Deps) *Rolling {
	return &Rolling{base: newBase(deps, "rolling")}
}

func (r *Rolling) Name() domain.StrategyType {
	return domain.StrategyRolling
}

func (r *Rolling) Execute(ctx context.Context, req domain.DeploymentRequest, targets []string) (*domain.DeploymentOutcome, error) {
	outcome := newOutcome(req)
	baseline := r.captureBaseline(ctx, targets)
	batchSize := req.Config.BatchSize
	if batchSize < 1 {
		batchSize = 1
	}

	for start := 0; start < len(targets); start += batchSize {
		if err := ctx.Err(); err != nil {
			return r.rollbackApplied(ctx, req, outcome, "deployment cancelled"), nil
		}

		end := start + batchSize
		if end > len(targets) {
			end = len(targets)
		}
		batch := targets[start:end]
		batchName := fmt.Sprintf("batch-%d", start/batchSize+1)
		startedAt := time.Now()

		r.logger.Info("deploying batch",
			"execution_id", req.ExecutionID,
			"batch", batchName,
			"nodes", len(batch))

		results := r.deployWave(ctx, req, batch)
		outcome.DeployedNodes = append(outcome.DeployedNodes, results...)

		if !allSucceeded(results) {
			r.reportProgress(ctx, req.ExecutionID, domain.ExecutionStatusRunning, "execute",
				[]domain.StageResult{stageResult(batchName, domain.StageStatusFailed, startedAt, "batch deployment failed", results)})
			return r.rollbackApplied(ctx, req, outcome, batchName+" failed to deploy"), nil
		}

		verdict := r.deps.Health.Evaluate(r.sampleLive(ctx, batch), baseline, req.Config.Thresholds)
		if !verdict.Healthy {
			r.reportProgress(ctx, req.ExecutionID, domain.ExecutionStatusRunning, "execute",
				[]domain.StageResult{stageResult(batchName, domain.StageStatusFailed, startedAt, "batch health check failed", results)})
			reason := fmt.Sprintf("%s unhealthy: %d metric(s) out of threshold", batchName, len(verdict.Violations))
			return r.rollbackApplied(ctx, req, outcome, reason), nil
		}

		r.reportProgress(ctx, req.ExecutionID, domain.ExecutionStatusRunning, "execute",
			[]domain.StageResult{stageResult(batchName, domain.StageStatusSucceeded, startedAt, "batch deployed and healthy", results)})
	}

	return completeOutcome(outcome, "all batches deployed and healthy"), nil
}
