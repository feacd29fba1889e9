package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/rollwave/rollwave/internal/domain"
)

// ABTesting splits traffic between the incumbent version (variant A) and
// the candidate (variant B) for a fixed duration, then promotes whichever
// variant wins a strict majority of the configured decision metrics.
// On a tie the incumbent wins and the candidate is rolled back.
type ABTesting struct {
	base
}

func NewABTesting(deps Deps) *ABTesting {
	return &ABTesting{base: newBase(deps, "ab_testing")}
}

func (ab *ABTesting) Name() domain.StrategyType {
	return domain.StrategyABTesting
}

func (ab *ABTesting) Execute(ctx context.Context, req domain.DeploymentRequest, targets []string) (*domain.DeploymentOutcome, error) {
	outcome := newOutcome(req)

	split := clampPercent(req.Config.TrafficSplitPercent)
	bCount := waveSize(len(targets), split)
	if bCount == len(targets) && len(targets) > 1 {
		bCount = len(targets) - 1
	}
	if bCount < 1 {
		bCount = 1
	}
	variantB := targets[:bCount]
	variantA := targets[bCount:]

	ab.logger.Info("starting a/b test",
		"execution_id", req.ExecutionID,
		"split_percent", split,
		"variant_b_nodes", len(variantB),
		"variant_a_nodes", len(variantA),
		"duration", req.Config.TestDuration)

	startedAt := time.Now()
	results := ab.deployWave(ctx, req, variantB)
	outcome.DeployedNodes = results

	if !allSucceeded(results) {
		ab.reportProgress(ctx, req.ExecutionID, domain.ExecutionStatusRunning, "execute",
			[]domain.StageResult{stageResult("deploy-variant-b", domain.StageStatusFailed, startedAt, "candidate variant deployment failed", results)})
		return ab.rollbackApplied(ctx, req, outcome, "candidate variant failed to deploy"), nil
	}

	ab.reportProgress(ctx, req.ExecutionID, domain.ExecutionStatusRunning, "execute",
		[]domain.StageResult{stageResult("deploy-variant-b", domain.StageStatusSucceeded, startedAt,
			fmt.Sprintf("candidate serving %d%% of traffic", split), results)})

	if err := waitEvaluation(ctx, req.Config.TestDuration); err != nil {
		return ab.rollbackApplied(ctx, req, outcome, "a/b test cancelled"), nil
	}

	metricsB := ab.sampleLive(ctx, variantB)
	metricsA := ab.sampleLive(ctx, variantA)
	bWins, total := scoreVariants(metricsA, metricsB, req.Config.DecisionMetrics)

	compareStarted := time.Now()
	ab.logger.Info("a/b comparison complete",
		"execution_id", req.ExecutionID,
		"candidate_wins", bWins,
		"decision_metrics", total)

	if bWins*2 > total {
		promoteStarted := time.Now()
		promoted := ab.deployWave(ctx, req, variantA)
		outcome.DeployedNodes = append(outcome.DeployedNodes, promoted...)
		if !allSucceeded(promoted) {
			ab.reportProgress(ctx, req.ExecutionID, domain.ExecutionStatusRunning, "execute",
				[]domain.StageResult{stageResult("promote-variant-b", domain.StageStatusFailed, promoteStarted, "promotion to 100% failed", promoted)})
			return ab.rollbackApplied(ctx, req, outcome, "promotion of winning variant failed"), nil
		}
		ab.reportProgress(ctx, req.ExecutionID, domain.ExecutionStatusRunning, "execute",
			[]domain.StageResult{stageResult("promote-variant-b", domain.StageStatusSucceeded, promoteStarted,
				fmt.Sprintf("candidate won %d of %d decision metrics, promoted to 100%%", bWins, total), promoted)})
		return completeOutcome(outcome, fmt.Sprintf("candidate version promoted, winning %d of %d decision metrics", bWins, total)), nil
	}

	// Incumbent wins: revert the candidate nodes.
	ab.reportProgress(ctx, req.ExecutionID, domain.ExecutionStatusRunning, "execute",
		[]domain.StageResult{stageResult("compare-variants", domain.StageStatusSucceeded, compareStarted,
			fmt.Sprintf("incumbent retained, candidate won only %d of %d decision metrics", bWins, total), nil)})
	return ab.rollbackApplied(ctx, req, outcome,
		fmt.Sprintf("incumbent retained: candidate won %d of %d decision metrics", bWins, total)), nil
}

// scoreVariants counts how many decision metrics the candidate wins.
// Strict inequality: an exactly-equal metric is not a win.
func scoreVariants(a, b domain.LiveMetrics, metrics []domain.DecisionMetric) (bWins, total int) {
	for _, m := range metrics {
		va, okA := metricValue(a, m.Name)
		vb, okB := metricValue(b, m.Name)
		if !okA || !okB {
			continue
		}
		total++
		switch m.Direction {
		case domain.LowerIsBetter:
			if vb < va {
				bWins++
			}
		case domain.HigherIsBetter:
			if vb > va {
				bWins++
			}
		}
	}
	return bWins, total
}

func metricValue(m domain.LiveMetrics, name string) (float64, bool) {
	switch name {
	case "cpu_percent":
		return m.CPUPercent, true
	case "memory_percent":
		return m.MemoryPercent, true
	case "latency_ms":
		return m.LatencyMs, true
	case "error_rate":
		return m.ErrorRate, true
	}
	return 0, false
}
