package strategy

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/rollwave/rollwave/internal/domain"
	"github.com/rollwave/rollwave/internal/ports"
)

// Deps are the collaborators every strategy variant shares.
type Deps struct {
	Cluster  ports.ClusterClient
	Health   ports.HealthEvaluator
	Rollback ports.RollbackCoordinator
	Pipeline ports.Pipeline
	Logger   *slog.Logger
}

type base struct {
	deps   Deps
	logger *slog.Logger
}

func newBase(deps Deps, name string) base {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return base{
		deps:   deps,
		logger: logger.With("component", "strategy", "strategy", name),
	}
}

func clampPercent(pct int) int {
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// waveSize is ceil(total × pct/100) with pct clamped to [0,100].
func waveSize(total, pct int) int {
	size := int(math.Ceil(float64(total) * float64(clampPercent(pct)) / 100))
	if size > total {
		size = total
	}
	return size
}

// waveBoundaries converts wave percentages into cumulative target counts.
// Boundaries never decrease, whatever the input, and rounding always lets
// the final wave land exactly on total.
func waveBoundaries(total int, percentages []int) []int {
	boundaries := make([]int, len(percentages))
	prev := 0
	for i, pct := range percentages {
		b := waveSize(total, pct)
		if b < prev {
			b = prev
		}
		boundaries[i] = b
		prev = b
	}
	if len(boundaries) > 0 && percentages[len(percentages)-1] == 100 {
		boundaries[len(boundaries)-1] = total
	}
	return boundaries
}

// deployWave deploys every node of the wave concurrently, one task per
// node, and aggregates results after all tasks complete.
func (b *base) deployWave(ctx context.Context, req domain.DeploymentRequest, nodes []string) []domain.NodeDeploymentResult {
	results := make([]domain.NodeDeploymentResult, len(nodes))
	var wg sync.WaitGroup
	for i, nodeID := range nodes {
		wg.Add(1)
		go func(i int, nodeID string) {
			defer wg.Done()
			err := b.deps.Cluster.DeployModule(ctx, nodeID, req.ModuleID, req.Version)
			result := domain.NodeDeploymentResult{
				NodeID:    nodeID,
				Success:   err == nil,
				Timestamp: time.Now(),
			}
			if err != nil {
				result.Message = err.Error()
				b.logger.Warn("node deployment failed",
					"execution_id", req.ExecutionID,
					"node_id", nodeID,
					"error", err.Error())
			}
			results[i] = result
		}(i, nodeID)
	}
	wg.Wait()
	return results
}

func allSucceeded(results []domain.NodeDeploymentResult) bool {
	for _, r := range results {
		if !r.Success {
			return false
		}
	}
	return true
}

// captureBaseline averages the pre-deployment metrics of the targets.
// Unreachable nodes are skipped; an all-unreachable set yields a zero
// baseline, which the evaluator resolves by the zero-baseline policy.
func (b *base) captureBaseline(ctx context.Context, nodes []string) domain.BaselineMetrics {
	live, sampled := b.averageMetrics(ctx, nodes)
	if sampled == 0 {
		return domain.BaselineMetrics{}
	}
	return domain.BaselineMetrics{
		CPUPercent:    live.CPUPercent,
		MemoryPercent: live.MemoryPercent,
		LatencyMs:     live.LatencyMs,
		ErrorRate:     live.ErrorRate,
	}
}

func (b *base) sampleLive(ctx context.Context, nodes []string) domain.LiveMetrics {
	live, _ := b.averageMetrics(ctx, nodes)
	return live
}

func (b *base) averageMetrics(ctx context.Context, nodes []string) (domain.LiveMetrics, int) {
	var sum domain.LiveMetrics
	sampled := 0
	for _, nodeID := range nodes {
		m, err := b.deps.Cluster.HealthCheck(ctx, nodeID)
		if err != nil {
			b.logger.Warn("health check failed", "node_id", nodeID, "error", err.Error())
			continue
		}
		sum.CPUPercent += m.CPUPercent
		sum.MemoryPercent += m.MemoryPercent
		sum.LatencyMs += m.LatencyMs
		sum.ErrorRate += m.ErrorRate
		sampled++
	}
	if sampled == 0 {
		return domain.LiveMetrics{}, 0
	}
	n := float64(sampled)
	return domain.LiveMetrics{
		CPUPercent:    sum.CPUPercent / n,
		MemoryPercent: sum.MemoryPercent / n,
		LatencyMs:     sum.LatencyMs / n,
		ErrorRate:     sum.ErrorRate / n,
	}, sampled
}

// waitEvaluation suspends for the evaluation period on a cancellable
// timer, never a blocking sleep.
func waitEvaluation(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// reportProgress pushes an incremental stage update through the pipeline.
// Delivery failures are logged and swallowed: progress reporting never
// fails a rollout.
func (b *base) reportProgress(ctx context.Context, executionID string, status domain.ExecutionStatus, stage string, results []domain.StageResult) {
	if b.deps.Pipeline == nil {
		return
	}
	if err := b.deps.Pipeline.UpdateState(ctx, executionID, status, stage, results); err != nil {
		b.logger.Warn("progress report failed",
			"execution_id", executionID,
			"stage", stage,
			"error", err.Error())
	}
}

// rollbackApplied reverts the applied nodes and finalizes the outcome.
// Rollback runs detached from the caller's cancellation so an operator
// abort still unwinds cleanly.
func (b *base) rollbackApplied(ctx context.Context, req domain.DeploymentRequest, outcome *domain.DeploymentOutcome, reason string) *domain.DeploymentOutcome {
	applied := outcome.AppliedNodes()
	b.logger.Info("initiating rollback",
		"execution_id", req.ExecutionID,
		"applied_nodes", len(applied),
		"reason", reason)

	rbCtx := context.WithoutCancel(ctx)
	rb := b.deps.Rollback.RollbackAll(rbCtx, applied, req.ModuleID, req.Environment, req.Config.Rollback)
	outcome.Rollback = &rb
	outcome.Reason = reason
	if rb.RollbackSuccessful {
		outcome.Status = domain.ExecutionStatusRolledBack
	} else {
		outcome.Status = domain.ExecutionStatusFailed
		outcome.Reason = reason + "; rollback incomplete, manual intervention required"
		if rb.Failure != nil {
			outcome.Reason = reason + "; " + rb.Failure.Error()
		}
	}
	outcome.CompletedAt = time.Now()
	return outcome
}

func newOutcome(req domain.DeploymentRequest) *domain.DeploymentOutcome {
	return &domain.DeploymentOutcome{
		ExecutionID: req.ExecutionID,
		Status:      domain.ExecutionStatusRunning,
		StartedAt:   time.Now(),
	}
}

func completeOutcome(outcome *domain.DeploymentOutcome, reason string) *domain.DeploymentOutcome {
	outcome.Status = domain.ExecutionStatusCompleted
	outcome.Reason = reason
	outcome.CompletedAt = time.Now()
	return outcome
}

func stageResult(name string, status domain.StageStatus, startedAt time.Time, message string, nodeResults []domain.NodeDeploymentResult) domain.StageResult {
	completedAt := time.Now()
	return domain.StageResult{
		Name:        name,
		Status:      status,
		StartedAt:   startedAt,
		CompletedAt: &completedAt,
		Message:     message,
		NodeResults: nodeResults,
	}
}
