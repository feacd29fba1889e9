package rollback

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rollwave/rollwave/internal/domain"
	"github.com/rollwave/rollwave/internal/ports"
)

// Coordinator reverts partially-applied deployments. Each node is rolled
// back on its own goroutine; results are gathered after all tasks complete
// and aggregated into an immutable outcome, so no task ever writes into a
// shared result.
type Coordinator struct {
	cluster    ports.ClusterClient
	alerts     ports.AlertSink
	quarantine ports.Quarantiner
	logger     *slog.Logger
}

// NewCoordinator builds a coordinator. quarantine may be nil when the
// deployment eligibility set is managed elsewhere.
func NewCoordinator(cluster ports.ClusterClient, alerts ports.AlertSink, quarantine ports.Quarantiner, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		cluster:    cluster,
		alerts:     alerts,
		quarantine: quarantine,
		logger:     logger.With("component", "rollback-coordinator"),
	}
}

func (c *Coordinator) RollbackAll(ctx context.Context, nodes []string, moduleID, environment string, cfg domain.RollbackConfig) domain.RollbackOutcome {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 2 * time.Second
	}

	c.logger.Info("rolling back nodes",
		"module_id", moduleID,
		"environment", environment,
		"node_count", len(nodes))

	results := make([]domain.NodeRollbackResult, len(nodes))
	var wg sync.WaitGroup
	for i, nodeID := range nodes {
		wg.Add(1)
		go func(i int, nodeID string) {
			defer wg.Done()
			results[i] = c.rollbackNode(ctx, nodeID, moduleID, cfg)
		}(i, nodeID)
	}
	wg.Wait()

	outcome := domain.RollbackOutcome{
		NodeResults:        results,
		RollbackSuccessful: true,
	}
	for _, r := range results {
		if !r.Success {
			outcome.RollbackSuccessful = false
			outcome.ManualIntervention = append(outcome.ManualIntervention, r.NodeID)
		}
	}

	if !outcome.RollbackSuccessful {
		outcome.Failure = &domain.UnrecoverableRollbackError{
			ModuleID:    moduleID,
			Environment: environment,
			FailedNodes: outcome.ManualIntervention,
		}
		c.escalate(ctx, outcome.ManualIntervention, moduleID, environment, cfg)
	}

	return outcome
}

// rollbackNode retries up to MaxAttempts with exponential backoff between
// attempts (base × 2^(attempt-1)). A node absent from the cluster fails
// immediately without consuming retries.
func (c *Coordinator) rollbackNode(ctx context.Context, nodeID, moduleID string, cfg domain.RollbackConfig) domain.NodeRollbackResult {
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := cfg.BackoffBase << (attempt - 2)
			if err := sleepCtx(ctx, delay); err != nil {
				lastErr = err
				return domain.NodeRollbackResult{
					NodeID:    nodeID,
					Success:   false,
					Attempts:  attempt - 1,
					Message:   "rollback cancelled: " + err.Error(),
					Timestamp: time.Now(),
				}
			}
		}

		err := c.cluster.RollbackModule(ctx, nodeID, moduleID)
		if err == nil {
			return domain.NodeRollbackResult{
				NodeID:    nodeID,
				Success:   true,
				Attempts:  attempt,
				Message:   "rolled back",
				Timestamp: time.Now(),
			}
		}

		lastErr = err
		if domain.IsNotFound(err) {
			c.logger.Warn("node not found during rollback, not retrying",
				"node_id", nodeID, "module_id", moduleID)
			return domain.NodeRollbackResult{
				NodeID:    nodeID,
				Success:   false,
				Attempts:  attempt,
				Message:   "node not found: " + err.Error(),
				Timestamp: time.Now(),
			}
		}

		c.logger.Warn("rollback attempt failed",
			"node_id", nodeID,
			"attempt", attempt,
			"max_attempts", cfg.MaxAttempts,
			"error", err.Error())
	}

	return domain.NodeRollbackResult{
		NodeID:    nodeID,
		Success:   false,
		Attempts:  cfg.MaxAttempts,
		Message:   fmt.Sprintf("exhausted %d attempts: %v", cfg.MaxAttempts, lastErr),
		Timestamp: time.Now(),
	}
}

func (c *Coordinator) escalate(ctx context.Context, failed []string, moduleID, environment string, cfg domain.RollbackConfig) {
	alert := domain.CriticalAlert{
		ModuleID:    moduleID,
		Environment: environment,
		FailedNodes: failed,
		Message: fmt.Sprintf("rollback of module %s failed on nodes [%s]; manual intervention required",
			moduleID, strings.Join(failed, ", ")),
		RaisedAt: time.Now(),
	}

	if err := c.alerts.Critical(ctx, alert); err != nil {
		c.logger.Error("failed to emit critical alert", "error", err.Error())
	}

	if cfg.QuarantineOnFailure && c.quarantine != nil {
		for _, nodeID := range failed {
			if err := c.quarantine.Quarantine(ctx, nodeID); err != nil {
				c.logger.Error("failed to quarantine node", "node_id", nodeID, "error", err.Error())
			} else {
				c.logger.Info("node quarantined", "node_id", nodeID)
			}
		}
	}
}

// sleepCtx waits for d on a cancellable timer.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
