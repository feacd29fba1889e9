package ports

import (
	"context"

	"github.com/rollwave/rollwave/internal/domain"
)

// DeploymentStrategy drives one rollout variant. Execute blocks until the
// rollout reaches a terminal or paused status, honouring ctx cancellation
// at every suspension point. Per-node and health failures are converted
// into outcome fields, never returned as errors; the error return is
// reserved for contract violations.
type DeploymentStrategy interface {
	Name() domain.StrategyType
	Execute(ctx context.Context, request domain.DeploymentRequest, targets []string) (*domain.DeploymentOutcome, error)
}

// ResumableStrategy is implemented by strategies that can park an
// execution in Paused awaiting a manual decision. Resume drives the
/// paused execution to a terminal outcome: proceed deploys the remaining
// targets, otherwise the applied nodes are rolled back.
type ResumableStrategy interface {
	DeploymentStrategy
	Resume(ctx context.Context, request domain.DeploymentRequest, targets []string, outcome *domain.DeploymentOutcome, proceed bool) (*domain.DeploymentOutcome, error)
}

// StrategyFactory resolves the strategy implementation for a request.
type StrategyFactory interface {
	Create(strategy domain.StrategyType) (DeploymentStrategy, error)
}
