package ports

import (
	"context"

	"github.com/rollwave/rollwave/internal/domain"
)

// RollbackCoordinator reverts previously-deployed nodes. Per-node failures
// are retried per config and captured in the outcome; RollbackAll itself
// never returns an error for node failures.
type RollbackCoordinator interface {
	RollbackAll(ctx context.Context, nodes []string, moduleID, environment string, cfg domain.RollbackConfig) domain.RollbackOutcome
}
