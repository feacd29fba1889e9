package ports

import (
	"context"

	"github.com/rollwave/rollwave/internal/domain"
)

// ClusterClient is the node abstraction the strategies deploy through.
// A node that is not part of the cluster returns an error wrapping
// domain.ErrNotFound; such failures are non-retryable.
type ClusterClient interface {
	DeployModule(ctx context.Context, nodeID, moduleID, version string) error
	RollbackModule(ctx context.Context, nodeID, moduleID string) error
	HealthCheck(ctx context.Context, nodeID string) (domain.LiveMetrics, error)
}
