package ports

import (
	"context"

	"github.com/rollwave/rollwave/internal/domain"
)

// ExecutionStore persists pipeline snapshots. Implementations live outside
// the core; the pipeline only needs Save and Load.
type ExecutionStore interface {
	Save(ctx context.Context, executionID string, snapshot domain.PipelineExecutionState) error
	Load(ctx context.Context, executionID string) (*domain.PipelineExecutionState, error)
}
