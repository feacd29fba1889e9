package ports

import (
	"context"

	"github.com/rollwave/rollwave/internal/domain"
)

// ProgressNotifier publishes committed snapshots, at-least-once. Consumers
// resolve duplicates and reordering by SequenceNumber.
type ProgressNotifier interface {
	Publish(ctx context.Context, snapshot domain.PipelineExecutionState) error
}
