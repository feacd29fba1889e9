package ports

import (
	"context"

	"github.com/rollwave/rollwave/internal/domain"
)

// Pipeline owns the canonical execution state and serializes concurrent
// stage updates per execution id.
type Pipeline interface {
	// UpdateState commits one stage transition. Incoming stage results are
	// deep-copied before they join the history; the committed snapshot is
	// persisted and published after the in-memory transition. A store or
	// notify failure surfaces as a DeliveryError and never reverts the
	// transition.
	UpdateState(ctx context.Context, executionID string, status domain.ExecutionStatus, currentStage string, stageResults []domain.StageResult) error

	// GetState returns a detached snapshot of the current state.
	GetState(executionID string) (*domain.PipelineExecutionState, error)
}
