package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rollwave/rollwave/internal/domain"
)

// Store is an in-memory ExecutionStore keeping the latest snapshot per
// execution. Suited to tests and single-process demos.
type Store struct {
	mu        sync.RWMutex
	snapshots map[string]domain.PipelineExecutionState
	logger    *slog.Logger
}

func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		snapshots: make(map[string]domain.PipelineExecutionState),
		logger:    logger.With("component", "store", "type", "memory"),
	}
}

func (s *Store) Save(ctx context.Context, executionID string, snapshot domain.PipelineExecutionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// At-least-once delivery upstream can reorder; keep the newest.
	if existing, ok := s.snapshots[executionID]; ok && existing.SequenceNumber > snapshot.SequenceNumber {
		return nil
	}
	s.snapshots[executionID] = snapshot
	return nil
}

func (s *Store) Load(ctx context.Context, executionID string) (*domain.PipelineExecutionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot, ok := s.snapshots[executionID]
	if !ok {
		return nil, fmt.Errorf("execution %s: %w", executionID, domain.ErrNotFound)
	}
	return &snapshot, nil
}
