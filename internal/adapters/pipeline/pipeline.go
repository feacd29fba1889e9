package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rollwave/rollwave/internal/domain"
	"github.com/rollwave/rollwave/internal/ports"
	"github.com/rollwave/rollwave/internal/xjson"
)

// Pipeline owns the canonical execution state. Updates for one execution
// are serialized by a lock keyed by execution id, created lazily and
// dropped once the execution reaches a terminal state. The lock table
// itself sits behind one coarse mutex distinct from the per-execution
// locks it hands out, so unrelated executions never contend.
type Pipeline struct {
	store    ports.ExecutionStore
	notifier ports.ProgressNotifier
	logger   *slog.Logger

	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	states map[string]*domain.PipelineExecutionState
}

func New(store ports.ExecutionStore, notifier ports.ProgressNotifier, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:    store,
		notifier: notifier,
		logger:   logger.With("component", "pipeline"),
		locks:    make(map[string]*sync.Mutex),
		states:   make(map[string]*domain.PipelineExecutionState),
	}
}

func (p *Pipeline) UpdateState(ctx context.Context, executionID string, status domain.ExecutionStatus, currentStage string, stageResults []domain.StageResult) error {
	if executionID == "" {
		return domain.NewValidationError("execution_id", "must not be empty")
	}

	lock := p.acquireEntry(executionID)
	lock.Lock()
	defer lock.Unlock()

	p.mu.Lock()
	state, ok := p.states[executionID]
	p.mu.Unlock()
	if !ok {
		// Unknown in memory: either a fresh execution, or one whose
		// terminal snapshot was already evicted. The store decides.
		if loaded, err := p.store.Load(ctx, executionID); err == nil {
			if loaded.Status.IsTerminal() {
				p.releaseEntry(executionID)
				return fmt.Errorf("execution %s: %w", executionID, domain.ErrAlreadyTerminal)
			}
			state = loaded
		} else {
			state = &domain.PipelineExecutionState{
				ExecutionID: executionID,
				Status:      domain.ExecutionStatusPending,
			}
		}
		p.mu.Lock()
		p.states[executionID] = state
		p.mu.Unlock()
	}

	if state.Status.IsTerminal() {
		p.releaseEntry(executionID)
		return fmt.Errorf("execution %s: %w", executionID, domain.ErrAlreadyTerminal)
	}

	// History is never aliased to caller-owned structures.
	var copied []domain.StageResult
	if len(stageResults) > 0 {
		if err := xjson.Clone(stageResults, &copied); err != nil {
			return fmt.Errorf("copying stage results: %w", err)
		}
	}

	state.Status = status
	state.CurrentStage = currentStage
	state.StageResults = append(state.StageResults, copied...)
	state.SequenceNumber++
	state.UpdatedAt = time.Now()

	snapshot := p.snapshotLocked(state)

	p.logger.Debug("state committed",
		"execution_id", executionID,
		"status", status,
		"stage", currentStage,
		"sequence", snapshot.SequenceNumber)

	// The in-memory transition is already committed; store and notify
	// failures are delivery failures, never reverts.
	err := p.deliver(ctx, snapshot)

	if status.IsTerminal() {
		p.releaseEntry(executionID)
		// The in-memory record is a cache for live executions; once the
		// terminal snapshot is durable, reads go through the store. On a
		// delivery failure the record stays so the state remains readable.
		if err == nil {
			p.mu.Lock()
			delete(p.states, executionID)
			p.mu.Unlock()
		}
	}
	return err
}

func (p *Pipeline) GetState(executionID string) (*domain.PipelineExecutionState, error) {
	p.mu.Lock()
	state, hasState := p.states[executionID]
	lock, hasLock := p.locks[executionID]
	p.mu.Unlock()

	if !hasState {
		loaded, err := p.store.Load(context.Background(), executionID)
		if err != nil {
			if domain.IsNotFound(err) {
				return nil, fmt.Errorf("execution %s: %w", executionID, domain.ErrNotFound)
			}
			return nil, fmt.Errorf("loading execution %s: %w", executionID, err)
		}
		return loaded, nil
	}

	// Terminal executions have no lock entry left; no writer can race us.
	if hasLock {
		lock.Lock()
		defer lock.Unlock()
	}
	snapshot := p.snapshotLocked(state)
	return &snapshot, nil
}

// LockTableSize reports the number of live per-execution locks; terminal
// executions no longer occupy an entry.
func (p *Pipeline) LockTableSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.locks)
}

func (p *Pipeline) acquireEntry(executionID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	lock, ok := p.locks[executionID]
	if !ok {
		lock = &sync.Mutex{}
		p.locks[executionID] = lock
	}
	return lock
}

func (p *Pipeline) releaseEntry(executionID string) {
	p.mu.Lock()
	delete(p.locks, executionID)
	p.mu.Unlock()
}

func (p *Pipeline) snapshotLocked(state *domain.PipelineExecutionState) domain.PipelineExecutionState {
	snapshot := *state
	snapshot.StageResults = make([]domain.StageResult, len(state.StageResults))
	copy(snapshot.StageResults, state.StageResults)
	return snapshot
}

func (p *Pipeline) deliver(ctx context.Context, snapshot domain.PipelineExecutionState) error {
	if err := p.store.Save(ctx, snapshot.ExecutionID, snapshot); err != nil {
		p.logger.Error("snapshot persistence failed",
			"execution_id", snapshot.ExecutionID,
			"sequence", snapshot.SequenceNumber,
			"error", err.Error())
		return domain.NewDeliveryError(snapshot.ExecutionID, "store", classifyDeliveryErr("store", err))
	}
	if err := p.notifier.Publish(ctx, snapshot); err != nil {
		p.logger.Error("snapshot publication failed",
			"execution_id", snapshot.ExecutionID,
			"sequence", snapshot.SequenceNumber,
			"error", err.Error())
		return domain.NewDeliveryError(snapshot.ExecutionID, "notifier", classifyDeliveryErr("notifier", err))
	}
	return nil
}

// classifyDeliveryErr separates a sink that ran out of time from a sink
// that logically failed.
func classifyDeliveryErr(resource string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewConcurrencyTimeoutError(resource, err)
	}
	return err
}
