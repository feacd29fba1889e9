package memory

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/rollwave/rollwave/internal/domain"
)

// Notifier fans committed snapshots out to in-process subscribers.
// Delivery is at-least-once; subscribers dedupe on SequenceNumber.
type Notifier struct {
	mu          sync.RWMutex
	subscribers map[string]chan domain.PipelineExecutionState
	logger      *slog.Logger
}

func NewNotifier(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		subscribers: make(map[string]chan domain.PipelineExecutionState),
		logger:      logger.With("component", "notifier", "type", "memory"),
	}
}

func (n *Notifier) Publish(ctx context.Context, snapshot domain.PipelineExecutionState) error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for id, ch := range n.subscribers {
		select {
		case ch <- snapshot:
		default:
			n.logger.Warn("subscriber buffer full, dropping snapshot",
				"subscriber", id,
				"execution_id", snapshot.ExecutionID,
				"sequence", snapshot.SequenceNumber)
		}
	}
	return nil
}

// Subscribe registers a buffered snapshot channel. The returned cancel
// func removes the subscription and closes the channel.
func (n *Notifier) Subscribe(buffer int) (<-chan domain.PipelineExecutionState, func()) {
	if buffer < 1 {
		buffer = 64
	}
	id := uuid.NewString()
	ch := make(chan domain.PipelineExecutionState, buffer)

	n.mu.Lock()
	n.subscribers[id] = ch
	n.mu.Unlock()

	cancel := func() {
		n.mu.Lock()
		if _, ok := n.subscribers[id]; ok {
			delete(n.subscribers, id)
			close(ch)
		}
		n.mu.Unlock()
	}
	return ch, cancel
}
