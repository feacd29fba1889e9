package routing

import (
	"log/slog"
	"math"
	"sync"

	"github.com/rollwave/rollwave/internal/domain"
)

// cursorResetBound is how close the cursor may get to the uint64 boundary
// before it is preemptively reset to zero.
const cursorResetBound = math.MaxUint64 - 1024

// RoundRobin is the stateful routing strategy: a lock-protected cursor
// recomputed against the current active-set size on every call, so
// membership may change freely between calls.
type RoundRobin struct {
	mu     sync.Mutex
	cursor uint64
	logger *slog.Logger
}

func NewRoundRobin(logger *slog.Logger) *RoundRobin {
	if logger == nil {
		logger = slog.Default()
	}
	return &RoundRobin{
		logger: logger.With("component", "routing", "strategy", "round_robin"),
	}
}

func (rr *RoundRobin) SelectTarget(active []domain.Consumer) (string, error) {
	eligible := filterActive(active)
	if len(eligible) == 0 {
		return "", domain.NewRoutingError("round_robin", domain.ErrNoConsumers)
	}

	rr.mu.Lock()
	if rr.cursor >= cursorResetBound {
		rr.logger.Debug("cursor approaching overflow boundary, resetting", "cursor", rr.cursor)
		rr.cursor = 0
	}
	index := rr.cursor % uint64(len(eligible))
	rr.cursor++
	rr.mu.Unlock()

	selected := eligible[index]
	rr.logger.Debug("round robin selection",
		"selected", selected.ID,
		"index", index,
		"active_count", len(eligible))

	return selected.ID, nil
}

func filterActive(consumers []domain.Consumer) []domain.Consumer {
	eligible := make([]domain.Consumer, 0, len(consumers))
	for _, c := range consumers {
		if c.Active {
			eligible = append(eligible, c)
		}
	}
	return eligible
}
