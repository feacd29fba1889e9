package ports

import (
	"github.com/rollwave/rollwave/internal/domain"
)

// RoutingStrategy selects a target among the current active set. Safe for
// concurrent use. An empty active set yields a typed RoutingError wrapping
// domain.ErrNoConsumers, never a panic or an out-of-range index.
type RoutingStrategy interface {
	SelectTarget(active []domain.Consumer) (string, error)
}
