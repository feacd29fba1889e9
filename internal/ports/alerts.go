package ports

import (
	"context"

	"github.com/rollwave/rollwave/internal/domain"
)

// AlertSink receives critical rollback-failure notifications.
type AlertSink interface {
	Critical(ctx context.Context, alert domain.CriticalAlert) error
}

// Quarantiner removes a node from active routing and deployment
// eligibility after an unrecoverable failure.
type Quarantiner interface {
	Quarantine(ctx context.Context, nodeID string) error
}
