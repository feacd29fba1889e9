package memory

import (
	"context"
	"log/slog"
	"sync"

	"github.com/rollwave/rollwave/internal/domain"
)

// Alerts records critical alerts and logs them at error level.
type Alerts struct {
	mu     sync.Mutex
	alerts []domain.CriticalAlert
	logger *slog.Logger
}

func NewAlerts(logger *slog.Logger) *Alerts {
	if logger == nil {
		logger = slog.Default()
	}
	return &Alerts{
		logger: logger.With("component", "alerts", "type", "memory"),
	}
}

func (a *Alerts) Critical(ctx context.Context, alert domain.CriticalAlert) error {
	a.mu.Lock()
	a.alerts = append(a.alerts, alert)
	a.mu.Unlock()

	a.logger.Error("critical alert",
		"module_id", alert.ModuleID,
		"environment", alert.Environment,
		"failed_nodes", alert.FailedNodes,
		"message", alert.Message)
	return nil
}

// Alerts returns a copy of everything recorded so far.
func (a *Alerts) Alerts() []domain.CriticalAlert {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.CriticalAlert(nil), a.alerts...)
}
