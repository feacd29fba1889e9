package ports

import (
	"github.com/rollwave/rollwave/internal/domain"
)

// HealthEvaluator compares live metrics against a baseline. The verdict is
// always finite regardless of input; zero baselines never produce NaN or
// infinities.
type HealthEvaluator interface {
	Evaluate(live domain.LiveMetrics, baseline domain.BaselineMetrics, thresholds domain.HealthThresholds) domain.HealthVerdict
}
