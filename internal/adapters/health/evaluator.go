package health

import (
	"log/slog"
	"math"
	"time"

	"github.com/rollwave/rollwave/internal/domain"
)

// epsilon is the zero-baseline cutoff: a baseline at or below it cannot be
// divided by, so the change is resolved by policy instead.
const epsilon = 0.001

// Evaluator compares live metrics against a pre-deployment baseline. Every
// input resolves to a finite verdict: a zero baseline with zero live
// traffic reports 0% change, a zero baseline with nonzero live reports a
// flat 100% increase.
type Evaluator struct {
	logger *slog.Logger
}

func NewEvaluator(logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{
		logger: logger.With("component", "health-evaluator"),
	}
}

func (e *Evaluator) Evaluate(live domain.LiveMetrics, baseline domain.BaselineMetrics, thresholds domain.HealthThresholds) domain.HealthVerdict {
	changes := []domain.MetricChange{
		e.change("cpu_percent", live.CPUPercent, baseline.CPUPercent, thresholds.CPUPercent),
		e.change("memory_percent", live.MemoryPercent, baseline.MemoryPercent, thresholds.MemoryPercent),
		e.change("latency_ms", live.LatencyMs, baseline.LatencyMs, thresholds.LatencyMs),
		e.change("error_rate", live.ErrorRate, baseline.ErrorRate, thresholds.ErrorRate),
	}

	verdict := domain.HealthVerdict{
		Healthy:     true,
		Changes:     changes,
		EvaluatedAt: time.Now(),
	}
	for _, c := range changes {
		if c.Violated {
			verdict.Healthy = false
			verdict.Violations = append(verdict.Violations, c)
		}
	}

	if !verdict.Healthy {
		e.logger.Warn("health evaluation failed",
			"violations", len(verdict.Violations),
			"first_violation", verdict.Violations[0].Metric)
	}

	return verdict
}

func (e *Evaluator) change(metric string, live, baseline, threshold float64) domain.MetricChange {
	c := domain.MetricChange{
		Metric:    metric,
		Baseline:  baseline,
		Live:      live,
		Threshold: threshold,
	}

	switch {
	case degenerate(live) || degenerate(baseline):
		// A sample the agent cannot measure is treated as a flat 100%
		// regression rather than poisoning the verdict with NaN.
		merr := &domain.MetricError{Metric: metric, Message: "non-finite sample"}
		e.logger.Warn("degenerate metric sample", "error", merr.Error(), "live", live, "baseline", baseline)
		c.ChangePercent = 100
	case baseline <= epsilon && live <= epsilon:
		c.ChangePercent = 0
	case baseline <= epsilon:
		// Zero-baseline policy: nonzero live traffic against a fresh node
		// counts as a flat 100% increase, keeping the result finite.
		c.ChangePercent = 100
	default:
		c.ChangePercent = (live - baseline) / baseline * 100
	}

	c.Violated = c.ChangePercent > threshold
	return c
}

func degenerate(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}
