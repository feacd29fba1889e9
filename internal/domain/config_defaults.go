package domain

import (
	"time"

	"dario.cat/mergo"
)

func DefaultStrategyConfig() StrategyConfig {
	autoRollback := true
	return StrategyConfig{
		WavePercentages:     []int{10, 30, 50, 100},
		EvaluationPeriod:    30 * time.Second,
		AutoRollback:        &autoRollback,
		BatchSize:           2,
		TrafficSplitPercent: 50,
		TestDuration:        10 * time.Minute,
		DecisionMetrics: []DecisionMetric{
			{Name: "latency_ms", Direction: LowerIsBetter},
			{Name: "error_rate", Direction: LowerIsBetter},
			{Name: "cpu_percent", Direction: LowerIsBetter},
		},
		Thresholds: HealthThresholds{
			CPUPercent:    20,
			MemoryPercent: 20,
			LatencyMs:     50,
			ErrorRate:     10,
		},
		Rollback: RollbackConfig{
			MaxAttempts: 3,
			BackoffBase: 2 * time.Second,
		},
	}
}

// ApplyDefaults fills every zero field of the config from the defaults,
// leaving caller-supplied values untouched.
func (c *StrategyConfig) ApplyDefaults() error {
	defaults := DefaultStrategyConfig()
	if err := mergo.Merge(c, defaults); err != nil {
		return NewValidationError("config", "merging defaults: "+err.Error())
	}
	return nil
}
