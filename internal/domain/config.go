package domain

import (
	"time"
)

// MetricDirection declares how a decision metric is compared between A/B
// variants.
type MetricDirection string

const (
	LowerIsBetter  MetricDirection = "lower_is_better"
	HigherIsBetter MetricDirection = "higher_is_better"
)

type DecisionMetric struct {
	Name      string          `json:"name" yaml:"name"`
	Direction MetricDirection `json:"direction" yaml:"direction"`
}

// HealthThresholds are the maximum tolerated percentage increases per
// tracked metric. A live metric whose change exceeds its threshold makes
// the verdict Unhealthy.
type HealthThresholds struct {
	CPUPercent    float64 `json:"cpu_percent" yaml:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent" yaml:"memory_percent"`
	LatencyMs     float64 `json:"latency_ms" yaml:"latency_ms"`
	ErrorRate     float64 `json:"error_rate" yaml:"error_rate"`
}

// StrategyConfig carries every strategy's knobs; each variant reads the
// subset it cares about. Zero values are filled from DefaultStrategyConfig
// before validation.
type StrategyConfig struct {
	// Canary
	WavePercentages  []int         `json:"wave_percentages,omitempty" yaml:"wave_percentages,omitempty"`
	EvaluationPeriod time.Duration `json:"evaluation_period,omitempty" yaml:"evaluation_period,omitempty"`
	AutoRollback     *bool         `json:"auto_rollback,omitempty" yaml:"auto_rollback,omitempty"`

	// Rolling
	BatchSize int `json:"batch_size,omitempty" yaml:"batch_size,omitempty"`

	// Blue-green. RetainPrevious zero means the previous set is retained
	// until explicitly released.
	RetainPrevious time.Duration `json:"retain_previous,omitempty" yaml:"retain_previous,omitempty"`

	// A/B testing
	TrafficSplitPercent int              `json:"traffic_split_percent,omitempty" yaml:"traffic_split_percent,omitempty"`
	TestDuration        time.Duration    `json:"test_duration,omitempty" yaml:"test_duration,omitempty"`
	DecisionMetrics     []DecisionMetric `json:"decision_metrics,omitempty" yaml:"decision_metrics,omitempty"`

	Thresholds HealthThresholds `json:"thresholds" yaml:"thresholds"`
	Rollback   RollbackConfig   `json:"rollback" yaml:"rollback"`
}

type RollbackConfig struct {
	MaxAttempts         int           `json:"max_attempts" yaml:"max_attempts"`
	BackoffBase         time.Duration `json:"backoff_base" yaml:"backoff_base"`
	QuarantineOnFailure bool          `json:"quarantine_on_failure" yaml:"quarantine_on_failure"`
}

// Validate rejects a request before any node is touched.
func (r *DeploymentRequest) Validate() error {
	if r.ExecutionID == "" {
		return NewValidationError("execution_id", "must not be empty")
	}
	if r.ModuleID == "" {
		return NewValidationError("module_id", "must not be empty")
	}
	if r.Version == "" {
		return NewValidationError("version", "must not be empty")
	}
	if r.TotalNodes < 1 {
		return NewValidationError("total_nodes", "must be at least 1")
	}
	switch r.Strategy {
	case StrategyDirect, StrategyRolling, StrategyCanary, StrategyBlueGreen, StrategyABTesting:
	default:
		return NewValidationError("strategy", "unknown strategy "+string(r.Strategy))
	}
	return r.Config.Validate(r.Strategy)
}

func (c *StrategyConfig) Validate(strategy StrategyType) error {
	for _, pct := range c.WavePercentages {
		if pct < 0 || pct > 100 {
			return NewValidationError("wave_percentages", "each wave percentage must be within [0,100]")
		}
	}
	switch strategy {
	case StrategyCanary:
		if len(c.WavePercentages) == 0 {
			return NewValidationError("wave_percentages", "canary requires at least one wave")
		}
		for i := 1; i < len(c.WavePercentages); i++ {
			if c.WavePercentages[i] <= c.WavePercentages[i-1] {
				return NewValidationError("wave_percentages", "wave percentages must be strictly increasing")
			}
		}
		if c.WavePercentages[len(c.WavePercentages)-1] != 100 {
			return NewValidationError("wave_percentages", "final canary wave must be 100")
		}
	case StrategyRolling:
		if c.BatchSize < 1 {
			return NewValidationError("batch_size", "rolling requires a batch size of at least 1")
		}
	case StrategyABTesting:
		if c.TrafficSplitPercent < 1 || c.TrafficSplitPercent > 99 {
			return NewValidationError("traffic_split_percent", "split must be within [1,99]")
		}
		if c.TestDuration <= 0 {
			return NewValidationError("test_duration", "must be positive")
		}
		if len(c.DecisionMetrics) == 0 {
			return NewValidationError("decision_metrics", "a/b testing requires at least one decision metric")
		}
		for _, m := range c.DecisionMetrics {
			if m.Direction != LowerIsBetter && m.Direction != HigherIsBetter {
				return NewValidationError("decision_metrics", "metric "+m.Name+" has unknown direction")
			}
		}
	}
	if c.Rollback.MaxAttempts < 1 {
		return NewValidationError("rollback.max_attempts", "must be at least 1")
	}
	if c.Rollback.BackoffBase <= 0 {
		return NewValidationError("rollback.backoff_base", "must be positive")
	}
	return nil
}
