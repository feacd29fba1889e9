package rollwave

import (
	"github.com/rollwave/rollwave/internal/adapters/strategy"
	"github.com/rollwave/rollwave/internal/domain"
)

// DeploymentRequest describes one rollout: the module and version, the
// strategy driving it, and the strategy's configuration.
type DeploymentRequest = domain.DeploymentRequest

// StrategyConfig carries the knobs of every strategy variant.
type StrategyConfig = domain.StrategyConfig

// RollbackConfig bounds rollback retries and backoff.
type RollbackConfig = domain.RollbackConfig

// HealthThresholds are per-metric maximum tolerated percentage increases.
type HealthThresholds = domain.HealthThresholds

// DecisionMetric declares one A/B comparison metric and its direction.
type DecisionMetric = domain.DecisionMetric

// DeploymentOutcome is the final result of one execution, including the
// applied-node history and any rollback bookkeeping.
type DeploymentOutcome = domain.DeploymentOutcome

// PipelineExecutionState is a committed snapshot of one execution.
type PipelineExecutionState = domain.PipelineExecutionState

// StageResult is one immutable entry of the execution's stage history.
type StageResult = domain.StageResult

// RollbackOutcome aggregates per-node rollback results.
type RollbackOutcome = domain.RollbackOutcome

// CriticalAlert is the payload emitted when rollback exhausts retries.
type CriticalAlert = domain.CriticalAlert

// Consumer is a routing candidate.
type Consumer = domain.Consumer

// TargetSet is one side of the blue-green pair.
type TargetSet = strategy.TargetSet

// ExecutionStatus is the pipeline status enum.
type ExecutionStatus = domain.ExecutionStatus

// StrategyType selects a deployment strategy variant.
type StrategyType = domain.StrategyType

const (
	StrategyDirect    = domain.StrategyDirect
	StrategyRolling   = domain.StrategyRolling
	StrategyCanary    = domain.StrategyCanary
	StrategyBlueGreen = domain.StrategyBlueGreen
	StrategyABTesting = domain.StrategyABTesting
)

const (
	StatusPending    = domain.ExecutionStatusPending
	StatusRunning    = domain.ExecutionStatusRunning
	StatusPaused     = domain.ExecutionStatusPaused
	StatusCompleted  = domain.ExecutionStatusCompleted
	StatusFailed     = domain.ExecutionStatusFailed
	StatusRolledBack = domain.ExecutionStatusRolledBack
)

const (
	LowerIsBetter  = domain.LowerIsBetter
	HigherIsBetter = domain.HigherIsBetter
)

// IsValidationError reports whether err is a request validation failure.
func IsValidationError(err error) bool {
	return domain.IsValidationError(err)
}

// IsNotFound reports whether err means the execution or node is unknown.
func IsNotFound(err error) bool {
	return domain.IsNotFound(err)
}

// DefaultStrategyConfig returns the stock configuration: canary waves
// 10/30/50/100, batch size 2, three lower-is-better decision metrics,
// and three rollback attempts with a 2s backoff base.
func DefaultStrategyConfig() StrategyConfig {
	return domain.DefaultStrategyConfig()
}
