package domain

import (
	"time"
)

type ExecutionStatus string

const (
	ExecutionStatusPending    ExecutionStatus = "pending"
	ExecutionStatusRunning    ExecutionStatus = "running"
	ExecutionStatusPaused     ExecutionStatus = "paused"
	ExecutionStatusCompleted  ExecutionStatus = "completed"
	ExecutionStatusFailed     ExecutionStatus = "failed"
	ExecutionStatusRolledBack ExecutionStatus = "rolled_back"
)

// IsTerminal reports whether the status ends the execution. Paused is not
// terminal: a paused canary still waits for a manual decision.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusRolledBack:
		return true
	}
	return false
}

type StageStatus string

const (
	StageStatusPending   StageStatus = "pending"
	StageStatusRunning   StageStatus = "running"
	StageStatusSucceeded StageStatus = "succeeded"
	StageStatusFailed    StageStatus = "failed"
)

type StrategyType string

const (
	StrategyDirect    StrategyType = "direct"
	StrategyRolling   StrategyType = "rolling"
	StrategyCanary    StrategyType = "canary"
	StrategyBlueGreen StrategyType = "blue_green"
	StrategyABTesting StrategyType = "ab_testing"
)

type DeploymentRequest struct {
	ExecutionID string            `json:"execution_id"`
	ModuleID    string            `json:"module_id"`
	Version     string            `json:"version"`
	Environment string            `json:"environment"`
	Strategy    StrategyType      `json:"strategy"`
	Config      StrategyConfig    `json:"config"`
	TotalNodes  int               `json:"total_nodes"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type NodeDeploymentResult struct {
	NodeID    string    `json:"node_id"`
	Success   bool      `json:"success"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type NodeRollbackResult struct {
	NodeID    string    `json:"node_id"`
	Success   bool      `json:"success"`
	Attempts  int       `json:"attempts"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type StageResult struct {
	Name        string                 `json:"name"`
	Status      StageStatus            `json:"status"`
	StartedAt   time.Time              `json:"started_at"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	Message     string                 `json:"message,omitempty"`
	NodeResults []NodeDeploymentResult `json:"node_results,omitempty"`
}

// PipelineExecutionState is the canonical record for one execution. The
// pipeline owns it exclusively; every mutation happens under that
// execution's lock and bumps SequenceNumber.
type PipelineExecutionState struct {
	ExecutionID    string          `json:"execution_id"`
	Status         ExecutionStatus `json:"status"`
	CurrentStage   string          `json:"current_stage"`
	StageResults   []StageResult   `json:"stage_results"`
	SequenceNumber uint64          `json:"sequence_number"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// LatestStageResult returns the most recent stage result, or nil when the
// execution has not recorded any stage yet.
func (s *PipelineExecutionState) LatestStageResult() *StageResult {
	if len(s.StageResults) == 0 {
		return nil
	}
	return &s.StageResults[len(s.StageResults)-1]
}

type Consumer struct {
	ID     string `json:"id"`
	Active bool   `json:"active"`
}

// BaselineMetrics are the pre-deployment reference values live metrics are
// compared against. Every field may legitimately be zero.
type BaselineMetrics struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	LatencyMs     float64 `json:"latency_ms"`
	ErrorRate     float64 `json:"error_rate"`
}

type LiveMetrics struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	LatencyMs     float64 `json:"latency_ms"`
	ErrorRate     float64 `json:"error_rate"`
}

type MetricChange struct {
	Metric        string  `json:"metric"`
	Baseline      float64 `json:"baseline"`
	Live          float64 `json:"live"`
	ChangePercent float64 `json:"change_percent"`
	Threshold     float64 `json:"threshold"`
	Violated      bool    `json:"violated"`
}

type HealthVerdict struct {
	Healthy     bool           `json:"healthy"`
	Changes     []MetricChange `json:"changes"`
	Violations  []MetricChange `json:"violations,omitempty"`
	EvaluatedAt time.Time      `json:"evaluated_at"`
}

type RollbackOutcome struct {
	NodeResults        []NodeRollbackResult `json:"node_results"`
	RollbackSuccessful bool                 `json:"rollback_successful"`
	ManualIntervention []string             `json:"manual_intervention,omitempty"`

	// Failure is set when at least one node exhausted its retries.
	Failure *UnrecoverableRollbackError `json:"-"`
}

type DeploymentOutcome struct {
	ExecutionID   string                 `json:"execution_id"`
	Status        ExecutionStatus        `json:"status"`
	DeployedNodes []NodeDeploymentResult `json:"deployed_nodes"`
	Rollback      *RollbackOutcome       `json:"rollback,omitempty"`
	Reason        string                 `json:"reason,omitempty"`
	StartedAt     time.Time              `json:"started_at"`
	CompletedAt   time.Time              `json:"completed_at"`
}

// AppliedNodes returns the ids of nodes that were successfully deployed,
// in deployment order. This is the rollback scope.
func (o *DeploymentOutcome) AppliedNodes() []string {
	ids := make([]string, 0, len(o.DeployedNodes))
	for _, r := range o.DeployedNodes {
		if r.Success {
			ids = append(ids, r.NodeID)
		}
	}
	return ids
}

type CriticalAlert struct {
	ModuleID    string    `json:"module_id"`
	Environment string    `json:"environment"`
	FailedNodes []string  `json:"failed_nodes"`
	Message     string    `json:"message"`
	RaisedAt    time.Time `json:"raised_at"`
}
