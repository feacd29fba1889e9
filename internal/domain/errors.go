package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoConsumers     = errors.New("no active consumers available")
	ErrNotFound        = errors.New("resource not found")
	ErrInvalidConfig   = errors.New("invalid configuration")
	ErrTimeout         = errors.New("operation timeout")
	ErrAlreadyStarted  = errors.New("execution already started")
	ErrAlreadyTerminal = errors.New("execution already in terminal state")
	ErrCancelled       = errors.New("execution cancelled")
)

// ValidationError rejects a malformed request or config before execution
// starts.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// RoutingError is a typed routing failure; routing never panics on a
// degenerate active set.
type RoutingError struct {
	Op  string
	Err error
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("routing[%s]: %v", e.Op, e.Err)
}

func (e *RoutingError) Unwrap() error {
	return e.Err
}

func NewRoutingError(op string, err error) *RoutingError {
	return &RoutingError{Op: op, Err: err}
}

// MetricError marks degenerate metric input. The evaluator still resolves
// every input to a finite verdict; this error only carries diagnostics.
type MetricError struct {
	Metric  string
	Message string
}

func (e *MetricError) Error() string {
	return fmt.Sprintf("metric[%s]: %s", e.Metric, e.Message)
}

// NodeOperationError is a per-node deploy or rollback failure. It is
// retried per policy and then recorded on the outcome, never propagated.
type NodeOperationError struct {
	NodeID    string
	Op        string
	Retryable bool
	Err       error
}

func (e *NodeOperationError) Error() string {
	return fmt.Sprintf("node[%s] %s: %v", e.NodeID, e.Op, e.Err)
}

func (e *NodeOperationError) Unwrap() error {
	return e.Err
}

func NewNodeOperationError(nodeID, op string, retryable bool, err error) *NodeOperationError {
	return &NodeOperationError{NodeID: nodeID, Op: op, Retryable: retryable, Err: err}
}

// ConcurrencyTimeoutError reports a lock, store, or notify call exceeding
// its budget, distinct from a logical failure of the operation itself.
type ConcurrencyTimeoutError struct {
	Resource string
	Err      error
}

func (e *ConcurrencyTimeoutError) Error() string {
	return fmt.Sprintf("timeout on %s: %v", e.Resource, e.Err)
}

func (e *ConcurrencyTimeoutError) Unwrap() error {
	return e.Err
}

func NewConcurrencyTimeoutError(resource string, err error) *ConcurrencyTimeoutError {
	return &ConcurrencyTimeoutError{Resource: resource, Err: err}
}

// UnrecoverableRollbackError means rollback exhausted retries on at least
// one node. Fatal for the execution; requires operator action.
type UnrecoverableRollbackError struct {
	ModuleID    string
	Environment string
	FailedNodes []string
}

func (e *UnrecoverableRollbackError) Error() string {
	return fmt.Sprintf("rollback unrecoverable for module %s in %s: nodes [%s] require manual intervention",
		e.ModuleID, e.Environment, strings.Join(e.FailedNodes, ", "))
}

// DeliveryError reports a store or notify failure after the in-memory
// state transition already committed. The transition is never reverted.
type DeliveryError struct {
	ExecutionID string
	Sink        string
	Err         error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery[%s] execution %s: %v", e.Sink, e.ExecutionID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

func NewDeliveryError(executionID, sink string, err error) *DeliveryError {
	return &DeliveryError{ExecutionID: executionID, Sink: sink, Err: err}
}

func IsValidationError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}

func IsRoutingError(err error) bool {
	var rerr *RoutingError
	return errors.As(err, &rerr)
}

func IsNodeOperationError(err error) bool {
	var nerr *NodeOperationError
	return errors.As(err, &nerr)
}

func IsUnrecoverableRollback(err error) bool {
	var uerr *UnrecoverableRollbackError
	return errors.As(err, &uerr)
}

func IsDeliveryError(err error) bool {
	var derr *DeliveryError
	return errors.As(err, &derr)
}

func IsNoConsumers(err error) bool {
	return errors.Is(err, ErrNoConsumers)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsTimeout(err error) bool {
	if errors.Is(err, ErrTimeout) {
		return true
	}
	var terr *ConcurrencyTimeoutError
	return errors.As(err, &terr)
}
