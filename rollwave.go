// Package rollwave is the control-plane core of a fleet module deployment
// orchestrator. It decides how a new module version rolls out across a
// cluster of nodes, tracks rollout state under concurrent mutation,
// monitors health against a pre-deployment baseline, and reacts to
// failure with retried, escalating rollback.
//
// Five deployment strategies are built in: direct, rolling, canary,
// blue-green, and A/B testing. The surrounding HTTP surface, auth,
// persistence technology, and notification transport stay outside the
// core behind narrow interfaces; in-memory and badger-backed adapters
// ship for tests and single-process use.
//
// Basic usage:
//
//	cluster := memory.NewCluster([]string{"node-1", "node-2"}, logger)
//	engine, _ := rollwave.New(cluster, rollwave.Options{Logger: logger})
//
//	outcome, err := engine.Deploy(ctx, rollwave.DeploymentRequest{
//	    ModuleID:   "billing",
//	    Version:    "2.4.0",
//	    Strategy:   rollwave.StrategyCanary,
//	    TotalNodes: 2,
//	}, cluster.ActiveNodes())
package rollwave

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rollwave/rollwave/internal/adapters/health"
	"github.com/rollwave/rollwave/internal/adapters/memory"
	"github.com/rollwave/rollwave/internal/adapters/metrics"
	"github.com/rollwave/rollwave/internal/adapters/orchestrator"
	"github.com/rollwave/rollwave/internal/adapters/pipeline"
	"github.com/rollwave/rollwave/internal/adapters/rollback"
	"github.com/rollwave/rollwave/internal/adapters/routing"
	"github.com/rollwave/rollwave/internal/adapters/strategy"
	"github.com/rollwave/rollwave/internal/domain"
	"github.com/rollwave/rollwave/internal/ports"
)

// Options configure an Engine. Every field is optional except the cluster
// passed to New; nil collaborators fall back to in-memory adapters.
type Options struct {
	Logger *slog.Logger

	// Store persists pipeline snapshots. Defaults to an in-memory store.
	Store ports.ExecutionStore

	// Notifier publishes committed snapshots. Defaults to the in-memory
	// fan-out notifier, which also backs Engine.Subscribe.
	Notifier ports.ProgressNotifier

	// Alerts receives critical rollback-failure notifications. Defaults
	// to the recording in-memory sink.
	Alerts ports.AlertSink

	// Quarantiner removes nodes from eligibility after unrecoverable
	// rollback failures. Defaults to the cluster when it implements the
	// interface.
	Quarantiner ports.Quarantiner

	// Registry receives prometheus collectors when set.
	Registry prometheus.Registerer
}

// Engine wires the orchestration core together.
type Engine struct {
	logger       *slog.Logger
	cluster      ports.ClusterClient
	pipeline     *pipeline.Pipeline
	orchestrator *orchestrator.Orchestrator
	factory      *strategy.Factory
	router       *routing.RoundRobin
	notifier     ports.ProgressNotifier
	alerts       ports.AlertSink
}

// New builds an Engine around the given cluster client.
func New(cluster ports.ClusterClient, opts Options) (*Engine, error) {
	if cluster == nil {
		return nil, domain.NewValidationError("cluster", "cluster client is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store := opts.Store
	if store == nil {
		store = memory.NewStore(logger)
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = memory.NewNotifier(logger)
	}
	alerts := opts.Alerts
	if alerts == nil {
		alerts = memory.NewAlerts(logger)
	}
	quarantiner := opts.Quarantiner
	if quarantiner == nil {
		if q, ok := cluster.(ports.Quarantiner); ok {
			quarantiner = q
		}
	}

	pipe := pipeline.New(store, notifier, logger)

	var recorder orchestrator.Recorder
	if opts.Registry != nil {
		recorder = metrics.NewCollector(opts.Registry, pipe)
	}

	evaluator := health.NewEvaluator(logger)
	coordinator := rollback.NewCoordinator(cluster, alerts, quarantiner, logger)
	factory := strategy.NewFactory(strategy.Deps{
		Cluster:  cluster,
		Health:   evaluator,
		Rollback: coordinator,
		Pipeline: pipe,
		Logger:   logger,
	})

	return &Engine{
		logger:       logger.With("component", "engine"),
		cluster:      cluster,
		pipeline:     pipe,
		orchestrator: orchestrator.New(factory, pipe, recorder, logger),
		factory:      factory,
		router:       routing.NewRoundRobin(logger),
		notifier:     notifier,
		alerts:       alerts,
	}, nil
}

// Deploy runs one deployment against the given targets and blocks until
// it reaches a terminal or paused status. A missing ExecutionID is minted
// automatically.
func (e *Engine) Deploy(ctx context.Context, req DeploymentRequest, targets []string) (*DeploymentOutcome, error) {
	if req.ExecutionID == "" {
		req.ExecutionID = uuid.NewString()
	}
	if req.TotalNodes == 0 {
		req.TotalNodes = len(targets)
	}
	return e.orchestrator.Execute(ctx, req, targets)
}

// Cancel aborts a running execution. Idempotent.
func (e *Engine) Cancel(executionID string) {
	e.orchestrator.Cancel(executionID)
}

// Resolve drives a paused execution to a terminal state. Proceed resumes
// the rollout across the remaining targets; otherwise the applied nodes
// are rolled back.
func (e *Engine) Resolve(ctx context.Context, executionID string, proceed bool) (*DeploymentOutcome, error) {
	return e.orchestrator.Resolve(ctx, executionID, proceed)
}

// Status returns a detached snapshot of the execution's pipeline state.
func (e *Engine) Status(executionID string) (*PipelineExecutionState, error) {
	return e.pipeline.GetState(executionID)
}

// Subscribe streams committed snapshots when the engine runs on the
// in-memory notifier; otherwise it returns false.
func (e *Engine) Subscribe(buffer int) (<-chan PipelineExecutionState, func(), bool) {
	n, ok := e.notifier.(*memory.Notifier)
	if !ok {
		return nil, nil, false
	}
	ch, cancel := n.Subscribe(buffer)
	return ch, cancel, true
}

// SelectTarget routes a request to one of the active consumers using the
// engine's round-robin selector.
func (e *Engine) SelectTarget(active []Consumer) (string, error) {
	return e.router.SelectTarget(active)
}

// ReleasePrevious makes the last blue-green cutover permanent.
func (e *Engine) ReleasePrevious() {
	e.factory.BlueGreen().Release()
}

// RevertTraffic swaps traffic back to the retained blue-green set.
// Returns false when nothing is retained.
func (e *Engine) RevertTraffic() bool {
	return e.factory.BlueGreen().Revert()
}

// ActiveTargetSet reports the target set currently receiving traffic
// after a blue-green cutover, or nil before any cutover.
func (e *Engine) ActiveTargetSet() *TargetSet {
	return e.factory.BlueGreen().Active()
}
