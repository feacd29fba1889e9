package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rollwave/rollwave/internal/domain"
)

type nodeState struct {
	id           string
	version      string
	metrics      domain.LiveMetrics
	quarantined  bool
	failDeploy   error
	failRollback error
}

// Cluster simulates the node abstraction: a fixed inventory with
// per-node scripted failures, deploy latency, and metric drift. Used by
// tests and the demo CLI.
type Cluster struct {
	mu      sync.RWMutex
	nodes   map[string]*nodeState
	latency time.Duration
	logger  *slog.Logger
}

func NewCluster(nodeIDs []string, logger *slog.Logger) *Cluster {
	if logger == nil {
		logger = slog.Default()
	}
	nodes := make(map[string]*nodeState, len(nodeIDs))
	for _, id := range nodeIDs {
		nodes[id] = &nodeState{id: id}
	}
	return &Cluster{
		nodes:  nodes,
		logger: logger.With("component", "cluster", "type", "memory"),
	}
}

// SetLatency adds a simulated network delay to every node operation.
func (c *Cluster) SetLatency(d time.Duration) {
	c.mu.Lock()
	c.latency = d
	c.mu.Unlock()
}

// SetMetrics scripts the live metrics a node reports.
func (c *Cluster) SetMetrics(nodeID string, metrics domain.LiveMetrics) {
	c.mu.Lock()
	if n, ok := c.nodes[nodeID]; ok {
		n.metrics = metrics
	}
	c.mu.Unlock()
}

// FailDeploys makes DeployModule fail for the node with the given error.
func (c *Cluster) FailDeploys(nodeID string, err error) {
	c.mu.Lock()
	if n, ok := c.nodes[nodeID]; ok {
		n.failDeploy = err
	}
	c.mu.Unlock()
}

// FailRollbacks makes RollbackModule fail for the node.
func (c *Cluster) FailRollbacks(nodeID string, err error) {
	c.mu.Lock()
	if n, ok := c.nodes[nodeID]; ok {
		n.failRollback = err
	}
	c.mu.Unlock()
}

func (c *Cluster) DeployModule(ctx context.Context, nodeID, moduleID, version string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.nodes[nodeID]
	if !ok {
		return fmt.Errorf("node %s: %w", nodeID, domain.ErrNotFound)
	}
	if n.failDeploy != nil {
		return domain.NewNodeOperationError(nodeID, "deploy", true, n.failDeploy)
	}
	n.version = version
	c.logger.Debug("module deployed", "node_id", nodeID, "module_id", moduleID, "version", version)
	return nil
}

func (c *Cluster) RollbackModule(ctx context.Context, nodeID, moduleID string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.nodes[nodeID]
	if !ok {
		return fmt.Errorf("node %s: %w", nodeID, domain.ErrNotFound)
	}
	if n.failRollback != nil {
		return domain.NewNodeOperationError(nodeID, "rollback", true, n.failRollback)
	}
	n.version = ""
	c.logger.Debug("module rolled back", "node_id", nodeID, "module_id", moduleID)
	return nil
}

func (c *Cluster) HealthCheck(ctx context.Context, nodeID string) (domain.LiveMetrics, error) {
	if err := c.wait(ctx); err != nil {
		return domain.LiveMetrics{}, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.nodes[nodeID]
	if !ok {
		return domain.LiveMetrics{}, fmt.Errorf("node %s: %w", nodeID, domain.ErrNotFound)
	}
	return n.metrics, nil
}

// Quarantine removes the node from deployment eligibility.
func (c *Cluster) Quarantine(ctx context.Context, nodeID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.nodes[nodeID]
	if !ok {
		return fmt.Errorf("node %s: %w", nodeID, domain.ErrNotFound)
	}
	n.quarantined = true
	return nil
}

// ActiveNodes lists non-quarantined node ids in stable order.
func (c *Cluster) ActiveNodes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.nodes))
	for id, n := range c.nodes {
		if !n.quarantined {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// ActiveConsumers exposes the inventory as routing input.
func (c *Cluster) ActiveConsumers() []domain.Consumer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Consumer, 0, len(c.nodes))
	for id, n := range c.nodes {
		out = append(out, domain.Consumer{ID: id, Active: !n.quarantined})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Version reports the module version currently on the node.
func (c *Cluster) Version(nodeID string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if n, ok := c.nodes[nodeID]; ok {
		return n.version
	}
	return ""
}

func (c *Cluster) wait(ctx context.Context) error {
	c.mu.RLock()
	latency := c.latency
	c.mu.RUnlock()
	if latency <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
