package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes rollout metrics. It implements the orchestrator's
// Recorder interface and registers itself on the given registerer.
type Collector struct {
	executionsStarted  *prometheus.CounterVec
	executionsFinished *prometheus.CounterVec
	executionDuration  *prometheus.HistogramVec
	lockTableSize      prometheus.GaugeFunc
}

// LockTableSizer reports the number of live per-execution locks.
type LockTableSizer interface {
	LockTableSize() int
}

func NewCollector(reg prometheus.Registerer, locks LockTableSizer) *Collector {
	c := &Collector{
		executionsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rollwave",
			Name:      "executions_started_total",
			Help:      "Deployments started, by strategy.",
		}, []string{"strategy"}),
		executionsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rollwave",
			Name:      "executions_finished_total",
			Help:      "Deployments finished, by strategy and terminal status.",
		}, []string{"strategy", "status"}),
		executionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rollwave",
			Name:      "execution_duration_seconds",
			Help:      "End-to-end deployment duration, by strategy.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"strategy"}),
	}

	if locks != nil {
		c.lockTableSize = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "rollwave",
			Name:      "pipeline_lock_table_size",
			Help:      "Live per-execution lock entries in the pipeline.",
		}, func() float64 { return float64(locks.LockTableSize()) })
	}

	if reg != nil {
		reg.MustRegister(c.executionsStarted, c.executionsFinished, c.executionDuration)
		if c.lockTableSize != nil {
			reg.MustRegister(c.lockTableSize)
		}
	}
	return c
}

func (c *Collector) ExecutionStarted(strategy string) {
	c.executionsStarted.WithLabelValues(strategy).Inc()
}

func (c *Collector) ExecutionFinished(strategy, status string, duration time.Duration) {
	c.executionsFinished.WithLabelValues(strategy, status).Inc()
	c.executionDuration.WithLabelValues(strategy).Observe(duration.Seconds())
}
