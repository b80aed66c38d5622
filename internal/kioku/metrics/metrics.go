// Package metrics exposes Prometheus collectors for the interaction
// pipeline. A nil *Collector is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "kioku"

// Collector holds the pipeline metrics.
type Collector struct {
	interactions        *prometheus.CounterVec
	interactionDuration prometheus.Histogram
	edgesCreated        prometheus.Counter
	edgesIncremented    prometheus.Counter
	nodesAdded          prometheus.Counter
	reinforcements      prometheus.Counter
	modulesCreated      prometheus.Counter
	helperAppends       prometheus.Counter
	commands            *prometheus.CounterVec
	historyLength       prometheus.Gauge
	descriptors         prometheus.Gauge
	compactions         *prometheus.CounterVec
}

// New registers the collectors with reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Collector{
		interactions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interactions_total",
			Help:      "Processed interactions by result.",
		}, []string{"result"}),
		interactionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "interaction_duration_seconds",
			Help:      "Time spent processing one interaction.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		edgesCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graph_edges_created_total",
			Help:      "Connection edges created.",
		}),
		edgesIncremented: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graph_edges_incremented_total",
			Help:      "Connection edge weight increments.",
		}),
		nodesAdded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graph_nodes_added_total",
			Help:      "Topics promoted to graph nodes.",
		}),
		reinforcements: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reinforcements_total",
			Help:      "Topic reinforcements.",
		}),
		modulesCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "modules_created_total",
			Help:      "Capability modules created.",
		}),
		helperAppends: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "helper_appends_total",
			Help:      "Helper snippet appensions.",
		}),
		commands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "In-band commands by kind and result.",
		}, []string{"kind", "result"}),
		historyLength: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_history_length",
			Help:      "Entries currently held in the memory history.",
		}),
		descriptors: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "capability_descriptors",
			Help:      "Capability descriptors currently indexed.",
		}),
		compactions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compactions_total",
			Help:      "Long-memory compaction runs by result.",
		}, []string{"result"}),
	}
}

// ObserveInteraction records one interaction outcome.
func (c *Collector) ObserveInteraction(d time.Duration, err error) {
	if c == nil {
		return
	}
	c.interactions.WithLabelValues(result(err)).Inc()
	c.interactionDuration.Observe(d.Seconds())
}

// Edges records a Connect result.
func (c *Collector) Edges(created, incremented int) {
	if c == nil {
		return
	}
	c.edgesCreated.Add(float64(created))
	c.edgesIncremented.Add(float64(incremented))
}

// NodesAdded records promoted topics.
func (c *Collector) NodesAdded(n int) {
	if c == nil {
		return
	}
	c.nodesAdded.Add(float64(n))
}

// Reinforced records one reinforcement.
func (c *Collector) Reinforced() {
	if c == nil {
		return
	}
	c.reinforcements.Inc()
}

// ModuleCreated records a new capability module.
func (c *Collector) ModuleCreated() {
	if c == nil {
		return
	}
	c.modulesCreated.Inc()
}

// HelperAppended records a helper appension.
func (c *Collector) HelperAppended() {
	if c == nil {
		return
	}
	c.helperAppends.Inc()
}

// Command records a dispatched or rejected in-band command.
func (c *Collector) Command(kind, res string) {
	if c == nil {
		return
	}
	c.commands.WithLabelValues(kind, res).Inc()
}

// HistoryLength sets the memory history gauge.
func (c *Collector) HistoryLength(n int) {
	if c == nil {
		return
	}
	c.historyLength.Set(float64(n))
}

// Descriptors sets the indexed descriptor gauge.
func (c *Collector) Descriptors(n int) {
	if c == nil {
		return
	}
	c.descriptors.Set(float64(n))
}

// Compaction records a compaction run.
func (c *Collector) Compaction(err error) {
	if c == nil {
		return
	}
	c.compactions.WithLabelValues(result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
