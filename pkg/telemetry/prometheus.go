// Package telemetry exports runtime counters to Prometheus and turns
// units of reactive work into OpenTelemetry spans.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/quiver-dev/quiver/pkg/quiver"
)

// CollectorConfig configures the Prometheus collector.
type CollectorConfig struct {
	// Namespace is the metrics namespace (default: "quiver").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics. Use them to
	// tell runtimes apart when one process exports several.
	ConstLabels prometheus.Labels
}

// CollectorOption configures the Prometheus collector.
type CollectorOption func(*CollectorConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) CollectorOption {
	return func(c *CollectorConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) CollectorOption {
	return func(c *CollectorConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) CollectorOption {
	return func(c *CollectorConfig) {
		c.ConstLabels = labels
	}
}

// defaultCollectorConfig returns the default collector configuration.
func defaultCollectorConfig() CollectorConfig {
	return CollectorConfig{
		Namespace:   "quiver",
		Subsystem:   "",
		ConstLabels: nil,
	}
}

// Collector exposes a runtime's counters as Prometheus metrics. Each
// scrape reads a Stats snapshot, which is safe from any goroutine, so a
// Collector may be registered against a runtime owned by another one.
//
// Metrics exported:
//   - quiver_tracks_total: Counter of dependency edges established
//   - quiver_triggers_total: Counter of trigger fan-outs
//   - quiver_effect_runs_total: Counter of effect executions
//   - quiver_computed_recomputes_total: Counter of computed getter executions
//   - quiver_watch_jobs_total: Counter of watch jobs invoked
//   - quiver_errors_total: Counter of failures recovered at user-code boundaries
//   - quiver_active_effects: Gauge of effects created and not yet stopped
//   - quiver_tracked_targets: Gauge of targets with at least one dependency
//   - quiver_tracked_deps: Gauge of (target, key) entries in the store
//
// Example:
//
//	rt := quiver.New()
//	prometheus.MustRegister(telemetry.NewCollector(rt))
//	http.Handle("/metrics", promhttp.Handler())
type Collector struct {
	rt *quiver.Runtime

	tracks         *prometheus.Desc
	triggers       *prometheus.Desc
	effectRuns     *prometheus.Desc
	recomputes     *prometheus.Desc
	watchJobs      *prometheus.Desc
	errors         *prometheus.Desc
	activeEffects  *prometheus.Desc
	trackedTargets *prometheus.Desc
	trackedDeps    *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a Collector reading rt's counters.
func NewCollector(rt *quiver.Runtime, opts ...CollectorOption) *Collector {
	config := defaultCollectorConfig()
	for _, opt := range opts {
		opt(&config)
	}

	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName(config.Namespace, config.Subsystem, name),
			help, nil, config.ConstLabels,
		)
	}

	return &Collector{
		rt: rt,

		tracks: desc("tracks_total",
			"Total number of dependency edges established."),
		triggers: desc("triggers_total",
			"Total number of trigger fan-outs with at least one candidate dependency."),
		effectRuns: desc("effect_runs_total",
			"Total number of effect executions."),
		recomputes: desc("computed_recomputes_total",
			"Total number of computed getter executions."),
		watchJobs: desc("watch_jobs_total",
			"Total number of watch jobs invoked."),
		errors: desc("errors_total",
			"Total number of failures recovered at user-code boundaries."),
		activeEffects: desc("active_effects",
			"Number of effects created and not yet stopped."),
		trackedTargets: desc("tracked_targets",
			"Number of targets with at least one tracked dependency."),
		trackedDeps: desc("tracked_deps",
			"Number of (target, key) entries in the dependency store."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.tracks
	ch <- c.triggers
	ch <- c.effectRuns
	ch <- c.recomputes
	ch <- c.watchJobs
	ch <- c.errors
	ch <- c.activeEffects
	ch <- c.trackedTargets
	ch <- c.trackedDeps
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.rt.Stats()

	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	gauge := func(d *prometheus.Desc, v int64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, float64(v))
	}

	counter(c.tracks, s.Tracks)
	counter(c.triggers, s.Triggers)
	counter(c.effectRuns, s.EffectRuns)
	counter(c.recomputes, s.ComputedRecomputes)
	counter(c.watchJobs, s.WatchJobs)
	counter(c.errors, s.Errors)
	gauge(c.activeEffects, s.ActiveEffects)
	gauge(c.trackedTargets, s.TrackedTargets)
	gauge(c.trackedDeps, s.TrackedDeps)
}

// Register creates a Collector for rt and registers it with reg. Use it
// when the collector shares a registry with other application metrics.
func Register(rt *quiver.Runtime, reg prometheus.Registerer, opts ...CollectorOption) (*Collector, error) {
	c := NewCollector(rt, opts...)
	if err := reg.Register(c); err != nil {
		return nil, err
	}
	return c, nil
}
