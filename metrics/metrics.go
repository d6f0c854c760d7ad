// Package metrics exposes the pipeline's error-kind counters and queue
// gauges through Prometheus, the "external collaborator's observability
// interface" spec §7 requires without naming a concrete implementation.
// The teacher itself only logs via zerolog; the counter/gauge naming and
// registration style here is grounded on the example pack's
// pkg/metrics package (namespaced CounterVec/GaugeVec construction)
// instead.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "lateralwatch"

// Registry holds one instance of every metric the pipeline reports.
// Each pipeline instance owns a Registry registered against its own
// prometheus.Registerer, so tests can spin up isolated registries instead
// of fighting over program-global collectors.
type Registry struct {
	ParseFailures           prometheus.Counter
	StateBoundExceeded      *prometheus.CounterVec
	DependencyUnavailable   *prometheus.CounterVec
	PushFailures            prometheus.Counter
	DroppedAlerts           prometheus.Counter
	AlertQueueDepth         prometheus.Gauge
	DecisionsTotal          *prometheus.CounterVec
	FusionGateSkipped       prometheus.Counter
}

// NewRegistry constructs a Registry and registers every metric against reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		ParseFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_failures_total",
			Help:      "Malformed records dropped by the record classifier.",
		}),
		StateBoundExceeded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_bound_exceeded_total",
			Help:      "Evictions triggered because a per-entity state map exceeded its configured cap.",
		}, []string{"component"}),
		DependencyUnavailable: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dependency_unavailable_total",
			Help:      "Components that self-disabled at startup due to a missing model/baseline/cache artifact.",
		}, []string{"component"}),
		PushFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_push_failures_total",
			Help:      "Alerts whose delivery still failed after exhausting retries.",
		}),
		DroppedAlerts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_dropped_total",
			Help:      "Alerts dropped from the bounded queue under backpressure.",
		}),
		AlertQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alert_queue_depth",
			Help:      "Current number of alerts waiting for delivery.",
		}),
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Fusion engine decisions, labeled by chosen action.",
		}, []string{"action"}),
		FusionGateSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fusion_gate_skipped_total",
			Help:      "Events that never reached the fusion engine because fewer than two detectors fired.",
		}),
	}

	reg.MustRegister(
		r.ParseFailures,
		r.StateBoundExceeded,
		r.DependencyUnavailable,
		r.PushFailures,
		r.DroppedAlerts,
		r.AlertQueueDepth,
		r.DecisionsTotal,
		r.FusionGateSkipped,
	)

	return r
}

// IncParseFailure counts one malformed record.
func (r *Registry) IncParseFailure() {
	if r == nil {
		return
	}
	r.ParseFailures.Inc()
}

// IncStateBoundExceeded counts one eviction in component.
func (r *Registry) IncStateBoundExceeded(component string) {
	if r == nil {
		return
	}
	r.StateBoundExceeded.WithLabelValues(component).Inc()
}

// IncDependencyUnavailable counts one self-disabling component at startup.
func (r *Registry) IncDependencyUnavailable(component string) {
	if r == nil {
		return
	}
	r.DependencyUnavailable.WithLabelValues(component).Inc()
}

// IncPushFailure counts one alert whose delivery failed after every retry.
func (r *Registry) IncPushFailure() {
	if r == nil {
		return
	}
	r.PushFailures.Inc()
}

// IncDroppedAlert counts one alert dropped from the bounded queue.
func (r *Registry) IncDroppedAlert() {
	if r == nil {
		return
	}
	r.DroppedAlerts.Inc()
}

// SetAlertQueueDepth records the current alert-queue depth.
func (r *Registry) SetAlertQueueDepth(depth int) {
	if r == nil {
		return
	}
	r.AlertQueueDepth.Set(float64(depth))
}

// IncDecision counts one fusion-engine decision for action.
func (r *Registry) IncDecision(action string) {
	if r == nil {
		return
	}
	r.DecisionsTotal.WithLabelValues(action).Inc()
}

// IncFusionGateSkipped counts one event that never reached fusion because
// fewer than two detectors fired (spec §12 supplemented feature).
func (r *Registry) IncFusionGateSkipped() {
	if r == nil {
		return
	}
	r.FusionGateSkipped.Inc()
}
