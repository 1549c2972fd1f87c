// Package metrics mirrors the engine's own monotonic counters (device sink
// adapter, plugin lease lifecycle) onto Prometheus collectors registered on
// a private registry, so scraping never depends on (or pollutes) the
// process-global default registry.
//
// Grounded on the pack's prometheus usage style (ManuGH-xg2g's
// internal/metrics package, one file per concern defining Vec metrics plus
// Inc/Set helpers), adapted to register against a private
// prometheus.Registry instead of promauto's global one — the Introspection
// Server owns exactly one registry for the whole process, matching §4.8's
// explicit "no global registry" requirement.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/stellatune/engine/internal/devicesink"
)

// Registry owns every collector the Introspection Server's /metrics
// endpoint exposes.
type Registry struct {
	reg *prometheus.Registry

	writtenSamples           prometheus.Counter
	droppedSamples           prometheus.Counter
	callbackRequestedSamples prometheus.Counter
	callbackProvidedSamples  prometheus.Counter
	underrunCallbacks        prometheus.Counter
	callbackErrors           prometheus.Counter
	reconfigureAttempts      prometheus.Counter
	reconfigureSuccesses     prometheus.Counter
	reconfigureFailures      prometheus.Counter

	activeLeases  prometheus.Gauge
	retiredLeases prometheus.Gauge
	queuedBlocks  prometheus.Gauge
}

// NewRegistry returns a Registry with every collector registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		writtenSamples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stellatune_sink_written_samples_total",
			Help: "Total samples written by the device sink adapter.",
		}),
		droppedSamples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stellatune_sink_dropped_samples_total",
			Help: "Total samples dropped by the device sink adapter under backpressure.",
		}),
		callbackRequestedSamples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stellatune_sink_callback_requested_samples_total",
			Help: "Total samples the platform audio callback requested.",
		}),
		callbackProvidedSamples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stellatune_sink_callback_provided_samples_total",
			Help: "Total samples the device sink adapter provided to the platform callback.",
		}),
		underrunCallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stellatune_sink_underrun_callbacks_total",
			Help: "Total platform audio callbacks served with insufficient buffered samples.",
		}),
		callbackErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stellatune_sink_callback_errors_total",
			Help: "Total platform audio callback errors reported asynchronously.",
		}),
		reconfigureAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stellatune_sink_reconfigure_attempts_total",
			Help: "Total device sink reconfigure attempts.",
		}),
		reconfigureSuccesses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stellatune_sink_reconfigure_successes_total",
			Help: "Total device sink reconfigure attempts that succeeded.",
		}),
		reconfigureFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stellatune_sink_reconfigure_failures_total",
			Help: "Total device sink reconfigure attempts that failed.",
		}),
		activeLeases: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stellatune_plugin_active_leases",
			Help: "Number of plugin ids with a currently-active lease.",
		}),
		retiredLeases: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stellatune_plugin_retired_leases",
			Help: "Number of retired plugin leases awaiting reclamation.",
		}),
		queuedBlocks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stellatune_sink_worker_queued_blocks",
			Help: "Number of audio blocks currently queued in the sink worker's ring.",
		}),
	}

	reg.MustRegister(
		r.writtenSamples, r.droppedSamples,
		r.callbackRequestedSamples, r.callbackProvidedSamples,
		r.underrunCallbacks, r.callbackErrors,
		r.reconfigureAttempts, r.reconfigureSuccesses, r.reconfigureFailures,
		r.activeLeases, r.retiredLeases, r.queuedBlocks,
	)
	return r
}

// Gatherer exposes the private registry for the /metrics HTTP handler.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// ObserveSinkCounters mirrors devicesink counters onto this registry's
// counters by adding, for each one, the delta between the caller's previous
// snapshot prev and the current snapshot cur. The registry keeps no
// snapshot of its own. Counters only ever increase, so Prometheus counter
// semantics (monotonic, reset-on-restart) hold across repeated scrapes.
func (r *Registry) ObserveSinkCounters(prev, cur devicesink.Snapshot) {
	r.writtenSamples.Add(float64(cur.WrittenSamples - prev.WrittenSamples))
	r.droppedSamples.Add(float64(cur.DroppedSamples - prev.DroppedSamples))
	r.callbackRequestedSamples.Add(float64(cur.CallbackRequestedSamples - prev.CallbackRequestedSamples))
	r.callbackProvidedSamples.Add(float64(cur.CallbackProvidedSamples - prev.CallbackProvidedSamples))
	r.underrunCallbacks.Add(float64(cur.UnderrunCallbacks - prev.UnderrunCallbacks))
	r.callbackErrors.Add(float64(cur.CallbackErrors - prev.CallbackErrors))
	r.reconfigureAttempts.Add(float64(cur.ReconfigureAttempts - prev.ReconfigureAttempts))
	r.reconfigureSuccesses.Add(float64(cur.ReconfigureSuccesses - prev.ReconfigureSuccesses))
	r.reconfigureFailures.Add(float64(cur.ReconfigureFailures - prev.ReconfigureFailures))
}

// SetLeaseGauges sets the plugin lease gauges to their current absolute
// counts, read fresh from the plugin runtime on every scrape.
func (r *Registry) SetLeaseGauges(active, retired int) {
	r.activeLeases.Set(float64(active))
	r.retiredLeases.Set(float64(retired))
}

// SetQueuedBlocks sets the sink worker's queue-depth gauge.
func (r *Registry) SetQueuedBlocks(n int) {
	r.queuedBlocks.Set(float64(n))
}
