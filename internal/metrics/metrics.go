// Package metrics exposes the allocator's and filter engine's hot-path
// counters through a small interface so a caller that never wants
// Prometheus can pass NoOp and pay nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the instrumentation surface the heap allocator and the
// filter engine write through.
type Registry interface {
	AllocateTotal() prometheus.Counter
	FreeTotal() prometheus.Counter
	WatermarkBytes() prometheus.Gauge
	FilterRowsScanned() prometheus.Counter
	FilterRowsMatched() prometheus.Counter
	FilterRunDuration() prometheus.Histogram
}

type promRegistry struct {
	allocateTotal     prometheus.Counter
	freeTotal         prometheus.Counter
	watermarkBytes    prometheus.Gauge
	filterRowsScanned prometheus.Counter
	filterRowsMatched prometheus.Counter
	filterRunDuration prometheus.Histogram
}

// NewRegistry registers kruda's metric family on reg and returns a
// Registry backed by it. Pass prometheus.NewRegistry() in tests to avoid
// colliding with the default global registry.
func NewRegistry(reg prometheus.Registerer) Registry {
	r := &promRegistry{
		allocateTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kruda_heap_allocate_total",
			Help: "Number of successful heap.allocate calls.",
		}),
		freeTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kruda_heap_free_total",
			Help: "Number of successful heap.free calls.",
		}),
		watermarkBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kruda_heap_bytes_watermark",
			Help: "Current allocation watermark, in bytes, of the most recently touched heap.",
		}),
		filterRowsScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kruda_filter_rows_scanned_total",
			Help: "Number of source rows a filter engine has evaluated.",
		}),
		filterRowsMatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kruda_filter_rows_matched_total",
			Help: "Number of source rows a filter engine has matched.",
		}),
		filterRunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "kruda_filter_run_duration_seconds",
			Help:    "Wall-clock duration of Engine.Run calls.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		r.allocateTotal,
		r.freeTotal,
		r.watermarkBytes,
		r.filterRowsScanned,
		r.filterRowsMatched,
		r.filterRunDuration,
	)

	return r
}

func (r *promRegistry) AllocateTotal() prometheus.Counter      { return r.allocateTotal }
func (r *promRegistry) FreeTotal() prometheus.Counter          { return r.freeTotal }
func (r *promRegistry) WatermarkBytes() prometheus.Gauge       { return r.watermarkBytes }
func (r *promRegistry) FilterRowsScanned() prometheus.Counter  { return r.filterRowsScanned }
func (r *promRegistry) FilterRowsMatched() prometheus.Counter  { return r.filterRowsMatched }
func (r *promRegistry) FilterRunDuration() prometheus.Histogram {
	return r.filterRunDuration
}

type noop struct{}

func (noop) AllocateTotal() prometheus.Counter     { return noopCounter }
func (noop) FreeTotal() prometheus.Counter         { return noopCounter }
func (noop) WatermarkBytes() prometheus.Gauge      { return noopGauge }
func (noop) FilterRowsScanned() prometheus.Counter { return noopCounter }
func (noop) FilterRowsMatched() prometheus.Counter { return noopCounter }
func (noop) FilterRunDuration() prometheus.Histogram {
	return noopHistogram
}

var (
	// NoOp is a Registry that discards every observation. It is the
	// default for a Heap/Engine constructed without an explicit
	// Registry.
	NoOp Registry = noop{}

	noopCounter   = prometheus.NewCounter(prometheus.CounterOpts{Name: "kruda_noop_counter"})
	noopGauge     = prometheus.NewGauge(prometheus.GaugeOpts{Name: "kruda_noop_gauge"})
	noopHistogram = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "kruda_noop_histogram"})
)
