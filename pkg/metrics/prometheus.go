package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	polls          *prometheus.CounterVec
	emitted        *prometheus.CounterVec
	detailFetches  *prometheus.CounterVec
	targets        *prometheus.CounterVec
	bids           *prometheus.CounterVec
	pendingTargets prometheus.Gauge
	cacheSize      *prometheus.GaugeVec
	errorsTotal    *prometheus.CounterVec
	latency        *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the collectors on reg instead of the default registry.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		polls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpull_polls_total",
				Help: "Total number of query polls by outcome",
			},
			[]string{"source", "result"},
		),
		emitted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpull_listings_emitted_total",
				Help: "Listings announced to their threads",
			},
			[]string{"source"},
		),
		detailFetches: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpull_detail_fetches_total",
				Help: "Listing detail fetches by outcome",
			},
			[]string{"source", "result"},
		),
		targets: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpull_targets_total",
				Help: "Auction target transitions",
			},
			[]string{"status"},
		),
		bids: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpull_bids_total",
				Help: "Bids placed by outcome",
			},
			[]string{"source", "outcome"},
		),
		pendingTargets: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "marketpull_pending_targets",
				Help: "Currently scheduled auction targets",
			},
		),
		cacheSize: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "marketpull_listing_cache_size",
				Help: "Entries held in the per-source listing cache",
			},
			[]string{"source"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpull_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "marketpull_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordPoll(source, result string) {
	r.polls.WithLabelValues(source, result).Inc()
}

func (r *Recorder) RecordListingsEmitted(source string, n int) {
	if n <= 0 {
		return
	}
	r.emitted.WithLabelValues(source).Add(float64(n))
}

func (r *Recorder) RecordDetailFetch(source, result string) {
	r.detailFetches.WithLabelValues(source, result).Inc()
}

func (r *Recorder) RecordTarget(status string) {
	r.targets.WithLabelValues(status).Inc()
}

func (r *Recorder) RecordBid(source, outcome string) {
	r.bids.WithLabelValues(source, outcome).Inc()
}

func (r *Recorder) SetPendingTargets(n int) {
	r.pendingTargets.Set(float64(n))
}

func (r *Recorder) SetCacheSize(source string, n int) {
	r.cacheSize.WithLabelValues(source).Set(float64(n))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Nop discards everything. Used where no registry is wanted.
type Nop struct{}

func (Nop) RecordPoll(string, string)          {}
func (Nop) RecordListingsEmitted(string, int)  {}
func (Nop) RecordDetailFetch(string, string)   {}
func (Nop) RecordTarget(string)                {}
func (Nop) RecordBid(string, string)           {}
func (Nop) SetPendingTargets(int)              {}
func (Nop) SetCacheSize(string, int)           {}
func (Nop) RecordError(string)                 {}
func (Nop) RecordLatency(string, float64)      {}
