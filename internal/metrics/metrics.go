package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the Prometheus collectors for refresh cycles.
// A nil *Registry is valid and records nothing.
type Registry struct {
	reg *prometheus.Registry

	RefreshDuration     *prometheus.HistogramVec
	Refreshes           *prometheus.CounterVec
	FeedFailures        *prometheus.CounterVec
	MarketFetchFailures *prometheus.CounterVec
	TimestampFallbacks  *prometheus.CounterVec
	Signals             *prometheus.GaugeVec
	NewsItems           prometheus.Gauge
	LastRefresh         prometheus.Gauge
}

func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		RefreshDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pmintel_refresh_duration_seconds",
				Help:    "Duration of refresh cycles in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"result"},
		),

		Refreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pmintel_refreshes_total",
				Help: "Total number of refresh cycles by result",
			},
			[]string{"result"},
		),

		FeedFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pmintel_feed_failures_total",
				Help: "Total number of skipped news feeds by source",
			},
			[]string{"source"},
		),

		MarketFetchFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pmintel_market_fetch_failures_total",
				Help: "Total number of failed market fetches by source",
			},
			[]string{"source"},
		),

		TimestampFallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pmintel_timestamp_fallbacks_total",
				Help: "Total number of news items given the fetch time, by reason",
			},
			[]string{"reason"},
		),

		Signals: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pmintel_signals",
				Help: "Scored markets in the latest refresh by signal",
			},
			[]string{"signal"},
		),

		NewsItems: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pmintel_news_items",
				Help: "News items in the latest refresh",
			},
		),

		LastRefresh: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pmintel_last_refresh_timestamp_seconds",
				Help: "Unix time of the latest completed refresh",
			},
		),
	}

	r.reg.MustRegister(
		r.RefreshDuration,
		r.Refreshes,
		r.FeedFailures,
		r.MarketFetchFailures,
		r.TimestampFallbacks,
		r.Signals,
		r.NewsItems,
		r.LastRefresh,
	)
	return r
}

// Handler serves the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry. A nil Registry gathers nothing.
func (r *Registry) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.reg
}

func (r *Registry) ObserveRefresh(result string, d time.Duration) {
	if r == nil {
		return
	}
	r.RefreshDuration.WithLabelValues(result).Observe(d.Seconds())
	r.Refreshes.WithLabelValues(result).Inc()
}

func (r *Registry) FeedFailed(source string) {
	if r == nil {
		return
	}
	r.FeedFailures.WithLabelValues(source).Inc()
}

func (r *Registry) MarketFetchFailed(source string) {
	if r == nil {
		return
	}
	r.MarketFetchFailures.WithLabelValues(source).Inc()
}

func (r *Registry) TimestampFallback(reason string) {
	if r == nil {
		return
	}
	r.TimestampFallbacks.WithLabelValues(reason).Inc()
}

// SetSnapshot records the shape of the latest completed refresh.
func (r *Registry) SetSnapshot(signals map[string]int, news int, completed time.Time) {
	if r == nil {
		return
	}
	r.Signals.Reset()
	for sig, n := range signals {
		r.Signals.WithLabelValues(sig).Set(float64(n))
	}
	r.NewsItems.Set(float64(news))
	r.LastRefresh.Set(float64(completed.Unix()))
}
