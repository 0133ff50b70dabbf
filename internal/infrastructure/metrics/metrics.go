package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles Prometheus collectors for the scrape job.
type Metrics struct {
	Registry        *prometheus.Registry
	FetchesTotal    *prometheus.CounterVec
	FetchDuration   *prometheus.HistogramVec
	ProductsScraped *prometheus.CounterVec
	DraftsSkipped   *prometheus.CounterVec
	ReconcileTotal  *prometheus.CounterVec
	PriceChanges    prometheus.Counter
	RunDuration     prometheus.Histogram
	RunsTotal       *prometheus.CounterVec
	RunInProgress   prometheus.Gauge
}

// New constructs and registers all metrics on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	fetches := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricescanner_fetches_total",
			Help: "Listing page fetches by retailer, strategy and outcome.",
		},
		[]string{"retailer", "strategy", "outcome"},
	)
	fetchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pricescanner_fetch_duration_seconds",
			Help:    "Listing page fetch latency.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"strategy"},
	)
	products := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricescanner_products_scraped_total",
			Help: "Normalized products produced per retailer.",
		},
		[]string{"retailer"},
	)
	skipped := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricescanner_drafts_skipped_total",
			Help: "Listing items dropped for lack of a usable price.",
		},
		[]string{"retailer"},
	)
	reconcile := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricescanner_reconcile_total",
			Help: "Reconciliation outcomes per product.",
		},
		[]string{"outcome"},
	)
	priceChanges := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pricescanner_price_changes_total",
			Help: "Price movements that produced a history entry.",
		},
	)
	runDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pricescanner_run_duration_seconds",
			Help:    "Wall time of complete scrape runs.",
			Buckets: prometheus.ExponentialBuckets(5, 2, 10),
		},
	)
	runs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricescanner_runs_total",
			Help: "Scrape runs by trigger and result.",
		},
		[]string{"trigger", "result"},
	)
	inProgress := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pricescanner_run_in_progress",
			Help: "1 while a scrape run is active.",
		},
	)

	registry.MustRegister(fetches, fetchDuration, products, skipped, reconcile, priceChanges, runDuration, runs, inProgress)

	return &Metrics{
		Registry:        registry,
		FetchesTotal:    fetches,
		FetchDuration:   fetchDuration,
		ProductsScraped: products,
		DraftsSkipped:   skipped,
		ReconcileTotal:  reconcile,
		PriceChanges:    priceChanges,
		RunDuration:     runDuration,
		RunsTotal:       runs,
		RunInProgress:   inProgress,
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// ObserveFetch records one fetch attempt.
func (m *Metrics) ObserveFetch(retailer, strategy, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.FetchesTotal.WithLabelValues(retailer, strategy, outcome).Inc()
	m.FetchDuration.WithLabelValues(strategy).Observe(d.Seconds())
}

// AddProducts increments the scraped products counter.
func (m *Metrics) AddProducts(retailer string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ProductsScraped.WithLabelValues(retailer).Add(float64(n))
}

// AddSkipped increments the skipped drafts counter.
func (m *Metrics) AddSkipped(retailer string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.DraftsSkipped.WithLabelValues(retailer).Add(float64(n))
}

// IncReconcile increments reconciliation outcomes (inserted, updated, unchanged, error).
func (m *Metrics) IncReconcile(outcome string) {
	if m == nil {
		return
	}
	m.ReconcileTotal.WithLabelValues(outcome).Inc()
}

// IncPriceChange increments the price movement counter.
func (m *Metrics) IncPriceChange() {
	if m == nil {
		return
	}
	m.PriceChanges.Inc()
}

// RunStarted flips the in-progress gauge on.
func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.RunInProgress.Set(1)
}

// RunFinished records a completed run and flips the gauge off.
func (m *Metrics) RunFinished(trigger string, success bool, d time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if !success {
		result = "failure"
	}
	m.RunsTotal.WithLabelValues(trigger, result).Inc()
	m.RunDuration.Observe(d.Seconds())
	m.RunInProgress.Set(0)
}
