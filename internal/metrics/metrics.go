// Package metrics exposes Prometheus collectors for the crawl pipeline.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal       prometheus.Counter
	cacheHitsTotal      prometheus.Counter
	budgetExhausted     prometheus.Counter
	jobsTotal           *prometheus.CounterVec
	showsExtractedTotal prometheus.Counter
	invocationsTotal    *prometheus.CounterVec
	notificationsTotal  *prometheus.CounterVec
	pendingDates        prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		requestsTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "showwatch_requests_total",
			Help: "Total number of network fetch attempts (cache hits excluded).",
		})
		cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "showwatch_cache_hits_total",
			Help: "Total number of fetches served from the in-memory page cache.",
		})
		budgetExhausted = promauto.NewCounter(prometheus.CounterOpts{
			Name: "showwatch_budget_exhausted_total",
			Help: "Number of fetches rejected because the request budget was spent.",
		})
		jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "showwatch_jobs_total",
			Help: "Scrape jobs by outcome.",
		}, []string{"outcome"})
		showsExtractedTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "showwatch_shows_extracted_total",
			Help: "Total show records produced by extraction.",
		})
		invocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "showwatch_invocations_total",
			Help: "Crawl invocations by result.",
		}, []string{"result"})
		notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "showwatch_notifications_total",
			Help: "Notification sends by status.",
		}, []string{"status"})
		pendingDates = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "showwatch_pending_dates",
			Help: "Dates discovered but not yet processed after the last invocation.",
		})
	})
}

// IncRequest counts one network fetch attempt.
func IncRequest() {
	if requestsTotal != nil {
		requestsTotal.Inc()
	}
}

// IncCacheHit counts one cache-served fetch.
func IncCacheHit() {
	if cacheHitsTotal != nil {
		cacheHitsTotal.Inc()
	}
}

// IncBudgetExhausted counts one budget rejection.
func IncBudgetExhausted() {
	if budgetExhausted != nil {
		budgetExhausted.Inc()
	}
}

// IncJob counts a scrape job outcome ("completed", "failed", "budget").
func IncJob(outcome string) {
	if jobsTotal != nil {
		jobsTotal.WithLabelValues(outcome).Inc()
	}
}

// AddShowsExtracted counts extracted records.
func AddShowsExtracted(n int) {
	if showsExtractedTotal != nil && n > 0 {
		showsExtractedTotal.Add(float64(n))
	}
}

// IncInvocation counts an invocation result ("complete", "checkpointed", "noop").
func IncInvocation(result string) {
	if invocationsTotal != nil {
		invocationsTotal.WithLabelValues(result).Inc()
	}
}

// IncNotification counts a notification send ("sent", "failed").
func IncNotification(status string) {
	if notificationsTotal != nil {
		notificationsTotal.WithLabelValues(status).Inc()
	}
}

// SetPendingDates records the unprocessed-date backlog.
func SetPendingDates(n int) {
	if pendingDates != nil {
		pendingDates.Set(float64(n))
	}
}

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
