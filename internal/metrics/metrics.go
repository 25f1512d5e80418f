// Package metrics exposes Prometheus collectors for the harvest pipeline.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesTotal           prometheus.Counter
	detailsTotal         *prometheus.CounterVec
	retriesTotal         prometheus.Counter
	upsertsTotal         prometheus.Counter
	fetchDurationSeconds prometheus.Histogram
	inFlightFetches      prometheus.Gauge

	once sync.Once
)

// Init registers the collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		pagesTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "harvest_pages_total",
			Help: "Total listings pages consumed.",
		})

		detailsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_details_total",
				Help: "Total detail fetches, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		retriesTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "harvest_fetch_retries_total",
			Help: "Total retry attempts across all fetches.",
		})

		upsertsTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "harvest_records_upserted_total",
			Help: "Total records committed to the sink.",
		})

		fetchDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "harvest_fetch_duration_seconds",
			Help:    "Histogram of detail fetch latencies.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		})

		inFlightFetches = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "harvest_in_flight_fetches",
			Help: "Detail fetches currently outstanding.",
		})
	})
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage counts one consumed listings page.
func ObservePage() {
	if pagesTotal != nil {
		pagesTotal.Inc()
	}
}

// ObserveDetail counts one finished detail fetch by outcome
// ("ok" or the failure kind) and records its latency.
func ObserveDetail(outcome string, duration time.Duration) {
	if detailsTotal == nil {
		return
	}
	detailsTotal.WithLabelValues(outcome).Inc()
	fetchDurationSeconds.Observe(duration.Seconds())
}

// ObserveRetry counts one retry attempt.
func ObserveRetry() {
	if retriesTotal != nil {
		retriesTotal.Inc()
	}
}

// ObserveUpsert counts one committed record.
func ObserveUpsert() {
	if upsertsTotal != nil {
		upsertsTotal.Inc()
	}
}

// IncInFlight marks a fetch as outstanding.
func IncInFlight() {
	if inFlightFetches != nil {
		inFlightFetches.Inc()
	}
}

// DecInFlight marks a fetch as done.
func DecInFlight() {
	if inFlightFetches != nil {
		inFlightFetches.Dec()
	}
}
