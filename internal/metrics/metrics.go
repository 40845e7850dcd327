// Package metrics holds the Prometheus collectors shared by the services.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/glendonC/mallards/internal/contracts"
)

var (
	recomputesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mallards_recomputes_total",
			Help: "Alignment recomputes by outcome",
		},
		[]string{"outcome"},
	)
	recomputeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mallards_recompute_duration_seconds",
			Help:    "Alignment recompute duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)
	eventsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mallards_events_emitted_total",
			Help: "Events emitted by severity and status",
		},
		[]string{"severity", "status"},
	)
	memoLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mallards_memo_lookups_total",
			Help: "Report memo lookups by result",
		},
		[]string{"result"},
	)
	forecastCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mallards_forecast_calls_total",
			Help: "Forecast collaborator calls by outcome",
		},
		[]string{"outcome"},
	)
	recordsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mallards_records_ingested_total",
			Help: "Ingested transaction rows by result",
		},
		[]string{"result"},
	)
	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mallards_http_requests_total",
			Help: "HTTP requests by route and status class",
		},
		[]string{"route", "code"},
	)
)

// ObserveRecompute records one recompute. outcome is ok, superseded or invalid.
func ObserveRecompute(outcome string, started time.Time) {
	recomputesTotal.WithLabelValues(outcome).Inc()
	recomputeDuration.Observe(time.Since(started).Seconds())
}

func ObserveMemo(hit bool) {
	if hit {
		memoLookups.WithLabelValues("hit").Inc()
		return
	}
	memoLookups.WithLabelValues("miss").Inc()
}

func ObserveEvents(events []contracts.Event) {
	for _, ev := range events {
		eventsEmitted.WithLabelValues(string(ev.Severity), string(ev.Status)).Inc()
	}
}

func ObserveForecast(outcome string) {
	forecastCalls.WithLabelValues(outcome).Inc()
}

func ObserveIngest(accepted, skipped int) {
	recordsIngested.WithLabelValues("accepted").Add(float64(accepted))
	recordsIngested.WithLabelValues("skipped").Add(float64(skipped))
}

func ObserveHTTP(route, code string) {
	httpRequests.WithLabelValues(route, code).Inc()
}
