// Package metrics registers the Prometheus collectors exported at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Transcriptions counts transcription requests by result: ok, denied, error.
	Transcriptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interviewprep_transcriptions_total",
			Help: "Total number of transcription requests",
		},
		[]string{"result"},
	)

	// Denials counts entitlement gate denials by reason.
	Denials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interviewprep_entitlement_denials_total",
			Help: "Total number of requests denied by the entitlement gate",
		},
		[]string{"reason"},
	)

	// ScoreOutcomes counts scoring results: scored, fallback, no_response, error.
	ScoreOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interviewprep_score_outcomes_total",
			Help: "Total number of scoring requests by outcome",
		},
		[]string{"outcome"},
	)

	// UpstreamDuration times calls to the speech and chat providers.
	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "interviewprep_upstream_duration_seconds",
			Help:    "Time spent waiting on upstream AI providers",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"call"},
	)

	// WebhookEvents counts payment webhook deliveries by type and result.
	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interviewprep_webhook_events_total",
			Help: "Total number of payment webhook events",
		},
		[]string{"type", "result"},
	)

	// RollupsApplied counts session rollups; duplicates are labelled skipped.
	RollupsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interviewprep_rollups_total",
			Help: "Total number of session rollup requests",
		},
		[]string{"result"},
	)
)

// StartTimer starts timing an upstream call; call ObserveDuration when it returns.
func StartTimer(call string) *prometheus.Timer {
	return prometheus.NewTimer(UpstreamDuration.WithLabelValues(call))
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
