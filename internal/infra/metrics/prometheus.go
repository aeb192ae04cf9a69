package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ExtensionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fiapx_extensions_total",
		Help: "Total number of finished extensions, by outcome (succeeded or error kind)",
	}, []string{"outcome"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fiapx_extension_stage_duration_seconds",
		Help:    "Duration of each stage of a video extension",
		Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600, 1200},
	}, []string{"stage"})

	GenerationPollsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fiapx_generation_polls_total",
		Help: "Total number of status polls issued to the generation service",
	})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fiapx_active_workers",
		Help: "Number of workers currently running an extension",
	})

	RetryRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fiapx_retry_requests_total",
		Help: "Total number of user-requested retries, by attempt",
	}, []string{"attempt"})

	CredentialInvalidationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fiapx_credential_invalidations_total",
		Help: "Total number of times the generation service rejected the selected API key",
	})
)
