package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry collects all voiced metrics. The web package exposes it on
// /metrics; keeping it package-local avoids colliding with the default
// registry in embedding programs and tests.
var Registry = prometheus.NewRegistry()

var (
	voicedTotal = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Name: "voiced_grants_total",
		Help: "Voice grants issued to the managed channel.",
	})

	devoicedTotal = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Name: "voiced_revokes_total",
		Help: "Voice revocations issued to the managed channel.",
	})

	resolveFailures = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Name: "voiced_resolve_failures_total",
		Help: "Identity resolutions that failed and aborted an evaluation.",
	})

	throttledQueries = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Name: "voiced_throttled_queries_total",
		Help: "Invalid queries dropped by the abuse throttle.",
	})

	commandsTotal = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "voiced_commands_total",
		Help: "Administrative commands executed, by command.",
	}, []string{"command"})

	sweepDuration = promauto.With(Registry).NewHistogram(prometheus.HistogramOpts{
		Name:    "voiced_sweep_duration_seconds",
		Help:    "Wall time of one devoice sweep batch.",
		Buckets: prometheus.DefBuckets,
	})
)
