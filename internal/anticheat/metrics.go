package anticheat

import "github.com/prometheus/client_golang/prometheus"

var (
	sessionsStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "playguard",
		Subsystem: "anticheat",
		Name:      "sessions_started_total",
		Help:      "Total game sessions started, by game.",
	}, []string{"game"})

	sessionsEnded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "playguard",
		Subsystem: "anticheat",
		Name:      "sessions_ended_total",
		Help:      "Total game sessions finalized, by advisory validity.",
	}, []string{"valid"}) // "true", "false"

	flagsRaised = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "playguard",
		Subsystem: "anticheat",
		Name:      "flags_raised_total",
		Help:      "Total anomaly flags raised, by flag type.",
	}, []string{"type"})

	activeSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "playguard",
		Subsystem: "anticheat",
		Name:      "active_sessions",
		Help:      "Number of currently live sessions in the registry.",
	})

	sessionsSwept = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "playguard",
		Subsystem: "anticheat",
		Name:      "sessions_swept_total",
		Help:      "Total abandoned sessions evicted by the stale sweep.",
	})

	actionLogTruncations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "playguard",
		Subsystem: "anticheat",
		Name:      "action_log_truncations_total",
		Help:      "Times a session action log hit the retention cap and was truncated.",
	})

	reportStoreErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "playguard",
		Subsystem: "anticheat",
		Name:      "report_store_errors_total",
		Help:      "Failed best-effort report persistence attempts.",
	})

	sessionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "playguard",
		Subsystem: "anticheat",
		Name:      "session_duration_seconds",
		Help:      "Time from session start to finalization in seconds.",
		Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1800},
	})
)

func init() {
	prometheus.MustRegister(
		sessionsStarted,
		sessionsEnded,
		flagsRaised,
		activeSessions,
		sessionsSwept,
		actionLogTruncations,
		reportStoreErrors,
		sessionDuration,
	)
}
