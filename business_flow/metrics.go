package businessflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Wizard step changes partitioned by origin and destination step
	wizardTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wizard_transitions_total",
			Help: "Wizard step transitions",
		},
		[]string{"from", "to"},
	)

	submissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "membership_submissions_total",
			Help: "Membership submissions by outcome",
		},
		[]string{"outcome"},
	)

	submissionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "membership_submission_duration_seconds",
			Help:    "Latency of membership API create calls",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Durable writes partitioned by field group and outcome
	sessionPersistTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_persist_total",
			Help: "Session field group writes by outcome",
		},
		[]string{"group", "outcome"},
	)

	sessionRestoreTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_restore_total",
			Help: "Session restores by outcome",
		},
		[]string{"outcome"},
	)

	activeWizards = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wizard_active_sessions",
			Help: "Number of live wizards held in memory",
		},
	)
)
