// Package metrics holds the Prometheus collectors exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CheckIns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kkn",
		Name:      "attendance_checkins_total",
		Help:      "Attendance records written, by status and source.",
	}, []string{"status", "source"})

	CheckInConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kkn",
		Name:      "attendance_checkin_conflicts_total",
		Help:      "Writes rejected because a record already exists for the team, user and date.",
	})

	ApprovalDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kkn",
		Name:      "approval_decisions_total",
		Help:      "Weekly approval decisions, by resulting status.",
	}, []string{"status"})

	SummariesComputed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kkn",
		Name:      "summaries_computed_total",
		Help:      "Weekly summaries built from the store.",
	})

	SummaryCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kkn",
		Name:      "summary_cache_lookups_total",
		Help:      "Summary cache lookups, by result (hit or miss).",
	}, []string{"result"})

	SummarizeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "kkn",
		Name:      "summarize_duration_seconds",
		Help:      "Time spent building a weekly summary.",
		Buckets:   prometheus.DefBuckets,
	})

	Exports = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kkn",
		Name:      "exports_total",
		Help:      "Reports rendered, by kind.",
	}, []string{"kind"})

	QueueMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kkn",
		Name:      "worker_messages_total",
		Help:      "Queue messages handled by the worker, by type and outcome.",
	}, []string{"type", "outcome"})
)
