// Package metrics holds the Prometheus collectors shared by the bot.
//
// Label values are drawn from small closed sets (gate reasons, pipeline
// stages, job outcomes) so cardinality stays bounded.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// GateDecisions counts access-gate outcomes by result and reason.
	GateDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imgbot_gate_decisions_total",
			Help: "Access gate decisions by result and reason.",
		},
		[]string{"result", "reason"},
	)

	// Publishes counts pipeline runs by result and failing stage ("" on success).
	Publishes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imgbot_publishes_total",
			Help: "Publish pipeline runs by result and stage.",
		},
		[]string{"result", "stage"},
	)

	// PublishDuration records end-to-end pipeline latency.
	PublishDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "imgbot_publish_duration_seconds",
			Help:    "Duration of publish pipeline runs in seconds.",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60},
		},
	)

	// ScheduledJobs counts scheduled jobs by outcome.
	ScheduledJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imgbot_scheduled_jobs_total",
			Help: "Scheduled publish jobs by outcome.",
		},
		[]string{"outcome"},
	)

	// PendingJobs gauges jobs waiting to fire.
	PendingJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "imgbot_scheduled_jobs_pending",
			Help: "Scheduled publish jobs waiting to fire.",
		},
	)

	// ActiveSessions gauges live upload sessions.
	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "imgbot_active_sessions",
			Help: "Live upload sessions.",
		},
	)

	// Updates counts inbound updates by kind.
	Updates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imgbot_updates_total",
			Help: "Inbound updates by kind.",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(GateDecisions, Publishes, PublishDuration, ScheduledJobs, PendingJobs, ActiveSessions, Updates)
}
