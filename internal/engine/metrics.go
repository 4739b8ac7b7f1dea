package engine

import "github.com/prometheus/client_golang/prometheus"

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "open_skills_runs_total",
			Help: "Total number of skill runs by terminal status.",
		},
		[]string{"status"},
	)

	runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "open_skills_run_duration_seconds",
			Help:    "Skill run execution duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	activeRuns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "open_skills_active_runs",
			Help: "Number of runs currently executing in the sandbox.",
		},
	)

	eventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "open_skills_events_published_total",
			Help: "Total number of run events published, by kind.",
		},
		[]string{"kind"},
	)

	subscribersDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "open_skills_event_subscribers_dropped_total",
			Help: "Total number of event subscribers dropped for falling behind.",
		},
	)
)

func init() {
	prometheus.MustRegister(runsTotal)
	prometheus.MustRegister(runDuration)
	prometheus.MustRegister(activeRuns)
	prometheus.MustRegister(eventsPublishedTotal)
	prometheus.MustRegister(subscribersDroppedTotal)
}
