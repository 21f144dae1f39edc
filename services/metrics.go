package services

import "github.com/prometheus/client_golang/prometheus"

var (
	completionToggles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habit_completion_toggles_total",
			Help: "Cell toggles by outcome",
		},
		[]string{"result"},
	)
	completionWriteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "habit_completion_write_failures_total",
			Help: "Completion writes rejected by the habit store",
		},
	)
	habitSnapshots = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "habit_snapshots_total",
			Help: "Habit collection snapshots applied to tracker views",
		},
	)
	activeGridViews = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "monthly_grid_views_active",
			Help: "Currently active monthly grid views",
		},
	)
)

// RegisterMetrics registers the tracker metrics. Call this once from main.go.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(completionToggles, completionWriteFailures, habitSnapshots, activeGridViews)
}
