package core

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	importRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pageimport",
		Subsystem: "rows",
		Name:      "processed_total",
		Help:      "Data rows processed, broken down by template and action.",
	}, []string{"template", "action"})

	importRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pageimport",
		Subsystem: "runs",
		Name:      "finished_total",
		Help:      "Import runs finished, broken down by template and final phase.",
	}, []string{"template", "phase"})

	importDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pageimport",
		Subsystem: "runs",
		Name:      "duration_seconds",
		Help:      "Wall time of import runs.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
	}, []string{"template"})

	referencesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pageimport",
		Subsystem: "references",
		Name:      "created_total",
		Help:      "Pages created on demand to satisfy page references.",
	}, []string{"template"})
)

func recordRow(template string, action Action) {
	importRows.WithLabelValues(template, string(action)).Inc()
}

func recordRun(template string, phase ImportPhase, d time.Duration) {
	importRuns.WithLabelValues(template, string(phase)).Inc()
	importDuration.WithLabelValues(template).Observe(d.Seconds())
}

func recordReferencesCreated(template string, n int) {
	if n > 0 {
		referencesCreated.WithLabelValues(template).Add(float64(n))
	}
}
