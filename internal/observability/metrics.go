package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	hydrationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "daygrid",
		Subsystem: "hydration",
		Name:      "hydrations_total",
		Help:      "Day entry hydrations, partitioned by outcome.",
	}, []string{"outcome"})

	hydrationConflictsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "daygrid",
		Subsystem: "hydration",
		Name:      "seed_conflicts_total",
		Help:      "Concurrent hydrations that lost the seed insert and re-read the winner's row.",
	})

	templateCacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "daygrid",
		Subsystem: "templates",
		Name:      "cache_lookups_total",
		Help:      "Active template cache lookups, partitioned by result.",
	}, []string{"result"})

	templateActivationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "daygrid",
		Subsystem: "templates",
		Name:      "activations_total",
		Help:      "Template activations, partitioned by role.",
	}, []string{"role"})
)

func init() {
	prometheus.MustRegister(
		hydrationsTotal,
		hydrationConflictsTotal,
		templateCacheLookups,
		templateActivationsTotal,
	)
}

// RecordHydration counts a hydration by outcome: "existing" or "seeded".
func RecordHydration(outcome string) {
	hydrationsTotal.WithLabelValues(outcome).Inc()
}

// RecordSeedConflict counts a lost seed race.
func RecordSeedConflict() {
	hydrationConflictsTotal.Inc()
}

// RecordCacheLookup counts an active template cache lookup: "hit" or "miss".
func RecordCacheLookup(result string) {
	templateCacheLookups.WithLabelValues(result).Inc()
}

// RecordActivation counts a template activation for a role.
func RecordActivation(role string) {
	templateActivationsTotal.WithLabelValues(role).Inc()
}
