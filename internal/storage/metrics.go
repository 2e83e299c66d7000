package storage

import "github.com/prometheus/client_golang/prometheus"

var PersistenceFailuresTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "formula_bandit_persistence_failures_total",
		Help: "Count of swallowed persistence failures by operation.",
	},
	[]string{"op"},
)

func init() {
	prometheus.MustRegister(PersistenceFailuresTotal)
}
