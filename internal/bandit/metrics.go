package bandit

import "github.com/prometheus/client_golang/prometheus"

var (
	SelectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formula_bandit_selections_total",
			Help: "Count of formula selections by path (sampled, single, default).",
		},
		[]string{"path"},
	)

	SelectionFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formula_bandit_selection_fallbacks_total",
			Help: "Count of selections answered from the default formula table, by reason.",
		},
		[]string{"reason"},
	)

	RewardUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formula_bandit_reward_updates_total",
			Help: "Count of reward updates by outcome (success, failure).",
		},
		[]string{"outcome"},
	)

	AuditFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "formula_bandit_audit_failures_total",
		Help: "Count of audit entries that could not be written.",
	})
)

func init() {
	prometheus.MustRegister(
		SelectionsTotal,
		SelectionFallbacksTotal,
		RewardUpdatesTotal,
		AuditFailuresTotal,
	)
}
