package bandit

import "strings"

const FallbackFormula = "var"

// applicabilityRules lists the scenario / asset tags each formula is valid for.
// Formulas without an entry apply everywhere.
var applicabilityRules = map[string][]string{
	"var":      {"risk_assessment", "portfolio", "stress_testing"},
	"es":       {"risk_assessment", "portfolio", "stress_testing"},
	"sharpe":   {"performance_evaluation", "portfolio"},
	"call":     {"options", "derivatives", "hedging_strategy"},
	"put":      {"options", "derivatives", "hedging_strategy"},
	"duration": {"fixed_income", "bonds", "interest_rate_risk"},
	"lcr":      {"liquidity", "regulatory_reporting", "basel"},
	"nsfr":     {"liquidity", "regulatory_reporting", "basel"},
}

// defaultFormulas is consulted by asset class first, then by scenario.
var defaultFormulas = map[string]string{
	"equity":                 "var",
	"fixed_income":           "duration",
	"derivatives":            "call",
	"portfolio":              "sharpe",
	"risk_assessment":        "var",
	"performance_evaluation": "sharpe",
}

func IsApplicable(formula string, c Context) bool {
	tags := applicabilityRules[formula]
	if len(tags) == 0 {
		return true
	}

	for _, tag := range tags {
		if strings.Contains(c.Scenario, tag) || strings.Contains(c.AssetClass, tag) {
			return true
		}
	}

	return false
}

// FilterApplicable keeps the candidates valid for c, preserving their order.
func FilterApplicable(candidates []string, c Context) []string {
	applicable := make([]string, 0, len(candidates))

	for _, f := range candidates {
		if IsApplicable(f, c) {
			applicable = append(applicable, f)
		}
	}

	return applicable
}

func DefaultFormula(c Context) string {
	if f, ok := defaultFormulas[c.AssetClass]; ok {
		return f
	}

	if f, ok := defaultFormulas[c.Scenario]; ok {
		return f
	}

	return FallbackFormula
}
