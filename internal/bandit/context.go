package bandit

import "strings"

const DefaultContextKey = "default"

// Context describes the decision being made. Every factor is optional.
type Context struct {
	AssetClass       string `json:"asset_class,omitempty"`
	Scenario         string `json:"scenario,omitempty"`
	MarketCondition  string `json:"market_condition,omitempty"`
	VolatilityRegime string `json:"volatility_regime,omitempty"`
}

// DeriveContextKey joins the non-empty factors in fixed order
// (asset class, scenario, market condition, volatility regime) with "_".
func DeriveContextKey(c Context) string {
	factors := make([]string, 0, 4)

	for _, f := range []string{c.AssetClass, c.Scenario, c.MarketCondition, c.VolatilityRegime} {
		if f != "" {
			factors = append(factors, f)
		}
	}

	if len(factors) == 0 {
		return DefaultContextKey
	}

	return strings.Join(factors, "_")
}

func ModelKey(contextKey string, formula string) string {
	return contextKey + "_" + formula
}
