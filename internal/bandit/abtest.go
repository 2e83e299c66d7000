package bandit

import "context"

const DefaultABTrials = 100

type ArmResult struct {
	Name   string `json:"name"`
	Wins   int    `json:"wins"`
	Trials int    `json:"trials"`
}

type TimelinePoint struct {
	Trial       int     `json:"trial"`
	Formula     string  `json:"formula"`
	Reward      float64 `json:"reward"`
	CumulativeA float64 `json:"cumulative_a"`
	CumulativeB float64 `json:"cumulative_b"`
}

type ABTestResult struct {
	FormulaA ArmResult       `json:"formula_a"`
	FormulaB ArmResult       `json:"formula_b"`
	Timeline []TimelinePoint `json:"timeline"`
}

// RunABTest pits two arms against each other with a fair coin and synthetic
// rewards, feeding every reward through UpdateModel. A reward above 0.5 is a
// win. It stops early when ctx is done.
func (b *Bandit) RunABTest(ctx context.Context, contextKey string, formulaA string, formulaB string, trials int) ABTestResult {
	if trials <= 0 {
		trials = DefaultABTrials
	}

	result := ABTestResult{
		FormulaA: ArmResult{Name: formulaA},
		FormulaB: ArmResult{Name: formulaB},
		Timeline: make([]TimelinePoint, 0, trials),
	}

	for i := 0; i < trials; i++ {
		if ctx.Err() != nil {
			b.logger.Warn("a/b test interrupted", "context", contextKey, "completed", i)

			break
		}

		arm := &result.FormulaB
		if b.uniform() < 0.5 {
			arm = &result.FormulaA
		}

		reward := b.syntheticReward(arm.Name, b.uniform())

		arm.Trials++
		if reward > 0.5 {
			arm.Wins++
		}

		b.UpdateModel(ctx, contextKey, arm.Name, reward, map[string]interface{}{"ab_test": true, "trial": i + 1})

		result.Timeline = append(result.Timeline, TimelinePoint{
			Trial:       i + 1,
			Formula:     arm.Name,
			Reward:      reward,
			CumulativeA: winRate(result.FormulaA),
			CumulativeB: winRate(result.FormulaB),
		})
	}

	return result
}

func winRate(a ArmResult) float64 {
	if a.Trials == 0 {
		return 0
	}

	return float64(a.Wins) / float64(a.Trials)
}
