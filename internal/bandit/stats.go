package bandit

import (
	"sort"

	"github.com/Fuchsoria/formula-bandit/internal/storage"
)

const (
	DefaultMinTrials = 10
	DefaultBestLimit = 10
)

type ModelStats struct {
	Model        string  `json:"model"`
	Trials       int     `json:"trials"`
	Successes    int     `json:"successes"`
	SuccessRate  float64 `json:"success_rate"`
	Confidence   float64 `json:"confidence"`
	CredibleLow  float64 `json:"credible_low"`
	CredibleHigh float64 `json:"credible_high"`
	Alpha        float64 `json:"alpha"`
	Beta         float64 `json:"beta"`
	LastReward   float64 `json:"last_reward"`
	IsActive     bool    `json:"is_active"`
}

// GetModelStats reports every known arm, most tried first.
func (b *Bandit) GetModelStats() []ModelStats {
	models := b.store.Snapshot()
	stats := make([]ModelStats, 0, len(models))

	for _, m := range models {
		low, high := CredibleInterval(m.Alpha, m.Beta, DefaultCredibleLevel)

		stats = append(stats, ModelStats{
			Model:        m.ModelKey,
			Trials:       m.TrialCount,
			Successes:    m.SuccessCount,
			SuccessRate:  successRate(m),
			Confidence:   CalculateConfidence(m.Alpha, m.Beta),
			CredibleLow:  low,
			CredibleHigh: high,
			Alpha:        m.Alpha,
			Beta:         m.Beta,
			LastReward:   m.LastReward,
			IsActive:     m.IsActive,
		})
	}

	sort.SliceStable(stats, func(i, j int) bool {
		return stats[i].Trials > stats[j].Trials
	})

	return stats
}

// GetBestModels returns up to limit arms with at least minTrials trials,
// highest success rate first. Non-positive arguments use the defaults.
func (b *Bandit) GetBestModels(minTrials int, limit int) []storage.BanditModel {
	if minTrials <= 0 {
		minTrials = DefaultMinTrials
	}

	if limit <= 0 {
		limit = DefaultBestLimit
	}

	var best []storage.BanditModel

	for _, m := range b.store.Snapshot() {
		if m.TrialCount >= minTrials {
			best = append(best, m)
		}
	}

	sort.SliceStable(best, func(i, j int) bool {
		return successRate(best[i]) > successRate(best[j])
	})

	if len(best) > limit {
		best = best[:limit]
	}

	return best
}

func successRate(m storage.BanditModel) float64 {
	if m.TrialCount == 0 {
		return 0
	}

	return float64(m.SuccessCount) / float64(m.TrialCount)
}
