package bandit

import (
	"context"
	"math"

	"github.com/Fuchsoria/formula-bandit/internal/storage"
	"github.com/google/uuid"
)

type UpdateResult struct {
	Success     bool    `json:"success"`
	Model       string  `json:"model"`
	SuccessRate float64 `json:"success_rate"`
	Confidence  float64 `json:"confidence"`
	Alpha       float64 `json:"alpha"`
	Beta        float64 `json:"beta"`
}

type rewardEvent struct {
	Reward   float64                `json:"reward"`
	Alpha    float64                `json:"alpha"`
	Beta     float64                `json:"beta"`
	Trials   int                    `json:"trials"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// UpdateModel folds one observed reward into the arm (contextKey, formula).
// Positive rewards add to alpha and count as a success, anything else adds
// 1-reward to beta. Unknown arms are created first.
func (b *Bandit) UpdateModel(
	ctx context.Context,
	contextKey string,
	formula string,
	reward float64,
	metadata map[string]interface{},
) UpdateResult {
	key := ModelKey(contextKey, formula)

	if math.IsNaN(reward) || math.IsInf(reward, 0) {
		b.logger.Warn("non-finite reward treated as zero", "model", key, "reward", reward)
		reward = 0
	}

	model := b.store.Update(ctx, key, func(m *storage.BanditModel) {
		if reward > 0 {
			m.Alpha += reward
			m.SuccessCount++
		} else {
			m.Beta += 1 - reward
		}

		m.TrialCount++
		m.LastReward = reward
	})

	outcome := "failure"
	if reward > 0 {
		outcome = "success"
	}
	RewardUpdatesTotal.WithLabelValues(outcome).Inc()

	successRate := float64(model.SuccessCount) / float64(model.TrialCount)
	confidence := CalculateConfidence(model.Alpha, model.Beta)

	b.logger.Info("thompson sampling model updated",
		"model", key,
		"success_rate", successRate,
		"confidence", confidence,
		"alpha", model.Alpha,
		"beta", model.Beta,
	)

	b.audit(ctx, storage.AuditKindReward, uuid.NewString(), contextKey, formula, rewardEvent{
		Reward:   reward,
		Alpha:    model.Alpha,
		Beta:     model.Beta,
		Trials:   model.TrialCount,
		Metadata: metadata,
	})

	return UpdateResult{
		Success:     true,
		Model:       key,
		SuccessRate: successRate,
		Confidence:  confidence,
		Alpha:       model.Alpha,
		Beta:        model.Beta,
	}
}
