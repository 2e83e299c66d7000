package storage

import (
	"context"
	"encoding/json"
	"time"
)

const (
	PriorAlpha = 1.0
	PriorBeta  = 1.0

	// MinParam is the positive floor for alpha and beta after any update.
	MinParam = 1e-6
)

type BanditModel struct {
	ModelKey     string    `db:"model_key" json:"model_key"`
	Alpha        float64   `db:"alpha" json:"alpha"`
	Beta         float64   `db:"beta" json:"beta"`
	SuccessCount int       `db:"success_count" json:"success_count"`
	TrialCount   int       `db:"trial_count" json:"trial_count"`
	LastReward   float64   `db:"last_reward" json:"last_reward"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// NewModel returns a record carrying the uniform Beta(1,1) prior.
func NewModel(modelKey string) BanditModel {
	return BanditModel{
		ModelKey:  modelKey,
		Alpha:     PriorAlpha,
		Beta:      PriorBeta,
		IsActive:  true,
		UpdatedAt: time.Now().UTC(),
	}
}

// ModelPatch carries the fields to merge into a model. Nil fields are left alone.
type ModelPatch struct {
	Alpha        *float64
	Beta         *float64
	SuccessCount *int
	TrialCount   *int
	LastReward   *float64
	IsActive     *bool
}

const (
	AuditKindSelection = "selection"
	AuditKindReward    = "reward"
)

type AuditEntry struct {
	ID         string          `db:"id" json:"id"`
	Kind       string          `db:"kind" json:"kind"`
	ContextKey string          `db:"context_key" json:"context_key"`
	Formula    string          `db:"formula" json:"formula"`
	Payload    json.RawMessage `db:"payload" json:"payload"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

// Repository is the persistence port the Store loads from and writes through to.
type Repository interface {
	LoadAllModels(ctx context.Context) ([]BanditModel, error)
	UpsertModel(ctx context.Context, model BanditModel) error
}

// Auditor receives best-effort audit entries.
type Auditor interface {
	InsertAuditLog(ctx context.Context, entry AuditEntry) error
}

type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}
