package sqlstorage

import (
	"context"
	"fmt"
	"time"

	"github.com/Fuchsoria/formula-bandit/internal/storage"
	"github.com/jmoiron/sqlx"
)

const schema = `
CREATE TABLE IF NOT EXISTS bandit_models (
	model_key     TEXT PRIMARY KEY,
	alpha         DOUBLE PRECISION NOT NULL DEFAULT 1,
	beta          DOUBLE PRECISION NOT NULL DEFAULT 1,
	success_count INTEGER NOT NULL DEFAULT 0,
	trial_count   INTEGER NOT NULL DEFAULT 0,
	last_reward   DOUBLE PRECISION NOT NULL DEFAULT 0,
	is_active     BOOLEAN NOT NULL DEFAULT TRUE,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS bandit_audit_log (
	id          UUID PRIMARY KEY,
	kind        TEXT NOT NULL,
	context_key TEXT NOT NULL,
	formula     TEXT NOT NULL,
	payload     JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

const upsertModelQuery = `
INSERT INTO bandit_models (model_key, alpha, beta, success_count, trial_count, last_reward, is_active, updated_at)
VALUES (:model_key, :alpha, :beta, :success_count, :trial_count, :last_reward, :is_active, :updated_at)
ON CONFLICT (model_key) DO UPDATE SET
	alpha = EXCLUDED.alpha,
	beta = EXCLUDED.beta,
	success_count = EXCLUDED.success_count,
	trial_count = EXCLUDED.trial_count,
	last_reward = EXCLUDED.last_reward,
	is_active = EXCLUDED.is_active,
	updated_at = EXCLUDED.updated_at`

const insertAuditQuery = `
INSERT INTO bandit_audit_log (id, kind, context_key, formula, payload, created_at)
VALUES (:id, :kind, :context_key, :formula, :payload, :created_at)`

// payload is bound as text so lib/pq does not send it as bytea.
type auditRow struct {
	ID         string    `db:"id"`
	Kind       string    `db:"kind"`
	ContextKey string    `db:"context_key"`
	Formula    string    `db:"formula"`
	Payload    string    `db:"payload"`
	CreatedAt  time.Time `db:"created_at"`
}

type Storage struct {
	db      *sqlx.DB
	timeout time.Duration
}

func New(ctx context.Context, connectionString string, timeout time.Duration) (*Storage, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("cannot open db, %w", err)
	}

	return &Storage{db: db, timeout: timeout}, nil
}

func (s *Storage) Connect(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("cannot connect to db, %w", err)
	}

	return nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("cannot create bandit tables, %w", err)
	}

	return nil
}

func (s *Storage) LoadAllModels(ctx context.Context) ([]storage.BanditModel, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var models []storage.BanditModel

	err := s.db.SelectContext(ctx, &models, `
		SELECT model_key, alpha, beta, success_count, trial_count, last_reward, is_active, updated_at
		FROM bandit_models`)
	if err != nil {
		return nil, fmt.Errorf("cannot select bandit models, %w", err)
	}

	return models, nil
}

func (s *Storage) UpsertModel(ctx context.Context, model storage.BanditModel) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.db.NamedExecContext(ctx, upsertModelQuery, model); err != nil {
		return fmt.Errorf("cannot upsert bandit model %s, %w", model.ModelKey, err)
	}

	return nil
}

func (s *Storage) InsertAuditLog(ctx context.Context, entry storage.AuditEntry) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	row := auditRow{
		ID:         entry.ID,
		Kind:       entry.Kind,
		ContextKey: entry.ContextKey,
		Formula:    entry.Formula,
		Payload:    string(entry.Payload),
		CreatedAt:  entry.CreatedAt,
	}

	if _, err := s.db.NamedExecContext(ctx, insertAuditQuery, row); err != nil {
		return fmt.Errorf("cannot insert audit entry, %w", err)
	}

	return nil
}

func (s *Storage) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, s.timeout)
}
