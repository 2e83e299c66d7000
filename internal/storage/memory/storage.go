package memorystorage

import (
	"context"
	"sort"
	"sync"

	"github.com/Fuchsoria/formula-bandit/internal/storage"
)

// Storage keeps models and audit entries in process memory. It is used when
// no database is configured and as a fake in tests.
type Storage struct {
	mu     sync.RWMutex
	models map[string]storage.BanditModel
	audit  []storage.AuditEntry
}

func New() *Storage {
	return &Storage{
		models: make(map[string]storage.BanditModel),
	}
}

func (s *Storage) LoadAllModels(ctx context.Context) ([]storage.BanditModel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	models := make([]storage.BanditModel, 0, len(s.models))
	for _, m := range s.models {
		models = append(models, m)
	}

	sort.Slice(models, func(i, j int) bool {
		return models[i].ModelKey < models[j].ModelKey
	})

	return models, nil
}

func (s *Storage) UpsertModel(ctx context.Context, model storage.BanditModel) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.models[model.ModelKey] = model
	s.mu.Unlock()

	return nil
}

func (s *Storage) InsertAuditLog(ctx context.Context, entry storage.AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.audit = append(s.audit, entry)
	s.mu.Unlock()

	return nil
}

func (s *Storage) AuditLog() []storage.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]storage.AuditEntry, len(s.audit))
	copy(out, s.audit)

	return out
}
