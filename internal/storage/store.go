package storage

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"
)

// DefaultModelNames are seeded with the uniform prior when nothing can be
// loaded from persistence.
var DefaultModelNames = []string{
	"var_calculation",
	"options_pricing",
	"portfolio_optimization",
	"risk_assessment",
	"market_timing",
	"asset_allocation",
}

// Store owns every BanditModel. It is the only writer of the in-memory table
// and writes through to the Repository on a best-effort basis: persistence
// failures are logged and counted, never returned.
//
// Writers of the same model key are serialized, and the write-through happens
// while the key is still held, so updates inside one process are never lost.
type Store struct {
	logger        Logger
	repo          Repository
	defaultModels []string

	mu     sync.RWMutex
	models map[string]BanditModel
	locks  map[string]*sync.Mutex
}

// NewStore creates a store. repo may be nil, in which case the store is
// purely in-memory.
func NewStore(logger Logger, repo Repository, defaultModels []string) *Store {
	if defaultModels == nil {
		defaultModels = DefaultModelNames
	}

	return &Store{
		logger:        logger,
		repo:          repo,
		defaultModels: defaultModels,
		models:        make(map[string]BanditModel),
		locks:         make(map[string]*sync.Mutex),
	}
}

// Initialize bulk-loads models from the repository. On failure it falls back
// to an empty table seeded with the default model names.
func (s *Store) Initialize(ctx context.Context) {
	if s.repo == nil {
		s.logger.Info("no bandit persistence configured, using in-memory models")
		s.seedDefaults()

		return
	}

	models, err := s.repo.LoadAllModels(ctx)
	if err != nil {
		PersistenceFailuresTotal.WithLabelValues("load").Inc()
		s.logger.Warn("cannot load bandit models, using in-memory defaults", "error", err)
		s.seedDefaults()

		return
	}

	s.mu.Lock()
	s.models = make(map[string]BanditModel, len(models))
	for _, m := range models {
		normalize(&m)
		s.models[m.ModelKey] = m
	}
	s.mu.Unlock()

	s.logger.Info("bandit models loaded", "count", len(models))
}

func (s *Store) seedDefaults() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.models = make(map[string]BanditModel, len(s.defaultModels))
	for _, name := range s.defaultModels {
		s.models[name] = NewModel(name)
	}
}

// GetOrCreate returns the model for key, creating it with the uniform prior
// when it does not exist yet.
func (s *Store) GetOrCreate(ctx context.Context, key string) BanditModel {
	if m, ok := s.Get(key); ok {
		return m
	}

	l := s.keyLock(key)
	l.Lock()
	defer l.Unlock()

	if m, ok := s.Get(key); ok {
		return m
	}

	m := NewModel(key)
	s.put(m)
	s.persist(ctx, m, "create")

	return m
}

// Update applies fn to the model under the key's lock, stores the result and
// writes it through. Missing models are created first.
func (s *Store) Update(ctx context.Context, key string, fn func(m *BanditModel)) BanditModel {
	l := s.keyLock(key)
	l.Lock()
	defer l.Unlock()

	m, ok := s.Get(key)
	if !ok {
		m = NewModel(key)
	}

	fn(&m)
	m.ModelKey = key
	m.UpdatedAt = time.Now().UTC()
	normalize(&m)

	s.put(m)
	s.persist(ctx, m, "upsert")

	return m
}

// Save merges the non-nil fields of patch into the model.
func (s *Store) Save(ctx context.Context, key string, patch ModelPatch) BanditModel {
	return s.Update(ctx, key, func(m *BanditModel) {
		if patch.Alpha != nil {
			m.Alpha = *patch.Alpha
		}
		if patch.Beta != nil {
			m.Beta = *patch.Beta
		}
		if patch.SuccessCount != nil {
			m.SuccessCount = *patch.SuccessCount
		}
		if patch.TrialCount != nil {
			m.TrialCount = *patch.TrialCount
		}
		if patch.LastReward != nil {
			m.LastReward = *patch.LastReward
		}
		if patch.IsActive != nil {
			m.IsActive = *patch.IsActive
		}
	})
}

func (s *Store) Get(key string) (BanditModel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.models[key]

	return m, ok
}

// Snapshot returns a copy of every model ordered by key.
func (s *Store) Snapshot() []BanditModel {
	s.mu.RLock()
	out := make([]BanditModel, 0, len(s.models))
	for _, m := range s.models {
		out = append(out, m)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].ModelKey < out[j].ModelKey
	})

	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.models)
}

func (s *Store) put(m BanditModel) {
	s.mu.Lock()
	s.models[m.ModelKey] = m
	s.mu.Unlock()
}

func (s *Store) keyLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}

	return l
}

func (s *Store) persist(ctx context.Context, m BanditModel, op string) {
	if s.repo == nil {
		return
	}

	if err := s.repo.UpsertModel(ctx, m); err != nil {
		PersistenceFailuresTotal.WithLabelValues(op).Inc()
		s.logger.Warn("cannot persist bandit model", "model", m.ModelKey, "op", op, "error", err)
	}
}

func normalize(m *BanditModel) {
	if !(m.Alpha >= MinParam) || math.IsInf(m.Alpha, 0) {
		m.Alpha = clampParam(m.Alpha)
	}
	if !(m.Beta >= MinParam) || math.IsInf(m.Beta, 0) {
		m.Beta = clampParam(m.Beta)
	}

	if m.TrialCount < 0 {
		m.TrialCount = 0
	}
	if m.SuccessCount < 0 {
		m.SuccessCount = 0
	}
	if m.SuccessCount > m.TrialCount {
		m.SuccessCount = m.TrialCount
	}
}

func clampParam(v float64) float64 {
	if math.IsInf(v, 1) {
		return math.MaxFloat64
	}

	return MinParam
}
