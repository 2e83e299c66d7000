package bandit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Fuchsoria/formula-bandit/internal/sampler"
	"github.com/Fuchsoria/formula-bandit/internal/storage"
	"github.com/google/uuid"
)

const (
	PathSampled = "sampled"
	PathSingle  = "single"
	PathDefault = "default"
)

type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ModelStore is the part of storage.Store the engine needs.
type ModelStore interface {
	GetOrCreate(ctx context.Context, key string) storage.BanditModel
	Update(ctx context.Context, key string, fn func(m *storage.BanditModel)) storage.BanditModel
	Snapshot() []storage.BanditModel
}

// SelectionEvent records one sampled selection. It is audit data only.
type SelectionEvent struct {
	ID         string             `json:"id"`
	ContextKey string             `json:"context_key"`
	Formula    string             `json:"formula"`
	Samples    map[string]float64 `json:"samples"`
	Context    Context            `json:"context"`
	Timestamp  time.Time          `json:"timestamp"`
}

// Bandit picks formulas with Thompson Sampling over per-arm Beta posteriors.
type Bandit struct {
	logger  Logger
	store   ModelStore
	auditor storage.Auditor

	syntheticReward func(formula string, u float64) float64

	// sampler state (RNG and Box-Muller cache) is shared by all calls.
	mu      sync.Mutex
	sampler *sampler.Sampler
}

type Option func(b *Bandit)

// WithSeed makes sampling reproducible.
func WithSeed(seed uint64) Option {
	return func(b *Bandit) {
		b.sampler = sampler.New(seed)
	}
}

// WithAuditor sends selection and reward events to a.
func WithAuditor(a storage.Auditor) Option {
	return func(b *Bandit) {
		b.auditor = a
	}
}

// WithSyntheticReward replaces the reward generator used by RunABTest.
// fn receives the arm and a uniform draw in [0, 1).
func WithSyntheticReward(fn func(formula string, u float64) float64) Option {
	return func(b *Bandit) {
		b.syntheticReward = fn
	}
}

func New(logger Logger, store ModelStore, opts ...Option) *Bandit {
	b := &Bandit{
		logger:  logger,
		store:   store,
		sampler: sampler.New(uint64(time.Now().UnixNano())),
		syntheticReward: func(_ string, u float64) float64 {
			return u
		},
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// SelectFormula returns the formula to use for c among candidates. It never
// fails: anything unexpected is logged and answered with DefaultFormula.
func (b *Bandit) SelectFormula(ctx context.Context, c Context, candidates []string) (formula string) {
	contextKey := DeriveContextKey(c)
	applicable := FilterApplicable(candidates, c)

	if len(applicable) == 0 {
		return b.fallback(c, contextKey, "no_applicable")
	}

	if len(applicable) == 1 {
		SelectionsTotal.WithLabelValues(PathSingle).Inc()

		return applicable[0]
	}

	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("thompson sampling selection failed", "context", contextKey, "panic", fmt.Sprint(r))
			formula = b.fallback(c, contextKey, "error")
		}
	}()

	samples := make(map[string]float64, len(applicable))
	best := ""
	bestValue := 0.0

	for _, f := range applicable {
		model := b.store.GetOrCreate(ctx, ModelKey(contextKey, f))
		if !model.IsActive {
			continue
		}

		value := b.sampleBeta(model.Alpha, model.Beta)
		samples[f] = value

		// strict comparison keeps the first candidate on ties
		if best == "" || value > bestValue {
			best = f
			bestValue = value
		}
	}

	if best == "" {
		return b.fallback(c, contextKey, "all_inactive")
	}

	SelectionsTotal.WithLabelValues(PathSampled).Inc()
	b.logSelection(ctx, SelectionEvent{
		ID:         uuid.NewString(),
		ContextKey: contextKey,
		Formula:    best,
		Samples:    samples,
		Context:    c,
		Timestamp:  time.Now().UTC(),
	})

	return best
}

func (b *Bandit) fallback(c Context, contextKey string, reason string) string {
	formula := DefaultFormula(c)

	SelectionsTotal.WithLabelValues(PathDefault).Inc()
	SelectionFallbacksTotal.WithLabelValues(reason).Inc()
	b.logger.Debug("using default formula", "context", contextKey, "formula", formula, "reason", reason)

	return formula
}

func (b *Bandit) logSelection(ctx context.Context, event SelectionEvent) {
	b.logger.Info("thompson sampling selection",
		"id", event.ID,
		"context", event.ContextKey,
		"formula", event.Formula,
		"samples", event.Samples,
	)

	b.audit(ctx, storage.AuditKindSelection, event.ID, event.ContextKey, event.Formula, event)
}

func (b *Bandit) audit(ctx context.Context, kind, id, contextKey, formula string, payload interface{}) {
	if b.auditor == nil {
		return
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		AuditFailuresTotal.Inc()
		b.logger.Warn("cannot encode audit entry", "kind", kind, "error", err)

		return
	}

	err = b.auditor.InsertAuditLog(ctx, storage.AuditEntry{
		ID:         id,
		Kind:       kind,
		ContextKey: contextKey,
		Formula:    formula,
		Payload:    raw,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		AuditFailuresTotal.Inc()
		b.logger.Warn("cannot write audit entry", "kind", kind, "error", err)
	}
}

func (b *Bandit) sampleBeta(alpha, beta float64) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.sampler.Beta(alpha, beta)
}

func (b *Bandit) uniform() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.sampler.Uniform()
}
