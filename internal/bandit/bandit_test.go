package bandit

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/Fuchsoria/formula-bandit/internal/logger"
	"github.com/Fuchsoria/formula-bandit/internal/storage"
	memorystorage "github.com/Fuchsoria/formula-bandit/internal/storage/memory"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("persistence is down")

type brokenRepository struct{}

func (brokenRepository) LoadAllModels(context.Context) ([]storage.BanditModel, error) {
	return nil, errDown
}

func (brokenRepository) UpsertModel(context.Context, storage.BanditModel) error {
	return errDown
}

func (brokenRepository) InsertAuditLog(context.Context, storage.AuditEntry) error {
	return errDown
}

type panickingStore struct {
	*storage.Store
}

func (panickingStore) GetOrCreate(context.Context, string) storage.BanditModel {
	panic("corrupted model table")
}

func newTestBandit(t *testing.T, opts ...Option) (*Bandit, *storage.Store) {
	t.Helper()

	store := storage.NewStore(logger.NewNop(), nil, nil)

	return New(logger.NewNop(), store, append([]Option{WithSeed(1)}, opts...)...), store
}

var riskContext = Context{AssetClass: "equity", Scenario: "risk_assessment"}

func TestDeriveContextKey(t *testing.T) {
	t.Run("fixed factor order", func(t *testing.T) {
		a := Context{Scenario: "risk_assessment", AssetClass: "equity"}
		b := Context{AssetClass: "equity", Scenario: "risk_assessment"}

		require.Equal(t, "equity_risk_assessment", DeriveContextKey(a))
		require.Equal(t, DeriveContextKey(a), DeriveContextKey(b))
	})

	t.Run("all factors", func(t *testing.T) {
		c := Context{
			VolatilityRegime: "high",
			MarketCondition:  "bear",
			Scenario:         "stress_testing",
			AssetClass:       "portfolio",
		}

		require.Equal(t, "portfolio_stress_testing_bear_high", DeriveContextKey(c))
	})

	t.Run("empty factors are skipped", func(t *testing.T) {
		require.Equal(t, "equity_high", DeriveContextKey(Context{AssetClass: "equity", VolatilityRegime: "high"}))
	})

	t.Run("no factors", func(t *testing.T) {
		require.Equal(t, "default", DeriveContextKey(Context{}))
	})

	t.Run("model key", func(t *testing.T) {
		require.Equal(t, "equity_risk_assessment_var", ModelKey(DeriveContextKey(riskContext), "var"))
	})
}

func TestApplicability(t *testing.T) {
	t.Run("filters by scenario and asset class substrings", func(t *testing.T) {
		c := Context{AssetClass: "fixed_income_gov", Scenario: "portfolio_review"}

		got := FilterApplicable([]string{"call", "var", "duration", "sharpe", "lcr"}, c)
		require.Equal(t, []string{"var", "duration", "sharpe"}, got)
	})

	t.Run("formulas without rules always apply", func(t *testing.T) {
		require.True(t, IsApplicable("monte_carlo", Context{}))
		require.False(t, IsApplicable("var", Context{}))
	})

	t.Run("default formula table", func(t *testing.T) {
		require.Equal(t, "duration", DefaultFormula(Context{AssetClass: "fixed_income", Scenario: "portfolio"}))
		require.Equal(t, "sharpe", DefaultFormula(Context{AssetClass: "crypto", Scenario: "portfolio"}))
		require.Equal(t, "call", DefaultFormula(Context{AssetClass: "derivatives"}))
		require.Equal(t, "var", DefaultFormula(Context{AssetClass: "crypto"}))
		require.Equal(t, "var", DefaultFormula(Context{}))
	})
}

func TestSelectFormula(t *testing.T) {
	ctx := context.Background()

	t.Run("single candidate shortcut", func(t *testing.T) {
		b, store := newTestBandit(t)

		require.Equal(t, "var", b.SelectFormula(ctx, riskContext, []string{"var"}))
		require.Zero(t, store.Len(), "no model should be created")
	})

	t.Run("no applicable candidates uses default", func(t *testing.T) {
		b, _ := newTestBandit(t)

		require.Equal(t, "duration", b.SelectFormula(ctx, Context{AssetClass: "fixed_income"}, []string{"call", "put"}))
		require.Equal(t, "var", b.SelectFormula(ctx, Context{}, nil))
	})

	t.Run("creates a model per candidate", func(t *testing.T) {
		b, store := newTestBandit(t)

		f := b.SelectFormula(ctx, riskContext, []string{"var", "es"})
		require.Contains(t, []string{"var", "es"}, f)

		_, ok := store.Get("equity_risk_assessment_var")
		require.True(t, ok)
		_, ok = store.Get("equity_risk_assessment_es")
		require.True(t, ok)
	})

	t.Run("converges to the better arm", func(t *testing.T) {
		b, _ := newTestBandit(t)
		key := DeriveContextKey(riskContext)

		for i := 0; i < 200; i++ {
			good, bad := 1.0, 0.0
			if i%20 == 0 {
				good, bad = 0.0, 1.0
			}

			b.UpdateModel(ctx, key, "var", good, nil)
			b.UpdateModel(ctx, key, "es", bad, nil)
		}

		picked := 0
		for i := 0; i < 1000; i++ {
			if b.SelectFormula(ctx, riskContext, []string{"var", "es"}) == "var" {
				picked++
			}
		}

		require.GreaterOrEqual(t, picked, 900)
	})

	t.Run("inactive arms are skipped", func(t *testing.T) {
		b, store := newTestBandit(t)
		inactive := false

		store.Save(ctx, ModelKey(DeriveContextKey(riskContext), "var"), storage.ModelPatch{IsActive: &inactive})

		for i := 0; i < 50; i++ {
			require.Equal(t, "es", b.SelectFormula(ctx, riskContext, []string{"var", "es"}))
		}

		store.Save(ctx, ModelKey(DeriveContextKey(riskContext), "es"), storage.ModelPatch{IsActive: &inactive})
		require.Equal(t, "var", b.SelectFormula(ctx, riskContext, []string{"var", "es"}), "all inactive uses default")
	})

	t.Run("errors fall back to default", func(t *testing.T) {
		store := panickingStore{storage.NewStore(logger.NewNop(), nil, nil)}
		b := New(logger.NewNop(), store, WithSeed(1))

		before := testutil.ToFloat64(SelectionFallbacksTotal.WithLabelValues("error"))

		require.NotPanics(t, func() {
			require.Equal(t, "var", b.SelectFormula(ctx, riskContext, []string{"var", "es"}))
		})
		require.Equal(t, before+1, testutil.ToFloat64(SelectionFallbacksTotal.WithLabelValues("error")))
	})

	t.Run("selection is audited", func(t *testing.T) {
		auditLog := memorystorage.New()
		b, _ := newTestBandit(t, WithAuditor(auditLog))

		f := b.SelectFormula(ctx, riskContext, []string{"var", "es"})

		entries := auditLog.AuditLog()
		require.Len(t, entries, 1)
		require.Equal(t, storage.AuditKindSelection, entries[0].Kind)
		require.Equal(t, f, entries[0].Formula)
		require.Equal(t, "equity_risk_assessment", entries[0].ContextKey)
		require.Contains(t, string(entries[0].Payload), `"samples"`)
	})
}

func TestUpdateModel(t *testing.T) {
	ctx := context.Background()

	t.Run("success raises alpha only", func(t *testing.T) {
		b, store := newTestBandit(t)
		before := store.GetOrCreate(ctx, "ctx_var")

		res := b.UpdateModel(ctx, "ctx", "var", 1.0, nil)

		require.True(t, res.Success)
		require.Equal(t, "ctx_var", res.Model)
		require.Greater(t, res.Alpha, before.Alpha)
		require.Equal(t, before.Beta, res.Beta)
		require.Equal(t, 1.0, res.SuccessRate)
	})

	t.Run("zero reward raises beta by one", func(t *testing.T) {
		b, _ := newTestBandit(t)

		res := b.UpdateModel(ctx, "ctx", "var", 0, nil)

		require.Equal(t, 1.0, res.Alpha)
		require.Equal(t, 2.0, res.Beta)
		require.Equal(t, 0.0, res.SuccessRate)
	})

	t.Run("fractional and negative rewards", func(t *testing.T) {
		b, store := newTestBandit(t)

		b.UpdateModel(ctx, "ctx", "es", 0.25, nil)
		b.UpdateModel(ctx, "ctx", "es", -0.5, nil)

		m, ok := store.Get("ctx_es")
		require.True(t, ok)
		require.Equal(t, 1.25, m.Alpha)
		require.Equal(t, 2.5, m.Beta)
		require.Equal(t, 1, m.SuccessCount)
		require.Equal(t, 2, m.TrialCount)
		require.Equal(t, -0.5, m.LastReward)
	})

	t.Run("non-finite reward counts as failure", func(t *testing.T) {
		b, _ := newTestBandit(t)

		res := b.UpdateModel(ctx, "ctx", "var", math.NaN(), nil)
		require.Equal(t, 2.0, res.Beta)
		require.False(t, math.IsNaN(res.Confidence))
	})

	t.Run("reward is audited with metadata", func(t *testing.T) {
		auditLog := memorystorage.New()
		b, _ := newTestBandit(t, WithAuditor(auditLog))

		b.UpdateModel(ctx, "ctx", "var", 1, map[string]interface{}{"request": "r-1"})

		entries := auditLog.AuditLog()
		require.Len(t, entries, 1)
		require.Equal(t, storage.AuditKindReward, entries[0].Kind)
		require.Contains(t, string(entries[0].Payload), `"request":"r-1"`)
	})
}

func TestDegradedMode(t *testing.T) {
	ctx := context.Background()

	store := storage.NewStore(logger.NewNop(), brokenRepository{}, nil)
	store.Initialize(ctx)

	b := New(logger.NewNop(), store, WithSeed(5), WithAuditor(brokenRepository{}))

	auditBefore := testutil.ToFloat64(AuditFailuresTotal)

	require.NotPanics(t, func() {
		f := b.SelectFormula(ctx, riskContext, []string{"var", "es"})
		require.Contains(t, []string{"var", "es"}, f)

		res := b.UpdateModel(ctx, DeriveContextKey(riskContext), f, 1, nil)
		require.True(t, res.Success)
		require.Equal(t, 2.0, res.Alpha)
		require.Equal(t, 1.0, res.SuccessRate)
	})

	require.Equal(t, auditBefore+2, testutil.ToFloat64(AuditFailuresTotal))
}

func TestConfidence(t *testing.T) {
	t.Run("more evidence means higher confidence", func(t *testing.T) {
		prior := CalculateConfidence(1, 1)

		require.InDelta(t, 1-2*math.Sqrt(1.0/12.0), prior, 1e-12)
		require.Greater(t, CalculateConfidence(1000, 1), prior)
		require.Greater(t, CalculateConfidence(50, 50), prior)
	})

	t.Run("credible interval", func(t *testing.T) {
		low, high := CredibleInterval(1, 1, 0.95)
		require.InDelta(t, 0.025, low, 1e-6)
		require.InDelta(t, 0.975, high, 1e-6)

		low, high = CredibleInterval(200, 20, 0)
		require.Less(t, low, 200.0/220.0)
		require.Greater(t, high, 200.0/220.0)
		require.Less(t, high-low, 0.1)
	})
}

func TestRankings(t *testing.T) {
	ctx := context.Background()
	b, store := newTestBandit(t)

	record := func(formula string, successes, failures int) {
		for i := 0; i < successes; i++ {
			b.UpdateModel(ctx, "equity", formula, 1, nil)
		}
		for i := 0; i < failures; i++ {
			b.UpdateModel(ctx, "equity", formula, 0, nil)
		}
	}

	record("var", 8, 4)
	record("es", 10, 1)
	record("sharpe", 3, 0)
	store.GetOrCreate(ctx, "equity_call")

	t.Run("stats sorted by trials", func(t *testing.T) {
		stats := b.GetModelStats()

		require.Len(t, stats, 4)
		require.Equal(t, "equity_var", stats[0].Model)
		require.Equal(t, 12, stats[0].Trials)
		require.Equal(t, "equity_es", stats[1].Model)
		require.Equal(t, "equity_sharpe", stats[2].Model)
		require.Equal(t, "equity_call", stats[3].Model)
		require.Zero(t, stats[3].SuccessRate)
		require.Less(t, stats[0].CredibleLow, stats[0].CredibleHigh)
	})

	t.Run("best models need enough trials", func(t *testing.T) {
		best := b.GetBestModels(0, 0)

		require.Len(t, best, 2)
		require.Equal(t, "equity_es", best[0].ModelKey)
		require.Equal(t, "equity_var", best[1].ModelKey)
	})

	t.Run("best models honour limit and min trials", func(t *testing.T) {
		best := b.GetBestModels(3, 1)

		require.Len(t, best, 1)
		require.Equal(t, "equity_sharpe", best[0].ModelKey)
	})
}

func TestRunABTest(t *testing.T) {
	ctx := context.Background()

	t.Run("uniform rewards", func(t *testing.T) {
		b, store := newTestBandit(t)

		res := b.RunABTest(ctx, "equity", "var", "es", 0)

		require.Equal(t, DefaultABTrials, res.FormulaA.Trials+res.FormulaB.Trials)
		require.Len(t, res.Timeline, DefaultABTrials)
		require.Equal(t, 100, res.Timeline[99].Trial)

		a, _ := store.Get("equity_var")
		es, _ := store.Get("equity_es")
		require.Equal(t, res.FormulaA.Trials, a.TrialCount)
		require.Equal(t, res.FormulaB.Trials, es.TrialCount)
	})

	t.Run("synthetic reward drives win rates", func(t *testing.T) {
		b, _ := newTestBandit(t, WithSyntheticReward(func(formula string, _ float64) float64 {
			if formula == "var" {
				return 1
			}

			return 0
		}))

		res := b.RunABTest(ctx, "equity", "var", "es", 400)

		require.Equal(t, res.FormulaA.Trials, res.FormulaA.Wins)
		require.Zero(t, res.FormulaB.Wins)
		require.Equal(t, 1.0, res.Timeline[len(res.Timeline)-1].CumulativeA)
		require.Zero(t, res.Timeline[len(res.Timeline)-1].CumulativeB)
	})

	t.Run("stops on cancelled context", func(t *testing.T) {
		b, _ := newTestBandit(t)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		res := b.RunABTest(cctx, "equity", "var", "es", 10)
		require.Empty(t, res.Timeline)
	})
}
