package app

import (
	"context"
	"testing"

	"github.com/Fuchsoria/formula-bandit/internal/bandit"
	"github.com/Fuchsoria/formula-bandit/internal/logger"
	"github.com/Fuchsoria/formula-bandit/internal/storage"
	memorystorage "github.com/Fuchsoria/formula-bandit/internal/storage/memory"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) (*App, *memorystorage.Storage) {
	t.Helper()

	logg := logger.NewNop()
	repo := memorystorage.New()
	store := storage.NewStore(logg, repo, nil)
	engine := bandit.New(logg, store, bandit.WithSeed(3), bandit.WithAuditor(repo))

	a := New(logg, store, engine)
	a.Initialize(context.Background())

	return a, repo
}

func TestApp(t *testing.T) {
	ctx := context.Background()
	c := bandit.Context{AssetClass: "derivatives", Scenario: "hedging_strategy"}

	t.Run("select then reward", func(t *testing.T) {
		a, repo := newTestApp(t)

		f := a.SelectFormula(ctx, c, []string{"call", "put", "duration"})
		require.Contains(t, []string{"call", "put"}, f)

		res := a.UpdateModel(ctx, bandit.DeriveContextKey(c), f, 1, map[string]interface{}{"source": "test"})
		require.True(t, res.Success)
		require.Equal(t, "derivatives_hedging_strategy_"+f, res.Model)

		persisted, err := repo.LoadAllModels(ctx)
		require.NoError(t, err)
		require.Len(t, persisted, 2)
		require.Len(t, repo.AuditLog(), 2)
	})

	t.Run("stats and best models", func(t *testing.T) {
		a, _ := newTestApp(t)

		a.RunABTest(ctx, "derivatives", "call", "put", 60)

		stats := a.GetModelStats()
		require.Len(t, stats, 2)
		require.GreaterOrEqual(t, stats[0].Trials, stats[1].Trials)
		require.Equal(t, 60, stats[0].Trials+stats[1].Trials)

		require.NotEmpty(t, a.GetBestModels(10, 5))
	})

	t.Run("disable model", func(t *testing.T) {
		a, _ := newTestApp(t)

		_, ok := a.SetModelActive(ctx, "missing_model", false)
		require.False(t, ok)

		a.UpdateModel(ctx, "derivatives", "call", 1, nil)

		m, ok := a.SetModelActive(ctx, "derivatives_call", false)
		require.True(t, ok)
		require.False(t, m.IsActive)
		require.Equal(t, 2.0, m.Alpha)
	})
}
