package app

import (
	"context"

	"github.com/Fuchsoria/formula-bandit/internal/bandit"
	"github.com/Fuchsoria/formula-bandit/internal/storage"
	"go.uber.org/zap"
)

type App struct {
	logger Logger
	store  Store
	bandit Bandit
}

type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	GetInstance() *zap.Logger
}

type Store interface {
	Initialize(ctx context.Context)
	Save(ctx context.Context, key string, patch storage.ModelPatch) storage.BanditModel
	Get(key string) (storage.BanditModel, bool)
}

type Bandit interface {
	SelectFormula(ctx context.Context, c bandit.Context, candidates []string) string
	UpdateModel(ctx context.Context, contextKey string, formula string, reward float64, metadata map[string]interface{}) bandit.UpdateResult
	GetModelStats() []bandit.ModelStats
	GetBestModels(minTrials int, limit int) []storage.BanditModel
	RunABTest(ctx context.Context, contextKey string, formulaA string, formulaB string, trials int) bandit.ABTestResult
}

func New(logger Logger, store Store, bandit Bandit) *App {
	return &App{logger, store, bandit}
}

func (a *App) GetLogger() Logger {
	return a.logger
}

// Initialize loads persisted models; it degrades to in-memory defaults.
func (a *App) Initialize(ctx context.Context) {
	a.store.Initialize(ctx)
}

func (a *App) SelectFormula(ctx context.Context, c bandit.Context, availableFormulas []string) string {
	return a.bandit.SelectFormula(ctx, c, availableFormulas)
}

func (a *App) UpdateModel(
	ctx context.Context,
	contextKey string,
	formula string,
	reward float64,
	metadata map[string]interface{},
) bandit.UpdateResult {
	return a.bandit.UpdateModel(ctx, contextKey, formula, reward, metadata)
}

func (a *App) GetModelStats() []bandit.ModelStats {
	return a.bandit.GetModelStats()
}

func (a *App) GetBestModels(minTrials int, limit int) []storage.BanditModel {
	return a.bandit.GetBestModels(minTrials, limit)
}

func (a *App) RunABTest(ctx context.Context, contextKey string, formulaA string, formulaB string, trials int) bandit.ABTestResult {
	return a.bandit.RunABTest(ctx, contextKey, formulaA, formulaB, trials)
}

// SetModelActive enables or disables an arm for selection.
func (a *App) SetModelActive(ctx context.Context, modelKey string, active bool) (storage.BanditModel, bool) {
	if _, ok := a.store.Get(modelKey); !ok {
		return storage.BanditModel{}, false
	}

	a.logger.Info("changing model state", "model", modelKey, "active", active)

	return a.store.Save(ctx, modelKey, storage.ModelPatch{IsActive: &active}), true
}
