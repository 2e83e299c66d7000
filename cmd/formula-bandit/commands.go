package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	simpleconsumer "github.com/Fuchsoria/formula-bandit/internal/amqp/consumer"
	"github.com/Fuchsoria/formula-bandit/internal/bandit"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var errNoAMQP = errors.New("worker requires a reachable amqp broker, set amqp.enabled and amqp.uri")

func addContextFlags(cmd *cobra.Command, c *bandit.Context) {
	cmd.Flags().StringVar(&c.AssetClass, "asset-class", "", "asset class, e.g. equity")
	cmd.Flags().StringVar(&c.Scenario, "scenario", "", "scenario, e.g. risk_assessment")
	cmd.Flags().StringVar(&c.MarketCondition, "market-condition", "", "market condition, e.g. bull")
	cmd.Flags().StringVar(&c.VolatilityRegime, "volatility-regime", "", "volatility regime, e.g. high")
}

func newSelectCmd() *cobra.Command {
	var (
		c        bandit.Context
		formulas []string
	)

	cmd := &cobra.Command{
		Use:   "select",
		Short: "Pick a formula for a decision context",
		RunE: func(cmd *cobra.Command, args []string) error {
			d := initDeps(cmd.Context(), config)
			defer d.Close()

			formula := d.app.SelectFormula(cmd.Context(), c, formulas)

			return printJSON(cmd.OutOrStdout(), map[string]string{
				"context_key": bandit.DeriveContextKey(c),
				"formula":     formula,
			})
		},
	}

	addContextFlags(cmd, &c)
	cmd.Flags().StringSliceVar(&formulas, "formula", nil, "candidate formula, repeatable")

	return cmd
}

func newUpdateCmd() *cobra.Command {
	var (
		c          bandit.Context
		contextKey string
		formula    string
		reward     float64
		metadata   map[string]string
	)

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Record the reward observed for a formula",
		RunE: func(cmd *cobra.Command, args []string) error {
			if contextKey == "" {
				contextKey = bandit.DeriveContextKey(c)
			}

			meta := make(map[string]interface{}, len(metadata))
			for k, v := range metadata {
				meta[k] = v
			}

			d := initDeps(cmd.Context(), config)
			defer d.Close()

			return printJSON(cmd.OutOrStdout(), d.app.UpdateModel(cmd.Context(), contextKey, formula, reward, meta))
		},
	}

	addContextFlags(cmd, &c)
	cmd.Flags().StringVar(&contextKey, "context", "", "context key, derived from the factor flags when empty")
	cmd.Flags().StringVar(&formula, "formula", "", "formula that produced the outcome")
	cmd.Flags().Float64Var(&reward, "reward", 0, "observed reward in [0,1]")
	cmd.Flags().StringToStringVar(&metadata, "metadata", nil, "extra key=value pairs stored with the audit entry")
	_ = cmd.MarkFlagRequired("formula")
	_ = cmd.MarkFlagRequired("reward")

	return cmd
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Report every model, most tried first",
		RunE: func(cmd *cobra.Command, args []string) error {
			d := initDeps(cmd.Context(), config)
			defer d.Close()

			return printJSON(cmd.OutOrStdout(), d.app.GetModelStats())
		},
	}
}

func newBestCmd() *cobra.Command {
	var minTrials, limit int

	cmd := &cobra.Command{
		Use:   "best",
		Short: "List the highest success rate models",
		RunE: func(cmd *cobra.Command, args []string) error {
			d := initDeps(cmd.Context(), config)
			defer d.Close()

			return printJSON(cmd.OutOrStdout(), d.app.GetBestModels(minTrials, limit))
		},
	}

	cmd.Flags().IntVar(&minTrials, "min-trials", bandit.DefaultMinTrials, "minimum trials for a model to qualify")
	cmd.Flags().IntVar(&limit, "limit", bandit.DefaultBestLimit, "maximum number of models")

	return cmd
}

func newABTestCmd() *cobra.Command {
	var (
		contextKey string
		formulaA   string
		formulaB   string
		trials     int
	)

	cmd := &cobra.Command{
		Use:   "abtest",
		Short: "Simulate an A/B test between two formulas",
		RunE: func(cmd *cobra.Command, args []string) error {
			d := initDeps(cmd.Context(), config)
			defer d.Close()

			return printJSON(cmd.OutOrStdout(), d.app.RunABTest(cmd.Context(), contextKey, formulaA, formulaB, trials))
		},
	}

	cmd.Flags().StringVar(&contextKey, "context", bandit.DefaultContextKey, "context key")
	cmd.Flags().StringVar(&formulaA, "a", "", "first formula")
	cmd.Flags().StringVar(&formulaB, "b", "", "second formula")
	cmd.Flags().IntVar(&trials, "trials", bandit.DefaultABTrials, "number of simulated trials")
	_ = cmd.MarkFlagRequired("a")
	_ = cmd.MarkFlagRequired("b")

	return cmd
}

func newActivateCmd() *cobra.Command {
	var disable bool

	cmd := &cobra.Command{
		Use:   "activate MODEL_KEY",
		Short: "Enable or disable a model for selection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := initDeps(cmd.Context(), config)
			defer d.Close()

			m, ok := d.app.SetModelActive(cmd.Context(), args[0], !disable)
			if !ok {
				return fmt.Errorf("unknown model %s", args[0])
			}

			return printJSON(cmd.OutOrStdout(), m)
		},
	}

	cmd.Flags().BoolVar(&disable, "disable", false, "disable instead of enable")

	return cmd
}

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Apply rewards from the reward queue until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			d := initDeps(ctx, config)
			defer d.Close()

			if d.conn == nil {
				return errNoAMQP
			}

			var metricsServer *http.Server
			if config.Metrics.Addr != "" {
				metricsServer = startMetrics(d, config.Metrics.Addr, cancel)
			}

			go func() {
				signals := make(chan os.Signal, 1)
				signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

				select {
				case <-ctx.Done():
					return
				case <-signals:
				}

				signal.Stop(signals)
				cancel()

				if metricsServer == nil {
					return
				}

				ctx, cancel := context.WithTimeout(context.Background(), time.Second*3)
				defer cancel()

				if err := metricsServer.Shutdown(ctx); err != nil {
					d.logg.Error("failed to stop metrics server: " + err.Error())
				}
			}()

			d.logg.Info("formula bandit worker is running...", "queue", config.AMQP.RewardQueue)

			consumer := simpleconsumer.New(config.AMQP.RewardQueue, d.conn, d.logg, d.app)
			if err := consumer.Run(ctx); err != nil {
				d.logg.Error("reward consumer stopped: " + err.Error())

				return err
			}

			return nil
		},
	}
}

func startMetrics(d *deps, addr string, cancel context.CancelFunc) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logg.Error("failed to start metrics server: " + err.Error())
			cancel()
		}
	}()

	return server
}
