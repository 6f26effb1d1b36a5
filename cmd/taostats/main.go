package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"taostats"
	"taostats/internal/chain"
	"taostats/internal/config"
	"taostats/internal/metrics"
	"taostats/internal/storage"
	"taostats/internal/storage/postgres"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "taostats",
		Short:        "Bittensor staking and transfer client backed by taostats",
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "config file path")
	pf.String("rpc-url", "", "chain RPC URL (ws, wss, http or https)")
	pf.String("api-key", "", "taostats API key")
	pf.String("base-url", "https://api.taostats.io", "taostats API base URL")
	pf.String("key-scheme", "sr25519", "key scheme (sr25519, ed25519)")
	pf.Duration("timeout", 30*time.Second, "REST request timeout")
	pf.Int("retries", 3, "REST retries on 5xx and transport errors")
	pf.Int("block-cache-size", chain.DefaultBlockViewCapacity, "cached per-block chain views")
	pf.Duration("confirm-timeout", 2*time.Minute, "maximum wait for finalization")
	pf.Duration("poll-interval", 2*time.Second, "finalization poll interval")
	pf.String("journal", "./data/outcomes.jsonl", "outcome journal JSONL path (empty disables)")
	pf.String("pg-dsn", "", "Postgres DSN for outcomes and pool snapshots")
	pf.String("metrics-addr", "", "serve Prometheus metrics on this address")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(newStakeCmd(), newUnstakeCmd(), newTransferCmd(), newMoveCmd(), newPoolsCmd(), newAPICmd(), newHealthCmd())
	return root
}

// env is what every subcommand runs against.
type env struct {
	ctx     context.Context
	cfg     config.Config
	logger  *zap.Logger
	client  *taostats.Client
	journal storage.Journal
	closers []func()
}

func (e *env) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

func setup(cmd *cobra.Command) (*env, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	e := &env{ctx: ctx, cfg: cfg, logger: logger}
	e.closers = append(e.closers, func() { _ = logger.Sync() }, stop)

	var m *metrics.Metrics
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		m = metrics.New(reg)
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: metrics.Handler(reg), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
		e.closers = append(e.closers, func() { _ = srv.Close() })
	}

	var journals storage.Multi
	if cfg.Journal != "" {
		journals = append(journals, storage.NewJsonlJournal(cfg.Journal))
	}
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			e.close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		e.closers = append(e.closers, store.Close)
		if err := store.Migrate(ctx); err != nil {
			e.close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		journals = append(journals, store)
	}

	opts := []taostats.Option{taostats.WithLogger(logger), taostats.WithMetrics(m)}
	if len(journals) > 0 {
		e.journal = journals
		opts = append(opts, taostats.WithRecorder(journals))
	}

	client, err := taostats.New(cfg, opts...)
	if err != nil {
		e.close()
		return nil, err
	}
	e.client = client
	e.closers = append(e.closers, client.Close)

	logger.Debug("client ready",
		zap.String("rpc", client.Chain().URL()),
		zap.String("journal", cfg.Journal),
		zap.Bool("postgres", cfg.PGDSN != ""),
		zap.String("metrics_addr", cfg.MetricsAddr),
	)
	return e, nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printOutcome prints out and exits non-zero when it failed.
func printOutcome(cmd *cobra.Command, out taostats.Outcome, err error) error {
	if err != nil {
		return err
	}
	if perr := printJSON(cmd, out); perr != nil {
		return perr
	}
	if !out.Success {
		return fmt.Errorf("%s failed: %s", out.Operation, out.Error)
	}
	return nil
}

func runWith(fn func(cmd *cobra.Command, e *env, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd)
		if err != nil {
			return err
		}
		defer e.close()
		return fn(cmd, e, args)
	}
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the chain connection and the REST API",
		RunE: runWith(func(cmd *cobra.Command, e *env, _ []string) error {
			return printJSON(cmd, e.client.Health(e.ctx))
		}),
	}
}
