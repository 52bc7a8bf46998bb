package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"curveSwap/internal/chain"
	"curveSwap/internal/config"
	"curveSwap/internal/market"
	"curveSwap/internal/observability"
	"curveSwap/internal/storage"
	"curveSwap/internal/storage/memory"
	"curveSwap/internal/storage/postgres"
)

func main() {
	root := &cobra.Command{
		Use:          "curveswap",
		Short:        "NFT bonding-curve exchange",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("store", config.StoreMemory, "pool store (memory, postgres)")
	root.PersistentFlags().String("pg-dsn", "", "Postgres DSN")
	root.PersistentFlags().String("journal", "", "swap journal JSONL path (empty disables)")
	root.PersistentFlags().String("rpc", "", "EVM RPC URL for royalty and ownership reads")
	root.PersistentFlags().Bool("chain-royalties", false, "read ERC-2981 royalties from collection contracts")
	root.PersistentFlags().Bool("verify-ownership", false, "check ERC-721 ownership before deposits and sales")
	root.PersistentFlags().Int("max-retries", 5, "maximum retry attempts for RPC calls")
	root.PersistentFlags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	root.PersistentFlags().String("denom", "ustars", "default token denomination")
	root.PersistentFlags().String("trading-fee-percent", "0.02", "protocol fee burned on every trade, as a fraction")
	root.PersistentFlags().String("listing-fee", "0", "fee burned on pool creation")
	root.PersistentFlags().String("fair-burn-recipient", "", "address receiving burned fees")
	root.PersistentFlags().String("custody", "", "address holding pool tokens and items")

	root.AddCommand(newQuotesCmd(), newPoolsCmd(), newBestCmd(), newSimulateCmd(), newMigrateCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	return config.Load(cfgFile, cmd.Flags())
}

// app is the wired service of one command run.
type app struct {
	cfg     config.Config
	logger  *zap.Logger
	service *market.Service
	store   storage.Store
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	_ = a.logger.Sync()
}

func openApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}

	switch cfg.Store {
	case config.StorePostgres:
		store, err := postgres.NewStore(ctx, cfg.PgDSN)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		a.store = store
	default:
		a.store = memory.NewStore()
	}

	metrics, err := observability.New(prometheus.NewRegistry())
	if err != nil {
		a.Close()
		return nil, err
	}

	opts := market.Options{
		Store:   a.store,
		Params:  market.StaticParams(cfg.Params),
		Logger:  logger,
		Metrics: metrics,
	}
	var royalties market.FallbackRoyalties
	if len(cfg.Royalties) > 0 {
		royalties = append(royalties, market.StaticRoyalties(cfg.Royalties))
	}
	if cfg.NeedsChain() {
		client, err := chain.NewClient(ctx, cfg.RPCURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect rpc: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		chainID, err := client.ChainID(ctx)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("chain id: %w", err)
		}
		logger.Info("rpc connected", zap.String("chain_id", chainID.String()))

		retry := chain.RetryPolicy{MaxRetries: cfg.MaxRetries, BaseDelay: cfg.RetryBackoff}
		if cfg.ChainRoyalties {
			royalties = append(royalties, chain.NewRoyaltyLookup(client, retry, logger))
		}
		if cfg.VerifyOwnership {
			opts.Ownership = chain.NewOwnershipVerifier(client, retry, logger)
		}
	}
	if len(royalties) > 0 {
		opts.Royalties = royalties
	}
	if cfg.Journal != "" {
		opts.Journal = storage.NewJsonlJournal(cfg.Journal)
	}

	a.service, err = market.NewService(opts)
	if err != nil {
		a.Close()
		return nil, err
	}
	logger.Debug("service ready",
		zap.String("store", cfg.Store),
		zap.Bool("chain_royalties", cfg.ChainRoyalties),
		zap.Bool("verify_ownership", cfg.VerifyOwnership),
		zap.String("journal", cfg.Journal),
	)
	return a, nil
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Store != config.StorePostgres {
				return fmt.Errorf("migrate needs --store=postgres")
			}
			logger, err := newLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, err := postgres.NewStore(ctx, cfg.PgDSN)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Migrate(ctx); err != nil {
				return err
			}
			logger.Info("schema applied")
			return nil
		},
	}
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
