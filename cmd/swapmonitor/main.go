package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"swapMonitor/internal/chain"
	"swapMonitor/internal/config"
	"swapMonitor/internal/dex"
	"swapMonitor/internal/indexer"
	"swapMonitor/internal/storage"
)

func main() {
	root := &cobra.Command{
		Use:          "swapmonitor",
		Short:        "Uniswap V3 Swap event monitor",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Poll the pool for Swap events and store them",
		RunE:  runMonitor,
	}

	runCmd.Flags().String("rpc", "", "Ethereum RPC URL (http, https, ws or wss)")
	runCmd.Flags().StringSlice("address", nil, "pool addresses (comma-separated)")
	runCmd.Flags().Uint64("from", 0, "first block to scan, 0 means latest at boot")
	runCmd.Flags().Duration("poll-interval", 12*time.Second, "wait between polls once caught up")
	runCmd.Flags().Uint64("max-window", 2000, "maximum blocks per log query")
	runCmd.Flags().Uint64("confirmations", 0, "blocks to stay behind the head")
	runCmd.Flags().Duration("retry-backoff", time.Second, "wait after a failed cycle")
	runCmd.Flags().Duration("rate-limit-backoff", 5*time.Second, "initial wait after a rate limit")
	runCmd.Flags().Duration("max-backoff", 2*time.Minute, "upper bound for rate limit backoff")
	runCmd.Flags().Int("decode-workers", 1, "parallel decoders per batch")
	runCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path (sqlite store)")
	runCmd.Flags().Bool("checkpoint-enabled", true, "persist the cursor between runs")
	runCmd.Flags().String("errors-out", "", "optional JSONL file for malformed Swap logs")
	runCmd.Flags().String("metrics-addr", "", "optional listen address for /metrics")
	addStoreFlags(runCmd.Flags())

	root.AddCommand(runCmd)

	schemaCmd := &cobra.Command{
		Use:   "schema",
		Short: "Create the swap tables if they are missing",
		RunE:  runSchema,
	}
	addStoreFlags(schemaCmd.Flags())

	root.AddCommand(schemaCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addStoreFlags(flags *pflag.FlagSet) {
	flags.String("store", config.StoreSQLite, "event store (sqlite or postgres)")
	flags.String("db-path", "./data/swaps.db", "SQLite database path")
	flags.String("pg-dsn", "", "Postgres DSN")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		return err
	}

	addresses, err := cfg.PoolAddresses()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL, chain.Options{MaxWindow: cfg.MaxWindow})
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	store, checkpoint, err := openStore(ctx, cfg, addresses)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		logger.Error("schema bootstrap failed", zap.Error(err))
		return err
	}

	decoder, err := dex.NewSwapDecoder()
	if err != nil {
		return err
	}

	runCfg := indexer.RunConfig{
		Addresses:        addresses,
		Topic0:           []common.Hash{dex.SwapTopic},
		StartBlock:       cfg.FromBlock,
		MaxWindow:        cfg.MaxWindow,
		Confirmations:    cfg.Confirmations,
		PollInterval:     cfg.PollInterval,
		RetryBackoff:     cfg.RetryBackoff,
		RateLimitBackoff: cfg.RateLimitBackoff,
		MaxBackoff:       cfg.MaxBackoff,
		DecodeWorkers:    cfg.DecodeWorkers,
		Checkpoint:       checkpoint,
		Reporter:         indexer.NewConsoleReporter(os.Stdout),
	}
	if cfg.ErrorsOut != "" {
		runCfg.ErrorSink = storage.NewJsonlErrorSink(cfg.ErrorsOut)
	}

	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	logger.Info("monitor start",
		zap.String("rpc", cfg.RPCURL),
		zap.Strings("addresses", cfg.Addresses),
		zap.String("store", cfg.Store),
		zap.Uint64("from", cfg.FromBlock),
		zap.Uint64("max_window", cfg.MaxWindow),
		zap.Uint64("confirmations", cfg.Confirmations),
		zap.Duration("poll_interval", cfg.PollInterval),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
	)

	loop := indexer.NewLoop(runCfg, chainClient, decoder, store, logger)
	if err := loop.Run(ctx); err != nil {
		logger.Error("monitor stopped", zap.Error(err))
		return err
	}
	return nil
}

func serveMetrics(addr string, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server failed", zap.Error(err))
		}
	}()
	logger.Info("metrics listening", zap.String("addr", addr))
	return srv
}

func checkpointName(addresses []common.Address) string {
	parts := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		parts = append(parts, strings.ToLower(addr.Hex()))
	}
	return "swaps:" + strings.Join(parts, ",")
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
