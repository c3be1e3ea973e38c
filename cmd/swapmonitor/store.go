package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"swapMonitor/internal/config"
	"swapMonitor/internal/indexer"
	"swapMonitor/internal/storage"
	"swapMonitor/internal/storage/postgres"
	"swapMonitor/internal/storage/sqlite"
)

// openStore opens the configured event store and the matching cursor store.
// Postgres keeps the cursor in its state table, SQLite in a checkpoint file.
func openStore(ctx context.Context, cfg config.Config, addresses []common.Address) (storage.EventStore, indexer.CursorStore, error) {
	switch cfg.Store {
	case config.StorePostgres:
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		if !cfg.CheckpointEnabled {
			return store, nil, nil
		}
		return store, &indexer.DBStateStore{Backend: store, Name: checkpointName(addresses)}, nil
	default:
		store, err := sqlite.Open(ctx, cfg.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		if !cfg.CheckpointEnabled {
			return store, nil, nil
		}
		return store, indexer.NewCheckpointStore(cfg.Checkpoint, checkpointName(addresses), true), nil
	}
}

func runSchema(cmd *cobra.Command, _ []string) error {
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

	if err := cfg.ValidateStore(); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	store, _, err := openStore(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		logger.Error("schema bootstrap failed", zap.Error(err))
		return err
	}
	logger.Info("schema ready", zap.String("store", cfg.Store))
	return nil
}
