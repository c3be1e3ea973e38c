package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"swapMonitor/internal/model"
	"swapMonitor/internal/storage"
)

// Store provides Postgres persistence for swap logs and cursor state.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrStorage, err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// EnsureSchema creates the swap and state tables if they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS logs (
			tx_hash TEXT NOT NULL,
			sender_address TEXT NOT NULL,
			receiver_address TEXT NOT NULL,
			amount0 TEXT NOT NULL,
			amount1 TEXT NOT NULL,
			sqrt_price TEXT NOT NULL,
			liquidity TEXT NOT NULL,
			tick INTEGER NOT NULL,
			block_number BIGINT NOT NULL,
			log_index BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (tx_hash, log_index)
		);
		CREATE TABLE IF NOT EXISTS indexer_state (
			name TEXT PRIMARY KEY,
			last_processed_block BIGINT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`)
	if err != nil {
		return fmt.Errorf("%w: ensure schema: %w", storage.ErrStorage, err)
	}
	return nil
}

// InsertIfAbsent inserts a swap unless its (tx_hash, log_index) is already stored.
func (s *Store) InsertIfAbsent(ctx context.Context, event model.SwapEvent) (storage.InsertOutcome, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO logs (
			tx_hash, sender_address, receiver_address, amount0, amount1,
			sqrt_price, liquidity, tick, block_number, log_index
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (tx_hash, log_index) DO NOTHING
	`,
		event.TxHash,
		event.Sender,
		event.Receiver,
		event.Amount0,
		event.Amount1,
		event.SqrtPrice,
		event.Liquidity,
		event.Tick,
		int64(event.BlockNumber),
		int64(event.LogIndex),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: insert swap %s: %w", storage.ErrStorage, event.Key(), err)
	}
	if tag.RowsAffected() == 0 {
		return storage.AlreadyPresent, nil
	}
	return storage.Inserted, nil
}

// LoadState returns last_processed_block for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var block int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_block FROM indexer_state WHERE name=$1`, name)
	if err := row.Scan(&block); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("%w: load state: %w", storage.ErrStorage, err)
	}
	return uint64(block), true, nil
}

// SaveState upserts last_processed_block for a name.
func (s *Store) SaveState(ctx context.Context, name string, block uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO indexer_state (name, last_processed_block, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_block = EXCLUDED.last_processed_block, updated_at = now()
	`, name, int64(block))
	if err != nil {
		return fmt.Errorf("%w: save state: %w", storage.ErrStorage, err)
	}
	return nil
}

// Count returns the number of stored swaps.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM logs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count swaps: %w", storage.ErrStorage, err)
	}
	return n, nil
}
