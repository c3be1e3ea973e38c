package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"swapMonitor/internal/model"
	"swapMonitor/internal/storage"
)

const (
	// DefaultTable is the swap log table name.
	DefaultTable = "logs"

	busyTimeoutMillis = 5000
)

var swapColumns = []string{
	"tx_hash",
	"sender_address",
	"receiver_address",
	"amount0",
	"amount1",
	"sqrt_price",
	"liquidity",
	"tick",
	"block_number",
	"log_index",
}

// Store is a file-backed EventStore. All writes go through one connection.
type Store struct {
	db    *sqlx.DB
	table string
}

type swapRow struct {
	TxHash          string `db:"tx_hash"`
	SenderAddress   string `db:"sender_address"`
	ReceiverAddress string `db:"receiver_address"`
	Amount0         string `db:"amount0"`
	Amount1         string `db:"amount1"`
	SqrtPrice       string `db:"sqrt_price"`
	Liquidity       string `db:"liquidity"`
	Tick            int32  `db:"tick"`
	BlockNumber     uint64 `db:"block_number"`
	LogIndex        uint64 `db:"log_index"`
}

// Open opens (creating if needed) the database file at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("db path is required")
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create db dir: %w", storage.ErrStorage, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", path, busyTimeoutMillis)
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", storage.ErrStorage, path, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping %s: %w", storage.ErrStorage, path, err)
	}

	return &Store{db: db, table: DefaultTable}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// EnsureSchema creates the logs table and its identity index. Tables created
// by older versions without position columns are extended in place.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			tx_hash TEXT,
			sender_address TEXT,
			receiver_address TEXT,
			amount0 TEXT,
			amount1 TEXT,
			sqrt_price TEXT,
			liquidity TEXT,
			tick INTEGER,
			block_number INTEGER NOT NULL DEFAULT 0,
			log_index INTEGER NOT NULL DEFAULT 0
		)`, s.table))
	if err != nil {
		return fmt.Errorf("%w: create table: %w", storage.ErrStorage, err)
	}

	if err := s.ensurePositionColumns(ctx); err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, fmt.Sprintf(
		`CREATE UNIQUE INDEX IF NOT EXISTS %[1]s_tx_hash_log_index_key ON %[1]s (tx_hash, log_index)`, s.table))
	if err != nil {
		return fmt.Errorf("%w: create identity index on (tx_hash, log_index), table %s holds duplicate rows: %w",
			storage.ErrStorage, s.table, err)
	}
	return nil
}

func (s *Store) ensurePositionColumns(ctx context.Context) error {
	var columns []struct {
		CID        int     `db:"cid"`
		Name       string  `db:"name"`
		Type       string  `db:"type"`
		NotNull    int     `db:"notnull"`
		Default    *string `db:"dflt_value"`
		PrimaryKey int     `db:"pk"`
	}
	if err := s.db.SelectContext(ctx, &columns, fmt.Sprintf("PRAGMA table_info(%s)", s.table)); err != nil {
		return fmt.Errorf("%w: inspect table: %w", storage.ErrStorage, err)
	}

	present := make(map[string]bool, len(columns))
	for _, column := range columns {
		present[column.Name] = true
	}
	for _, name := range []string{"block_number", "log_index"} {
		if present[name] {
			continue
		}
		_, err := s.db.ExecContext(ctx, fmt.Sprintf(
			"ALTER TABLE %s ADD COLUMN %s INTEGER NOT NULL DEFAULT 0", s.table, name))
		if err != nil {
			return fmt.Errorf("%w: add column %s: %w", storage.ErrStorage, name, err)
		}
	}

	if !present["log_index"] {
		return s.numberLegacyRows(ctx)
	}
	return nil
}

// numberLegacyRows gives rows that predate the log_index column distinct
// positions within their transaction, in insertion order, so the identity
// index can be built over them.
func (s *Store) numberLegacyRows(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %[1]s SET log_index = (
			SELECT COUNT(*) FROM %[1]s AS prior
			WHERE prior.tx_hash = %[1]s.tx_hash AND prior.rowid < %[1]s.rowid
		)`, s.table))
	if err != nil {
		return fmt.Errorf("%w: number legacy rows: %w", storage.ErrStorage, err)
	}
	return nil
}

// InsertIfAbsent writes event unless a row with the same tx hash and log index exists.
func (s *Store) InsertIfAbsent(ctx context.Context, event model.SwapEvent) (storage.InsertOutcome, error) {
	q, args, err := sq.Insert(s.table).
		Columns(swapColumns...).
		Values(
			event.TxHash,
			event.Sender,
			event.Receiver,
			event.Amount0,
			event.Amount1,
			event.SqrtPrice,
			event.Liquidity,
			event.Tick,
			event.BlockNumber,
			event.LogIndex,
		).
		Suffix("ON CONFLICT (tx_hash, log_index) DO NOTHING").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("can't build query: %w", err)
	}

	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("%w: insert swap %s: %w", storage.ErrStorage, event.Key(), err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: rows affected: %w", storage.ErrStorage, err)
	}
	if affected == 0 {
		return storage.AlreadyPresent, nil
	}
	return storage.Inserted, nil
}

// Events returns every stored swap in block and log order.
func (s *Store) Events(ctx context.Context) ([]model.SwapEvent, error) {
	q, args, err := sq.Select(swapColumns...).
		From(s.table).
		OrderBy("block_number", "log_index").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}

	rows := make([]swapRow, 0, 16)
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("%w: select swaps: %w", storage.ErrStorage, err)
	}

	events := make([]model.SwapEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, model.SwapEvent{
			BlockNumber: row.BlockNumber,
			LogIndex:    row.LogIndex,
			TxHash:      row.TxHash,
			Sender:      row.SenderAddress,
			Receiver:    row.ReceiverAddress,
			Amount0:     row.Amount0,
			Amount1:     row.Amount1,
			SqrtPrice:   row.SqrtPrice,
			Liquidity:   row.Liquidity,
			Tick:        row.Tick,
		})
	}
	return events, nil
}

// Count returns the number of stored swaps.
func (s *Store) Count(ctx context.Context) (int, error) {
	q, args, err := sq.Select("COUNT(*)").From(s.table).ToSql()
	if err != nil {
		return 0, fmt.Errorf("can't build query: %w", err)
	}
	var n int
	if err := s.db.GetContext(ctx, &n, q, args...); err != nil {
		return 0, fmt.Errorf("%w: count swaps: %w", storage.ErrStorage, err)
	}
	return n, nil
}
