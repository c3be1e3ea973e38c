package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"swapMonitor/internal/chain"
	"swapMonitor/internal/dex"
	"swapMonitor/internal/model"
	"swapMonitor/internal/storage"
)

const defaultPollInterval = 12 * time.Second

var errRemovedLog = errors.New("log removed by reorg")

// State is a step of the ingestion state machine.
type State int32

const (
	StateIdle State = iota
	StatePolling
	StateDecoding
	StatePersisting
	StateAdvancing
	StateBackoff
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateDecoding:
		return "decoding"
	case StatePersisting:
		return "persisting"
	case StateAdvancing:
		return "advancing"
	case StateBackoff:
		return "backoff"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ChainReader is the provider surface the Loop needs.
type ChainReader interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]model.RawLog, error)
}

// RunConfig holds runtime settings and optional collaborators for the Loop.
type RunConfig struct {
	Addresses []common.Address
	// Topic0 narrows the provider filter. Empty fetches every log of Addresses.
	Topic0 []common.Hash
	// StartBlock is the first block to scan. Zero starts after the head at boot.
	StartBlock       uint64
	MaxWindow        uint64
	Confirmations    uint64
	PollInterval     time.Duration
	RetryBackoff     time.Duration
	RateLimitBackoff time.Duration
	MaxBackoff       time.Duration
	DecodeWorkers    int

	Checkpoint CursorStore
	ErrorSink  storage.DecodeErrorSink
	Reporter   Reporter
}

// CycleResult summarizes one poll cycle.
type CycleResult struct {
	Range      BlockRange
	Head       uint64
	Scanned    bool
	Stored     int
	Duplicates int
	Skipped    int
}

// CaughtUp reports whether the cycle reached the observed head.
func (r CycleResult) CaughtUp() bool {
	return !r.Scanned || r.Range.To >= r.Head
}

// Loop polls one filter, decodes Swap logs and persists them in block order.
// The cursor only moves once a whole range has been decoded and stored.
type Loop struct {
	cfg     RunConfig
	chain   ChainReader
	decoder dex.Decoder
	store   storage.EventStore
	logger  *zap.Logger

	cursor *FilterCursor
	window uint64
	// pending is the range of a failed cycle, retried unchanged until it
	// completes. Range rejections may still narrow it.
	pending *BlockRange
	backoff Backoff
	state   atomic.Int32
	sleep   func(context.Context, time.Duration) error
}

type decodedLog struct {
	event model.SwapEvent
	err   error
}

// NewLoop builds a Loop with its dependencies.
func NewLoop(cfg RunConfig, chainReader ChainReader, decoder dex.Decoder, store storage.EventStore, logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	window := cfg.MaxWindow
	if window == 0 {
		window = 1
	}
	return &Loop{
		cfg:     cfg,
		chain:   chainReader,
		decoder: decoder,
		store:   store,
		logger:  logger,
		window:  window,
		backoff: Backoff{
			Base:          cfg.RetryBackoff,
			RateLimitBase: cfg.RateLimitBackoff,
			Max:           cfg.MaxBackoff,
		},
		sleep: contextSleep,
	}
}

// Cursor returns the loop's cursor, or nil before initialization.
func (l *Loop) Cursor() *FilterCursor {
	return l.cursor
}

// State returns the current state machine step.
func (l *Loop) State() State {
	return State(l.state.Load())
}

func (l *Loop) setState(s State) {
	prev := State(l.state.Swap(int32(s)))
	if prev != s {
		l.logger.Debug("state change", zap.Stringer("from", prev), zap.Stringer("to", s))
	}
}

func (l *Loop) validate() error {
	if l.chain == nil {
		return fmt.Errorf("chain client is nil")
	}
	if l.decoder == nil {
		return fmt.Errorf("decoder is nil")
	}
	if l.store == nil {
		return fmt.Errorf("storage is nil")
	}
	if len(l.cfg.Addresses) == 0 {
		return fmt.Errorf("at least one address is required")
	}
	return nil
}

// Init seeds the cursor from the checkpoint, the configured start block, or
// the current head, in that order. It is a no-op once the cursor exists.
func (l *Loop) Init(ctx context.Context) error {
	if l.cursor != nil {
		return nil
	}
	if err := l.validate(); err != nil {
		return err
	}

	if l.cfg.Checkpoint != nil {
		last, ok, err := l.cfg.Checkpoint.Load(ctx)
		if err != nil {
			return fmt.Errorf("load checkpoint: %w", err)
		}
		if ok && (l.cfg.StartBlock == 0 || last+1 >= l.cfg.StartBlock) {
			l.cursor = NewFilterCursor(last)
			l.logger.Info("resume from checkpoint", zap.Uint64("last_processed", last), zap.Uint64("from", last+1))
			CursorHeight.Set(float64(last))
			return nil
		}
	}

	if l.cfg.StartBlock > 0 {
		l.cursor = NewFilterCursor(l.cfg.StartBlock - 1)
	} else {
		head, err := l.head(ctx)
		if err != nil {
			return fmt.Errorf("get latest block: %w", err)
		}
		l.cursor = NewFilterCursor(head)
	}
	l.logger.Info("cursor initialized", zap.Uint64("cursor", l.cursor.Current()), zap.Uint64("from", l.cursor.Current()+1))
	CursorHeight.Set(float64(l.cursor.Current()))
	return nil
}

func (l *Loop) head(ctx context.Context) (uint64, error) {
	latest, err := l.chain.LatestBlockNumber(ctx)
	if err != nil {
		return 0, err
	}
	if latest < l.cfg.Confirmations {
		return 0, nil
	}
	return latest - l.cfg.Confirmations, nil
}

// Run executes cycles until ctx is cancelled. It returns nil on shutdown and
// an error only for startup failures and invariant violations.
func (l *Loop) Run(ctx context.Context) error {
	defer l.setState(StateStopped)

	for {
		err := l.Init(ctx)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return nil
		}
		if !isTransient(err) {
			return err
		}
		if !l.backOff(ctx, err) {
			return nil
		}
	}

	for {
		if ctx.Err() != nil {
			l.logger.Info("ingestion stopped", zap.Uint64("cursor", l.cursor.Current()))
			return nil
		}

		result, err := l.Cycle(ctx)
		if err != nil {
			if ctx.Err() != nil {
				l.logger.Info("ingestion stopped", zap.Uint64("cursor", l.cursor.Current()))
				return nil
			}
			if errors.Is(err, ErrInvariantViolation) {
				return err
			}
			if !l.backOff(ctx, err) {
				return nil
			}
			continue
		}

		l.backoff.Reset()
		if !result.CaughtUp() {
			continue
		}

		l.setState(StateIdle)
		if err := l.sleep(ctx, l.cfg.PollInterval); err != nil {
			return nil
		}
	}
}

func (l *Loop) backOff(ctx context.Context, err error) bool {
	delay := l.backoff.Next(err)
	Backoffs.WithLabelValues(errorClass(err)).Inc()
	l.setState(StateBackoff)

	fields := []zap.Field{zap.Error(err), zap.Duration("delay", delay), zap.String("class", errorClass(err))}
	if l.cursor != nil {
		fields = append(fields, zap.Uint64("retry_from", l.cursor.Current()+1))
	}
	l.logger.Warn("cycle failed, backing off", fields...)

	return l.sleep(ctx, delay) == nil
}

// Cycle runs one poll: plan a range, fetch, decode, persist and advance.
func (l *Loop) Cycle(ctx context.Context) (CycleResult, error) {
	if err := l.Init(ctx); err != nil {
		return CycleResult{}, err
	}

	l.setState(StatePolling)
	head, err := l.head(ctx)
	if err != nil {
		return CycleResult{}, fmt.Errorf("get latest block: %w", err)
	}
	HeadHeight.Set(float64(head))

	result := CycleResult{Head: head}
	var blockRange BlockRange
	if l.pending != nil {
		blockRange = *l.pending
	} else {
		next, ok := NextRange(l.cursor.Current(), head, l.window)
		if !ok {
			l.logger.Debug("no new blocks", zap.Uint64("cursor", l.cursor.Current()), zap.Uint64("head", head))
			return result, nil
		}
		blockRange = next
	}
	result.Scanned = true

	logs, blockRange, err := l.fetch(ctx, blockRange)
	result.Range = blockRange
	l.pending = &blockRange
	if err != nil {
		return result, err
	}

	// Already-fetched batches complete even if shutdown starts now.
	persistCtx := context.WithoutCancel(ctx)

	l.setState(StateDecoding)
	decoded := l.decodeBatch(logs)

	l.setState(StatePersisting)
	for i, item := range decoded {
		if item.err != nil {
			l.skip(logs[i], item.err)
			result.Skipped++
			continue
		}

		outcome, err := l.store.InsertIfAbsent(persistCtx, item.event)
		if err != nil {
			return result, fmt.Errorf("store swap %s: %w", item.event.Key(), err)
		}
		switch outcome {
		case storage.AlreadyPresent:
			result.Duplicates++
			LogsProcessed.WithLabelValues(outcomeDuplicate).Inc()
			l.logger.Debug("swap already stored", zap.String("tx_hash", item.event.TxHash), zap.Uint64("log_index", item.event.LogIndex))
		default:
			result.Stored++
			LogsProcessed.WithLabelValues(outcomeStored).Inc()
			if l.cfg.Reporter != nil {
				l.cfg.Reporter.SwapStored(item.event)
			}
		}
	}

	l.setState(StateAdvancing)
	if err := l.cursor.AdvanceTo(blockRange.To); err != nil {
		return result, err
	}
	l.pending = nil
	CursorHeight.Set(float64(blockRange.To))
	if l.cfg.Checkpoint != nil {
		if err := l.cfg.Checkpoint.Save(persistCtx, blockRange.To); err != nil {
			l.logger.Warn("checkpoint save failed", zap.Error(err), zap.Uint64("block", blockRange.To))
		}
	}

	l.logger.Info("range complete",
		zap.Uint64("from", blockRange.From),
		zap.Uint64("to", blockRange.To),
		zap.Uint64("head", head),
		zap.Int("logs", len(logs)),
		zap.Int("stored", result.Stored),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}

// fetch reads logs for r, halving the range on provider range rejections.
// The narrower window is kept for later cycles.
func (l *Loop) fetch(ctx context.Context, r BlockRange) ([]model.RawLog, BlockRange, error) {
	for {
		logs, err := l.chain.FilterLogs(ctx, r.From, r.To, l.cfg.Addresses, l.cfg.Topic0)
		if err == nil {
			return logs, r, nil
		}
		if !errors.Is(err, chain.ErrInvalidRange) || ctx.Err() != nil {
			return nil, r, fmt.Errorf("filter logs [%d, %d]: %w", r.From, r.To, err)
		}

		narrower, ok := r.Halve()
		if !ok {
			return nil, r, fmt.Errorf("filter logs [%d, %d]: single block rejected: %w", r.From, r.To, err)
		}
		RangeHalvings.Inc()
		l.window = narrower.Len()
		l.logger.Warn("range rejected, halving window",
			zap.Error(err),
			zap.Uint64("from", r.From),
			zap.Uint64("to", r.To),
			zap.Uint64("window", l.window),
		)
		r = narrower
	}
}

// decodeBatch decodes logs, in parallel when configured, keeping input order.
func (l *Loop) decodeBatch(logs []model.RawLog) []decodedLog {
	out := make([]decodedLog, len(logs))
	decodeOne := func(i int) {
		if logs[i].Removed {
			out[i].err = errRemovedLog
			return
		}
		out[i].event, out[i].err = l.decoder.Decode(logs[i])
	}

	if l.cfg.DecodeWorkers <= 1 || len(logs) < 2 {
		for i := range logs {
			decodeOne(i)
		}
		return out
	}

	var g errgroup.Group
	g.SetLimit(l.cfg.DecodeWorkers)
	for i := range logs {
		i := i
		g.Go(func() error {
			decodeOne(i)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (l *Loop) skip(log model.RawLog, err error) {
	fields := []zap.Field{
		zap.Uint64("block_number", log.BlockNumber),
		zap.String("tx_hash", log.TxHash.Hex()),
		zap.Uint64("log_index", log.LogIndex),
	}

	switch {
	case errors.Is(err, errRemovedLog):
		LogsProcessed.WithLabelValues(outcomeRemoved).Inc()
		l.logger.Info("skip removed log", fields...)
	case errors.Is(err, dex.ErrNotSwap):
		LogsProcessed.WithLabelValues(outcomeNotSwap).Inc()
		l.logger.Info("skip non-swap log", append(fields, zap.String("topic0", log.Topic0().Hex()))...)
	default:
		LogsProcessed.WithLabelValues(outcomeMalformed).Inc()
		l.logger.Warn("skip malformed swap log", append(fields, zap.Error(err))...)
		if l.cfg.Reporter != nil {
			l.cfg.Reporter.LogSkipped(log, err)
		}
		if l.cfg.ErrorSink != nil {
			if sinkErr := l.cfg.ErrorSink.PutDecodeError(decodeErrorRecord(log, err)); sinkErr != nil {
				l.logger.Warn("decode error sink failed", zap.Error(sinkErr))
			}
		}
	}
}

func decodeErrorRecord(log model.RawLog, err error) model.DecodeError {
	return model.DecodeError{
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash.Hex(),
		LogIndex:    log.LogIndex,
		Address:     log.Address.Hex(),
		Topic0:      log.Topic0().Hex(),
		Kind:        dex.KindOf(err).String(),
		Error:       err.Error(),
		RecordedAt:  time.Now().UTC().Format(time.RFC3339Nano),
	}
}

func isTransient(err error) bool {
	return errors.Is(err, chain.ErrConnectivity) ||
		errors.Is(err, chain.ErrRateLimited) ||
		errors.Is(err, chain.ErrInvalidRange) ||
		errors.Is(err, storage.ErrStorage)
}

func errorClass(err error) string {
	switch {
	case errors.Is(err, chain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, chain.ErrInvalidRange):
		return "invalid_range"
	case errors.Is(err, chain.ErrConnectivity):
		return "connectivity"
	case errors.Is(err, storage.ErrStorage):
		return "storage"
	default:
		return "other"
	}
}
