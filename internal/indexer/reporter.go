package indexer

import (
	"fmt"
	"io"
	"sync"

	"swapMonitor/internal/model"
)

// Reporter receives human-facing notifications from the Loop.
type Reporter interface {
	SwapStored(event model.SwapEvent)
	LogSkipped(log model.RawLog, reason error)
}

// ConsoleReporter prints one line per stored swap and per reported skip.
type ConsoleReporter struct {
	mu  sync.Mutex
	out io.Writer
}

func NewConsoleReporter(out io.Writer) *ConsoleReporter {
	return &ConsoleReporter{out: out}
}

func (r *ConsoleReporter) SwapStored(event model.SwapEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out,
		"new | tx_hash: %s, sender: %s, receiver: %s, amount0: %s, amount1: %s, sqrt_price: %s, liquidity: %s, tick: %d\n",
		event.TxHash,
		event.Sender,
		event.Receiver,
		event.Amount0,
		event.Amount1,
		event.SqrtPrice,
		event.Liquidity,
		event.Tick,
	)
}

func (r *ConsoleReporter) LogSkipped(log model.RawLog, reason error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, "skip | block: %d, tx_hash: %s, log_index: %d, reason: %v\n",
		log.BlockNumber, log.TxHash.Hex(), log.LogIndex, reason)
}
