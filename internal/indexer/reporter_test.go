package indexer

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"swapMonitor/internal/model"
)

func TestConsoleReporterSwapLine(t *testing.T) {
	var buf bytes.Buffer
	reporter := NewConsoleReporter(&buf)

	reporter.SwapStored(model.SwapEvent{
		TxHash:    "0xabc",
		Sender:    "0x01",
		Receiver:  "0x02",
		Amount0:   "-500",
		Amount1:   "1000000",
		SqrtPrice: "79228162514264337593543950336",
		Liquidity: "123456789",
		Tick:      -12345,
	})

	want := "new | tx_hash: 0xabc, sender: 0x01, receiver: 0x02, amount0: -500, amount1: 1000000, sqrt_price: 79228162514264337593543950336, liquidity: 123456789, tick: -12345\n"
	if buf.String() != want {
		t.Fatalf("line mismatch:\n got %q\nwant %q", buf.String(), want)
	}
}

func TestConsoleReporterSkipLine(t *testing.T) {
	var buf bytes.Buffer
	reporter := NewConsoleReporter(&buf)

	reporter.LogSkipped(model.RawLog{BlockNumber: 9, LogIndex: 2, TxHash: common.HexToHash("0x01")}, errors.New("short data"))

	if !strings.HasPrefix(buf.String(), "skip | block: 9,") || !strings.Contains(buf.String(), "reason: short data") {
		t.Fatalf("unexpected skip line: %q", buf.String())
	}
}
