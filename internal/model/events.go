package model

import "fmt"

// SwapEvent is a decoded Swap log. Integer fields are base-10 text so that
// 256-bit values survive storage without loss.
type SwapEvent struct {
	BlockNumber uint64 `json:"block_number"`
	LogIndex    uint64 `json:"log_index"`
	TxHash      string `json:"tx_hash"`
	Sender      string `json:"sender"`
	Receiver    string `json:"receiver"`
	Amount0     string `json:"amount0"`
	Amount1     string `json:"amount1"`
	SqrtPrice   string `json:"sqrt_price"`
	Liquidity   string `json:"liquidity"`
	Tick        int32  `json:"tick"`
}

// Key returns the deduplication identity: transaction hash plus log index.
func (e SwapEvent) Key() string {
	return fmt.Sprintf("%s:%d", e.TxHash, e.LogIndex)
}
