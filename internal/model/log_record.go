package model

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// RawLog is a provider-supplied log before decoding. It is never persisted.
type RawLog struct {
	BlockNumber uint64         `json:"block_number"`
	BlockHash   common.Hash    `json:"block_hash"`
	TxHash      common.Hash    `json:"tx_hash"`
	TxIndex     uint64         `json:"tx_index"`
	LogIndex    uint64         `json:"log_index"`
	Address     common.Address `json:"address"`
	Topics      []common.Hash  `json:"topics"`
	Data        []byte         `json:"data"`
	Removed     bool           `json:"removed"`
}

// NewRawLog converts a go-ethereum log into a RawLog.
func NewRawLog(log types.Log) RawLog {
	topics := make([]common.Hash, len(log.Topics))
	copy(topics, log.Topics)

	return RawLog{
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash,
		TxHash:      log.TxHash,
		TxIndex:     uint64(log.TxIndex),
		LogIndex:    uint64(log.Index),
		Address:     log.Address,
		Topics:      topics,
		Data:        log.Data,
		Removed:     log.Removed,
	}
}

// Topic0 returns the event signature topic, or the zero hash for anonymous logs.
func (l RawLog) Topic0() common.Hash {
	if len(l.Topics) == 0 {
		return common.Hash{}
	}
	return l.Topics[0]
}
