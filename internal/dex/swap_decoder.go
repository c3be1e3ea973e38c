package dex

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"swapMonitor/internal/model"
)

const (
	swapTopicCount = 3
	swapDataLength = 5 * 32
)

// SwapDecoder decodes Uniswap V3 style pool Swap logs.
type SwapDecoder struct {
	event   abi.Event
	indexed abi.Arguments
}

// NewSwapDecoder builds a decoder from the Swap ABI.
func NewSwapDecoder() (*SwapDecoder, error) {
	poolABI, err := SwapABI()
	if err != nil {
		return nil, err
	}
	event, ok := poolABI.Events["Swap"]
	if !ok {
		return nil, fmt.Errorf("swap event missing from abi")
	}
	if event.ID != SwapTopic {
		return nil, fmt.Errorf("swap topic mismatch: %s != %s", event.ID.Hex(), SwapTopic.Hex())
	}

	return &SwapDecoder{
		event:   event,
		indexed: indexedArguments(event.Inputs),
	}, nil
}

// CanDecode checks if topic0 is the Swap selector.
func (d *SwapDecoder) CanDecode(topic0 common.Hash) bool {
	return topic0 == d.event.ID
}

// Decode converts a RawLog into a SwapEvent.
func (d *SwapDecoder) Decode(log model.RawLog) (model.SwapEvent, error) {
	if len(log.Topics) == 0 {
		return model.SwapEvent{}, mismatch("missing topic0")
	}
	if !d.CanDecode(log.Topics[0]) {
		return model.SwapEvent{}, mismatch("unexpected topic0 %s", log.Topics[0].Hex())
	}
	if len(log.Topics) != swapTopicCount {
		return model.SwapEvent{}, malformed(nil, "expected %d topics, got %d", swapTopicCount, len(log.Topics))
	}
	if len(log.Data) != swapDataLength {
		return model.SwapEvent{}, malformed(nil, "expected %d data bytes, got %d", swapDataLength, len(log.Data))
	}

	for i, topic := range log.Topics[1:] {
		if !isAddressTopic(topic) {
			return model.SwapEvent{}, malformed(nil, "topic %d is not a padded address", i+1)
		}
	}

	var indexed struct {
		Sender    common.Address
		Recipient common.Address
	}
	if err := abi.ParseTopics(&indexed, d.indexed, log.Topics[1:]); err != nil {
		return model.SwapEvent{}, malformed(err, "parse topics")
	}

	values, err := d.event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return model.SwapEvent{}, malformed(err, "unpack data")
	}
	if len(values) != 5 {
		return model.SwapEvent{}, malformed(nil, "unexpected swap values: %d", len(values))
	}

	amount0, err := asBigInt(values[0])
	if err != nil {
		return model.SwapEvent{}, malformed(err, "amount0")
	}
	amount1, err := asBigInt(values[1])
	if err != nil {
		return model.SwapEvent{}, malformed(err, "amount1")
	}
	sqrtPrice, err := asUnsigned(values[2], 160)
	if err != nil {
		return model.SwapEvent{}, malformed(err, "sqrt_price")
	}
	liquidity, err := asUnsigned(values[3], 128)
	if err != nil {
		return model.SwapEvent{}, malformed(err, "liquidity")
	}
	tickInt, err := asBigInt(values[4])
	if err != nil {
		return model.SwapEvent{}, malformed(err, "tick")
	}
	tick, err := int24FromBig(tickInt)
	if err != nil {
		return model.SwapEvent{}, malformed(err, "tick")
	}

	return model.SwapEvent{
		BlockNumber: log.BlockNumber,
		LogIndex:    log.LogIndex,
		TxHash:      log.TxHash.Hex(),
		Sender:      strings.ToLower(indexed.Sender.Hex()),
		Receiver:    strings.ToLower(indexed.Recipient.Hex()),
		Amount0:     amount0.String(),
		Amount1:     amount1.String(),
		SqrtPrice:   sqrtPrice.String(),
		Liquidity:   liquidity.String(),
		Tick:        tick,
	}, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func isAddressTopic(topic common.Hash) bool {
	for _, b := range topic[:common.HashLength-common.AddressLength] {
		if b != 0 {
			return false
		}
	}
	return true
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case int8:
		return big.NewInt(int64(v)), nil
	case int16:
		return big.NewInt(int64(v)), nil
	case int32:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

func asUnsigned(value interface{}, bits int) (*big.Int, error) {
	v, err := asBigInt(value)
	if err != nil {
		return nil, err
	}
	if v.Sign() < 0 || v.BitLen() > bits {
		return nil, fmt.Errorf("uint%d overflow: %s", bits, v.String())
	}
	return v, nil
}

func int24FromBig(value *big.Int) (int32, error) {
	min := big.NewInt(-1 << 23)
	max := big.NewInt((1 << 23) - 1)
	if value.Cmp(min) < 0 || value.Cmp(max) > 0 {
		return 0, fmt.Errorf("int24 overflow: %s", value.String())
	}
	return int32(value.Int64()), nil
}
