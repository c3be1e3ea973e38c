package dex

import (
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"swapMonitor/internal/model"
)

// Mainnet USDC/WETH 0.05% pool swap.
const (
	fixtureTxHash   = "0xe92955b4c46b38de18c1cdd58b06d49d45d6f9ca0906a86918f4cf20650683b4"
	fixtureSender   = "0xe592427a0aece92de3edee1f18e0157c05861564"
	fixtureReceiver = "0x4b7d6c3cea01f4d54a9cad6587da106ea39da1e6"
	fixtureTopic0   = "0xc42079f94a6350d7e6235f29174924f928cc2ac818eb64fed8004e115fbcca67"
	fixtureTopic1   = "0x000000000000000000000000e592427a0aece92de3edee1f18e0157c05861564"
	fixtureTopic2   = "0x0000000000000000000000004b7d6c3cea01f4d54a9cad6587da106ea39da1e6"
	fixtureData     = "0xfffffffffffffffffffffffffffffffffffffffffffffffffffffffff0511b800000000000000000000000000000000000000000000000000240e540e2dc0042000000000000000000000000000000000000610413a1a7c814aa98ca36d09f8b000000000000000000000000000000000000000000000001c4846addbd259faf00000000000000000000000000000000000000000000000000000000000316ab"
)

func fixtureLog() model.RawLog {
	return model.RawLog{
		BlockNumber: 17000000,
		TxHash:      common.HexToHash(fixtureTxHash),
		LogIndex:    4,
		Topics: []common.Hash{
			common.HexToHash(fixtureTopic0),
			common.HexToHash(fixtureTopic1),
			common.HexToHash(fixtureTopic2),
		},
		Data: hexutil.MustDecode(fixtureData),
	}
}

func newDecoder(t *testing.T) *SwapDecoder {
	t.Helper()
	decoder, err := NewSwapDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	return decoder
}

func TestSwapTopicMatchesABI(t *testing.T) {
	poolABI, err := SwapABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	if poolABI.Events["Swap"].ID != SwapTopic {
		t.Fatalf("topic mismatch: %s", poolABI.Events["Swap"].ID.Hex())
	}
	if SwapTopic.Hex() != fixtureTopic0 {
		t.Fatalf("unexpected swap topic: %s", SwapTopic.Hex())
	}
}

func TestSwapDecoderMainnetFixture(t *testing.T) {
	event, err := newDecoder(t).Decode(fixtureLog())
	if err != nil {
		t.Fatalf("decode swap: %v", err)
	}

	want := model.SwapEvent{
		BlockNumber: 17000000,
		LogIndex:    4,
		TxHash:      fixtureTxHash,
		Sender:      fixtureSender,
		Receiver:    fixtureReceiver,
		Amount0:     "-263120000",
		Amount1:     "162381653432074306",
		SqrtPrice:   "1967716719848838692609454179917707",
		Liquidity:   "32607304702662909871",
		Tick:        202411,
	}
	if event != want {
		t.Fatalf("swap mismatch:\n got %+v\nwant %+v", event, want)
	}
}

func TestSwapDecoderPackedValues(t *testing.T) {
	poolABI, err := SwapABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}

	sqrtPrice, _ := new(big.Int).SetString("79228162514264337593543950336", 10)
	data, err := poolABI.Events["Swap"].Inputs.NonIndexed().Pack(
		big.NewInt(-500),
		big.NewInt(1000000),
		sqrtPrice,
		big.NewInt(123456789),
		big.NewInt(-12345),
	)
	if err != nil {
		t.Fatalf("pack swap: %v", err)
	}

	sender := common.HexToAddress("0x2222222222222222222222222222222222222222")
	recipient := common.HexToAddress("0x3333333333333333333333333333333333333333")
	log := buildSwapLog(100, 0, data, topicFromAddress(sender), topicFromAddress(recipient))

	event, err := newDecoder(t).Decode(log)
	if err != nil {
		t.Fatalf("decode swap: %v", err)
	}
	if event.Amount0 != "-500" || event.Amount1 != "1000000" {
		t.Fatalf("amounts mismatch: %+v", event)
	}
	if event.SqrtPrice != "79228162514264337593543950336" || event.Liquidity != "123456789" {
		t.Fatalf("price state mismatch: %+v", event)
	}
	if event.Tick != -12345 {
		t.Fatalf("tick mismatch: %d", event.Tick)
	}
	if event.Sender != "0x2222222222222222222222222222222222222222" || event.Receiver != "0x3333333333333333333333333333333333333333" {
		t.Fatalf("address mismatch: %+v", event)
	}
}

func TestSwapDecoderFullWidthAmounts(t *testing.T) {
	poolABI, err := SwapABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}

	minInt256 := new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 255))
	maxInt256 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 255), big.NewInt(1))
	data, err := poolABI.Events["Swap"].Inputs.NonIndexed().Pack(
		minInt256,
		maxInt256,
		big.NewInt(1),
		big.NewInt(0),
		big.NewInt(-8388608),
	)
	if err != nil {
		t.Fatalf("pack swap: %v", err)
	}

	log := buildSwapLog(1, 0, data, common.Hash{}, common.Hash{})
	event, err := newDecoder(t).Decode(log)
	if err != nil {
		t.Fatalf("decode swap: %v", err)
	}
	if event.Amount0 != minInt256.String() || event.Amount1 != maxInt256.String() {
		t.Fatalf("int256 bounds lost: %s %s", event.Amount0, event.Amount1)
	}
	if event.Tick != -8388608 {
		t.Fatalf("tick mismatch: %d", event.Tick)
	}
}

func TestSwapDecoderSignatureMismatch(t *testing.T) {
	decoder := newDecoder(t)

	transfer := fixtureLog()
	transfer.Topics[0] = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

	cases := map[string]model.RawLog{
		"other event": transfer,
		"anonymous":   {Data: hexutil.MustDecode(fixtureData)},
	}
	for name, log := range cases {
		_, err := decoder.Decode(log)
		if !errors.Is(err, ErrNotSwap) {
			t.Fatalf("%s: expected ErrNotSwap, got %v", name, err)
		}
		if errors.Is(err, ErrMalformed) {
			t.Fatalf("%s: signature mismatch must not be malformed", name)
		}
		if KindOf(err) != KindSignatureMismatch {
			t.Fatalf("%s: unexpected kind %s", name, KindOf(err))
		}
	}
}

func TestSwapDecoderMalformed(t *testing.T) {
	decoder := newDecoder(t)

	shortData := fixtureLog()
	shortData.Data = shortData.Data[:128]

	longData := fixtureLog()
	longData.Data = append(append([]byte{}, longData.Data...), make([]byte, 32)...)

	missingTopic := fixtureLog()
	missingTopic.Topics = missingTopic.Topics[:2]

	dirtyTopic := fixtureLog()
	dirtyTopic.Topics[1][0] = 0x01

	badTick := fixtureLog()
	badTick.Data = append([]byte{}, badTick.Data...)
	badTick.Data[4*32+28] = 0x7f

	cases := map[string]model.RawLog{
		"short data":    shortData,
		"long data":     longData,
		"missing topic": missingTopic,
		"dirty topic":   dirtyTopic,
		"tick overflow": badTick,
	}
	for name, log := range cases {
		_, err := decoder.Decode(log)
		if !errors.Is(err, ErrMalformed) {
			t.Fatalf("%s: expected ErrMalformed, got %v", name, err)
		}
		if KindOf(err) != KindMalformed {
			t.Fatalf("%s: unexpected kind %s", name, KindOf(err))
		}
	}
}

func TestSwapDecoderDeterministicConcurrent(t *testing.T) {
	decoder := newDecoder(t)
	want, err := decoder.Decode(fixtureLog())
	if err != nil {
		t.Fatalf("decode swap: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan string, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := decoder.Decode(fixtureLog())
			if err != nil || got != want {
				errs <- "concurrent decode diverged"
			}
		}()
	}
	wg.Wait()
	close(errs)
	for msg := range errs {
		t.Fatalf("%s", msg)
	}
}

func buildSwapLog(blockNumber, logIndex uint64, data []byte, sender, recipient common.Hash) model.RawLog {
	return model.RawLog{
		BlockNumber: blockNumber,
		TxHash:      common.HexToHash("0xdef"),
		LogIndex:    logIndex,
		Address:     common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Topics:      []common.Hash{SwapTopic, sender, recipient},
		Data:        data,
	}
}

func topicFromAddress(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}
