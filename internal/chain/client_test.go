package chain

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/require"
)

type fakeEth struct {
	head  uint64
	logs  []*types.Log
	err   error
	calls []map[string]interface{}
}

func (f *fakeEth) ChainId() (*hexutil.Big, error) {
	return (*hexutil.Big)(common.Big1), nil
}

func (f *fakeEth) BlockNumber() (hexutil.Uint64, error) {
	return hexutil.Uint64(f.head), nil
}

func (f *fakeEth) GetLogs(arg map[string]interface{}) ([]*types.Log, error) {
	f.calls = append(f.calls, arg)
	if f.err != nil {
		return nil, f.err
	}
	return f.logs, nil
}

func newTestClient(t *testing.T, svc *fakeEth, opts Options) *Client {
	t.Helper()

	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("eth", svc))
	t.Cleanup(server.Stop)

	client := newClient(rpc.DialInProc(server), opts)
	t.Cleanup(client.Close)
	return client
}

func testLog(block uint64, index uint) *types.Log {
	return &types.Log{
		Address:     common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Topics:      []common.Hash{common.HexToHash("0x01")},
		Data:        []byte{0x01},
		BlockNumber: block,
		TxHash:      common.BigToHash(common.Big2),
		BlockHash:   common.BigToHash(common.Big3),
		Index:       index,
	}
}

func TestClientLatestBlockNumber(t *testing.T) {
	client := newTestClient(t, &fakeEth{head: 1234}, Options{})

	head, err := client.LatestBlockNumber(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(1234), head)

	id, err := client.GetChainID(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), id.Int64())
}

func TestClientFilterLogsOrdered(t *testing.T) {
	svc := &fakeEth{logs: []*types.Log{testLog(12, 0), testLog(10, 5), testLog(10, 2)}}
	client := newTestClient(t, svc, Options{})

	address := common.HexToAddress("0x1111111111111111111111111111111111111111")
	logs, err := client.FilterLogs(context.Background(), 10, 12, []common.Address{address}, nil)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	require.Equal(t, uint64(10), logs[0].BlockNumber)
	require.Equal(t, uint64(2), logs[0].LogIndex)
	require.Equal(t, uint64(5), logs[1].LogIndex)
	require.Equal(t, uint64(12), logs[2].BlockNumber)

	require.Len(t, svc.calls, 1)
	require.Equal(t, "0xa", svc.calls[0]["fromBlock"])
	require.Equal(t, "0xc", svc.calls[0]["toBlock"])
}

func TestClientFilterLogsEmpty(t *testing.T) {
	client := newTestClient(t, &fakeEth{}, Options{})

	logs, err := client.FilterLogs(context.Background(), 1, 1, nil, nil)
	require.NoError(t, err)
	require.Empty(t, logs)
}

func TestClientFilterLogsOutOfRange(t *testing.T) {
	client := newTestClient(t, &fakeEth{logs: []*types.Log{testLog(50, 0)}}, Options{})

	_, err := client.FilterLogs(context.Background(), 1, 10, nil, nil)
	require.ErrorIs(t, err, ErrConnectivity)
}

func TestClientFilterLogsRateLimited(t *testing.T) {
	svc := &fakeEth{err: codedError{-32005, "rate limit exceeded"}}
	client := newTestClient(t, svc, Options{})

	_, err := client.FilterLogs(context.Background(), 1, 10, nil, nil)
	require.ErrorIs(t, err, ErrRateLimited)
}

func TestClientFilterLogsRangeRejectedLocally(t *testing.T) {
	svc := &fakeEth{}
	client := newTestClient(t, svc, Options{MaxWindow: 100})

	_, err := client.FilterLogs(context.Background(), 1, 101, nil, nil)
	require.ErrorIs(t, err, ErrInvalidRange)

	_, err = client.FilterLogs(context.Background(), 5, 4, nil, nil)
	require.ErrorIs(t, err, ErrInvalidRange)
	require.Empty(t, svc.calls)
}
