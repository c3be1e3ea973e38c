package chain

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"swapMonitor/internal/model"
)

const defaultTimeout = 30 * time.Second

// Client wraps go-ethereum RPC and exposes the calls the ingestion loop needs.
// It keeps no state between calls besides the connection.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client
	timeout   time.Duration
	maxWindow uint64
}

// Options tunes a Client.
type Options struct {
	// Timeout bounds every request. Zero means 30s.
	Timeout time.Duration
	// MaxWindow rejects wider log queries locally with ErrInvalidRange. Zero disables.
	MaxWindow uint64
}

// NewClient creates a new chain client from an http(s) or ws(s) RPC URL.
func NewClient(ctx context.Context, rpcURL string, opts Options) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, Classify(err)
	}
	return newClient(rpcClient, opts), nil
}

func newClient(rpcClient *rpc.Client, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	return &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
		timeout:   opts.Timeout,
		maxWindow: opts.MaxWindow,
	}
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// GetChainID returns the chain ID.
func (c *Client) GetChainID(ctx context.Context) (*big.Int, error) {
	defer observeDuration("eth_chainId")()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	id, err := c.ethClient.ChainID(ctx)
	err = Classify(err)
	observeError("eth_chainId", err)
	return id, err
}

// LatestBlockNumber returns the latest block number.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	defer observeDuration("eth_blockNumber")()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	n, err := c.ethClient.BlockNumber(ctx)
	err = Classify(err)
	observeError("eth_blockNumber", err)
	return n, err
}

// FilterLogs returns logs in [fromBlock, toBlock] emitted by addresses, optionally
// restricted to topic0 values, ordered by block number then log index.
func (c *Client) FilterLogs(
	ctx context.Context,
	fromBlock uint64,
	toBlock uint64,
	addresses []common.Address,
	topic0 []common.Hash,
) ([]model.RawLog, error) {
	if err := CheckRange(fromBlock, toBlock, c.maxWindow); err != nil {
		return nil, err
	}

	defer observeDuration("eth_getLogs")()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: addresses,
	}
	if len(topic0) > 0 {
		query.Topics = [][]common.Hash{topic0}
	}

	logs, err := c.ethClient.FilterLogs(ctx, query)
	err = Classify(err)
	observeError("eth_getLogs", err)
	if err != nil {
		return nil, err
	}

	return toRawLogs(logs, fromBlock, toBlock)
}

// CheckRange validates an inclusive block range against an optional maximum window.
func CheckRange(fromBlock, toBlock, maxWindow uint64) error {
	if toBlock < fromBlock {
		return fmt.Errorf("%w: to block %d < from block %d", ErrInvalidRange, toBlock, fromBlock)
	}
	if maxWindow > 0 && toBlock-fromBlock+1 > maxWindow {
		return fmt.Errorf("%w: %d blocks exceeds window of %d", ErrInvalidRange, toBlock-fromBlock+1, maxWindow)
	}
	return nil
}

func toRawLogs(logs []types.Log, fromBlock, toBlock uint64) ([]model.RawLog, error) {
	out := make([]model.RawLog, 0, len(logs))
	for _, log := range logs {
		if log.BlockNumber < fromBlock || log.BlockNumber > toBlock {
			return nil, fmt.Errorf("%w: log at block %d outside [%d, %d]", ErrConnectivity, log.BlockNumber, fromBlock, toBlock)
		}
		out = append(out, model.NewRawLog(log))
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		return a.BlockNumber < b.BlockNumber || (a.BlockNumber == b.BlockNumber && a.LogIndex < b.LogIndex)
	})
	return out, nil
}
