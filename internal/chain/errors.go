package chain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
)

var (
	// ErrConnectivity covers transport failures and malformed responses.
	ErrConnectivity = errors.New("provider unreachable")
	// ErrRateLimited means the provider throttled the request.
	ErrRateLimited = errors.New("provider rate limited")
	// ErrInvalidRange means the block range is inverted or wider than the provider allows.
	ErrInvalidRange = errors.New("invalid block range")
)

// JSON-RPC codes providers use for throttling and oversized queries.
const (
	codeLimitExceeded  = -32005
	codeInvalidParams  = -32602
	codeServerOverload = -32029
)

var rateLimitHints = []string{
	"rate limit",
	"too many requests",
	"request limit",
	"exceeded the quota",
	"capacity exceeded",
	"daily request count exceeded",
}

var rangeHints = []string{
	"block range",
	"range is too large",
	"range too large",
	"exceed maximum block range",
	"query returned more than",
	"response size exceeded",
	"log response size",
	"too many results",
	"query timeout exceeded",
	"limited to a",
}

// Classify maps a provider error onto ErrConnectivity, ErrRateLimited or
// ErrInvalidRange. Context cancellation is returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, ErrConnectivity) || errors.Is(err, ErrRateLimited) || errors.Is(err, ErrInvalidRange) {
		return err
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %w", ErrRateLimited, err)
		case httpErr.StatusCode == http.StatusRequestEntityTooLarge:
			return fmt.Errorf("%w: %w", ErrInvalidRange, err)
		}
	}

	msg := strings.ToLower(err.Error())
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.ErrorCode() {
		case codeServerOverload:
			return fmt.Errorf("%w: %w", ErrRateLimited, err)
		case codeLimitExceeded:
			if containsAny(msg, rangeHints) {
				return fmt.Errorf("%w: %w", ErrInvalidRange, err)
			}
			return fmt.Errorf("%w: %w", ErrRateLimited, err)
		case codeInvalidParams:
			if containsAny(msg, rangeHints) {
				return fmt.Errorf("%w: %w", ErrInvalidRange, err)
			}
		}
	}

	switch {
	case containsAny(msg, rateLimitHints):
		return fmt.Errorf("%w: %w", ErrRateLimited, err)
	case containsAny(msg, rangeHints):
		return fmt.Errorf("%w: %w", ErrInvalidRange, err)
	default:
		return fmt.Errorf("%w: %w", ErrConnectivity, err)
	}
}

func containsAny(s string, hints []string) bool {
	for _, hint := range hints {
		if strings.Contains(s, hint) {
			return true
		}
	}
	return false
}
