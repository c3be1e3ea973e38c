package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "swapmonitor",
		Subsystem: "rpc",
		Name:      "request_results_total",
		Help:      "Provider requests by method and outcome.",
	}, []string{"method", "status"})

	RequestDurations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "swapmonitor",
		Subsystem: "rpc",
		Name:      "request_duration_seconds",
		Help:      "Provider request latency by method.",
		Buckets:   []float64{0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10, 20},
	}, []string{"method"})
)

func observeError(method string, err error) {
	switch {
	case err == nil:
		RequestResults.WithLabelValues(method, "ok").Inc()
	case errors.Is(err, context.DeadlineExceeded):
		RequestResults.WithLabelValues(method, "timeout").Inc()
	case errors.Is(err, ErrRateLimited):
		RequestResults.WithLabelValues(method, "rate_limited").Inc()
	case errors.Is(err, ErrInvalidRange):
		RequestResults.WithLabelValues(method, "invalid_range").Inc()
	default:
		var rpcErr rpc.Error
		if errors.As(err, &rpcErr) {
			RequestResults.WithLabelValues(method, fmt.Sprintf("error-%d", rpcErr.ErrorCode())).Inc()
			return
		}
		RequestResults.WithLabelValues(method, "error").Inc()
	}
}

func observeDuration(method string) func() time.Duration {
	return prometheus.NewTimer(RequestDurations.WithLabelValues(method)).ObserveDuration
}
