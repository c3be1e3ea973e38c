package indexer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CursorHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "swapmonitor",
		Subsystem: "ingestion",
		Name:      "cursor_block",
		Help:      "Highest block fully scanned and persisted.",
	})
	HeadHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "swapmonitor",
		Subsystem: "ingestion",
		Name:      "head_block",
		Help:      "Latest observed block after confirmations.",
	})
	LogsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "swapmonitor",
		Subsystem: "ingestion",
		Name:      "logs_total",
		Help:      "Fetched logs by outcome.",
	}, []string{"outcome"})
	Backoffs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "swapmonitor",
		Subsystem: "ingestion",
		Name:      "backoffs_total",
		Help:      "Failed cycles by error class.",
	}, []string{"reason"})
	RangeHalvings = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "swapmonitor",
		Subsystem: "ingestion",
		Name:      "range_halvings_total",
		Help:      "Times the query window was halved after a range rejection.",
	})
)

const (
	outcomeStored    = "stored"
	outcomeDuplicate = "duplicate"
	outcomeNotSwap   = "not_swap"
	outcomeMalformed = "malformed"
	outcomeRemoved   = "removed"
)
