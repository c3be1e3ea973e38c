package storage

import (
	"context"
	"errors"

	"swapMonitor/internal/model"
)

// ErrStorage wraps every I/O failure of an EventStore. A duplicate insert is
// not an error.
var ErrStorage = errors.New("storage failure")

// InsertOutcome reports whether InsertIfAbsent wrote a new row.
type InsertOutcome int

const (
	Inserted InsertOutcome = iota + 1
	AlreadyPresent
)

func (o InsertOutcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case AlreadyPresent:
		return "already_present"
	default:
		return "unknown"
	}
}

// EventStore persists SwapEvents at most once per (tx hash, log index).
type EventStore interface {
	EnsureSchema(ctx context.Context) error
	InsertIfAbsent(ctx context.Context, event model.SwapEvent) (InsertOutcome, error)
	Close() error
}

// DecodeErrorSink records logs that could not be decoded.
type DecodeErrorSink interface {
	PutDecodeError(record model.DecodeError) error
}
