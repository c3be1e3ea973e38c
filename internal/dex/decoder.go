package dex

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"swapMonitor/internal/model"
)

// Decoder turns raw logs of one event schema into SwapEvents.
// Implementations must be pure and safe for concurrent use.
type Decoder interface {
	CanDecode(topic0 common.Hash) bool
	Decode(log model.RawLog) (model.SwapEvent, error)
}

// DecodeErrorKind distinguishes skippable logs from broken ones.
type DecodeErrorKind int

const (
	// KindSignatureMismatch means topic0 is not the expected event.
	KindSignatureMismatch DecodeErrorKind = iota + 1
	// KindMalformed means the log claims to be a Swap but cannot be decoded.
	KindMalformed
)

func (k DecodeErrorKind) String() string {
	switch k {
	case KindSignatureMismatch:
		return "signature_mismatch"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

var (
	ErrNotSwap   = errors.New("not a Swap event")
	ErrMalformed = errors.New("malformed Swap log")
)

// DecodeError is returned by Decode for every rejected log.
type DecodeError struct {
	Kind   DecodeErrorKind
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	base := ErrMalformed.Error()
	if e.Kind == KindSignatureMismatch {
		base = ErrNotSwap.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", base, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", base, e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is lets callers match a kind with errors.Is(err, ErrNotSwap).
func (e *DecodeError) Is(target error) bool {
	switch target {
	case ErrNotSwap:
		return e.Kind == KindSignatureMismatch
	case ErrMalformed:
		return e.Kind == KindMalformed
	default:
		return false
	}
}

func mismatch(format string, args ...interface{}) error {
	return &DecodeError{Kind: KindSignatureMismatch, Reason: fmt.Sprintf(format, args...)}
}

func malformed(err error, format string, args ...interface{}) error {
	return &DecodeError{Kind: KindMalformed, Reason: fmt.Sprintf(format, args...), Err: err}
}

// KindOf reports the decode error kind of err, or 0 if err is not a DecodeError.
func KindOf(err error) DecodeErrorKind {
	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		return decodeErr.Kind
	}
	return 0
}
