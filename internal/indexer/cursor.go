package indexer

import (
	"errors"
	"fmt"
)

// ErrInvariantViolation signals a programming error such as a cursor regression.
// It is never retried.
var ErrInvariantViolation = errors.New("invariant violation")

// FilterCursor is the highest block height already scanned, inclusive.
// It only moves forward and has a single writer, the Loop.
type FilterCursor struct {
	height uint64
}

func NewFilterCursor(height uint64) *FilterCursor {
	return &FilterCursor{height: height}
}

func (c *FilterCursor) Current() uint64 {
	return c.height
}

// AdvanceTo moves the cursor to height. Moving backwards is an invariant violation.
func (c *FilterCursor) AdvanceTo(height uint64) error {
	if height < c.height {
		return fmt.Errorf("%w: cursor regression from %d to %d", ErrInvariantViolation, c.height, height)
	}
	c.height = height
	return nil
}
