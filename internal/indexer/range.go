package indexer

// BlockRange represents an inclusive block range.
type BlockRange struct {
	From uint64
	To   uint64
}

// Len returns the number of blocks in the range.
func (r BlockRange) Len() uint64 {
	if r.To < r.From {
		return 0
	}
	return r.To - r.From + 1
}

// NextRange plans the range after cursor, capped by head and window.
// It reports false when there are no new blocks.
func NextRange(cursor, head, window uint64) (BlockRange, bool) {
	if window == 0 {
		window = 1
	}
	from := cursor + 1
	if head < from {
		return BlockRange{}, false
	}
	to := head
	if head-from+1 > window {
		to = from + window - 1
	}
	return BlockRange{From: from, To: to}, true
}

// Halve returns the first half of the range with the same start. It reports
// false for a single-block range, which cannot be narrowed.
func (r BlockRange) Halve() (BlockRange, bool) {
	n := r.Len()
	if n <= 1 {
		return r, false
	}
	return BlockRange{From: r.From, To: r.From + n/2 - 1}, true
}
