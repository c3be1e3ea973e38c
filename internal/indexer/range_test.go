package indexer

import (
	"testing"
)

func TestNextRange(t *testing.T) {
	got, ok := NextRange(99, 1000, 50)
	if !ok {
		t.Fatalf("expected a range")
	}
	if got != (BlockRange{From: 100, To: 149}) {
		t.Fatalf("range mismatch: %+v", got)
	}
}

func TestNextRangeCappedByHead(t *testing.T) {
	got, ok := NextRange(99, 105, 50)
	if !ok {
		t.Fatalf("expected a range")
	}
	if got != (BlockRange{From: 100, To: 105}) {
		t.Fatalf("range mismatch: %+v", got)
	}
}

func TestNextRangeNoNewBlocks(t *testing.T) {
	if _, ok := NextRange(100, 100, 50); ok {
		t.Fatalf("expected no range at head")
	}
	if _, ok := NextRange(100, 90, 50); ok {
		t.Fatalf("expected no range behind cursor")
	}
}

func TestNextRangeSingle(t *testing.T) {
	got, ok := NextRange(4, 5, 10)
	if !ok || got != (BlockRange{From: 5, To: 5}) {
		t.Fatalf("range mismatch: %+v", got)
	}
}

func TestBlockRangeHalve(t *testing.T) {
	got, ok := BlockRange{From: 100, To: 105}.Halve()
	if !ok || got != (BlockRange{From: 100, To: 102}) {
		t.Fatalf("halve mismatch: %+v", got)
	}

	got, ok = BlockRange{From: 100, To: 104}.Halve()
	if !ok || got != (BlockRange{From: 100, To: 101}) {
		t.Fatalf("odd halve mismatch: %+v", got)
	}

	if _, ok := (BlockRange{From: 7, To: 7}).Halve(); ok {
		t.Fatalf("single block range cannot be halved")
	}
}
