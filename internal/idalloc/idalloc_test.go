package idalloc

import (
	"bytes"
	"testing"
)

func TestAdaptiveLengthBoundaries(t *testing.T) {
	cases := []struct {
		n    int
		want int
	}{
		{0, 3}, {9, 3}, {10, 4}, {99, 4}, {100, 5},
		{999, 5}, {1000, 6}, {9999, 6}, {10000, 7},
		{99999, 7}, {100000, 8}, {1000000, 8},
	}
	for _, c := range cases {
		if got := AdaptiveLength(c.n); got != c.want {
			t.Errorf("AdaptiveLength(%d) = %d, want %d", c.n, got, c.want)
		}
	}
}

func TestNextSequentialEmpty(t *testing.T) {
	n, err := NextSequential(map[uint64]bool{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Errorf("got %d, want 1", n)
	}
}

func TestNextSequentialTakesMaxPlusOne(t *testing.T) {
	n, err := NextSequential(map[uint64]bool{1: true, 2: true, 5: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 6 {
		t.Errorf("got %d, want 6", n)
	}
}

func TestNextHashedLengthMatchesPopulation(t *testing.T) {
	taken := map[string]bool{}
	tail, err := NextHashed(taken, bytes.NewReader(bytes.Repeat([]byte{0x01}, 64)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tail) != 3 {
		t.Errorf("expected length 3 tail for empty population, got %q", tail)
	}

	big := make(map[string]bool, 12)
	for i := 0; i < 12; i++ {
		big[string(rune('a'+i))] = true
	}
	tail, err = NextHashed(big, bytes.NewReader(bytes.Repeat([]byte{0x02}, 64)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tail) != 4 {
		t.Errorf("expected length 4 tail for population 12, got %q", tail)
	}
}

func TestNextHashedZeroEntropyYieldsAllZerosTail(t *testing.T) {
	tail, err := NextHashed(map[string]bool{}, bytes.NewReader(make([]byte, 64)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tail != "000" {
		t.Errorf("got %q, want all-zeros tail %q", tail, "000")
	}
}

func TestNextHashedWidensOnSaturation(t *testing.T) {
	// With a length-3 space of only "000" reachable (zero entropy) and
	// "000" already taken, NextHashed must widen to length 4.
	taken := map[string]bool{"000": true}
	tail, err := NextHashed(taken, bytes.NewReader(make([]byte, 64)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tail) != 4 {
		t.Errorf("expected widened length 4, got %q (len %d)", tail, len(tail))
	}
}
