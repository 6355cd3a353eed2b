// Package idalloc allocates fresh IssueID tails under the store's
// configured scheme, per spec.md §4.1. Each function is a pure function
// of the current set of taken tails (plus an entropy source for the
// hashed scheme); neither function performs I/O.
package idalloc

import (
	"crypto/rand"
	"io"
	"math/big"

	"github.com/rrnewton/minibeads/internal/types"
)

const (
	minHashLen = 3
	maxHashLen = 8
	maxRetries = 16
)

// entropyBytes mirrors the spec's per-length byte-count table.
func entropyBytes(length int) int {
	switch {
	case length <= 3:
		return 2
	case length == 4:
		return 3
	case length <= 6:
		return 4
	default:
		return 5
	}
}

// AdaptiveLength picks the hashed-tail length for a population of size n,
// per spec.md §4.1's table.
func AdaptiveLength(n int) int {
	switch {
	case n < 10:
		return 3
	case n < 100:
		return 4
	case n < 1000:
		return 5
	case n < 10000:
		return 6
	case n < 100000:
		return 7
	default:
		return 8
	}
}

const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// encodeBase36 renders n as a base-36 string, zero-padded (or truncated
// from the left) to exactly width characters.
func encodeBase36(n *big.Int, width int) string {
	s := n.Text(36)
	if len(s) < width {
		pad := make([]byte, width-len(s))
		for i := range pad {
			pad[i] = '0'
		}
		return string(pad) + s
	}
	if len(s) > width {
		return s[len(s)-width:]
	}
	return s
}

// NextSequential implements the Sequential scheme: 1 + max(taken, 0).
func NextSequential(taken map[uint64]bool) (uint64, error) {
	var max uint64
	for n := range taken {
		if n > max {
			max = n
		}
	}
	if max == ^uint64(0) {
		return 0, types.NewError(types.ErrIdSpaceExhausted, "idalloc.NextSequential", "", nil)
	}
	return max + 1, nil
}

// NextHashed implements the Hashed scheme: adaptive-length base-36 tail
// drawn from entropy, widened on bounded collision retry. entropy defaults
// to crypto/rand.Reader; tests may inject a deterministic reader.
func NextHashed(taken map[string]bool, entropy io.Reader) (string, error) {
	if entropy == nil {
		entropy = rand.Reader
	}
	// AdaptiveLength is keyed on the population size *after* this
	// allocation (len(taken)+1), not before: the boundary in spec.md's
	// worked example falls when creating the 10th issue (9 already
	// taken), which must already draw a length-4 tail.
	length := AdaptiveLength(len(taken) + 1)

	for length <= maxHashLen {
		for attempt := 0; attempt < maxRetries; attempt++ {
			nbytes := entropyBytes(length)
			buf := make([]byte, nbytes)
			if _, err := io.ReadFull(entropy, buf); err != nil {
				return "", types.NewError(types.ErrIoError, "idalloc.NextHashed", "", err)
			}
			n := new(big.Int).SetBytes(buf)
			tail := encodeBase36(n, length)
			if !taken[tail] {
				return tail, nil
			}
		}
		length++
	}
	return "", types.NewError(types.ErrIdSpaceExhausted, "idalloc.NextHashed", "", nil)
}
