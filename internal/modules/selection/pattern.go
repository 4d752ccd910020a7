// Package selection chooses exactly k of n assets minimizing a risk/return
// tradeoff, either by exhaustive enumeration or by a cross-entropy sampler.
package selection

import (
	"fmt"
	"math/bits"
	"strings"
)

// MaxPatternAssets is the widest universe a Pattern can represent
const MaxPatternAssets = 32

// Pattern is an inclusion bitmask: bit i set means asset i is selected
type Pattern uint32

// PatternOf builds a pattern from asset indices
func PatternOf(indices ...int) Pattern {
	var p Pattern
	for _, i := range indices {
		p |= 1 << uint(i)
	}
	return p
}

// Has reports whether asset i is selected
func (p Pattern) Has(i int) bool {
	return p&(1<<uint(i)) != 0
}

// Count returns the number of selected assets
func (p Pattern) Count() int {
	return bits.OnesCount32(uint32(p))
}

// Indices returns the selected asset indices in ascending order
func (p Pattern) Indices() []int {
	out := make([]int, 0, p.Count())
	for v := uint32(p); v != 0; v &= v - 1 {
		out = append(out, bits.TrailingZeros32(v))
	}
	return out
}

// Key renders the pattern as an n-character bitstring; character i is asset i
func (p Pattern) Key(n int) string {
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		if p.Has(i) {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// ParsePattern parses a bitstring produced by Key
func ParsePattern(key string) (Pattern, error) {
	if len(key) > MaxPatternAssets {
		return 0, fmt.Errorf("pattern %q longer than %d assets", key, MaxPatternAssets)
	}
	var p Pattern
	for i, c := range key {
		switch c {
		case '1':
			p |= 1 << uint(i)
		case '0':
		default:
			return 0, fmt.Errorf("invalid character %q in pattern %q", c, key)
		}
	}
	return p, nil
}

// LexLess reports whether p's ascending index tuple sorts before q's.
// Both patterns must select the same number of assets.
func (p Pattern) LexLess(q Pattern) bool {
	diff := p ^ q
	if diff == 0 {
		return false
	}
	// Below the lowest differing bit the tuples agree; whoever holds that bit has the smaller next index
	return p&(diff&-diff) != 0
}
