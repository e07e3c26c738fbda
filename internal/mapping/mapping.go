// Package mapping holds the physical-to-logical pixel model: a node set in
// which every pixel keeps its wiring index and carries a mutable display
// position, plus the projection to the persisted ledmap form.
package mapping

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrUnknownPixel indicates a ledIndex that is not part of the node set.
	ErrUnknownPixel = errors.New("unknown pixel")

	// ErrInvalidMapping indicates a node set or persisted mapping that is not a dense permutation.
	ErrInvalidMapping = errors.New("invalid mapping")
)

// PixelNode pairs a fixed physical index with its logical display position.
type PixelNode struct {
	LedIndex int `json:"led_index"`
	PosIndex int `json:"pos_index"`
}

// Nodes is a node set ordered by ascending LedIndex.
type Nodes []PixelNode

// Persisted is the stored ledmap: element i is the LedIndex shown at position i.
type Persisted []int

// Identity returns the node set where every pixel sits at its own index.
func Identity(total int) Nodes {
	if total <= 0 {
		return Nodes{}
	}
	out := make(Nodes, total)
	for i := range out {
		out[i] = PixelNode{LedIndex: i, PosIndex: i}
	}
	return out
}

// IdentityPersisted is the persisted form of Identity(total).
func IdentityPersisted(total int) Persisted {
	if total <= 0 {
		return Persisted{}
	}
	out := make(Persisted, total)
	for i := range out {
		out[i] = i
	}
	return out
}

// Seed builds a node set of size total from a stored mapping.
//
// The stored mapping is inverted into nodes ordered by LedIndex and used where
// it has entries; pixels beyond its length get identity nodes. When the stored
// mapping is longer than total, the surplus pixels are dropped and positions
// are re-ranked so they stay dense. A stored mapping that is not a permutation
// yields the identity node set.
func Seed(p Persisted, total int) Nodes {
	if total <= 0 {
		return Nodes{}
	}
	if len(p) == 0 || p.Validate() != nil {
		return Identity(total)
	}

	inverted := p.invert()
	out := make(Nodes, total)
	for i := range out {
		if i < len(inverted) {
			out[i] = inverted[i]
			continue
		}
		out[i] = PixelNode{LedIndex: i, PosIndex: i}
	}
	if len(inverted) > total {
		out.rerank()
	}
	return out
}

func (p Persisted) invert() Nodes {
	out := make(Nodes, len(p))
	for pos, led := range p {
		out[pos] = PixelNode{LedIndex: led, PosIndex: pos}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LedIndex < out[j].LedIndex })
	return out
}

// rerank rewrites PosIndex values to 0..len-1 keeping their relative order.
func (n Nodes) rerank() {
	order := make([]int, len(n))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return n[order[a]].PosIndex < n[order[b]].PosIndex })
	for rank, idx := range order {
		n[idx].PosIndex = rank
	}
}

// ToPersisted sorts by PosIndex and projects LedIndex.
func (n Nodes) ToPersisted() Persisted {
	sorted := n.Clone()
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PosIndex < sorted[j].PosIndex })
	out := make(Persisted, len(sorted))
	for i, node := range sorted {
		out[i] = node.LedIndex
	}
	return out
}

func (n Nodes) Clone() Nodes {
	if n == nil {
		return nil
	}
	out := make(Nodes, len(n))
	copy(out, n)
	return out
}

// Find returns the node for ledIndex.
func (n Nodes) Find(ledIndex int) (PixelNode, bool) {
	if i := n.indexOfLed(ledIndex); i >= 0 {
		return n[i], true
	}
	return PixelNode{}, false
}

func (n Nodes) indexOfLed(ledIndex int) int {
	// Fast path: node sets built by this package keep LedIndex == slice index.
	if ledIndex >= 0 && ledIndex < len(n) && n[ledIndex].LedIndex == ledIndex {
		return ledIndex
	}
	for i, node := range n {
		if node.LedIndex == ledIndex {
			return i
		}
	}
	return -1
}

// Validate checks that both LedIndex and PosIndex form {0..len-1}.
func (n Nodes) Validate() error {
	leds := make([]bool, len(n))
	positions := make([]bool, len(n))
	for _, node := range n {
		if node.LedIndex < 0 || node.LedIndex >= len(n) || leds[node.LedIndex] {
			return fmt.Errorf("%w: led index %d", ErrInvalidMapping, node.LedIndex)
		}
		if node.PosIndex < 0 || node.PosIndex >= len(n) || positions[node.PosIndex] {
			return fmt.Errorf("%w: position %d", ErrInvalidMapping, node.PosIndex)
		}
		leds[node.LedIndex] = true
		positions[node.PosIndex] = true
	}
	return nil
}

// Validate checks that p is a permutation of {0..len-1}.
func (p Persisted) Validate() error {
	seen := make([]bool, len(p))
	for pos, led := range p {
		if led < 0 || led >= len(p) {
			return fmt.Errorf("%w: position %d holds out-of-range led %d", ErrInvalidMapping, pos, led)
		}
		if seen[led] {
			return fmt.Errorf("%w: led %d appears more than once", ErrInvalidMapping, led)
		}
		seen[led] = true
	}
	return nil
}

// Equal reports whether both mappings have the same length and elements.
func (p Persisted) Equal(other Persisted) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// IndexOf returns the position holding ledIndex, or -1.
func (p Persisted) IndexOf(ledIndex int) int {
	for pos, led := range p {
		if led == ledIndex {
			return pos
		}
	}
	return -1
}

func (p Persisted) Clone() Persisted {
	if p == nil {
		return nil
	}
	out := make(Persisted, len(p))
	copy(out, p)
	return out
}
