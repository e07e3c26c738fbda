package mapping

import "fmt"

// Reorder moves ledIndex to newPos and shifts every node between the old and
// new position one slot toward the vacated end. newPos is clamped to the
// node set. The receiver is left untouched; the result is a new node set.
func (n Nodes) Reorder(ledIndex, newPos int) (Nodes, error) {
	idx := n.indexOfLed(ledIndex)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPixel, ledIndex)
	}
	newPos = clamp(newPos, 0, len(n)-1)

	out := n.Clone()
	oldPos := out[idx].PosIndex
	if oldPos == newPos {
		return out, nil
	}

	lo, hi := oldPos, newPos
	adjust := 1
	if oldPos < newPos {
		adjust = -1
	} else {
		lo, hi = newPos, oldPos
	}

	for i := range out {
		p := out[i].PosIndex
		if p < lo || p > hi {
			continue
		}
		if i == idx {
			out[i].PosIndex = newPos
			continue
		}
		out[i].PosIndex = p + adjust
	}
	return out, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
