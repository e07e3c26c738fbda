package mapping

import "sort"

const (
	DefaultSpacing    = 50.0
	DefaultTopPadding = 0.0
)

// LayoutOptions controls the cosmetic grid used by Layout.
type LayoutOptions struct {
	Spacing    float64
	TopPadding float64
}

// PlacedNode is a PixelNode with display coordinates.
type PlacedNode struct {
	PixelNode
	Row int     `json:"row"`
	X   float64 `json:"x"`
	Y   float64 `json:"y"`
}

// Layout places nodes on a grid for display. Walking the nodes in LedIndex
// order, a new row starts when the position step reverses direction after
// the current row has already taken a step. Coordinates never feed back into
// the node set.
func Layout(nodes Nodes, opts LayoutOptions) []PlacedNode {
	spacing := opts.Spacing
	if spacing <= 0 {
		spacing = DefaultSpacing
	}
	top := opts.TopPadding
	if top < 0 {
		top = DefaultTopPadding
	}
	half := spacing / 2

	sorted := nodes.Clone()
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LedIndex < sorted[j].LedIndex })

	out := make([]PlacedNode, 0, len(sorted))
	row, dir := 0, 0
	for i, node := range sorted {
		if i > 0 {
			step := sign(node.PosIndex - sorted[i-1].PosIndex)
			switch {
			case step == 0:
			case dir == 0:
				dir = step
			case step != dir:
				row++
				dir = 0
			}
		}
		out = append(out, PlacedNode{
			PixelNode: node,
			Row:       row,
			X:         float64(node.PosIndex)*spacing + half,
			Y:         float64(row)*spacing + top + half,
		})
	}
	return out
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
