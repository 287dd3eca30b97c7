package domain

// SwapResult carries the new positions for both sides of a swap.
type SwapResult struct {
	Active GridPosition
	Over   GridPosition
}

// SwapPositions exchanges cells while each side keeps its own spans.
// A side pushed past the right edge is clamped back independently.
func SwapPositions(active, over GridPosition, columns int) SwapResult {
	nextActive := active.At(over.Column, over.Row)
	nextOver := over.At(active.Column, active.Row)
	if !InBounds(nextActive, columns) {
		nextActive.Column = max(1, columns-nextActive.ColSpan()+1)
	}
	if !InBounds(nextOver, columns) {
		nextOver.Column = max(1, columns-nextOver.ColSpan()+1)
	}
	return SwapResult{Active: nextActive, Over: nextOver}
}

// ResolveSwap looks both ids up and computes their swapped positions.
// ok is false when either id is absent.
func ResolveSwap(items []Item, activeID, overID string, columns int) (SwapResult, bool) {
	ai := FindItem(items, activeID)
	oi := FindItem(items, overID)
	if ai < 0 || oi < 0 {
		return SwapResult{}, false
	}
	return SwapPositions(items[ai].Position, items[oi].Position, columns), true
}
