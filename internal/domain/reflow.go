package domain

import (
	"cmp"
	"slices"
)

// Reflow places items first-fit in the given order and returns them in that order.
// Every returned layout satisfies ValidateLayout for columns >= 1.
func Reflow(ordered []Item, columns int) []Item {
	placed := make([]Item, 0, len(ordered))
	for _, it := range ordered {
		it.Position = FirstFit(it, placed, columns)
		placed = append(placed, it)
	}
	return placed
}

// FirstFit returns the top-left-most free cell for item against placed.
// Rows past the lowest placed item are always free at column 1, so the scan stops there.
func FirstFit(item Item, placed []Item, columns int) GridPosition {
	if columns < 1 {
		return item.Position
	}
	colSpan, rowSpan := fitSpan(item.Position, columns)
	ceiling := MaxRowEnd(Positions(placed)) + 1
	for row := 1; row <= ceiling; row++ {
		for col := 1; col <= columns-colSpan+1; col++ {
			candidate := GridPosition{Column: col, Row: row, ColumnSpan: colSpan, RowSpan: rowSpan}
			if InBounds(candidate, columns) && !Collides(candidate, item.ID, placed) {
				return candidate
			}
		}
	}
	// Unreachable while the ceiling argument holds.
	return GridPosition{Column: 1, Row: ceiling, ColumnSpan: colSpan, RowSpan: rowSpan}
}

// fitSpan narrows a column span that would never fit the grid.
func fitSpan(pos GridPosition, columns int) (int, int) {
	return min(pos.ColSpan(), columns), pos.RSpan()
}

// NarrowSpans applies the same narrowing to every item.
func NarrowSpans(items []Item, columns int) []Item {
	out := CloneItems(items)
	if columns < 1 {
		return out
	}
	for i := range out {
		colSpan, rowSpan := fitSpan(out[i].Position, columns)
		out[i].Position = out[i].Position.WithSpans(colSpan, rowSpan)
	}
	return out
}

// ReadingOrder sorts items by their saved (row, column). Items the saved
// layout does not know keep their host order after the known ones.
func ReadingOrder(items []Item, saved map[string]GridPosition) []Item {
	type ranked struct {
		item  Item
		pos   GridPosition
		known bool
		index int
	}
	rows := make([]ranked, 0, len(items))
	for idx, it := range items {
		pos, ok := saved[it.ID]
		rows = append(rows, ranked{item: it, pos: pos, known: ok, index: idx})
	}
	slices.SortStableFunc(rows, func(a, b ranked) int {
		switch {
		case a.known && !b.known:
			return -1
		case !a.known && b.known:
			return 1
		case !a.known:
			return cmp.Compare(a.index, b.index)
		}
		if c := cmp.Compare(a.pos.Row, b.pos.Row); c != 0 {
			return c
		}
		if c := cmp.Compare(a.pos.Column, b.pos.Column); c != 0 {
			return c
		}
		return cmp.Compare(a.index, b.index)
	})
	out := make([]Item, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.item)
	}
	return out
}
