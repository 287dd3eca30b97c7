package domain

import "fmt"

// InBounds reports whether the position's column range fits within columns.
func InBounds(pos GridPosition, columns int) bool {
	return pos.Column >= 1 && pos.ColumnEnd() <= columns
}

// Overlaps reports whether two rectangles share at least one cell.
func Overlaps(a, b GridPosition) bool {
	rowOverlap := !(a.Row > b.RowEnd() || a.RowEnd() < b.Row)
	colOverlap := !(a.Column > b.ColumnEnd() || a.ColumnEnd() < b.Column)
	return rowOverlap && colOverlap
}

// Collides reports whether candidate overlaps any item other than excludeID.
func Collides(candidate GridPosition, excludeID string, items []Item) bool {
	for _, it := range items {
		if it.ID == excludeID {
			continue
		}
		if Overlaps(candidate, it.Position) {
			return true
		}
	}
	return false
}

// ValidateLayout returns the first invariant violation in a layout, or nil.
func ValidateLayout(items []Item, columns int) error {
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if _, dup := seen[it.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateItem, it.ID)
		}
		seen[it.ID] = struct{}{}
		if it.Position.Row < 1 || !InBounds(it.Position, columns) {
			return fmt.Errorf("%w: %s at %s with %d columns", ErrBoundsViolation, it.ID, it.Position, columns)
		}
	}
	for idx, it := range items {
		for _, other := range items[idx+1:] {
			if Overlaps(it.Position, other.Position) {
				return fmt.Errorf("%w: %s and %s", ErrCollision, it.ID, other.ID)
			}
		}
	}
	return nil
}
