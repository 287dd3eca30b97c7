package domain

import "math"

// PixelDelta is the pointer travel of one drag gesture.
type PixelDelta struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ResolveDragPosition maps a drag delta to a clamped grid cell.
// It never checks collisions; callers gate the result through Collides.
func ResolveDragPosition(current GridPosition, delta PixelDelta, cell CellSize, columns int, gap float64) GridPosition {
	columnDelta := snapDelta(delta.X, cell.Width+gap)
	rowDelta := snapDelta(delta.Y, cell.Height+gap)

	next := current
	next.Column = clamp(current.Column+columnDelta, 1, columns-current.ColSpan()+1)
	next.Row = max(1, current.Row+rowDelta)
	return next
}

// snapDelta rounds half-up so travel under half a step snaps back to zero.
func snapDelta(travel, step float64) int {
	if step <= 0 {
		return 0
	}
	return int(math.Floor(travel/step + 0.5))
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
