package app

import (
	"cmp"
	"slices"
)

// Breakpoint maps a minimum container width to a column count.
type Breakpoint struct {
	MinWidth float64
	Columns  int
}

// DefaultBreakpoints returns the stock responsive thresholds.
func DefaultBreakpoints() []Breakpoint {
	return []Breakpoint{
		{MinWidth: 0, Columns: 1},
		{MinWidth: 480, Columns: 2},
		{MinWidth: 768, Columns: 3},
		{MinWidth: 1024, Columns: 4},
	}
}

// ColumnsForWidth picks the column count of the widest breakpoint width reaches.
func ColumnsForWidth(breakpoints []Breakpoint, width float64) int {
	if len(breakpoints) == 0 {
		breakpoints = DefaultBreakpoints()
	}
	sorted := sanitizeBreakpoints(breakpoints)
	columns := sorted[0].Columns
	for _, bp := range sorted {
		if width >= bp.MinWidth {
			columns = bp.Columns
		}
	}
	return columns
}

func sanitizeBreakpoints(in []Breakpoint) []Breakpoint {
	out := make([]Breakpoint, 0, len(in))
	for _, bp := range in {
		if bp.Columns < 1 || bp.MinWidth < 0 {
			continue
		}
		out = append(out, bp)
	}
	if len(out) == 0 {
		return DefaultBreakpoints()
	}
	slices.SortStableFunc(out, func(a, b Breakpoint) int {
		return cmp.Compare(a.MinWidth, b.MinWidth)
	})
	return out
}
