package domain

// CellSize is the pixel size of one grid cell. Cells are square.
type CellSize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// PixelRect is an item's absolute box inside the grid container.
type PixelRect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// CellSizeFor derives the square cell size from the container width.
func CellSizeFor(gridWidth float64, columns int, gap float64) CellSize {
	if columns <= 0 || gridWidth <= 0 {
		return CellSize{}
	}
	width := (gridWidth - gap*float64(columns-1)) / float64(columns)
	if width <= 0 {
		return CellSize{}
	}
	return CellSize{Width: width, Height: width}
}

// ItemPixelRect converts a grid position into a pixel box.
func ItemPixelRect(pos GridPosition, cell CellSize, gap float64) PixelRect {
	width, height := OverlaySize(pos.ColSpan(), pos.RSpan(), cell.Width, cell.Height, gap)
	return PixelRect{
		Left:   float64(pos.Column-1) * (cell.Width + gap),
		Top:    float64(pos.Row-1) * (cell.Height + gap),
		Width:  width,
		Height: height,
	}
}

// OverlaySize returns the pixel size of a span, independent of position.
func OverlaySize(columnSpan, rowSpan int, cellWidth, cellHeight, gap float64) (float64, float64) {
	if columnSpan <= 0 {
		columnSpan = 1
	}
	if rowSpan <= 0 {
		rowSpan = 1
	}
	width := float64(columnSpan)*cellWidth + float64(columnSpan-1)*gap
	height := float64(rowSpan)*cellHeight + float64(rowSpan-1)*gap
	return width, height
}

// ContainerHeight returns the pixel height needed to show every item.
// ok is false when the height should be left to the renderer ("auto").
func ContainerHeight(positions []GridPosition, cellHeight, gap float64) (height float64, ok bool) {
	if len(positions) == 0 || cellHeight == 0 {
		return 0, false
	}
	maxRow := MaxRowEnd(positions)
	return float64(maxRow)*cellHeight + float64(maxRow-1)*gap, true
}

// MaxRowEnd returns the largest row covered by any position, or 0.
func MaxRowEnd(positions []GridPosition) int {
	maxRow := 0
	for _, pos := range positions {
		if end := pos.RowEnd(); end > maxRow {
			maxRow = end
		}
	}
	return maxRow
}

// Positions extracts item positions in order.
func Positions(items []Item) []GridPosition {
	out := make([]GridPosition, 0, len(items))
	for _, it := range items {
		out = append(out, it.Position)
	}
	return out
}
