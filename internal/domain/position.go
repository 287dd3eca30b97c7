package domain

import "fmt"

// MaxSpan is the largest column or row span a grid item may occupy.
const MaxSpan = 2

// GridPosition places one item on the grid. Columns and rows are 1-based.
type GridPosition struct {
	Column     int `json:"column"`
	Row        int `json:"row"`
	ColumnSpan int `json:"columnSpan"`
	RowSpan    int `json:"rowSpan,omitempty"`
}

// ColSpan returns the column span, reading zero as 1.
func (p GridPosition) ColSpan() int {
	if p.ColumnSpan <= 0 {
		return 1
	}
	return p.ColumnSpan
}

// RSpan returns the row span, reading zero as 1.
func (p GridPosition) RSpan() int {
	if p.RowSpan <= 0 {
		return 1
	}
	return p.RowSpan
}

// ColumnEnd returns the last column covered by the position.
func (p GridPosition) ColumnEnd() int {
	return p.Column + p.ColSpan() - 1
}

// RowEnd returns the last row covered by the position.
func (p GridPosition) RowEnd() int {
	return p.Row + p.RSpan() - 1
}

// At returns a copy moved to column/row with spans unchanged.
func (p GridPosition) At(column, row int) GridPosition {
	p.Column = column
	p.Row = row
	return p
}

// WithSpans returns a copy carrying the given spans.
func (p GridPosition) WithSpans(columnSpan, rowSpan int) GridPosition {
	p.ColumnSpan = columnSpan
	p.RowSpan = rowSpan
	return p
}

// Validate checks coordinates and spans.
func (p GridPosition) Validate() error {
	if p.Column < 1 || p.Row < 1 {
		return fmt.Errorf("%w: column=%d row=%d", ErrInvalidPosition, p.Column, p.Row)
	}
	if !validSpan(p.ColumnSpan) || (p.RowSpan != 0 && !validSpan(p.RowSpan)) {
		return fmt.Errorf("%w: columnSpan=%d rowSpan=%d", ErrInvalidSpan, p.ColumnSpan, p.RowSpan)
	}
	return nil
}

// String renders a compact col,row (span) form for logs.
func (p GridPosition) String() string {
	return fmt.Sprintf("(%d,%d %dx%d)", p.Column, p.Row, p.ColSpan(), p.RSpan())
}

func validSpan(span int) bool {
	return span >= 1 && span <= MaxSpan
}
