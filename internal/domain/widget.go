package domain

import (
	"strings"
	"time"
)

// WidgetSize selects the footprint of a widget card.
type WidgetSize string

// WidgetSizeSmall and related constants define supported card footprints.
const (
	WidgetSizeSmall WidgetSize = "small"
	WidgetSizeWide  WidgetSize = "wide"
	WidgetSizeTall  WidgetSize = "tall"
	WidgetSizeLarge WidgetSize = "large"
)

// WidgetSizes lists supported sizes in display order.
func WidgetSizes() []WidgetSize {
	return []WidgetSize{WidgetSizeSmall, WidgetSizeWide, WidgetSizeTall, WidgetSizeLarge}
}

// ParseWidgetSize normalizes a user-supplied size.
func ParseWidgetSize(raw string) (WidgetSize, error) {
	size := WidgetSize(strings.ToLower(strings.TrimSpace(raw)))
	switch size {
	case "":
		return WidgetSizeSmall, nil
	case WidgetSizeSmall, WidgetSizeWide, WidgetSizeTall, WidgetSizeLarge:
		return size, nil
	default:
		return "", ErrInvalidSize
	}
}

// Spans returns the column and row span for the size.
func (s WidgetSize) Spans() (int, int) {
	switch s {
	case WidgetSizeWide:
		return 2, 1
	case WidgetSizeTall:
		return 1, 2
	case WidgetSizeLarge:
		return 2, 2
	default:
		return 1, 1
	}
}

// Widget is the host-side definition of one dashboard card.
type Widget struct {
	ID          string
	DashboardID string
	Kind        string
	Title       string
	Body        string
	Size        WidgetSize
	Position    GridPosition
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// WidgetInput holds values for NewWidget.
type WidgetInput struct {
	ID          string
	DashboardID string
	Kind        string
	Title       string
	Body        string
	Size        WidgetSize
	Column      int
	Row         int
}

// NewWidget validates input and builds a widget whose position carries the size's spans.
func NewWidget(in WidgetInput, now time.Time) (Widget, error) {
	id := strings.TrimSpace(in.ID)
	if id == "" {
		return Widget{}, ErrInvalidID
	}
	dashboardID := strings.TrimSpace(in.DashboardID)
	if dashboardID == "" {
		return Widget{}, ErrInvalidDashboard
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return Widget{}, ErrInvalidTitle
	}
	size, err := ParseWidgetSize(string(in.Size))
	if err != nil {
		return Widget{}, err
	}
	kind := strings.ToLower(strings.TrimSpace(in.Kind))
	if kind == "" {
		kind = "note"
	}
	column, row := in.Column, in.Row
	if column == 0 {
		column = 1
	}
	if row == 0 {
		row = 1
	}
	colSpan, rowSpan := size.Spans()
	pos := GridPosition{Column: column, Row: row, ColumnSpan: colSpan, RowSpan: rowSpan}
	if err := pos.Validate(); err != nil {
		return Widget{}, err
	}

	return Widget{
		ID:          id,
		DashboardID: dashboardID,
		Kind:        kind,
		Title:       title,
		Body:        strings.TrimSpace(in.Body),
		Size:        size,
		Position:    pos,
		CreatedAt:   now.UTC(),
		UpdatedAt:   now.UTC(),
	}, nil
}

// Resize changes the size and the spans that derive from it.
func (w *Widget) Resize(size WidgetSize, now time.Time) error {
	size, err := ParseWidgetSize(string(size))
	if err != nil {
		return err
	}
	colSpan, rowSpan := size.Spans()
	w.Size = size
	w.Position = w.Position.WithSpans(colSpan, rowSpan)
	w.UpdatedAt = now.UTC()
	return nil
}

// Rename updates title and body.
func (w *Widget) Rename(title, body string, now time.Time) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrInvalidTitle
	}
	w.Title = title
	w.Body = strings.TrimSpace(body)
	w.UpdatedAt = now.UTC()
	return nil
}

// SetPosition records a new host-supplied position, keeping spans.
func (w *Widget) SetPosition(column, row int, now time.Time) error {
	pos := w.Position.At(column, row)
	if err := pos.Validate(); err != nil {
		return err
	}
	w.Position = pos
	w.UpdatedAt = now.UTC()
	return nil
}

// Item converts the definition into a layout item.
func (w Widget) Item() Item {
	colSpan, rowSpan := w.Size.Spans()
	return Item{
		ID:       w.ID,
		Size:     w.Size,
		Position: w.Position.WithSpans(colSpan, rowSpan),
		Payload:  w,
	}
}

// WidgetItems converts definitions in order.
func WidgetItems(widgets []Widget) []Item {
	out := make([]Item, 0, len(widgets))
	for _, w := range widgets {
		out = append(out, w.Item())
	}
	return out
}
