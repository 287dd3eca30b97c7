// Package common provides transport-agnostic server contracts used by HTTP and MCP adapters.
package common

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidRequest reports malformed or incomplete transport requests.
var ErrInvalidRequest = errors.New("invalid request")

// ErrConflict reports a placement the layout engine rejected.
var ErrConflict = errors.New("layout conflict")

// ErrNotFound reports missing transport-visible resources.
var ErrNotFound = errors.New("not found")

// LayoutRequest selects one dashboard layout and the column count to lay it out for.
type LayoutRequest struct {
	DashboardID string  `json:"dashboard_id,omitempty"`
	Columns     int     `json:"columns,omitempty"`
	GridWidth   float64 `json:"grid_width,omitempty"`
}

// MoveWidgetRequest moves one widget to an explicit cell.
type MoveWidgetRequest struct {
	DashboardID string `json:"dashboard_id,omitempty"`
	WidgetID    string `json:"widget_id"`
	Columns     int    `json:"columns,omitempty"`
	Column      int    `json:"column"`
	Row         int    `json:"row"`
}

// DragWidgetRequest carries the end-of-drag pixel travel for one widget.
type DragWidgetRequest struct {
	DashboardID string   `json:"dashboard_id,omitempty"`
	WidgetID    string   `json:"widget_id"`
	Columns     int      `json:"columns,omitempty"`
	DeltaX      float64  `json:"delta_x"`
	DeltaY      float64  `json:"delta_y"`
	GridWidth   float64  `json:"grid_width"`
	Gap         *float64 `json:"gap,omitempty"`
}

// SwapWidgetsRequest names the dragged widget and the widget it was dropped over.
type SwapWidgetsRequest struct {
	DashboardID string `json:"dashboard_id,omitempty"`
	ActiveID    string `json:"active_id"`
	OverID      string `json:"over_id"`
	Columns     int    `json:"columns,omitempty"`
}

// ResetLayoutRequest discards the arrangement of one dashboard.
type ResetLayoutRequest struct {
	DashboardID string `json:"dashboard_id,omitempty"`
	Columns     int    `json:"columns,omitempty"`
}

// CreateWidgetRequest registers one widget on a dashboard.
type CreateWidgetRequest struct {
	DashboardID string `json:"dashboard_id,omitempty"`
	Kind        string `json:"kind,omitempty"`
	Title       string `json:"title"`
	Body        string `json:"body,omitempty"`
	Size        string `json:"size,omitempty"`
}

// ResizeWidgetRequest changes one widget's size.
type ResizeWidgetRequest struct {
	WidgetID string `json:"widget_id"`
	Size     string `json:"size"`
}

// EditWidgetRequest replaces a widget's title or body; omitted fields are kept.
type EditWidgetRequest struct {
	WidgetID string  `json:"widget_id"`
	Title    *string `json:"title,omitempty"`
	Body     *string `json:"body,omitempty"`
}

// ListEventsRequest pages recent layout activity for one dashboard.
type ListEventsRequest struct {
	DashboardID string `json:"dashboard_id,omitempty"`
	Limit       int    `json:"limit,omitempty"`
}

// Cell is one widget's placement in a layout response.
type Cell struct {
	Column     int `json:"column"`
	Row        int `json:"row"`
	ColumnSpan int `json:"column_span"`
	RowSpan    int `json:"row_span"`
}

// Widget is the transport shape of one widget card.
type Widget struct {
	ID          string    `json:"id"`
	DashboardID string    `json:"dashboard_id"`
	Kind        string    `json:"kind"`
	Title       string    `json:"title"`
	Body        string    `json:"body,omitempty"`
	Size        string    `json:"size"`
	Cell        Cell      `json:"cell"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Layout is the committed arrangement of one dashboard.
type Layout struct {
	DashboardID string   `json:"dashboard_id"`
	Columns     int      `json:"columns"`
	Rows        int      `json:"rows"`
	Source      string   `json:"source"`
	Widgets     []Widget `json:"widgets"`
}

// LayoutEvent is one activity-log entry for a dashboard layout.
type LayoutEvent struct {
	ID          int64             `json:"id"`
	DashboardID string            `json:"dashboard_id"`
	WidgetID    string            `json:"widget_id,omitempty"`
	Operation   string            `json:"operation"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	OccurredAt  time.Time         `json:"occurred_at"`
}

// LayoutService exposes layout reads and mutations to transports.
type LayoutService interface {
	Layout(context.Context, LayoutRequest) (Layout, error)
	MoveWidget(context.Context, MoveWidgetRequest) (Layout, error)
	DragWidget(context.Context, DragWidgetRequest) (Layout, error)
	SwapWidgets(context.Context, SwapWidgetsRequest) (Layout, error)
	ResetLayout(context.Context, ResetLayoutRequest) (Layout, error)
}

// WidgetService exposes widget definition management to transports.
type WidgetService interface {
	ListWidgets(context.Context, string) ([]Widget, error)
	CreateWidget(context.Context, CreateWidgetRequest) (Widget, error)
	ResizeWidget(context.Context, ResizeWidgetRequest) (Widget, error)
	EditWidget(context.Context, EditWidgetRequest) (Widget, error)
	DeleteWidget(context.Context, string) error
}

// EventService exposes the layout activity log to transports.
type EventService interface {
	ListLayoutEvents(context.Context, ListEventsRequest) ([]LayoutEvent, error)
}

// Readiness reports whether backing storage is reachable.
type Readiness interface {
	Ping(context.Context) error
}
