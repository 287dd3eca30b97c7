package domain

import "time"

// LayoutOperation describes one recorded layout activity.
type LayoutOperation string

// LayoutOperation values used by the layout activity ledger.
const (
	LayoutOperationLoad   LayoutOperation = "load"
	LayoutOperationMove   LayoutOperation = "move"
	LayoutOperationSwap   LayoutOperation = "swap"
	LayoutOperationReset  LayoutOperation = "reset"
	LayoutOperationSync   LayoutOperation = "sync"
	LayoutOperationCreate LayoutOperation = "create"
	LayoutOperationResize LayoutOperation = "resize"
	LayoutOperationEdit   LayoutOperation = "edit"
	LayoutOperationDelete LayoutOperation = "delete"
)

// LayoutEvent represents a single activity-log entry for a dashboard layout.
type LayoutEvent struct {
	ID          int64
	DashboardID string
	WidgetID    string
	Operation   LayoutOperation
	Metadata    map[string]string
	OccurredAt  time.Time
}
