package app

import (
	"context"

	"github.com/hylla/tessera/internal/domain"
)

// LayoutStore is the key/value capability layouts persist through.
// Get reports found=false for a missing key; that is not an error.
type LayoutStore interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
}

// LayoutKeyLister enumerates stored layout keys by prefix.
type LayoutKeyLister interface {
	ListLayoutKeys(ctx context.Context, prefix string) ([]string, error)
}

// WidgetRepository stores host widget definitions.
type WidgetRepository interface {
	CreateWidget(context.Context, domain.Widget) error
	UpdateWidget(context.Context, domain.Widget) error
	GetWidget(context.Context, string) (domain.Widget, error)
	ListWidgets(context.Context, string) ([]domain.Widget, error)
	DeleteWidget(context.Context, string) error
}

// LayoutEventRepository stores the layout activity ledger.
type LayoutEventRepository interface {
	AppendLayoutEvent(context.Context, domain.LayoutEvent) error
	ListLayoutEvents(context.Context, string, int) ([]domain.LayoutEvent, error)
}

// Repository groups every persistence port the service needs.
type Repository interface {
	LayoutStore
	LayoutKeyLister
	WidgetRepository
	LayoutEventRepository
}
