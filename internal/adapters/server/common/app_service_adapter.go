package common

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hylla/tessera/internal/app"
	"github.com/hylla/tessera/internal/domain"
)

// AppServiceAdapter maps transport contracts onto app.Service layout and widget APIs.
type AppServiceAdapter struct {
	service *app.Service
	actor   app.MutationActor
}

// NewAppServiceAdapter builds one common adapter over an app.Service instance.
func NewAppServiceAdapter(service *app.Service) *AppServiceAdapter {
	return &AppServiceAdapter{service: service}
}

// WithActor returns a copy that attributes mutations to actor unless the request context already names one.
func (a *AppServiceAdapter) WithActor(actor app.MutationActor) *AppServiceAdapter {
	if a == nil {
		return nil
	}
	out := *a
	out.actor = actor
	return &out
}

// Layout returns the committed layout for one dashboard.
func (a *AppServiceAdapter) Layout(ctx context.Context, in LayoutRequest) (Layout, error) {
	if err := a.ready(); err != nil {
		return Layout{}, err
	}
	if in.Columns < 0 || in.GridWidth < 0 {
		return Layout{}, fmt.Errorf("layout: columns and grid_width must be >= 0: %w", ErrInvalidRequest)
	}
	view, err := a.service.Layout(ctx, app.LayoutQuery{
		DashboardID: strings.TrimSpace(in.DashboardID),
		Columns:     in.Columns,
		GridWidth:   in.GridWidth,
	})
	if err != nil {
		return Layout{}, mapAppError("layout", err)
	}
	return layoutFromView(view), nil
}

// MoveWidget moves one widget to an explicit cell.
func (a *AppServiceAdapter) MoveWidget(ctx context.Context, in MoveWidgetRequest) (Layout, error) {
	if err := a.ready(); err != nil {
		return Layout{}, err
	}
	if strings.TrimSpace(in.WidgetID) == "" {
		return Layout{}, fmt.Errorf("move widget: widget_id is required: %w", ErrInvalidRequest)
	}
	view, err := a.service.MoveWidget(a.attribute(ctx), app.MoveWidgetInput{
		DashboardID: strings.TrimSpace(in.DashboardID),
		WidgetID:    in.WidgetID,
		Columns:     in.Columns,
		Column:      in.Column,
		Row:         in.Row,
	})
	if err != nil {
		return Layout{}, mapAppError("move widget", err)
	}
	return layoutFromView(view), nil
}

// DragWidget resolves one drag gesture into a cell and commits it.
func (a *AppServiceAdapter) DragWidget(ctx context.Context, in DragWidgetRequest) (Layout, error) {
	if err := a.ready(); err != nil {
		return Layout{}, err
	}
	if strings.TrimSpace(in.WidgetID) == "" {
		return Layout{}, fmt.Errorf("drag widget: widget_id is required: %w", ErrInvalidRequest)
	}
	if in.GridWidth <= 0 {
		return Layout{}, fmt.Errorf("drag widget: grid_width must be > 0: %w", ErrInvalidRequest)
	}
	view, err := a.service.DragWidget(a.attribute(ctx), app.DragWidgetInput{
		DashboardID: strings.TrimSpace(in.DashboardID),
		WidgetID:    in.WidgetID,
		Columns:     in.Columns,
		DeltaX:      in.DeltaX,
		DeltaY:      in.DeltaY,
		GridWidth:   in.GridWidth,
		Gap:         in.Gap,
	})
	if err != nil {
		return Layout{}, mapAppError("drag widget", err)
	}
	return layoutFromView(view), nil
}

// SwapWidgets exchanges the cells of two widgets.
func (a *AppServiceAdapter) SwapWidgets(ctx context.Context, in SwapWidgetsRequest) (Layout, error) {
	if err := a.ready(); err != nil {
		return Layout{}, err
	}
	if strings.TrimSpace(in.ActiveID) == "" || strings.TrimSpace(in.OverID) == "" {
		return Layout{}, fmt.Errorf("swap widgets: active_id and over_id are required: %w", ErrInvalidRequest)
	}
	view, err := a.service.SwapWidgets(a.attribute(ctx), app.SwapWidgetsInput{
		DashboardID: strings.TrimSpace(in.DashboardID),
		ActiveID:    in.ActiveID,
		OverID:      in.OverID,
		Columns:     in.Columns,
	})
	if err != nil {
		return Layout{}, mapAppError("swap widgets", err)
	}
	return layoutFromView(view), nil
}

// ResetLayout reflows one dashboard in host order.
func (a *AppServiceAdapter) ResetLayout(ctx context.Context, in ResetLayoutRequest) (Layout, error) {
	if err := a.ready(); err != nil {
		return Layout{}, err
	}
	view, err := a.service.ResetLayout(a.attribute(ctx), strings.TrimSpace(in.DashboardID), in.Columns)
	if err != nil {
		return Layout{}, mapAppError("reset layout", err)
	}
	return layoutFromView(view), nil
}

// ListWidgets lists widget definitions for one dashboard in host order.
func (a *AppServiceAdapter) ListWidgets(ctx context.Context, dashboardID string) ([]Widget, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	widgets, err := a.service.ListWidgets(ctx, strings.TrimSpace(dashboardID))
	if err != nil {
		return nil, mapAppError("list widgets", err)
	}
	out := make([]Widget, 0, len(widgets))
	for _, widget := range widgets {
		out = append(out, widgetFromDomain(widget))
	}
	return out, nil
}

// CreateWidget registers one widget at the first free cell.
func (a *AppServiceAdapter) CreateWidget(ctx context.Context, in CreateWidgetRequest) (Widget, error) {
	if err := a.ready(); err != nil {
		return Widget{}, err
	}
	size, err := domain.ParseWidgetSize(in.Size)
	if err != nil {
		return Widget{}, mapAppError("create widget", err)
	}
	widget, err := a.service.CreateWidget(a.attribute(ctx), app.CreateWidgetInput{
		DashboardID: strings.TrimSpace(in.DashboardID),
		Kind:        in.Kind,
		Title:       in.Title,
		Body:        in.Body,
		Size:        size,
	})
	if err != nil {
		return Widget{}, mapAppError("create widget", err)
	}
	return widgetFromDomain(widget), nil
}

// ResizeWidget changes one widget's size.
func (a *AppServiceAdapter) ResizeWidget(ctx context.Context, in ResizeWidgetRequest) (Widget, error) {
	if err := a.ready(); err != nil {
		return Widget{}, err
	}
	if strings.TrimSpace(in.Size) == "" {
		return Widget{}, fmt.Errorf("resize widget: size is required: %w", ErrInvalidRequest)
	}
	size, err := domain.ParseWidgetSize(in.Size)
	if err != nil {
		return Widget{}, mapAppError("resize widget", err)
	}
	widget, err := a.service.ResizeWidget(a.attribute(ctx), in.WidgetID, size)
	if err != nil {
		return Widget{}, mapAppError("resize widget", err)
	}
	return widgetFromDomain(widget), nil
}

// EditWidget replaces one widget's title or body.
func (a *AppServiceAdapter) EditWidget(ctx context.Context, in EditWidgetRequest) (Widget, error) {
	if err := a.ready(); err != nil {
		return Widget{}, err
	}
	if in.Title == nil && in.Body == nil {
		return Widget{}, fmt.Errorf("edit widget: title or body is required: %w", ErrInvalidRequest)
	}
	widget, err := a.service.EditWidget(a.attribute(ctx), app.EditWidgetInput{
		WidgetID: in.WidgetID,
		Title:    in.Title,
		Body:     in.Body,
	})
	if err != nil {
		return Widget{}, mapAppError("edit widget", err)
	}
	return widgetFromDomain(widget), nil
}

// DeleteWidget removes one widget definition.
func (a *AppServiceAdapter) DeleteWidget(ctx context.Context, widgetID string) error {
	if err := a.ready(); err != nil {
		return err
	}
	return mapAppError("delete widget", a.service.DeleteWidget(a.attribute(ctx), widgetID))
}

// ListLayoutEvents lists recent layout activity, newest first.
func (a *AppServiceAdapter) ListLayoutEvents(ctx context.Context, in ListEventsRequest) ([]LayoutEvent, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	if in.Limit < 0 {
		return nil, fmt.Errorf("list layout events: limit must be >= 0: %w", ErrInvalidRequest)
	}
	events, err := a.service.ListLayoutEvents(ctx, strings.TrimSpace(in.DashboardID), in.Limit)
	if err != nil {
		return nil, mapAppError("list layout events", err)
	}
	out := make([]LayoutEvent, 0, len(events))
	for _, event := range events {
		out = append(out, LayoutEvent{
			ID:          event.ID,
			DashboardID: event.DashboardID,
			WidgetID:    event.WidgetID,
			Operation:   string(event.Operation),
			Metadata:    event.Metadata,
			OccurredAt:  event.OccurredAt,
		})
	}
	return out, nil
}

// ready guards against a zero-value adapter.
func (a *AppServiceAdapter) ready() error {
	if a == nil || a.service == nil {
		return fmt.Errorf("app service adapter is not configured: %w", ErrInvalidRequest)
	}
	return nil
}

// attribute stamps the adapter's actor onto ctx when the caller did not supply one.
func (a *AppServiceAdapter) attribute(ctx context.Context) context.Context {
	if strings.TrimSpace(a.actor.ActorID) == "" && a.actor.ActorType == "" {
		return ctx
	}
	if _, ok := app.MutationActorFromContext(ctx); ok {
		return ctx
	}
	return app.WithMutationActor(ctx, a.actor)
}

// layoutFromView converts one app layout view into its transport shape.
func layoutFromView(view app.LayoutView) Layout {
	out := Layout{
		DashboardID: view.DashboardID,
		Columns:     view.Columns,
		Rows:        view.Rows,
		Source:      string(view.Source),
		Widgets:     make([]Widget, 0, len(view.Widgets)),
	}
	for _, widget := range view.Widgets {
		out.Widgets = append(out.Widgets, widgetFromDomain(widget))
	}
	return out
}

// widgetFromDomain converts one domain widget into its transport shape.
func widgetFromDomain(widget domain.Widget) Widget {
	return Widget{
		ID:          widget.ID,
		DashboardID: widget.DashboardID,
		Kind:        widget.Kind,
		Title:       widget.Title,
		Body:        widget.Body,
		Size:        string(widget.Size),
		Cell: Cell{
			Column:     widget.Position.Column,
			Row:        widget.Position.Row,
			ColumnSpan: widget.Position.ColumnSpan,
			RowSpan:    widget.Position.RowSpan,
		},
		CreatedAt: widget.CreatedAt,
		UpdatedAt: widget.UpdatedAt,
	}
}

// mapAppError maps app/domain errors into stable transport-facing error categories.
func mapAppError(operation string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, app.ErrNotFound), errors.Is(err, domain.ErrMissingItem):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrNotFound, err))
	case app.IsConflict(err), errors.Is(err, app.ErrNotReady):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrConflict, err))
	case errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidTitle),
		errors.Is(err, domain.ErrInvalidPosition),
		errors.Is(err, domain.ErrInvalidSpan),
		errors.Is(err, domain.ErrInvalidSize),
		errors.Is(err, domain.ErrInvalidColumns),
		errors.Is(err, domain.ErrInvalidDashboard),
		errors.Is(err, domain.ErrDuplicateItem),
		errors.Is(err, domain.ErrInvalidLayoutJSON),
		errors.Is(err, app.ErrInvalidSnapshot):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrInvalidRequest, err))
	default:
		return fmt.Errorf("%s: %w", operation, err)
	}
}
