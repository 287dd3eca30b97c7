package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hylla/tessera/internal/domain"
)

// ServiceConfig holds configuration for service.
type ServiceConfig struct {
	KeyPrefix        string
	DefaultDashboard string
	DefaultColumns   int
	Gap              float64
	MirrorLegacyKey  bool
	Breakpoints      []Breakpoint
	Logger           Logger
}

// IDGenerator returns unique identifiers for new entities.
type IDGenerator func() string

// Clock returns the current time.
type Clock func() time.Time

// Service is the multi-dashboard layout facade every adapter calls.
type Service struct {
	repo   Repository
	idGen  IDGenerator
	clock  Clock
	cfg    ServiceConfig
	logger Logger

	mu    sync.Mutex
	grids map[string]*Grid
	// locks serialize session selection with the work done on that session.
	locks map[string]*sync.Mutex
}

// NewService constructs a new value for this package.
func NewService(repo Repository, idGen IDGenerator, clock Clock, cfg ServiceConfig) *Service {
	if idGen == nil {
		idGen = func() string { return "" }
	}
	if clock == nil {
		clock = time.Now
	}
	cfg.KeyPrefix = strings.TrimRight(strings.TrimSpace(cfg.KeyPrefix), "/")
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "tessera/layout"
	}
	cfg.DefaultDashboard = strings.TrimSpace(cfg.DefaultDashboard)
	if cfg.DefaultDashboard == "" {
		cfg.DefaultDashboard = "home"
	}
	if cfg.DefaultColumns < 1 {
		cfg.DefaultColumns = 4
	}
	if cfg.Gap < 0 {
		cfg.Gap = 0
	}
	if len(cfg.Breakpoints) == 0 {
		cfg.Breakpoints = DefaultBreakpoints()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = discardLogger()
	}
	return &Service{
		repo:   repo,
		idGen:  idGen,
		clock:  clock,
		cfg:    cfg,
		logger: logger,
		grids:  map[string]*Grid{},
		locks:  map[string]*sync.Mutex{},
	}
}

// DefaultDashboard returns the dashboard id used when callers pass none.
func (s *Service) DefaultDashboard() string {
	return s.cfg.DefaultDashboard
}

// Gap returns the configured pixel gap between cells.
func (s *Service) Gap() float64 {
	return s.cfg.Gap
}

// ColumnsForWidth maps a container width to a column count via configured breakpoints.
func (s *Service) ColumnsForWidth(width float64) int {
	return ColumnsForWidth(s.cfg.Breakpoints, width)
}

// LayoutQuery selects a dashboard and the column count to lay it out for.
// Columns wins over GridWidth; both empty reuse the loaded session.
type LayoutQuery struct {
	DashboardID string
	Columns     int
	GridWidth   float64
}

// LayoutView is a committed layout joined with current widget definitions.
type LayoutView struct {
	DashboardID string
	Columns     int
	Source      LoadSource
	Rows        int
	Widgets     []domain.Widget
}

// Layout returns the committed layout for a dashboard, loading or syncing as needed.
func (s *Service) Layout(ctx context.Context, q LayoutQuery) (LayoutView, error) {
	dashboardID := s.dashboardID(q.DashboardID)
	defer s.lockDashboard(dashboardID)()
	grid, widgets, err := s.session(ctx, dashboardID, s.queryColumns(dashboardID, q))
	if err != nil {
		return LayoutView{}, err
	}
	return s.view(dashboardID, grid, widgets), nil
}

// MoveWidgetInput holds input values for an explicit cell move.
type MoveWidgetInput struct {
	DashboardID string
	WidgetID    string
	Columns     int
	Column      int
	Row         int
}

// MoveWidget moves one widget to an explicit cell.
func (s *Service) MoveWidget(ctx context.Context, in MoveWidgetInput) (LayoutView, error) {
	dashboardID := s.dashboardID(in.DashboardID)
	return s.applyMutation(ctx, dashboardID, in.Columns, domain.LayoutOperationMove, in.WidgetID, func(g *Grid) ([]domain.Item, error) {
		return g.MoveTo(strings.TrimSpace(in.WidgetID), in.Column, in.Row)
	}, map[string]string{"column": itoa(in.Column), "row": itoa(in.Row)})
}

// DragWidgetInput holds the end-of-drag pixel travel for one widget.
type DragWidgetInput struct {
	DashboardID string
	WidgetID    string
	Columns     int
	DeltaX      float64
	DeltaY      float64
	GridWidth   float64
	Gap         *float64
}

// DragWidget resolves a drag gesture into a cell and commits it.
func (s *Service) DragWidget(ctx context.Context, in DragWidgetInput) (LayoutView, error) {
	if in.GridWidth <= 0 {
		return LayoutView{}, fmt.Errorf("%w: grid width must be positive", domain.ErrInvalidPosition)
	}
	gap := s.cfg.Gap
	if in.Gap != nil {
		gap = *in.Gap
	}
	if gap < 0 {
		return LayoutView{}, fmt.Errorf("%w: gap must be >= 0", domain.ErrInvalidPosition)
	}
	dashboardID := s.dashboardID(in.DashboardID)
	columns := in.Columns
	if columns == 0 {
		columns = s.ColumnsForWidth(in.GridWidth)
	}
	cell := domain.CellSizeFor(in.GridWidth, columns, gap)
	delta := domain.PixelDelta{X: in.DeltaX, Y: in.DeltaY}
	return s.applyMutation(ctx, dashboardID, columns, domain.LayoutOperationMove, in.WidgetID, func(g *Grid) ([]domain.Item, error) {
		return g.MoveBy(strings.TrimSpace(in.WidgetID), delta, cell, gap)
	}, map[string]string{"delta_x": fmt.Sprint(in.DeltaX), "delta_y": fmt.Sprint(in.DeltaY)})
}

// SwapWidgetsInput names the two widgets to exchange.
type SwapWidgetsInput struct {
	DashboardID string
	ActiveID    string
	OverID      string
	Columns     int
}

// SwapWidgets exchanges two widgets' cells.
func (s *Service) SwapWidgets(ctx context.Context, in SwapWidgetsInput) (LayoutView, error) {
	dashboardID := s.dashboardID(in.DashboardID)
	activeID := strings.TrimSpace(in.ActiveID)
	overID := strings.TrimSpace(in.OverID)
	return s.applyMutation(ctx, dashboardID, in.Columns, domain.LayoutOperationSwap, activeID, func(g *Grid) ([]domain.Item, error) {
		return g.Swap(activeID, overID)
	}, map[string]string{"over_id": overID})
}

// ResetLayout discards the arrangement and reflows in host order.
func (s *Service) ResetLayout(ctx context.Context, dashboardID string, columns int) (LayoutView, error) {
	dashboardID = s.dashboardID(dashboardID)
	return s.applyMutation(ctx, dashboardID, columns, domain.LayoutOperationReset, "", func(g *Grid) ([]domain.Item, error) {
		return g.Reset()
	}, nil)
}

// CreateWidgetInput holds input values for create widget operations.
type CreateWidgetInput struct {
	DashboardID string
	Kind        string
	Title       string
	Body        string
	Size        domain.WidgetSize
}

// CreateWidget registers a widget at the first free cell of its dashboard.
func (s *Service) CreateWidget(ctx context.Context, in CreateWidgetInput) (domain.Widget, error) {
	dashboardID := s.dashboardID(in.DashboardID)
	existing, err := s.repo.ListWidgets(ctx, dashboardID)
	if err != nil {
		return domain.Widget{}, err
	}
	widget, err := domain.NewWidget(domain.WidgetInput{
		ID:          s.idGen(),
		DashboardID: dashboardID,
		Kind:        in.Kind,
		Title:       in.Title,
		Body:        in.Body,
		Size:        in.Size,
	}, s.clock())
	if err != nil {
		return domain.Widget{}, err
	}

	pos, err := s.placeWidget(ctx, &widget, domain.WidgetItems(existing))
	if err != nil {
		return domain.Widget{}, err
	}
	s.recordEvent(ctx, dashboardID, widget.ID, domain.LayoutOperationCreate, map[string]string{
		"size":   string(widget.Size),
		"column": itoa(pos.Column),
		"row":    itoa(pos.Row),
	})
	s.syncLoaded(ctx, dashboardID)
	return widget, nil
}

// placeWidget stores widget at the first cell free in the loaded session,
// or in the stored definitions when no session is loaded.
func (s *Service) placeWidget(ctx context.Context, widget *domain.Widget, stored []domain.Item) (domain.GridPosition, error) {
	defer s.lockDashboard(widget.DashboardID)()
	placed, columns := stored, s.cfg.DefaultColumns
	if grid := s.loadedGrid(widget.DashboardID); grid != nil && grid.State() == GridReady {
		placed, columns = grid.Items(), grid.Columns()
	}
	pos := domain.FirstFit(widget.Item(), placed, columns)
	if err := widget.SetPosition(pos.Column, pos.Row, s.clock()); err != nil {
		return domain.GridPosition{}, err
	}
	return pos, s.repo.CreateWidget(ctx, *widget)
}

// ResizeWidget changes a widget's size; the loaded layout adopts the new spans.
func (s *Service) ResizeWidget(ctx context.Context, widgetID string, size domain.WidgetSize) (domain.Widget, error) {
	widget, err := s.GetWidget(ctx, widgetID)
	if err != nil {
		return domain.Widget{}, err
	}
	if err := widget.Resize(size, s.clock()); err != nil {
		return domain.Widget{}, err
	}
	if err := s.repo.UpdateWidget(ctx, widget); err != nil {
		return domain.Widget{}, err
	}
	s.recordEvent(ctx, widget.DashboardID, widget.ID, domain.LayoutOperationResize, map[string]string{"size": string(widget.Size)})
	s.syncLoaded(ctx, widget.DashboardID)
	return widget, nil
}

// EditWidgetInput holds replacement text for one widget; nil fields keep their value.
type EditWidgetInput struct {
	WidgetID string
	Title    *string
	Body     *string
}

// EditWidget retitles a widget or replaces its body. Its cell is untouched.
func (s *Service) EditWidget(ctx context.Context, in EditWidgetInput) (domain.Widget, error) {
	widget, err := s.GetWidget(ctx, in.WidgetID)
	if err != nil {
		return domain.Widget{}, err
	}
	title, body := widget.Title, widget.Body
	if in.Title != nil {
		title = *in.Title
	}
	if in.Body != nil {
		body = *in.Body
	}
	if err := widget.Rename(title, body, s.clock()); err != nil {
		return domain.Widget{}, err
	}
	if err := s.repo.UpdateWidget(ctx, widget); err != nil {
		return domain.Widget{}, err
	}
	s.recordEvent(ctx, widget.DashboardID, widget.ID, domain.LayoutOperationEdit, map[string]string{"title": widget.Title})
	return widget, nil
}

// DeleteWidget removes a widget; stale saved positions are never read again.
func (s *Service) DeleteWidget(ctx context.Context, widgetID string) error {
	widget, err := s.GetWidget(ctx, widgetID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteWidget(ctx, widget.ID); err != nil {
		return err
	}
	s.recordEvent(ctx, widget.DashboardID, widget.ID, domain.LayoutOperationDelete, nil)
	s.syncLoaded(ctx, widget.DashboardID)
	return nil
}

// ListWidgets lists a dashboard's widget definitions in host order.
func (s *Service) ListWidgets(ctx context.Context, dashboardID string) ([]domain.Widget, error) {
	return s.repo.ListWidgets(ctx, s.dashboardID(dashboardID))
}

// GetWidget returns one widget definition.
func (s *Service) GetWidget(ctx context.Context, widgetID string) (domain.Widget, error) {
	widgetID, err := domain.NormalizeItemID(widgetID)
	if err != nil {
		return domain.Widget{}, err
	}
	return s.repo.GetWidget(ctx, widgetID)
}

// ListLayoutEvents lists recent layout activity, newest first.
func (s *Service) ListLayoutEvents(ctx context.Context, dashboardID string, limit int) ([]domain.LayoutEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.repo.ListLayoutEvents(ctx, s.dashboardID(dashboardID), limit)
}

// Flush waits for every loaded grid's queued writes.
func (s *Service) Flush(ctx context.Context) error {
	var group errgroup.Group
	for _, grid := range s.loadedGrids() {
		group.Go(func() error {
			return grid.Flush(ctx)
		})
	}
	return group.Wait()
}

// Close flushes and stops every grid.
func (s *Service) Close(ctx context.Context) error {
	var group errgroup.Group
	for _, grid := range s.loadedGrids() {
		group.Go(func() error {
			err := grid.Flush(ctx)
			grid.Close()
			return err
		})
	}
	err := group.Wait()
	s.mu.Lock()
	s.grids = map[string]*Grid{}
	s.mu.Unlock()
	return err
}

// forget drops a dashboard's grid so the next read reloads from storage.
// Queued writes land before it returns. Callers hold the dashboard lock.
func (s *Service) forget(ctx context.Context, dashboardID string) error {
	s.mu.Lock()
	grid, ok := s.grids[dashboardID]
	delete(s.grids, dashboardID)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	err := grid.Flush(ctx)
	grid.Close()
	return err
}

func (s *Service) applyMutation(ctx context.Context, dashboardID string, columns int, op domain.LayoutOperation, widgetID string, fn func(*Grid) ([]domain.Item, error), metadata map[string]string) (LayoutView, error) {
	defer s.lockDashboard(dashboardID)()
	grid, widgets, err := s.session(ctx, dashboardID, s.queryColumns(dashboardID, LayoutQuery{Columns: columns}))
	if err != nil {
		return LayoutView{}, err
	}
	before := grid.Items()
	after, err := fn(grid)
	if err != nil {
		return LayoutView{}, err
	}
	if !samePositions(before, after) {
		if metadata == nil {
			metadata = map[string]string{}
		}
		metadata["columns"] = itoa(grid.Columns())
		s.recordEvent(ctx, dashboardID, strings.TrimSpace(widgetID), op, metadata)
	}
	return s.view(dashboardID, grid, widgets), nil
}

// lockDashboard holds dashboardID's lock until the returned func runs.
// Callers must not already hold it.
func (s *Service) lockDashboard(dashboardID string) func() {
	s.mu.Lock()
	lock, ok := s.locks[dashboardID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[dashboardID] = lock
	}
	s.mu.Unlock()
	lock.Lock()
	return lock.Unlock
}

// session returns a ready grid for columns plus the widgets it was synced against.
// Callers hold the dashboard lock.
func (s *Service) session(ctx context.Context, dashboardID string, columns int) (*Grid, []domain.Widget, error) {
	if columns < 1 {
		return nil, nil, fmt.Errorf("%w: %d", domain.ErrInvalidColumns, columns)
	}
	grid, err := s.gridFor(dashboardID)
	if err != nil {
		return nil, nil, err
	}
	widgets, err := s.repo.ListWidgets(ctx, dashboardID)
	if err != nil {
		return nil, nil, err
	}
	items := domain.WidgetItems(widgets)
	if grid.State() != GridReady || grid.Columns() != columns {
		if _, err := grid.Load(ctx, items, columns); err != nil {
			return nil, nil, err
		}
		s.recordEvent(ctx, dashboardID, "", domain.LayoutOperationLoad, map[string]string{
			"columns": itoa(columns),
			"source":  string(grid.Source()),
		})
		return grid, widgets, nil
	}
	if _, changed := grid.SyncInitialItems(items); changed {
		s.recordEvent(ctx, dashboardID, "", domain.LayoutOperationSync, map[string]string{"items": itoa(len(items))})
	}
	return grid, widgets, nil
}

// syncLoaded reconciles an already loaded grid after a definition change.
func (s *Service) syncLoaded(ctx context.Context, dashboardID string) {
	defer s.lockDashboard(dashboardID)()
	grid := s.loadedGrid(dashboardID)
	if grid == nil || grid.State() != GridReady {
		return
	}
	if _, _, err := s.session(ctx, dashboardID, grid.Columns()); err != nil {
		s.logger.Warn("layout sync after widget change failed", "dashboard", dashboardID, "err", err)
	}
}

func (s *Service) queryColumns(dashboardID string, q LayoutQuery) int {
	switch {
	case q.Columns != 0:
		return q.Columns
	case q.GridWidth > 0:
		return s.ColumnsForWidth(q.GridWidth)
	}
	if grid := s.loadedGrid(dashboardID); grid != nil && grid.Columns() > 0 {
		return grid.Columns()
	}
	return s.cfg.DefaultColumns
}

func (s *Service) gridFor(dashboardID string) (*Grid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if grid, ok := s.grids[dashboardID]; ok {
		return grid, nil
	}
	grid, err := NewGrid(s.repo, GridConfig{
		BaseKey:         s.cfg.KeyPrefix + "/" + dashboardID,
		MirrorLegacyKey: s.cfg.MirrorLegacyKey,
		Logger:          s.logger,
	})
	if err != nil {
		return nil, err
	}
	s.grids[dashboardID] = grid
	return grid, nil
}

func (s *Service) loadedGrid(dashboardID string) *Grid {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.grids[dashboardID]
}

func (s *Service) loadedGrids() []*Grid {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Grid, 0, len(s.grids))
	for _, grid := range s.grids {
		out = append(out, grid)
	}
	return out
}

func (s *Service) view(dashboardID string, grid *Grid, widgets []domain.Widget) LayoutView {
	byID := make(map[string]domain.Widget, len(widgets))
	for _, w := range widgets {
		byID[w.ID] = w
	}
	items := grid.Items()
	out := LayoutView{
		DashboardID: dashboardID,
		Columns:     grid.Columns(),
		Source:      grid.Source(),
		Rows:        domain.MaxRowEnd(domain.Positions(items)),
		Widgets:     make([]domain.Widget, 0, len(items)),
	}
	for _, it := range items {
		w, ok := byID[it.ID]
		if !ok {
			if payload, isWidget := it.Payload.(domain.Widget); isWidget {
				w = payload
			} else {
				w = domain.Widget{ID: it.ID, DashboardID: dashboardID, Size: it.Size}
			}
		}
		w.Position = it.Position
		out.Widgets = append(out.Widgets, w)
	}
	return out
}

func (s *Service) recordEvent(ctx context.Context, dashboardID, widgetID string, op domain.LayoutOperation, metadata map[string]string) {
	event := domain.LayoutEvent{
		DashboardID: dashboardID,
		WidgetID:    widgetID,
		Operation:   op,
		Metadata:    actorMetadata(ctx, metadata),
		OccurredAt:  s.clock().UTC(),
	}
	if err := s.repo.AppendLayoutEvent(ctx, event); err != nil {
		s.logger.Warn("layout event append failed", "dashboard", dashboardID, "op", op, "err", err)
	}
}

func (s *Service) dashboardID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return s.cfg.DefaultDashboard
	}
	return id
}

// IsConflict reports whether err is a rejected placement.
func IsConflict(err error) bool {
	return errors.Is(err, domain.ErrCollision) || errors.Is(err, domain.ErrBoundsViolation)
}
