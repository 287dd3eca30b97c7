package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "charm.land/bubbletea/v2"

	"github.com/hylla/tessera/internal/app"
	"github.com/hylla/tessera/internal/domain"
)

// fakeService records calls and serves a fixed layout.
type fakeService struct {
	view       app.LayoutView
	layoutErr  error
	dragErr    error
	lastQuery  app.LayoutQuery
	lastDrag   app.DragWidgetInput
	lastSwap   app.SwapWidgetsInput
	resets     int
	resized    map[string]domain.WidgetSize
	layoutCall int
}

func newFakeService() *fakeService {
	return &fakeService{
		view: app.LayoutView{
			DashboardID: "home",
			Columns:     3,
			Rows:        2,
			Source:      app.LoadSourceSaved,
			Widgets: []domain.Widget{
				{ID: "w1", Title: "Revenue", Kind: "chart", Size: domain.WidgetSizeSmall, Body: "# Q3\nup 4%",
					Position: domain.GridPosition{Column: 1, Row: 1, ColumnSpan: 1, RowSpan: 1}},
				{ID: "w2", Title: "Traffic", Kind: "chart", Size: domain.WidgetSizeWide,
					Position: domain.GridPosition{Column: 2, Row: 1, ColumnSpan: 2, RowSpan: 1}},
				{ID: "w3", Title: "Notes", Kind: "text", Size: domain.WidgetSizeSmall,
					Position: domain.GridPosition{Column: 1, Row: 2, ColumnSpan: 1, RowSpan: 1}},
			},
		},
		resized: map[string]domain.WidgetSize{},
	}
}

func (f *fakeService) Layout(_ context.Context, q app.LayoutQuery) (app.LayoutView, error) {
	f.layoutCall++
	f.lastQuery = q
	if f.layoutErr != nil {
		return app.LayoutView{}, f.layoutErr
	}
	return f.view, nil
}

func (f *fakeService) DragWidget(_ context.Context, in app.DragWidgetInput) (app.LayoutView, error) {
	f.lastDrag = in
	if f.dragErr != nil {
		return app.LayoutView{}, f.dragErr
	}
	return f.view, nil
}

func (f *fakeService) SwapWidgets(_ context.Context, in app.SwapWidgetsInput) (app.LayoutView, error) {
	f.lastSwap = in
	return f.view, nil
}

func (f *fakeService) ResetLayout(context.Context, string, int) (app.LayoutView, error) {
	f.resets++
	return f.view, nil
}

func (f *fakeService) ResizeWidget(_ context.Context, id string, size domain.WidgetSize) (domain.Widget, error) {
	f.resized[id] = size
	return domain.Widget{ID: id, Size: size}, nil
}

// applyMsg applies one message and drains resulting commands.
func applyMsg(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	updated, cmd := m.Update(msg)
	out, ok := updated.(Model)
	if !ok {
		t.Fatalf("unexpected model type %T", updated)
	}
	return applyCmd(t, out, cmd)
}

// applyCmd executes a command chain until no command remains.
func applyCmd(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	out := m
	for i := 0; i < 6 && cmd != nil; i++ {
		msg := cmd()
		updated, next := out.Update(msg)
		casted, ok := updated.(Model)
		if !ok {
			t.Fatalf("unexpected model type %T", updated)
		}
		out = casted
		cmd = next
	}
	return out
}

func press(r rune) tea.KeyPressMsg {
	return tea.KeyPressMsg{Code: r, Text: string(r)}
}

// loadedModel sizes the model to three columns of default cells.
func loadedModel(t *testing.T, svc *fakeService, opts ...Option) Model {
	t.Helper()
	opts = append([]Option{WithDashboard("home")}, opts...)
	m := NewModel(svc, opts...)
	return applyMsg(t, m, tea.WindowSizeMsg{Width: 3*28 + 2, Height: 40})
}

func TestModelLoadsOnWindowSize(t *testing.T) {
	svc := newFakeService()
	m := loadedModel(t, svc)

	if !m.loaded {
		t.Fatal("expected layout to be loaded")
	}
	if svc.lastQuery.Columns != 3 || svc.lastQuery.DashboardID != "home" {
		t.Fatalf("unexpected query %#v", svc.lastQuery)
	}
	if m.selected != "w1" {
		t.Fatalf("expected first card selected, got %q", m.selected)
	}

	m = applyMsg(t, m, tea.WindowSizeMsg{Width: 3*28 + 2, Height: 30})
	if svc.layoutCall != 1 {
		t.Fatalf("expected no reload for unchanged columns, got %d calls", svc.layoutCall)
	}
	m = applyMsg(t, m, tea.WindowSizeMsg{Width: 28, Height: 30})
	if svc.layoutCall != 2 || svc.lastQuery.Columns != 1 {
		t.Fatalf("expected reload at 1 column, got %d calls %#v", svc.layoutCall, svc.lastQuery)
	}
}

func TestModelColumnsForWidth(t *testing.T) {
	m := NewModel(newFakeService(), WithGridStyle(GridStyle{CellWidth: 10, CellHeight: 4, Gap: 2}))
	cases := map[int]int{0: 1, 9: 1, 10: 1, 22: 2, 33: 2, 34: 3}
	for width, want := range cases {
		if got := m.columnsForWidth(width); got != want {
			t.Fatalf("columnsForWidth(%d) = %d, want %d", width, got, want)
		}
	}
}

func TestModelNavigation(t *testing.T) {
	m := loadedModel(t, newFakeService())

	m = applyMsg(t, m, press('l'))
	if m.selected != "w2" {
		t.Fatalf("expected right to select w2, got %q", m.selected)
	}
	m = applyMsg(t, m, press('h'))
	if m.selected != "w1" {
		t.Fatalf("expected left to select w1, got %q", m.selected)
	}
	m = applyMsg(t, m, press('j'))
	if m.selected != "w3" {
		t.Fatalf("expected down to select w3, got %q", m.selected)
	}
	m = applyMsg(t, m, press('j'))
	if m.selected != "w3" {
		t.Fatalf("expected selection to stay at the bottom edge, got %q", m.selected)
	}
}

func TestModelGrabAndDropIssuesPixelDrag(t *testing.T) {
	svc := newFakeService()
	m := loadedModel(t, svc)

	m = applyMsg(t, m, press(' '))
	if m.grab == nil || m.grab.id != "w1" {
		t.Fatalf("expected w1 grabbed, got %#v", m.grab)
	}
	m = applyMsg(t, m, press('j'))
	m = applyMsg(t, m, press('j'))
	m = applyMsg(t, m, press('l'))
	if got := m.grab.target; got.Column != 2 || got.Row != 3 {
		t.Fatalf("unexpected ghost target %s", got)
	}
	if !strings.Contains(m.render(), "Revenue") {
		t.Fatal("expected ghost card in view")
	}

	m = applyMsg(t, m, press(' '))
	if m.grab != nil {
		t.Fatal("expected grab to end on drop")
	}
	drag := svc.lastDrag
	if drag.WidgetID != "w1" || drag.Columns != 3 {
		t.Fatalf("unexpected drag input %#v", drag)
	}
	if drag.DeltaX != 29 || drag.DeltaY != 58 {
		t.Fatalf("expected one column and two rows of travel, got %v,%v", drag.DeltaX, drag.DeltaY)
	}
	if drag.GridWidth != 86 || drag.Gap == nil || *drag.Gap != 1 {
		t.Fatalf("unexpected grid geometry %#v", drag)
	}
	cell := domain.CellSizeFor(drag.GridWidth, drag.Columns, *drag.Gap)
	got := domain.ResolveDragPosition(
		domain.GridPosition{Column: 1, Row: 1, ColumnSpan: 1, RowSpan: 1},
		domain.PixelDelta{X: drag.DeltaX, Y: drag.DeltaY}, cell, drag.Columns, *drag.Gap,
	)
	if got.Column != 2 || got.Row != 3 {
		t.Fatalf("expected resolver to land on (2,3), got %s", got)
	}
}

func TestModelGrabClampsToGrid(t *testing.T) {
	m := loadedModel(t, newFakeService())
	m = applyMsg(t, m, press('l'))
	m = applyMsg(t, m, press(' '))
	for range 4 {
		m = applyMsg(t, m, press('l'))
	}
	m = applyMsg(t, m, press('k'))
	if got := m.grab.target; got.Column != 2 || got.Row != 1 {
		t.Fatalf("expected wide card clamped at (2,1), got %s", got)
	}

	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEscape})
	if m.grab != nil || m.status != "move canceled" {
		t.Fatalf("expected canceled grab, got %#v %q", m.grab, m.status)
	}
}

func TestModelRejectedMoveKeepsLayout(t *testing.T) {
	svc := newFakeService()
	svc.dragErr = domain.ErrCollision
	m := loadedModel(t, svc)

	m = applyMsg(t, m, press(' '))
	m = applyMsg(t, m, press('l'))
	m = applyMsg(t, m, press(' '))
	if m.err != nil {
		t.Fatalf("expected rejected move to stay non-fatal, got %v", m.err)
	}
	if !strings.HasPrefix(m.status, "rejected:") {
		t.Fatalf("expected rejection status, got %q", m.status)
	}
	if len(m.layout.Widgets) != 3 {
		t.Fatal("expected layout unchanged")
	}
}

func TestModelSwapMarksThenSwaps(t *testing.T) {
	svc := newFakeService()
	m := loadedModel(t, svc)

	m = applyMsg(t, m, press('s'))
	if m.swapMark != "w1" {
		t.Fatalf("expected w1 marked, got %q", m.swapMark)
	}
	m = applyMsg(t, m, press('s'))
	if m.swapMark != "" {
		t.Fatal("expected second press on the same card to clear the mark")
	}

	m = applyMsg(t, m, press('s'))
	m = applyMsg(t, m, press('j'))
	m = applyMsg(t, m, press('s'))
	if svc.lastSwap.ActiveID != "w1" || svc.lastSwap.OverID != "w3" || svc.lastSwap.Columns != 3 {
		t.Fatalf("unexpected swap input %#v", svc.lastSwap)
	}
	if m.swapMark != "" || m.status != "swapped" {
		t.Fatalf("expected swap to finish, got mark %q status %q", m.swapMark, m.status)
	}
}

func TestModelResetResizeAndReload(t *testing.T) {
	svc := newFakeService()
	m := loadedModel(t, svc)

	m = applyMsg(t, m, press('R'))
	if svc.resets != 1 || m.status != "layout reset" {
		t.Fatalf("expected reset, got %d %q", svc.resets, m.status)
	}

	m = applyMsg(t, m, press('z'))
	if svc.resized["w1"] != domain.WidgetSizeWide {
		t.Fatalf("expected small to cycle to wide, got %q", svc.resized["w1"])
	}

	calls := svc.layoutCall
	m = applyMsg(t, m, press('r'))
	if svc.layoutCall != calls+1 || m.status != "reloaded" {
		t.Fatalf("expected reload, got %d calls %q", svc.layoutCall, m.status)
	}
}

func TestModelCopyLayout(t *testing.T) {
	var copied string
	m := loadedModel(t, newFakeService(), WithClipboard(func(s string) error {
		copied = s
		return nil
	}))

	m = applyMsg(t, m, press('y'))
	if m.status != "layout copied" {
		t.Fatalf("unexpected status %q", m.status)
	}
	saved, err := app.DecodeLayout(copied)
	if err != nil {
		t.Fatalf("DecodeLayout() error = %v", err)
	}
	if saved.Columns != 3 || len(saved.Positions) != 3 {
		t.Fatalf("unexpected copied layout %#v", saved)
	}

	m = NewModel(newFakeService(), WithClipboard(func(string) error { return errors.New("no display") }))
	m = applyMsg(t, m, tea.WindowSizeMsg{Width: 86, Height: 40})
	m = applyMsg(t, m, press('y'))
	if m.status != "copy failed: no display" {
		t.Fatalf("unexpected status %q", m.status)
	}
}

func TestModelDetailOverlay(t *testing.T) {
	m := loadedModel(t, newFakeService())

	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEnter})
	if !m.showDetail {
		t.Fatal("expected detail overlay")
	}
	if !strings.Contains(m.render(), "esc close") {
		t.Fatal("expected overlay footer in view")
	}
	m = applyMsg(t, m, press('q'))
	if m.showDetail {
		t.Fatal("expected q to close the overlay first")
	}
}

func TestModelLoadErrorAndRetry(t *testing.T) {
	svc := newFakeService()
	svc.layoutErr = errors.New("database is locked")
	m := loadedModel(t, svc)

	if m.err == nil || !strings.Contains(m.render(), "database is locked") {
		t.Fatal("expected load error view")
	}
	svc.layoutErr = nil
	m = applyMsg(t, m, press('r'))
	if m.err != nil || !m.loaded {
		t.Fatalf("expected retry to recover, got %v", m.err)
	}
}

func TestModelEmptyDashboard(t *testing.T) {
	svc := newFakeService()
	svc.view.Widgets = nil
	m := loadedModel(t, svc)

	if !strings.Contains(m.render(), "No widgets yet") {
		t.Fatal("expected empty state")
	}
	m = applyMsg(t, m, press(' '))
	if m.grab != nil {
		t.Fatal("expected no grab without a selection")
	}
}

func TestModelViewUsesAltScreen(t *testing.T) {
	m := loadedModel(t, newFakeService())
	v := m.View()
	if !v.AltScreen || v.Content == nil {
		t.Fatalf("expected alt-screen view with content, got %#v", v)
	}
}

func TestFitLinesAndTruncate(t *testing.T) {
	if got := fitLines("a\nb\nc", 2); got != "a\n…" {
		t.Fatalf("fitLines truncate = %q", got)
	}
	if got := fitLines("a", 3); got != "a\n\n" {
		t.Fatalf("fitLines pad = %q", got)
	}
	if got := truncate("dashboard", 5); got != "dash…" {
		t.Fatalf("truncate = %q", got)
	}
	if got := clamp(9, 1, 3); got != 3 {
		t.Fatalf("clamp = %d", got)
	}
}

func TestModelAppliesConfigReload(t *testing.T) {
	svc := newFakeService()
	m := loadedModel(t, svc)

	updated, cmd := m.Update(configMsg{update: ConfigUpdate{Config: RuntimeConfig{
		Style: GridStyle{CellWidth: 42, CellHeight: 9, Gap: 1},
		Keys:  KeyConfig{Grab: "g"},
	}}})
	m = updated.(Model)
	if m.style.CellWidth != 42 || m.style.CellHeight != 9 {
		t.Fatalf("unexpected style %#v", m.style)
	}
	if m.columns != 2 || cmd == nil {
		t.Fatalf("expected a reload at 2 columns, got %d", m.columns)
	}
	m = applyCmd(t, m, m.loadLayout("config reloaded"))
	if svc.lastQuery.Columns != 2 || m.status != "config reloaded" {
		t.Fatalf("unexpected reload %#v %q", svc.lastQuery, m.status)
	}

	m = applyMsg(t, m, press('g'))
	if m.grab == nil {
		t.Fatal("expected reloaded grab binding")
	}

	updated, _ = m.Update(configMsg{update: ConfigUpdate{Err: errors.New("decode toml")}})
	m = updated.(Model)
	if m.status != "config reload failed: decode toml" || m.style.CellWidth != 42 {
		t.Fatalf("expected failed reload to keep settings, got %q", m.status)
	}
}

func TestWaitForConfig(t *testing.T) {
	if waitForConfig(nil) != nil {
		t.Fatal("expected nil command without a source")
	}
	ch := make(chan ConfigUpdate, 1)
	ch <- ConfigUpdate{Config: RuntimeConfig{Style: DefaultGridStyle()}}
	close(ch)
	cmd := waitForConfig(ch)
	if msg, ok := cmd().(configMsg); !ok || msg.closed {
		t.Fatalf("expected update message, got %#v", msg)
	}
	if msg := cmd().(configMsg); !msg.closed {
		t.Fatal("expected closed message after drain")
	}
}
