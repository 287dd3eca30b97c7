package tui

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"io"
	"slices"
	"strings"
	"time"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/key"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	charmLog "github.com/charmbracelet/log"

	"github.com/hylla/tessera/internal/app"
	"github.com/hylla/tessera/internal/domain"
)

// requestTimeout bounds one service call issued from the UI.
const requestTimeout = 5 * time.Second

// Service is the slice of app.Service the dashboard drives.
type Service interface {
	Layout(context.Context, app.LayoutQuery) (app.LayoutView, error)
	DragWidget(context.Context, app.DragWidgetInput) (app.LayoutView, error)
	SwapWidgets(context.Context, app.SwapWidgetsInput) (app.LayoutView, error)
	ResetLayout(context.Context, string, int) (app.LayoutView, error)
	ResizeWidget(context.Context, string, domain.WidgetSize) (domain.Widget, error)
}

// grabState tracks one keyboard drag between pick-up and drop.
type grabState struct {
	id     string
	origin domain.GridPosition
	target domain.GridPosition
}

// Model is the bubbletea dashboard model.
type Model struct {
	svc         Service
	dashboardID string
	style       GridStyle
	keys        keyMap
	help        help.Model
	md          *markdownRenderer
	copy        func(string) error
	logger      app.Logger
	updates     <-chan ConfigUpdate

	width   int
	height  int
	ready   bool
	columns int
	loaded  bool
	layout  app.LayoutView

	selected   string
	grab       *grabState
	swapMark   string
	showDetail bool
	status     string
	err        error
}

// layoutMsg carries the result of any service call that yields a layout.
type layoutMsg struct {
	view   app.LayoutView
	err    error
	status string
	focus  string
}

// configMsg carries one runtime config reload; closed reports the source ended.
type configMsg struct {
	update ConfigUpdate
	closed bool
}

// statusMsg carries a status line update.
type statusMsg struct {
	status string
}

// NewModel constructs the dashboard model.
func NewModel(svc Service, opts ...Option) Model {
	h := help.New()
	h.ShowAll = false
	m := Model{
		svc:    svc,
		style:  DefaultGridStyle(),
		keys:   newKeyMap(),
		help:   h,
		md:     &markdownRenderer{},
		copy:   defaultClipboard,
		logger: charmLog.New(io.Discard),
		status: "loading...",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&m)
		}
	}
	return m
}

// Init starts listening for config reloads; the first load waits for a window size.
func (m Model) Init() tea.Cmd {
	return waitForConfig(m.updates)
}

// Update applies one message.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width = msg.Width
		m.height = msg.Height
		columns := m.columnsForWidth(msg.Width)
		if columns == m.columns && m.loaded {
			return m, nil
		}
		m.columns = columns
		m.grab = nil
		return m, m.loadLayout("")

	case layoutMsg:
		if msg.err != nil {
			if app.IsConflict(msg.err) || errors.Is(msg.err, domain.ErrMissingItem) {
				m.status = "rejected: " + msg.err.Error()
				return m, nil
			}
			if !m.loaded {
				m.err = msg.err
				return m, nil
			}
			m.status = "error: " + msg.err.Error()
			return m, nil
		}
		m.err = nil
		m.loaded = true
		m.layout = msg.view
		if msg.focus != "" {
			m.selected = msg.focus
		}
		m.retainSelection()
		if msg.status != "" {
			m.status = msg.status
		} else if m.status == "loading..." {
			m.status = "ready"
		}
		return m, nil

	case statusMsg:
		m.status = msg.status
		return m, nil

	case configMsg:
		if msg.closed {
			return m, nil
		}
		return m.applyConfig(msg.update)

	case tea.KeyPressMsg:
		return m.handleKey(msg)

	default:
		return m, nil
	}
}

// applyConfig swaps grid style and bindings, reloading when the column count changes.
func (m Model) applyConfig(update ConfigUpdate) (tea.Model, tea.Cmd) {
	next := waitForConfig(m.updates)
	if update.Err != nil {
		m.logger.Warn("config reload failed", "err", update.Err)
		m.status = "config reload failed: " + update.Err.Error()
		return m, next
	}
	m.style = DefaultGridStyle()
	WithGridStyle(update.Config.Style)(&m)
	m.keys = newKeyMap().withOverrides(update.Config.Keys)
	m.status = "config reloaded"
	if !m.ready {
		return m, next
	}
	columns := m.columnsForWidth(m.width)
	if columns == m.columns {
		return m, next
	}
	m.columns = columns
	m.grab = nil
	return m, tea.Batch(next, m.loadLayout("config reloaded"))
}

// waitForConfig blocks on the next reload; nil when reloads are not wired.
func waitForConfig(updates <-chan ConfigUpdate) tea.Cmd {
	if updates == nil {
		return nil
	}
	return func() tea.Msg {
		update, ok := <-updates
		if !ok {
			return configMsg{closed: true}
		}
		return configMsg{update: update}
	}
}

// handleKey routes one key press by mode.
func (m Model) handleKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}
	if m.err != nil {
		switch {
		case key.Matches(msg, m.keys.quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.reload):
			m.err = nil
			return m, m.loadLayout("reloaded")
		}
		return m, nil
	}
	if m.showDetail {
		if key.Matches(msg, m.keys.cancel, m.keys.detail, m.keys.quit) {
			m.showDetail = false
		}
		return m, nil
	}
	if m.grab != nil {
		return m.handleGrabKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.toggleHelp):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, m.keys.reload):
		return m, m.loadLayout("reloaded")
	case key.Matches(msg, m.keys.left):
		m.moveSelection(-1, 0)
	case key.Matches(msg, m.keys.right):
		m.moveSelection(1, 0)
	case key.Matches(msg, m.keys.up):
		m.moveSelection(0, -1)
	case key.Matches(msg, m.keys.down):
		m.moveSelection(0, 1)
	case key.Matches(msg, m.keys.grab):
		widget, ok := m.selectedWidget()
		if !ok {
			return m, nil
		}
		m.grab = &grabState{id: widget.ID, origin: widget.Position, target: widget.Position}
		m.status = "moving " + widget.Title + " (arrows, space to drop, esc to cancel)"
	case key.Matches(msg, m.keys.swap):
		return m.handleSwapKey()
	case key.Matches(msg, m.keys.cancel):
		if m.swapMark != "" {
			m.swapMark = ""
			m.status = "swap cleared"
		}
	case key.Matches(msg, m.keys.reset):
		m.swapMark = ""
		return m, m.resetLayout()
	case key.Matches(msg, m.keys.resize):
		return m, m.cycleSize()
	case key.Matches(msg, m.keys.detail):
		if _, ok := m.selectedWidget(); ok {
			m.showDetail = true
		}
	case key.Matches(msg, m.keys.copyLayout):
		return m, m.copyLayout()
	}
	return m, nil
}

// handleGrabKey moves the drop target or commits the drag.
func (m Model) handleGrabKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	grab := *m.grab
	switch {
	case key.Matches(msg, m.keys.cancel):
		m.grab = nil
		m.status = "move canceled"
		return m, nil
	case key.Matches(msg, m.keys.grab, m.keys.detail):
		m.grab = nil
		if grab.target == grab.origin {
			m.status = "dropped in place"
			return m, nil
		}
		return m, m.dragWidget(grab)
	case key.Matches(msg, m.keys.left):
		grab.target.Column--
	case key.Matches(msg, m.keys.right):
		grab.target.Column++
	case key.Matches(msg, m.keys.up):
		grab.target.Row--
	case key.Matches(msg, m.keys.down):
		grab.target.Row++
	default:
		return m, nil
	}
	grab.target.Column = clamp(grab.target.Column, 1, max(1, m.columns-grab.target.ColSpan()+1))
	grab.target.Row = max(1, grab.target.Row)
	m.grab = &grab
	return m, nil
}

// handleSwapKey marks the selected widget or swaps it with the marked one.
func (m Model) handleSwapKey() (tea.Model, tea.Cmd) {
	widget, ok := m.selectedWidget()
	if !ok {
		return m, nil
	}
	switch m.swapMark {
	case "":
		m.swapMark = widget.ID
		m.status = "marked " + widget.Title + "; select another card and press swap"
		return m, nil
	case widget.ID:
		m.swapMark = ""
		m.status = "swap cleared"
		return m, nil
	}
	activeID := m.swapMark
	m.swapMark = ""
	return m, m.swapWidgets(activeID, widget.ID)
}

// View renders the dashboard.
func (m Model) View() tea.View {
	v := tea.NewView(m.render())
	v.AltScreen = true
	return v
}

// render builds the full screen as a string.
func (m Model) render() string {
	if m.err != nil {
		return "error: " + m.err.Error() + "\n\npress r to retry • q quit\n"
	}
	if !m.ready || !m.loaded {
		return "loading..."
	}

	accent := lipgloss.Color("62")
	muted := lipgloss.Color("241")
	dim := lipgloss.Color("239")

	title := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252")).Render("tessera")
	meta := lipgloss.NewStyle().Foreground(muted).Render(fmt.Sprintf(
		" %s · %d cols · %d widgets · %s",
		m.layout.DashboardID, m.layout.Columns, len(m.layout.Widgets), m.layout.Source,
	))
	header := title + meta

	body := m.renderGrid(accent, muted, dim)
	statusLine := lipgloss.NewStyle().Foreground(dim).Render(m.status)

	helpBubble := m.help
	helpBubble.SetWidth(max(0, m.width-2))
	helpLine := lipgloss.NewStyle().
		Foreground(muted).
		BorderTop(true).
		BorderForeground(dim).
		Padding(0, 1).
		Width(max(0, m.width)).
		Render(helpBubble.View(m.keys))

	content := strings.Join([]string{header, "", body}, "\n")
	if m.height > 0 {
		reserved := lipgloss.Height(helpLine) + 1
		content = fitLines(content, max(1, m.height-reserved))
	}
	full := content + "\n" + statusLine + "\n" + helpLine

	if m.showDetail {
		if widget, ok := m.selectedWidget(); ok {
			overlay := m.renderDetail(widget, accent, muted)
			height := lipgloss.Height(full)
			if m.height > 0 {
				height = m.height
			}
			full = overlayOnContent(full, overlay, max(1, m.width), max(1, height))
		}
	}
	return full
}

// renderGrid composes one layer per card on a canvas sized to the grid.
func (m Model) renderGrid(accent, muted, dim color.Color) string {
	if len(m.layout.Widgets) == 0 {
		return lipgloss.NewStyle().Foreground(muted).Render("No widgets yet. Add one with `tessera widget add`.")
	}
	cell := domain.CellSize{Width: float64(m.style.CellWidth), Height: float64(m.style.CellHeight)}
	gap := float64(m.style.Gap)

	positions := domain.Positions(domain.WidgetItems(m.layout.Widgets))
	if m.grab != nil {
		positions = append(positions, m.grab.target)
	}
	columns := max(1, m.layout.Columns)
	gridWidth := columns*m.style.CellWidth + (columns-1)*m.style.Gap
	gridHeight, ok := domain.ContainerHeight(positions, cell.Height, gap)
	if !ok {
		return ""
	}

	canvas := lipgloss.NewCanvas(gridWidth, int(gridHeight))
	for _, widget := range m.layout.Widgets {
		border := dim
		z := 1
		switch {
		case m.grab != nil && widget.ID == m.grab.id:
			border = muted
		case widget.ID == m.swapMark:
			border = lipgloss.Color("214")
			z = 2
		case widget.ID == m.selected:
			border = accent
			z = 2
		}
		rect := domain.ItemPixelRect(widget.Position, cell, gap)
		card := renderCard(widget, int(rect.Width), int(rect.Height), border, lipgloss.NormalBorder())
		canvas.Compose(lipgloss.NewLayer(card).X(int(rect.Left)).Y(int(rect.Top)).Z(z))
	}
	if m.grab != nil {
		if widget, ok := m.widgetByID(m.grab.id); ok {
			widget.Position = m.grab.target
			rect := domain.ItemPixelRect(m.grab.target, cell, gap)
			ghost := renderCard(widget, int(rect.Width), int(rect.Height), accent, lipgloss.DoubleBorder())
			canvas.Compose(lipgloss.NewLayer(ghost).X(int(rect.Left)).Y(int(rect.Top)).Z(10))
		}
	}
	return canvas.Render()
}

// renderCard draws one widget card filling width x height cells.
func renderCard(widget domain.Widget, width, height int, border color.Color, shape lipgloss.Border) string {
	innerWidth := max(1, width-2)
	innerHeight := max(1, height-2)
	lines := []string{
		lipgloss.NewStyle().Bold(true).Render(truncate(widget.Title, innerWidth)),
		lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Render(truncate(widget.Kind+" · "+string(widget.Size), innerWidth)),
	}
	if body := firstLine(widget.Body); body != "" {
		lines = append(lines, truncate(body, innerWidth))
	}
	return lipgloss.NewStyle().
		Border(shape).
		BorderForeground(border).
		Width(innerWidth).
		Height(innerHeight).
		MaxWidth(width).
		MaxHeight(height).
		Render(fitLines(strings.Join(lines, "\n"), innerHeight))
}

// renderDetail draws the selected widget with its markdown body.
func (m Model) renderDetail(widget domain.Widget, accent, muted color.Color) string {
	width := clamp(m.width-8, 24, 80)
	sections := []string{
		lipgloss.NewStyle().Bold(true).Foreground(accent).Render(widget.Title),
		lipgloss.NewStyle().Foreground(muted).Render(fmt.Sprintf(
			"%s · %s · col %d row %d", widget.Kind, widget.Size, widget.Position.Column, widget.Position.Row,
		)),
	}
	if body := m.md.render(widget.Body, width-4); body != "" {
		sections = append(sections, "", body)
	}
	sections = append(sections, "", lipgloss.NewStyle().Foreground(muted).Render("esc close"))
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accent).
		Padding(0, 1).
		Width(width).
		Render(strings.Join(sections, "\n"))
}

// columnsForWidth fits as many cells as the terminal width allows.
func (m Model) columnsForWidth(width int) int {
	step := m.style.CellWidth + m.style.Gap
	if step <= 0 {
		return 1
	}
	return max(1, (width+m.style.Gap)/step)
}

// loadLayout fetches the layout for the current column count.
func (m Model) loadLayout(status string) tea.Cmd {
	svc, dashboardID, columns := m.svc, m.dashboardID, m.columns
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		view, err := svc.Layout(ctx, app.LayoutQuery{DashboardID: dashboardID, Columns: columns})
		return layoutMsg{view: view, err: err, status: status}
	}
}

// dragWidget commits a keyboard drag as the equivalent pixel travel.
func (m Model) dragWidget(grab grabState) tea.Cmd {
	svc, dashboardID, columns, style := m.svc, m.dashboardID, m.columns, m.style
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		step := float64(style.CellWidth + style.Gap)
		gap := float64(style.Gap)
		view, err := svc.DragWidget(ctx, app.DragWidgetInput{
			DashboardID: dashboardID,
			WidgetID:    grab.id,
			Columns:     columns,
			DeltaX:      float64(grab.target.Column-grab.origin.Column) * step,
			DeltaY:      float64(grab.target.Row-grab.origin.Row) * step,
			GridWidth:   float64(columns*style.CellWidth + (columns-1)*style.Gap),
			Gap:         &gap,
		})
		return layoutMsg{view: view, err: err, status: "moved to " + grab.target.String(), focus: grab.id}
	}
}

// swapWidgets exchanges two cards.
func (m Model) swapWidgets(activeID, overID string) tea.Cmd {
	svc, dashboardID, columns := m.svc, m.dashboardID, m.columns
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		view, err := svc.SwapWidgets(ctx, app.SwapWidgetsInput{
			DashboardID: dashboardID,
			ActiveID:    activeID,
			OverID:      overID,
			Columns:     columns,
		})
		return layoutMsg{view: view, err: err, status: "swapped", focus: overID}
	}
}

// resetLayout reflows the dashboard in definition order.
func (m Model) resetLayout() tea.Cmd {
	svc, dashboardID, columns := m.svc, m.dashboardID, m.columns
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		view, err := svc.ResetLayout(ctx, dashboardID, columns)
		return layoutMsg{view: view, err: err, status: "layout reset"}
	}
}

// cycleSize advances the selected widget to the next size.
func (m Model) cycleSize() tea.Cmd {
	widget, ok := m.selectedWidget()
	if !ok {
		return nil
	}
	sizes := domain.WidgetSizes()
	next := sizes[(slices.Index(sizes, widget.Size)+1)%len(sizes)]
	svc, dashboardID, columns := m.svc, m.dashboardID, m.columns
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		if _, err := svc.ResizeWidget(ctx, widget.ID, next); err != nil {
			return layoutMsg{err: err}
		}
		view, err := svc.Layout(ctx, app.LayoutQuery{DashboardID: dashboardID, Columns: columns})
		return layoutMsg{view: view, err: err, status: "resized to " + string(next), focus: widget.ID}
	}
}

// copyLayout writes the committed layout JSON to the clipboard.
func (m Model) copyLayout() tea.Cmd {
	saved := app.ToSavedLayout(domain.WidgetItems(m.layout.Widgets), m.layout.Columns)
	write, logger := m.copy, m.logger
	return func() tea.Msg {
		raw, err := app.EncodeLayout(saved)
		if err != nil {
			return statusMsg{status: "copy failed: " + err.Error()}
		}
		if err := write(raw); err != nil {
			logger.Warn("clipboard write failed", "err", err)
			return statusMsg{status: "copy failed: " + err.Error()}
		}
		return statusMsg{status: "layout copied"}
	}
}

// moveSelection jumps to the nearest card in one direction.
func (m *Model) moveSelection(dc, dr int) {
	current, ok := m.selectedWidget()
	if !ok {
		return
	}
	best, bestScore := "", -1
	for _, widget := range m.layout.Widgets {
		if widget.ID == current.ID {
			continue
		}
		dx := widget.Position.Column - current.Position.Column
		dy := widget.Position.Row - current.Position.Row
		var primary, secondary int
		switch {
		case dc != 0:
			primary, secondary = dx*dc, abs(dy)
		default:
			primary, secondary = dy*dr, abs(dx)
		}
		if primary <= 0 {
			continue
		}
		score := primary*100 + secondary
		if bestScore < 0 || score < bestScore {
			best, bestScore = widget.ID, score
		}
	}
	if best != "" {
		m.selected = best
	}
}

// retainSelection keeps the selection on a card that still exists.
func (m *Model) retainSelection() {
	if _, ok := m.widgetByID(m.selected); ok {
		return
	}
	m.selected = ""
	var first *domain.Widget
	for i := range m.layout.Widgets {
		w := &m.layout.Widgets[i]
		if first == nil || w.Position.Row < first.Position.Row ||
			(w.Position.Row == first.Position.Row && w.Position.Column < first.Position.Column) {
			first = w
		}
	}
	if first != nil {
		m.selected = first.ID
	}
	if _, ok := m.widgetByID(m.swapMark); !ok {
		m.swapMark = ""
	}
}

func (m Model) selectedWidget() (domain.Widget, bool) {
	return m.widgetByID(m.selected)
}

func (m Model) widgetByID(id string) (domain.Widget, bool) {
	if id == "" {
		return domain.Widget{}, false
	}
	for _, widget := range m.layout.Widgets {
		if widget.ID == id {
			return widget, true
		}
	}
	return domain.Widget{}, false
}

// overlayOnContent centers overlay above base on a fixed-size canvas.
func overlayOnContent(base, overlay string, width, height int) string {
	if width <= 0 || height <= 0 {
		if strings.TrimSpace(overlay) == "" {
			return base
		}
		return overlay + "\n\n" + base
	}

	base = fitLines(base, height)
	canvas := lipgloss.NewCanvas(width, height)
	centered := lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, overlay)
	canvas.Compose(lipgloss.NewLayer(base).X(0).Y(0).Z(0))
	canvas.Compose(lipgloss.NewLayer(centered).X(0).Y(0).Z(10))
	return canvas.Render()
}

// fitLines pads or truncates content to exactly maxLines lines.
func fitLines(content string, maxLines int) string {
	if maxLines <= 0 {
		return ""
	}
	lines := strings.Split(content, "\n")
	switch {
	case len(lines) > maxLines:
		if maxLines == 1 {
			lines = []string{"…"}
		} else {
			lines = append(lines[:maxLines-1], "…")
		}
	case len(lines) < maxLines:
		lines = append(lines, make([]string, maxLines-len(lines))...)
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	if limit == 1 {
		return string(rs[:1])
	}
	return string(rs[:limit-1]) + "…"
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimLeft(s, "#>*- ")
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	return min(max(v, lo), hi)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
