package app

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	charmLog "github.com/charmbracelet/log"

	"github.com/hylla/tessera/internal/domain"
)

// Logger is the structured logging surface the layout engine writes to.
// *log.Logger from charmbracelet/log satisfies it.
type Logger interface {
	Debug(msg any, keyvals ...any)
	Info(msg any, keyvals ...any)
	Warn(msg any, keyvals ...any)
	Error(msg any, keyvals ...any)
}

func discardLogger() Logger {
	return charmLog.New(io.Discard)
}

// GridState is the lifecycle phase of a grid.
type GridState int

// GridUninitialized and related constants enumerate grid lifecycle phases.
const (
	GridUninitialized GridState = iota
	GridLoading
	GridReady
	GridMutating
)

// String returns the phase name.
func (s GridState) String() string {
	switch s {
	case GridLoading:
		return "loading"
	case GridReady:
		return "ready"
	case GridMutating:
		return "mutating"
	default:
		return "uninitialized"
	}
}

// LoadSource records which link of the load chain produced a layout.
type LoadSource string

// LoadSourceSaved and related constants describe where a layout came from.
const (
	LoadSourceSaved  LoadSource = "saved"
	LoadSourceLegacy LoadSource = "legacy"
	LoadSourceHost   LoadSource = "host"
)

// GridConfig holds configuration for a grid.
type GridConfig struct {
	BaseKey         string
	MirrorLegacyKey bool
	Logger          Logger
}

// Grid owns one dashboard's committed layout and its persistence.
type Grid struct {
	baseKey string
	mirror  bool
	store   LayoutStore
	logger  Logger
	writer  *snapshotWriter

	loadMu  sync.Mutex
	mu      sync.Mutex
	state   GridState
	columns int
	items   []domain.Item
	source  LoadSource
}

// NewGrid constructs a grid and starts its background writer.
func NewGrid(store LayoutStore, cfg GridConfig) (*Grid, error) {
	baseKey := strings.TrimSpace(cfg.BaseKey)
	if baseKey == "" {
		return nil, fmt.Errorf("grid base key is required")
	}
	if store == nil {
		return nil, fmt.Errorf("grid layout store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = discardLogger()
	}
	return &Grid{
		baseKey: baseKey,
		mirror:  cfg.MirrorLegacyKey,
		store:   store,
		logger:  logger,
		writer:  newSnapshotWriter(store, logger),
	}, nil
}

// BaseKey returns the key prefix layouts persist under.
func (g *Grid) BaseKey() string {
	return g.baseKey
}

// State returns the current lifecycle phase.
func (g *Grid) State() GridState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Columns returns the column count of the current session, or 0.
func (g *Grid) Columns() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.columns
}

// Source reports how the current session was loaded.
func (g *Grid) Source() LoadSource {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.source
}

// Items returns a copy of the committed layout in host order.
func (g *Grid) Items() []domain.Item {
	g.mu.Lock()
	defer g.mu.Unlock()
	return domain.CloneItems(g.items)
}

// Load starts a session for columns: restore, legacy-ordered reflow, or host-ordered reflow.
func (g *Grid) Load(ctx context.Context, items []domain.Item, columns int) ([]domain.Item, error) {
	if columns < 1 {
		return nil, fmt.Errorf("%w: %d", domain.ErrInvalidColumns, columns)
	}
	if err := checkUniqueIDs(items); err != nil {
		return nil, err
	}

	g.loadMu.Lock()
	defer g.loadMu.Unlock()

	// Queued writes from the previous session must land before the store is read.
	if err := g.writer.flush(ctx); err != nil {
		return nil, err
	}

	g.mu.Lock()
	previous := g.state
	g.state = GridLoading
	g.mu.Unlock()

	items = domain.NarrowSpans(items, columns)
	var (
		layout []domain.Item
		source LoadSource
	)
	if saved, ok := g.readLayout(ctx, ColumnKey(g.baseKey, columns)); ok {
		restored := RestoreFromSaved(items, saved)
		var moved []string
		layout, moved = settle(restored, columns, func(it domain.Item) int {
			if _, ok := saved.Positions[it.ID]; ok {
				return 0
			}
			return 1
		})
		if len(moved) > 0 {
			g.logger.Warn("saved layout repaired", "key", ColumnKey(g.baseKey, columns), "moved", strings.Join(moved, ","))
		}
		source = LoadSourceSaved
	} else if legacy, ok := g.readLayout(ctx, LegacyKey(g.baseKey)); ok {
		layout = domain.Reflow(domain.ReadingOrder(items, legacy.Positions), columns)
		source = LoadSourceLegacy
	} else {
		layout = domain.Reflow(items, columns)
		source = LoadSourceHost
	}

	if err := ctx.Err(); err != nil {
		g.mu.Lock()
		g.state = previous
		g.mu.Unlock()
		return nil, err
	}

	g.mu.Lock()
	g.items = layout
	g.columns = columns
	g.source = source
	g.state = GridReady
	g.persistLocked()
	out := domain.CloneItems(g.items)
	g.mu.Unlock()

	g.logger.Info("layout loaded", "key", g.baseKey, "columns", columns, "source", source, "items", len(layout))
	return out, nil
}

// MoveBy commits the end of a drag gesture given its pixel travel.
func (g *Grid) MoveBy(id string, delta domain.PixelDelta, cell domain.CellSize, gap float64) ([]domain.Item, error) {
	return g.mutate("move", func(items []domain.Item, columns int) ([]domain.Item, error) {
		idx := domain.FindItem(items, id)
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s", domain.ErrMissingItem, id)
		}
		candidate := domain.ResolveDragPosition(items[idx].Position, delta, cell, columns, gap)
		return placeAt(items, idx, candidate, columns)
	})
}

// MoveTo commits an explicit cell for one item.
func (g *Grid) MoveTo(id string, column, row int) ([]domain.Item, error) {
	return g.mutate("move", func(items []domain.Item, columns int) ([]domain.Item, error) {
		idx := domain.FindItem(items, id)
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s", domain.ErrMissingItem, id)
		}
		return placeAt(items, idx, items[idx].Position.At(column, row), columns)
	})
}

// Swap exchanges two items' cells while each keeps its own spans.
func (g *Grid) Swap(activeID, overID string) ([]domain.Item, error) {
	return g.mutate("swap", func(items []domain.Item, columns int) ([]domain.Item, error) {
		result, ok := domain.ResolveSwap(items, activeID, overID, columns)
		if !ok {
			return nil, fmt.Errorf("%w: %s or %s", domain.ErrMissingItem, activeID, overID)
		}
		if activeID == overID {
			return items, nil
		}
		ai := domain.FindItem(items, activeID)
		oi := domain.FindItem(items, overID)
		items[ai].Position = result.Active
		items[oi].Position = result.Over
		for _, idx := range []int{ai, oi} {
			pos := items[idx].Position
			if !domain.InBounds(pos, columns) {
				return nil, fmt.Errorf("%w: %s at %s", domain.ErrBoundsViolation, items[idx].ID, pos)
			}
			if domain.Collides(pos, items[idx].ID, items) {
				return nil, fmt.Errorf("%w: %s at %s", domain.ErrCollision, items[idx].ID, pos)
			}
		}
		return items, nil
	})
}

// Reset re-runs reflow over the current items in host order.
func (g *Grid) Reset() ([]domain.Item, error) {
	return g.mutate("reset", func(items []domain.Item, columns int) ([]domain.Item, error) {
		return domain.Reflow(items, columns), nil
	})
}

// SyncInitialItems reconciles the layout with a new host item list.
// It returns (nil, false) when ids and spans are unchanged.
func (g *Grid) SyncInitialItems(items []domain.Item) ([]domain.Item, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != GridReady {
		g.logger.Debug("layout sync skipped", "key", g.baseKey, "state", g.state)
		return nil, false
	}
	if err := checkUniqueIDs(items); err != nil {
		g.logger.Warn("layout sync rejected", "key", g.baseKey, "err", err)
		return nil, false
	}
	items = domain.NarrowSpans(items, g.columns)
	if !layoutMembershipChanged(g.items, items) {
		return nil, false
	}

	current := make(map[string]domain.GridPosition, len(g.items))
	for _, it := range g.items {
		current[it.ID] = it.Position
	}
	next := domain.CloneItems(items)
	for i := range next {
		if pos, ok := current[next[i].ID]; ok {
			next[i].Position = next[i].Position.At(pos.Column, pos.Row)
		}
	}
	next, moved := settle(next, g.columns, func(it domain.Item) int {
		if _, ok := current[it.ID]; ok {
			return 0
		}
		return 1
	})
	if len(moved) > 0 {
		g.logger.Warn("synced layout repaired", "key", g.baseKey, "moved", strings.Join(moved, ","))
	}
	g.items = next
	g.persistLocked()
	g.logger.Debug("layout synced", "key", g.baseKey, "items", len(next))
	return domain.CloneItems(next), true
}

// Flush waits until queued layout writes have been attempted.
func (g *Grid) Flush(ctx context.Context) error {
	return g.writer.flush(ctx)
}

// Close drains queued writes and stops the writer. Later writes are dropped.
func (g *Grid) Close() {
	g.writer.close()
}

// mutate runs fn on a copy and commits the result only when it succeeds.
// On failure the unchanged layout is returned with the error.
func (g *Grid) mutate(op string, fn func([]domain.Item, int) ([]domain.Item, error)) ([]domain.Item, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != GridReady {
		return nil, fmt.Errorf("%w: %s", ErrNotReady, g.state)
	}
	g.state = GridMutating
	defer func() { g.state = GridReady }()

	next, err := fn(domain.CloneItems(g.items), g.columns)
	if err != nil {
		g.logger.Warn("layout mutation rejected", "op", op, "key", g.baseKey, "err", err)
		return domain.CloneItems(g.items), err
	}
	if samePositions(g.items, next) {
		return domain.CloneItems(g.items), nil
	}
	g.items = next
	g.persistLocked()
	g.logger.Debug("layout mutated", "op", op, "key", g.baseKey)
	return domain.CloneItems(next), nil
}

// persistLocked enqueues the committed snapshot. g.mu must be held.
func (g *Grid) persistLocked() {
	saved := ToSavedLayout(g.items, g.columns)
	value, err := EncodeLayout(saved)
	if err != nil {
		g.logger.Error("layout encode failed", "key", g.baseKey, "err", err)
		return
	}
	key := ColumnKey(g.baseKey, g.columns)
	if !g.writer.enqueue(key, value) {
		g.logger.Warn("layout write dropped after close", "key", key)
		return
	}
	if !g.mirror {
		return
	}
	legacy, err := EncodeLegacyLayout(saved)
	if err != nil {
		g.logger.Error("legacy layout encode failed", "key", g.baseKey, "err", err)
		return
	}
	g.writer.enqueue(LegacyKey(g.baseKey), legacy)
}

func (g *Grid) readLayout(ctx context.Context, key string) (SavedLayout, bool) {
	raw, found, err := g.store.Get(ctx, key)
	if err != nil {
		g.logger.Warn("layout read failed", "key", key, "err", err)
		return SavedLayout{}, false
	}
	if !found {
		return SavedLayout{}, false
	}
	layout, err := DecodeLayout(raw)
	if err != nil {
		g.logger.Warn("layout decode failed", "key", key, "err", err)
		return SavedLayout{}, false
	}
	return layout, true
}

// placeAt gates a candidate for items[idx] through bounds and collision checks.
func placeAt(items []domain.Item, idx int, candidate domain.GridPosition, columns int) ([]domain.Item, error) {
	if candidate.Row < 1 || !domain.InBounds(candidate, columns) {
		return nil, fmt.Errorf("%w: %s at %s", domain.ErrBoundsViolation, items[idx].ID, candidate)
	}
	if domain.Collides(candidate, items[idx].ID, items) {
		return nil, fmt.Errorf("%w: %s at %s", domain.ErrCollision, items[idx].ID, candidate)
	}
	items[idx].Position = candidate
	return items, nil
}

// settle keeps ranked positions that satisfy the layout invariants and
// re-places the rest first-fit. Rank 0 is accepted before rank 1; any other
// rank is always re-placed. Output keeps input order.
func settle(items []domain.Item, columns int, rank func(domain.Item) int) ([]domain.Item, []string) {
	out := domain.CloneItems(items)
	accepted := make([]domain.Item, 0, len(out))
	placed := make([]bool, len(out))
	for tier := 0; tier <= 1; tier++ {
		for idx, it := range out {
			if placed[idx] || rank(it) != tier {
				continue
			}
			pos := it.Position
			if pos.Row >= 1 && domain.InBounds(pos, columns) && !domain.Collides(pos, it.ID, accepted) {
				accepted = append(accepted, it)
				placed[idx] = true
			}
		}
	}
	var moved []string
	for idx := range out {
		if placed[idx] {
			continue
		}
		out[idx].Position = domain.FirstFit(out[idx], accepted, columns)
		accepted = append(accepted, out[idx])
		moved = append(moved, out[idx].ID)
	}
	return out, moved
}

func layoutMembershipChanged(current, next []domain.Item) bool {
	if len(current) != len(next) {
		return true
	}
	spans := make(map[string][2]int, len(current))
	for _, it := range current {
		spans[it.ID] = [2]int{it.Position.ColSpan(), it.Position.RSpan()}
	}
	for _, it := range next {
		span, ok := spans[it.ID]
		if !ok || span != [2]int{it.Position.ColSpan(), it.Position.RSpan()} {
			return true
		}
	}
	return false
}

func samePositions(a, b []domain.Item) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Position != b[i].Position {
			return false
		}
	}
	return true
}

func checkUniqueIDs(items []domain.Item) error {
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if strings.TrimSpace(it.ID) == "" {
			return domain.ErrInvalidID
		}
		if _, ok := seen[it.ID]; ok {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateItem, it.ID)
		}
		seen[it.ID] = struct{}{}
	}
	return nil
}

// itoa formats event metadata integers.
func itoa(v int) string {
	return strconv.Itoa(v)
}
