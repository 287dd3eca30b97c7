package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hylla/tessera/internal/domain"
)

const testBaseKey = "tessera/layout/home"

func newTestGrid(t *testing.T, repo *fakeRepo, mirror bool) *Grid {
	t.Helper()
	grid, err := NewGrid(repo, GridConfig{BaseKey: testBaseKey, MirrorLegacyKey: mirror})
	if err != nil {
		t.Fatalf("NewGrid() error = %v", err)
	}
	t.Cleanup(grid.Close)
	return grid
}

func testItem(id string, size domain.WidgetSize, col, row int) domain.Item {
	colSpan, rowSpan := size.Spans()
	return domain.Item{ID: id, Size: size, Position: cell(col, row, colSpan, rowSpan)}
}

func itemPositions(items []domain.Item) map[string]domain.GridPosition {
	out := make(map[string]domain.GridPosition, len(items))
	for _, it := range items {
		out[it.ID] = it.Position
	}
	return out
}

func flushGrid(t *testing.T, grid *Grid) {
	t.Helper()
	if err := grid.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
}

func TestNewGridValidation(t *testing.T) {
	if _, err := NewGrid(newFakeRepo(), GridConfig{BaseKey: "  "}); err == nil {
		t.Fatal("expected error for empty base key")
	}
	if _, err := NewGrid(nil, GridConfig{BaseKey: "k"}); err == nil {
		t.Fatal("expected error for nil store")
	}
}

func TestGridLoadHostOrderReflow(t *testing.T) {
	repo := newFakeRepo()
	grid := newTestGrid(t, repo, false)
	if grid.State() != GridUninitialized {
		t.Fatalf("expected uninitialized grid, got %s", grid.State())
	}
	items := []domain.Item{
		testItem("a", domain.WidgetSizeWide, 3, 9),
		testItem("b", domain.WidgetSizeSmall, 1, 1),
		testItem("c", domain.WidgetSizeTall, 1, 1),
	}
	got, err := grid.Load(context.Background(), items, 3)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := map[string]domain.GridPosition{
		"a": cell(1, 1, 2, 1),
		"b": cell(3, 1, 1, 1),
		"c": cell(1, 2, 1, 2),
	}
	if diff := cmp.Diff(want, itemPositions(got)); diff != "" {
		t.Fatalf("Load() mismatch (-want +got):\n%s", diff)
	}
	if grid.State() != GridReady || grid.Source() != LoadSourceHost || grid.Columns() != 3 {
		t.Fatalf("unexpected grid status %s/%s/%d", grid.State(), grid.Source(), grid.Columns())
	}

	flushGrid(t, grid)
	raw, ok := repo.value(ColumnKey(testBaseKey, 3))
	if !ok {
		t.Fatal("expected column-scoped layout to be written")
	}
	saved, err := DecodeLayout(raw)
	if err != nil {
		t.Fatalf("DecodeLayout() error = %v", err)
	}
	if saved.SchemaVersion != LayoutSchemaVersion || saved.Columns != 3 {
		t.Fatalf("unexpected saved header %+v", saved)
	}
	if diff := cmp.Diff(want, saved.Positions); diff != "" {
		t.Fatalf("saved positions mismatch (-want +got):\n%s", diff)
	}
	if _, ok := repo.value(LegacyKey(testBaseKey)); ok {
		t.Fatal("legacy key must not be written without mirroring")
	}
}

func TestGridLoadRestoresColumnScopedLayout(t *testing.T) {
	repo := newFakeRepo()
	repo.put(ColumnKey(testBaseKey, 4), `{"schemaVersion":2,"columns":4,"positions":{"a":{"column":3,"row":2,"columnSpan":1,"rowSpan":1},"b":{"column":1,"row":1,"columnSpan":1}}}`)
	repo.put(LegacyKey(testBaseKey), `{"positions":{"a":{"column":1,"row":1,"columnSpan":1}}}`)
	grid := newTestGrid(t, repo, false)

	items := []domain.Item{testItem("a", domain.WidgetSizeLarge, 1, 1), testItem("b", domain.WidgetSizeSmall, 1, 1)}
	got, err := grid.Load(context.Background(), items, 4)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := map[string]domain.GridPosition{
		"a": cell(3, 2, 2, 2),
		"b": cell(1, 1, 1, 1),
	}
	if diff := cmp.Diff(want, itemPositions(got)); diff != "" {
		t.Fatalf("Load() mismatch (-want +got):\n%s", diff)
	}
	if grid.Source() != LoadSourceSaved {
		t.Fatalf("expected saved source, got %s", grid.Source())
	}
}

func TestGridLoadLegacyReadingOrder(t *testing.T) {
	repo := newFakeRepo()
	repo.put(ColumnKey(testBaseKey, 4), `{"schemaVersion":2,"positions":`)
	repo.put(LegacyKey(testBaseKey), `{"positions":{"c":{"column":1,"row":1,"columnSpan":1},"a":{"column":2,"row":1,"columnSpan":1},"b":{"column":1,"row":2,"columnSpan":1}}}`)
	grid := newTestGrid(t, repo, false)

	items := []domain.Item{
		testItem("a", domain.WidgetSizeSmall, 1, 1),
		testItem("b", domain.WidgetSizeSmall, 1, 1),
		testItem("c", domain.WidgetSizeSmall, 1, 1),
	}
	got, err := grid.Load(context.Background(), items, 4)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := map[string]domain.GridPosition{
		"c": cell(1, 1, 1, 1),
		"a": cell(2, 1, 1, 1),
		"b": cell(3, 1, 1, 1),
	}
	if diff := cmp.Diff(want, itemPositions(got)); diff != "" {
		t.Fatalf("Load() mismatch (-want +got):\n%s", diff)
	}
	if grid.Source() != LoadSourceLegacy {
		t.Fatalf("expected legacy source, got %s", grid.Source())
	}
}

func TestGridLoadReadFailureFallsBackToHostOrder(t *testing.T) {
	repo := newFakeRepo()
	repo.getErr = errors.New("store offline")
	grid := newTestGrid(t, repo, false)
	got, err := grid.Load(context.Background(), []domain.Item{testItem("a", domain.WidgetSizeSmall, 3, 3)}, 2)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if grid.Source() != LoadSourceHost || got[0].Position.Column != 1 || got[0].Position.Row != 1 {
		t.Fatalf("expected host-order reflow, got %s at %s", grid.Source(), got[0].Position)
	}
}

func TestGridLoadRepairsInvalidSavedLayout(t *testing.T) {
	repo := newFakeRepo()
	repo.put(ColumnKey(testBaseKey, 4), `{"schemaVersion":2,"columns":4,"positions":{"a":{"column":1,"row":1,"columnSpan":1},"b":{"column":1,"row":1,"columnSpan":1},"c":{"column":4,"row":1,"columnSpan":1}}}`)
	grid := newTestGrid(t, repo, false)

	items := []domain.Item{
		testItem("a", domain.WidgetSizeSmall, 1, 1),
		testItem("b", domain.WidgetSizeSmall, 1, 1),
		testItem("c", domain.WidgetSizeWide, 1, 1),
	}
	got, err := grid.Load(context.Background(), items, 4)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := map[string]domain.GridPosition{
		"a": cell(1, 1, 1, 1),
		"b": cell(2, 1, 1, 1),
		"c": cell(3, 1, 2, 1),
	}
	if diff := cmp.Diff(want, itemPositions(got)); diff != "" {
		t.Fatalf("Load() mismatch (-want +got):\n%s", diff)
	}
	if err := domain.ValidateLayout(got, 4); err != nil {
		t.Fatalf("ValidateLayout() error = %v", err)
	}
}

func TestGridLoadValidation(t *testing.T) {
	grid := newTestGrid(t, newFakeRepo(), false)
	if _, err := grid.Load(context.Background(), nil, 0); !errors.Is(err, domain.ErrInvalidColumns) {
		t.Fatalf("expected ErrInvalidColumns, got %v", err)
	}
	dup := []domain.Item{testItem("a", domain.WidgetSizeSmall, 1, 1), testItem("a", domain.WidgetSizeSmall, 2, 1)}
	if _, err := grid.Load(context.Background(), dup, 4); !errors.Is(err, domain.ErrDuplicateItem) {
		t.Fatalf("expected ErrDuplicateItem, got %v", err)
	}
	if grid.State() != GridUninitialized {
		t.Fatalf("failed load must not change state, got %s", grid.State())
	}
}

func TestGridMirrorLegacyKey(t *testing.T) {
	repo := newFakeRepo()
	grid := newTestGrid(t, repo, true)
	if _, err := grid.Load(context.Background(), []domain.Item{testItem("a", domain.WidgetSizeSmall, 1, 1)}, 2); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	flushGrid(t, grid)
	raw, ok := repo.value(LegacyKey(testBaseKey))
	if !ok {
		t.Fatal("expected mirrored legacy key")
	}
	if strings.Contains(raw, "schemaVersion") {
		t.Fatalf("legacy mirror must use the unversioned format, got %s", raw)
	}
	legacy, err := DecodeLayout(raw)
	if err != nil || legacy.SchemaVersion != 1 {
		t.Fatalf("DecodeLayout() = %+v, %v", legacy, err)
	}
}

func TestGridRejectsMutationsBeforeLoad(t *testing.T) {
	grid := newTestGrid(t, newFakeRepo(), false)
	if _, err := grid.MoveTo("a", 1, 1); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if _, err := grid.Swap("a", "b"); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if layout, changed := grid.SyncInitialItems(nil); layout != nil || changed {
		t.Fatal("expected sync before load to report no change")
	}
}

func loadedGrid(t *testing.T, repo *fakeRepo, columns int, items ...domain.Item) *Grid {
	t.Helper()
	grid := newTestGrid(t, repo, false)
	if _, err := grid.Load(context.Background(), items, columns); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	flushGrid(t, grid)
	return grid
}

func TestGridMoveToGates(t *testing.T) {
	repo := newFakeRepo()
	grid := loadedGrid(t, repo, 4,
		testItem("a", domain.WidgetSizeWide, 1, 1),
		testItem("b", domain.WidgetSizeSmall, 1, 1),
	)
	before := grid.Items()
	writes := len(repo.writeLog())

	cases := []struct {
		name string
		id   string
		col  int
		row  int
		want error
	}{
		{"missing", "zzz", 1, 2, domain.ErrMissingItem},
		{"left edge", "a", 0, 2, domain.ErrBoundsViolation},
		{"right edge", "a", 4, 2, domain.ErrBoundsViolation},
		{"row floor", "b", 1, 0, domain.ErrBoundsViolation},
		{"collision", "b", 2, 1, domain.ErrCollision},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := grid.MoveTo(tc.id, tc.col, tc.row)
			if !errors.Is(err, tc.want) {
				t.Fatalf("MoveTo() error = %v, want %v", err, tc.want)
			}
			if diff := cmp.Diff(before, got); diff != "" {
				t.Fatalf("rejected move must return the unchanged layout (-want +got):\n%s", diff)
			}
		})
	}
	if diff := cmp.Diff(before, grid.Items()); diff != "" {
		t.Fatalf("rejected moves changed memory (-want +got):\n%s", diff)
	}
	flushGrid(t, grid)
	if got := len(repo.writeLog()); got != writes {
		t.Fatalf("rejected moves wrote %d times", got-writes)
	}

	got, err := grid.MoveTo("b", 3, 4)
	if err != nil {
		t.Fatalf("MoveTo() error = %v", err)
	}
	if pos := itemPositions(got)["b"]; pos != cell(3, 4, 1, 1) {
		t.Fatalf("unexpected position %s", pos)
	}
	flushGrid(t, grid)
	raw, _ := repo.value(ColumnKey(testBaseKey, 4))
	if !strings.Contains(raw, `"b":{"column":3,"row":4`) {
		t.Fatalf("expected committed move to persist, got %s", raw)
	}
}

func TestGridMoveByRightEdgeClamp(t *testing.T) {
	repo := newFakeRepo()
	repo.put(ColumnKey(testBaseKey, 4), `{"schemaVersion":2,"columns":4,"positions":{"a":{"column":4,"row":1,"columnSpan":1}}}`)
	grid := loadedGrid(t, repo, 4, testItem("a", domain.WidgetSizeSmall, 1, 1))
	writes := len(repo.writeLog())

	got, err := grid.MoveBy("a", domain.PixelDelta{X: 224}, domain.CellSize{Width: 200, Height: 200}, 24)
	if err != nil {
		t.Fatalf("MoveBy() error = %v", err)
	}
	if got[0].Position.Column != 4 {
		t.Fatalf("expected column 4, got %s", got[0].Position)
	}
	flushGrid(t, grid)
	if len(repo.writeLog()) != writes {
		t.Fatal("a drag that resolves to the same cell must not write")
	}

	got, err = grid.MoveBy("a", domain.PixelDelta{X: -448, Y: 224}, domain.CellSize{Width: 200, Height: 200}, 24)
	if err != nil {
		t.Fatalf("MoveBy() error = %v", err)
	}
	if got[0].Position != cell(2, 2, 1, 1) {
		t.Fatalf("unexpected drag result %s", got[0].Position)
	}
}

func TestGridSwap(t *testing.T) {
	grid := loadedGrid(t, newFakeRepo(), 4,
		testItem("a", domain.WidgetSizeSmall, 1, 1),
		testItem("b", domain.WidgetSizeSmall, 1, 1),
		testItem("w", domain.WidgetSizeWide, 1, 1),
	)
	got, err := grid.Swap("a", "b")
	if err != nil {
		t.Fatalf("Swap() error = %v", err)
	}
	want := map[string]domain.GridPosition{
		"a": cell(2, 1, 1, 1),
		"b": cell(1, 1, 1, 1),
		"w": cell(3, 1, 2, 1),
	}
	if diff := cmp.Diff(want, itemPositions(got)); diff != "" {
		t.Fatalf("Swap() mismatch (-want +got):\n%s", diff)
	}

	if _, err := grid.Swap("a", "missing"); !errors.Is(err, domain.ErrMissingItem) {
		t.Fatalf("expected ErrMissingItem, got %v", err)
	}

	// w lands on column 1 and its second column overlaps a.
	if _, err := grid.Swap("b", "w"); !errors.Is(err, domain.ErrCollision) {
		t.Fatalf("expected ErrCollision, got %v", err)
	}
	if diff := cmp.Diff(want, itemPositions(grid.Items())); diff != "" {
		t.Fatalf("rejected swap changed memory (-want +got):\n%s", diff)
	}
}

func TestGridReset(t *testing.T) {
	grid := loadedGrid(t, newFakeRepo(), 2,
		testItem("a", domain.WidgetSizeSmall, 1, 1),
		testItem("b", domain.WidgetSizeSmall, 1, 1),
	)
	if _, err := grid.MoveTo("a", 1, 5); err != nil {
		t.Fatalf("MoveTo() error = %v", err)
	}
	got, err := grid.Reset()
	if err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	want := map[string]domain.GridPosition{"a": cell(1, 1, 1, 1), "b": cell(2, 1, 1, 1)}
	if diff := cmp.Diff(want, itemPositions(got)); diff != "" {
		t.Fatalf("Reset() mismatch (-want +got):\n%s", diff)
	}
}

func TestGridSyncInitialItems(t *testing.T) {
	repo := newFakeRepo()
	a := testItem("a", domain.WidgetSizeSmall, 1, 1)
	b := testItem("b", domain.WidgetSizeSmall, 1, 1)
	grid := loadedGrid(t, repo, 4, a, b)
	writes := len(repo.writeLog())

	if layout, changed := grid.SyncInitialItems([]domain.Item{b, a}); layout != nil || changed {
		t.Fatalf("expected no change for the same ids and spans, got %v %v", layout, changed)
	}
	flushGrid(t, grid)
	if len(repo.writeLog()) != writes {
		t.Fatal("no-change sync must not write")
	}

	c := testItem("c", domain.WidgetSizeSmall, 4, 3)
	d := testItem("d", domain.WidgetSizeSmall, 1, 1)
	got, changed := grid.SyncInitialItems([]domain.Item{a, b, c, d})
	if !changed {
		t.Fatal("expected membership change")
	}
	want := map[string]domain.GridPosition{
		"a": cell(1, 1, 1, 1),
		"b": cell(2, 1, 1, 1),
		"c": cell(4, 3, 1, 1),
		"d": cell(3, 1, 1, 1),
	}
	if diff := cmp.Diff(want, itemPositions(got)); diff != "" {
		t.Fatalf("SyncInitialItems() mismatch (-want +got):\n%s", diff)
	}

	tallA := testItem("a", domain.WidgetSizeTall, 9, 9)
	got, changed = grid.SyncInitialItems([]domain.Item{tallA, c})
	if !changed {
		t.Fatal("expected span change to be detected")
	}
	want = map[string]domain.GridPosition{
		"a": cell(1, 1, 1, 2),
		"c": cell(4, 3, 1, 1),
	}
	if diff := cmp.Diff(want, itemPositions(got)); diff != "" {
		t.Fatalf("SyncInitialItems() mismatch (-want +got):\n%s", diff)
	}
}

func TestGridReflowOutputIsByteIdentical(t *testing.T) {
	items := []domain.Item{
		testItem("a", domain.WidgetSizeWide, 1, 1),
		testItem("b", domain.WidgetSizeTall, 1, 1),
		testItem("c", domain.WidgetSizeLarge, 1, 1),
		testItem("d", domain.WidgetSizeSmall, 1, 1),
	}
	var stored []string
	for range 2 {
		repo := newFakeRepo()
		grid := loadedGrid(t, repo, 3, items...)
		flushGrid(t, grid)
		raw, _ := repo.value(ColumnKey(testBaseKey, 3))
		stored = append(stored, raw)
	}
	if stored[0] == "" || stored[0] != stored[1] {
		t.Fatalf("expected identical encoded layouts\n%s\n%s", stored[0], stored[1])
	}
}

func TestGridWriteFailureKeepsMemoryAndDoesNotRetry(t *testing.T) {
	repo := newFakeRepo()
	grid := loadedGrid(t, repo, 2, testItem("a", domain.WidgetSizeSmall, 1, 1))
	repo.mu.Lock()
	repo.setErr = errors.New("disk full")
	repo.mu.Unlock()

	if _, err := grid.MoveTo("a", 2, 3); err != nil {
		t.Fatalf("MoveTo() error = %v", err)
	}
	flushGrid(t, grid)
	attempts := len(repo.writeLog())
	flushGrid(t, grid)
	if got := len(repo.writeLog()); got != attempts {
		t.Fatalf("expected no retry, got %d extra writes", got-attempts)
	}
	if pos := grid.Items()[0].Position; pos != cell(2, 3, 1, 1) {
		t.Fatalf("expected memory to keep the committed move, got %s", pos)
	}
}

func TestGridConcurrentMutationsKeepInvariants(t *testing.T) {
	items := make([]domain.Item, 0, 8)
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		size := domain.WidgetSizeSmall
		if id == "c" || id == "f" {
			size = domain.WidgetSizeLarge
		}
		items = append(items, testItem(id, size, 1, 1))
	}
	grid := loadedGrid(t, newFakeRepo(), 4, items...)

	var wg sync.WaitGroup
	for worker := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for step := range 25 {
				id := items[(worker+step)%len(items)].ID
				other := items[(worker*3+step)%len(items)].ID
				if step%2 == 0 {
					_, _ = grid.MoveTo(id, 1+step%4, 1+worker%5)
				} else {
					_, _ = grid.Swap(id, other)
				}
			}
		}()
	}
	wg.Wait()
	if err := domain.ValidateLayout(grid.Items(), 4); err != nil {
		t.Fatalf("ValidateLayout() error = %v", err)
	}
}
