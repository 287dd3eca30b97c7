package app

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/hylla/tessera/internal/domain"
)

// SnapshotVersion defines a package constant value.
const SnapshotVersion = "tessera.snapshot.v1"

// Snapshot is a portable export of one dashboard's widgets and saved layouts.
type Snapshot struct {
	Version     string           `json:"version"`
	ExportedAt  time.Time        `json:"exported_at"`
	DashboardID string           `json:"dashboard_id"`
	Widgets     []SnapshotWidget `json:"widgets"`
	Layouts     []SnapshotLayout `json:"layouts,omitempty"`
}

// SnapshotWidget represents one exported widget definition.
type SnapshotWidget struct {
	ID        string            `json:"id"`
	Kind      string            `json:"kind"`
	Title     string            `json:"title"`
	Body      string            `json:"body,omitempty"`
	Size      domain.WidgetSize `json:"size"`
	Column    int               `json:"column"`
	Row       int               `json:"row"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// SnapshotLayout represents the saved layout for one column count.
type SnapshotLayout struct {
	Columns int         `json:"columns"`
	Layout  SavedLayout `json:"layout"`
}

// ExportSnapshot captures a dashboard's definitions and every saved column-scoped layout.
func (s *Service) ExportSnapshot(ctx context.Context, dashboardID string) (Snapshot, error) {
	dashboardID = s.dashboardID(dashboardID)
	if err := s.Flush(ctx); err != nil {
		return Snapshot{}, err
	}
	widgets, err := s.repo.ListWidgets(ctx, dashboardID)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		Version:     SnapshotVersion,
		ExportedAt:  s.clock().UTC(),
		DashboardID: dashboardID,
		Widgets:     make([]SnapshotWidget, 0, len(widgets)),
		Layouts:     make([]SnapshotLayout, 0),
	}
	for _, w := range widgets {
		snap.Widgets = append(snap.Widgets, snapshotWidgetFromDomain(w))
	}

	baseKey := s.cfg.KeyPrefix + "/" + dashboardID
	columns, err := s.savedColumns(ctx, baseKey)
	if err != nil {
		return Snapshot{}, err
	}
	for _, columns := range columns {
		raw, found, err := s.repo.Get(ctx, ColumnKey(baseKey, columns))
		if err != nil {
			return Snapshot{}, err
		}
		if !found {
			continue
		}
		layout, err := DecodeLayout(raw)
		if err != nil {
			s.logger.Warn("snapshot skipped undecodable layout", "dashboard", dashboardID, "columns", columns, "err", err)
			continue
		}
		snap.Layouts = append(snap.Layouts, SnapshotLayout{Columns: columns, Layout: layout})
	}
	snap.sort()
	return snap, nil
}

// ImportSnapshot drops the loaded session, draining its queued writes, then
// upserts widgets and saved layouts so the next read restores the imported data.
func (s *Service) ImportSnapshot(ctx context.Context, snap Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	snap.sort()
	dashboardID := s.dashboardID(snap.DashboardID)

	unlock := s.lockDashboard(dashboardID)
	defer unlock()
	if err := s.forget(ctx, dashboardID); err != nil {
		return fmt.Errorf("drain loaded layout: %w", err)
	}

	for _, sw := range snap.Widgets {
		w := sw.toDomain(dashboardID)
		if _, err := s.repo.GetWidget(ctx, w.ID); err == nil {
			if err := s.repo.UpdateWidget(ctx, w); err != nil {
				return err
			}
			continue
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		if err := s.repo.CreateWidget(ctx, w); err != nil {
			return err
		}
	}

	baseKey := s.cfg.KeyPrefix + "/" + dashboardID
	for _, l := range snap.Layouts {
		layout := l.Layout
		layout.SchemaVersion = LayoutSchemaVersion
		layout.Columns = l.Columns
		value, err := EncodeLayout(layout)
		if err != nil {
			return err
		}
		if err := s.repo.Set(ctx, ColumnKey(baseKey, l.Columns), value); err != nil {
			return err
		}
	}
	s.recordEvent(ctx, dashboardID, "", domain.LayoutOperationSync, map[string]string{
		"import":  SnapshotVersion,
		"widgets": itoa(len(snap.Widgets)),
		"layouts": itoa(len(snap.Layouts)),
	})
	return nil
}

// Validate validates the requested operation.
func (s *Snapshot) Validate() error {
	if s.Version != "" && s.Version != SnapshotVersion {
		return fmt.Errorf("%w: unsupported version %q", ErrInvalidSnapshot, s.Version)
	}
	ids := map[string]struct{}{}
	for i, w := range s.Widgets {
		if strings.TrimSpace(w.ID) == "" {
			return fmt.Errorf("%w: widgets[%d].id is required", ErrInvalidSnapshot, i)
		}
		if strings.TrimSpace(w.Title) == "" {
			return fmt.Errorf("%w: widgets[%d].title is required", ErrInvalidSnapshot, i)
		}
		if _, err := domain.ParseWidgetSize(string(w.Size)); err != nil {
			return fmt.Errorf("%w: widgets[%d].size %q", ErrInvalidSnapshot, i, w.Size)
		}
		if w.Column < 1 || w.Row < 1 {
			return fmt.Errorf("%w: widgets[%d] position must be >= 1", ErrInvalidSnapshot, i)
		}
		if _, exists := ids[w.ID]; exists {
			return fmt.Errorf("%w: duplicate widget id %q", ErrInvalidSnapshot, w.ID)
		}
		ids[w.ID] = struct{}{}
	}
	seenColumns := map[int]struct{}{}
	for i, l := range s.Layouts {
		if l.Columns < 1 {
			return fmt.Errorf("%w: layouts[%d].columns must be >= 1", ErrInvalidSnapshot, i)
		}
		if _, exists := seenColumns[l.Columns]; exists {
			return fmt.Errorf("%w: duplicate layout for %d columns", ErrInvalidSnapshot, l.Columns)
		}
		seenColumns[l.Columns] = struct{}{}
		if l.Layout.Positions == nil {
			return fmt.Errorf("%w: layouts[%d].positions is required", ErrInvalidSnapshot, i)
		}
	}
	return nil
}

func (s *Snapshot) sort() {
	slices.SortStableFunc(s.Layouts, func(a, b SnapshotLayout) int {
		return cmp.Compare(a.Columns, b.Columns)
	})
}

// savedColumns lists every column count with a stored layout under baseKey.
func (s *Service) savedColumns(ctx context.Context, baseKey string) ([]int, error) {
	keys, err := s.repo.ListLayoutKeys(ctx, baseKey+"-")
	if err != nil {
		return nil, fmt.Errorf("list layout keys: %w", err)
	}
	columns := make([]int, 0, len(keys))
	for _, key := range keys {
		if c, ok := ParseColumnKey(baseKey, key); ok && !slices.Contains(columns, c) {
			columns = append(columns, c)
		}
	}
	slices.Sort(columns)
	return columns, nil
}

func snapshotWidgetFromDomain(w domain.Widget) SnapshotWidget {
	return SnapshotWidget{
		ID:        w.ID,
		Kind:      w.Kind,
		Title:     w.Title,
		Body:      w.Body,
		Size:      w.Size,
		Column:    w.Position.Column,
		Row:       w.Position.Row,
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}
}

func (w SnapshotWidget) toDomain(dashboardID string) domain.Widget {
	size, _ := domain.ParseWidgetSize(string(w.Size))
	colSpan, rowSpan := size.Spans()
	kind := strings.TrimSpace(w.Kind)
	if kind == "" {
		kind = "note"
	}
	return domain.Widget{
		ID:          strings.TrimSpace(w.ID),
		DashboardID: dashboardID,
		Kind:        kind,
		Title:       strings.TrimSpace(w.Title),
		Body:        w.Body,
		Size:        size,
		Position:    domain.GridPosition{Column: w.Column, Row: w.Row, ColumnSpan: colSpan, RowSpan: rowSpan},
		CreatedAt:   w.CreatedAt.UTC(),
		UpdatedAt:   w.UpdatedAt.UTC(),
	}
}
