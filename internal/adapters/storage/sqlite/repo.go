package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hylla/tessera/internal/app"
	"github.com/hylla/tessera/internal/domain"
)

// driverName defines a package constant value.
const driverName = "sqlite"

var memoryDBSeq atomic.Int64

// Repository stores layouts, widget definitions, and layout events in SQLite.
type Repository struct {
	db *sql.DB
}

// Open opens the database at path, creating it and applying migrations.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return newRepository(db)
}

// OpenInMemory opens a private in-memory database.
func OpenInMemory() (*Repository, error) {
	dsn := fmt.Sprintf("file:tessera-mem-%d?mode=memory&cache=shared", memoryDBSeq.Add(1))
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	return newRepository(db)
}

func newRepository(db *sql.DB) (*Repository, error) {
	// One connection serializes the background layout writer with request traffic.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	if err := migrateUp(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repository{db: db}, nil
}

// Close closes the requested operation.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Ping reports whether the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Get returns a stored layout value.
func (r *Repository) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM layout_kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read layout %q: %w", key, err)
	}
	return value, true, nil
}

// Set upserts a layout value.
func (r *Repository) Set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO layout_kv(key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, ts(time.Now()))
	if err != nil {
		return fmt.Errorf("write layout %q: %w", key, err)
	}
	return nil
}

// ListLayoutKeys lists stored layout keys that start with prefix.
func (r *Repository) ListLayoutKeys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT key FROM layout_kv
		WHERE substr(key, 1, length(?)) = ?
		ORDER BY key ASC
	`, prefix, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		out = append(out, key)
	}
	return out, rows.Err()
}

// CreateWidget creates widget.
func (r *Repository) CreateWidget(ctx context.Context, w domain.Widget) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO widgets(id, dashboard_id, kind, title, body, size, grid_column, grid_row, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, w.ID, w.DashboardID, w.Kind, w.Title, w.Body, string(w.Size), w.Position.Column, w.Position.Row, ts(w.CreatedAt), ts(w.UpdatedAt))
	return err
}

// UpdateWidget updates state for the requested operation.
func (r *Repository) UpdateWidget(ctx context.Context, w domain.Widget) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE widgets
		SET dashboard_id = ?, kind = ?, title = ?, body = ?, size = ?, grid_column = ?, grid_row = ?, updated_at = ?
		WHERE id = ?
	`, w.DashboardID, w.Kind, w.Title, w.Body, string(w.Size), w.Position.Column, w.Position.Row, ts(w.UpdatedAt), w.ID)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// GetWidget returns widget.
func (r *Repository) GetWidget(ctx context.Context, id string) (domain.Widget, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, dashboard_id, kind, title, body, size, grid_column, grid_row, created_at, updated_at
		FROM widgets
		WHERE id = ?
	`, id)
	return scanWidget(row)
}

// ListWidgets lists a dashboard's widgets in creation order.
func (r *Repository) ListWidgets(ctx context.Context, dashboardID string) ([]domain.Widget, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, dashboard_id, kind, title, body, size, grid_column, grid_row, created_at, updated_at
		FROM widgets
		WHERE dashboard_id = ?
		ORDER BY rowid ASC
	`, dashboardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Widget, 0)
	for rows.Next() {
		w, err := scanWidget(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// DeleteWidget deletes widget.
func (r *Repository) DeleteWidget(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM widgets WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// AppendLayoutEvent inserts a layout ledger record.
func (r *Repository) AppendLayoutEvent(ctx context.Context, event domain.LayoutEvent) error {
	metadata := event.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode layout event metadata: %w", err)
	}
	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO layout_events(dashboard_id, widget_id, operation, metadata_json, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, event.DashboardID, event.WidgetID, string(event.Operation), string(metaJSON), ts(occurredAt))
	return err
}

// ListLayoutEvents lists recent dashboard events, newest first.
func (r *Repository) ListLayoutEvents(ctx context.Context, dashboardID string, limit int) ([]domain.LayoutEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, dashboard_id, widget_id, operation, metadata_json, created_at
		FROM layout_events
		WHERE dashboard_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, dashboardID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.LayoutEvent, 0)
	for rows.Next() {
		var (
			event       domain.LayoutEvent
			opRaw       string
			metadataRaw string
			createdRaw  string
		)
		if err := rows.Scan(&event.ID, &event.DashboardID, &event.WidgetID, &opRaw, &metadataRaw, &createdRaw); err != nil {
			return nil, err
		}
		event.Operation = domain.LayoutOperation(strings.TrimSpace(opRaw))
		event.OccurredAt = parseTS(createdRaw)
		if strings.TrimSpace(metadataRaw) == "" {
			metadataRaw = "{}"
		}
		if err := json.Unmarshal([]byte(metadataRaw), &event.Metadata); err != nil {
			return nil, fmt.Errorf("decode layout_events.metadata_json: %w", err)
		}
		if event.Metadata == nil {
			event.Metadata = map[string]string{}
		}
		out = append(out, event)
	}
	return out, rows.Err()
}

// scanner represents scanner data used by this package.
type scanner interface {
	Scan(dest ...any) error
}

func scanWidget(s scanner) (domain.Widget, error) {
	var (
		w          domain.Widget
		sizeRaw    string
		createdRaw string
		updatedRaw string
	)
	if err := s.Scan(&w.ID, &w.DashboardID, &w.Kind, &w.Title, &w.Body, &sizeRaw, &w.Position.Column, &w.Position.Row, &createdRaw, &updatedRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Widget{}, app.ErrNotFound
		}
		return domain.Widget{}, err
	}
	size, err := domain.ParseWidgetSize(sizeRaw)
	if err != nil {
		size = domain.WidgetSizeSmall
	}
	w.Size = size
	colSpan, rowSpan := size.Spans()
	w.Position = w.Position.WithSpans(colSpan, rowSpan)
	w.CreatedAt = parseTS(createdRaw)
	w.UpdatedAt = parseTS(updatedRaw)
	return w, nil
}

// translateNoRows handles translate no rows.
func translateNoRows(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return app.ErrNotFound
	}
	return nil
}

// ts handles ts.
func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTS parses input into a normalized form.
func parseTS(v string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}
