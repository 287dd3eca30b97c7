package app

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/hylla/tessera/internal/domain"
)

// LayoutSchemaVersion is the version written for every saved layout.
// Payloads without a version are the legacy single-layout format and read as 1.
const LayoutSchemaVersion = 2

// SavedLayout is the persisted artifact for one column-scoped key.
type SavedLayout struct {
	SchemaVersion int                            `json:"schemaVersion,omitempty"`
	Columns       int                            `json:"columns,omitempty"`
	Positions     map[string]domain.GridPosition `json:"positions"`
}

// ColumnKey returns the authoritative key for a column count.
func ColumnKey(baseKey string, columns int) string {
	return fmt.Sprintf("%s-%dcol", baseKey, columns)
}

// ParseColumnKey reports the column count encoded in a key ColumnKey built from baseKey.
func ParseColumnKey(baseKey, key string) (int, bool) {
	rest, ok := strings.CutPrefix(key, baseKey+"-")
	if !ok {
		return 0, false
	}
	digits, ok := strings.CutSuffix(rest, "col")
	if !ok || digits == "" || digits[0] < '1' || digits[0] > '9' {
		return 0, false
	}
	columns, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return columns, true
}

// LegacyKey returns the column-agnostic key older builds wrote.
func LegacyKey(baseKey string) string {
	return baseKey
}

// EncodeLayout serializes a layout. Map keys encode sorted, so output is stable.
func EncodeLayout(layout SavedLayout) (string, error) {
	if layout.Positions == nil {
		layout.Positions = map[string]domain.GridPosition{}
	}
	raw, err := json.Marshal(layout)
	if err != nil {
		return "", fmt.Errorf("encode layout: %w", err)
	}
	return string(raw), nil
}

// EncodeLegacyLayout writes the unversioned {positions} form.
func EncodeLegacyLayout(layout SavedLayout) (string, error) {
	return EncodeLayout(SavedLayout{Positions: layout.Positions})
}

// DecodeLayout parses either schema version.
func DecodeLayout(raw string) (SavedLayout, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return SavedLayout{}, fmt.Errorf("%w: empty payload", domain.ErrInvalidLayoutJSON)
	}
	var layout SavedLayout
	if err := json.Unmarshal([]byte(raw), &layout); err != nil {
		return SavedLayout{}, fmt.Errorf("%w: %v", domain.ErrInvalidLayoutJSON, err)
	}
	if layout.Positions == nil {
		return SavedLayout{}, fmt.Errorf("%w: missing positions", domain.ErrInvalidLayoutJSON)
	}
	switch layout.SchemaVersion {
	case 0:
		layout.SchemaVersion = 1
	case 1, LayoutSchemaVersion:
	default:
		return SavedLayout{}, fmt.Errorf("%w: unsupported schemaVersion %d", domain.ErrInvalidLayoutJSON, layout.SchemaVersion)
	}
	return layout, nil
}

// ToSavedLayout captures the positions of a committed layout.
func ToSavedLayout(items []domain.Item, columns int) SavedLayout {
	positions := make(map[string]domain.GridPosition, len(items))
	for _, it := range items {
		pos := it.Position
		pos.ColumnSpan = pos.ColSpan()
		pos.RowSpan = pos.RSpan()
		positions[it.ID] = pos
	}
	return SavedLayout{SchemaVersion: LayoutSchemaVersion, Columns: columns, Positions: positions}
}

// RestoreFromSaved copies column and row from the saved layout onto items.
// Spans always stay those of the current definitions.
func RestoreFromSaved(items []domain.Item, saved SavedLayout) []domain.Item {
	out := domain.CloneItems(items)
	for i := range out {
		pos, ok := saved.Positions[out[i].ID]
		if !ok {
			continue
		}
		out[i].Position = out[i].Position.At(pos.Column, pos.Row)
	}
	return out
}
