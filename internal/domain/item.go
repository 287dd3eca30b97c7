package domain

import (
	"slices"
	"strings"
)

// Item is one placeable entry on the grid. Payload is opaque to the layout code.
type Item struct {
	ID       string
	Size     WidgetSize
	Position GridPosition
	Payload  any
}

// Span returns the item's column and row span.
func (i Item) Span() (int, int) {
	return i.Position.ColSpan(), i.Position.RSpan()
}

// FindItem returns the index of the item with id, or -1.
func FindItem(items []Item, id string) int {
	return slices.IndexFunc(items, func(it Item) bool {
		return it.ID == id
	})
}

// CloneItems copies the slice; payloads are shared.
func CloneItems(items []Item) []Item {
	return append([]Item(nil), items...)
}

// ItemIDs returns ids in slice order.
func ItemIDs(items []Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

// NormalizeItemID trims an id and rejects empties.
func NormalizeItemID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", ErrInvalidID
	}
	return id, nil
}
