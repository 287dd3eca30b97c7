package tui

import (
	"github.com/atotto/clipboard"

	"github.com/hylla/tessera/internal/app"
)

// GridStyle sets the terminal size of one grid cell.
type GridStyle struct {
	CellWidth  int
	CellHeight int
	Gap        int
}

type Option func(*Model)

// RuntimeConfig is the subset of settings the dashboard can pick up live.
type RuntimeConfig struct {
	Style GridStyle
	Keys  KeyConfig
}

// ConfigUpdate carries one reloaded RuntimeConfig or the error that prevented it.
type ConfigUpdate struct {
	Config RuntimeConfig
	Err    error
}

func DefaultGridStyle() GridStyle {
	return GridStyle{
		CellWidth:  28,
		CellHeight: 7,
		Gap:        1,
	}
}

func WithGridStyle(style GridStyle) Option {
	return func(m *Model) {
		if style.CellWidth >= 8 {
			m.style.CellWidth = style.CellWidth
		}
		if style.CellHeight >= 3 {
			m.style.CellHeight = style.CellHeight
		}
		if style.Gap >= 0 {
			m.style.Gap = style.Gap
		}
	}
}

func WithDashboard(dashboardID string) Option {
	return func(m *Model) {
		m.dashboardID = dashboardID
	}
}

func WithKeyConfig(cfg KeyConfig) Option {
	return func(m *Model) {
		m.keys = m.keys.withOverrides(cfg)
	}
}

// WithClipboard swaps the clipboard writer, mainly for tests.
func WithClipboard(write func(string) error) Option {
	return func(m *Model) {
		if write != nil {
			m.copy = write
		}
	}
}

func WithLogger(logger app.Logger) Option {
	return func(m *Model) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func defaultClipboard(text string) error {
	return clipboard.WriteAll(text)
}

// WithConfigUpdates applies runtime config reloads received on updates.
func WithConfigUpdates(updates <-chan ConfigUpdate) Option {
	return func(m *Model) {
		m.updates = updates
	}
}
