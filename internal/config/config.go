package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// LogLevel names a logging threshold.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

type Config struct {
	Database DatabaseConfig `toml:"database"`
	Grid     GridConfig     `toml:"grid"`
	TUI      TUIConfig      `toml:"tui"`
	Keys     KeyConfig      `toml:"keys"`
	Logging  LoggingConfig  `toml:"logging"`
	Server   ServerConfig   `toml:"server"`
	Export   ExportConfig   `toml:"export"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type GridConfig struct {
	Gap              float64            `toml:"gap"`
	KeyPrefix        string             `toml:"key_prefix"`
	DefaultDashboard string             `toml:"default_dashboard"`
	DefaultColumns   int                `toml:"default_columns"`
	MirrorLegacyKey  bool               `toml:"mirror_legacy_key"`
	Breakpoints      []BreakpointConfig `toml:"breakpoints"`
}

// BreakpointConfig maps a minimum container width to a column count.
type BreakpointConfig struct {
	MinWidth float64 `toml:"min_width"`
	Columns  int     `toml:"columns"`
}

type TUIConfig struct {
	CellWidth  int `toml:"cell_width"`
	CellHeight int `toml:"cell_height"`
	Gap        int `toml:"gap"`
}

type KeyConfig struct {
	Grab   string `toml:"grab"`
	Swap   string `toml:"swap"`
	Reset  string `toml:"reset"`
	Detail string `toml:"detail"`
	Copy   string `toml:"copy"`
}

type LoggingConfig struct {
	Level   LogLevel `toml:"level"`
	DevFile string   `toml:"dev_file"`
}

type ServerConfig struct {
	HTTPBind    string `toml:"http"`
	APIEndpoint string `toml:"api_endpoint"`
	MCPEndpoint string `toml:"mcp_endpoint"`
	// RateLimit is requests per second across API and MCP; zero disables it.
	RateLimit float64 `toml:"rate_limit"`
	RateBurst int     `toml:"rate_burst"`
}

// ExportConfig sets where `layout export --save` writes snapshots.
// Empty keeps the platform export dir; TESSERA_EXPORT_DIR still wins.
type ExportConfig struct {
	Dir string `toml:"dir"`
}

func defaultBreakpoints() []BreakpointConfig {
	return []BreakpointConfig{
		{MinWidth: 0, Columns: 1},
		{MinWidth: 480, Columns: 2},
		{MinWidth: 768, Columns: 3},
		{MinWidth: 1024, Columns: 4},
	}
}

func Default(dbPath string) Config {
	return Config{
		Database: DatabaseConfig{
			Path: dbPath,
		},
		Grid: GridConfig{
			Gap:              24,
			KeyPrefix:        "tessera/layout",
			DefaultDashboard: "home",
			DefaultColumns:   4,
			MirrorLegacyKey:  false,
			Breakpoints:      defaultBreakpoints(),
		},
		TUI: TUIConfig{
			CellWidth:  28,
			CellHeight: 7,
			Gap:        1,
		},
		Keys: KeyConfig{
			Grab:   " ",
			Swap:   "s",
			Reset:  "R",
			Detail: "enter",
			Copy:   "y",
		},
		Logging: LoggingConfig{
			Level: LogLevelInfo,
		},
		Server: ServerConfig{
			HTTPBind:    "127.0.0.1:8080",
			APIEndpoint: "/api/v1",
			MCPEndpoint: "/mcp",
			RateLimit:   20,
			RateBurst:   40,
		},
	}
}

func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	// A file-level breakpoints table replaces the defaults instead of merging by index.
	var probe struct {
		Grid struct {
			Breakpoints []BreakpointConfig `toml:"breakpoints"`
		} `toml:"grid"`
	}
	if err := toml.Unmarshal(content, &probe); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}
	if probe.Grid.Breakpoints != nil {
		cfg.Grid.Breakpoints = nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database path is required")
	}

	if c.Grid.Gap < 0 {
		return fmt.Errorf("grid.gap must be >= 0, got %v", c.Grid.Gap)
	}
	if strings.TrimSpace(c.Grid.KeyPrefix) == "" {
		return errors.New("grid.key_prefix is required")
	}
	if strings.TrimSpace(c.Grid.DefaultDashboard) == "" {
		return errors.New("grid.default_dashboard is required")
	}
	if c.Grid.DefaultColumns < 1 {
		return fmt.Errorf("grid.default_columns must be >= 1, got %d", c.Grid.DefaultColumns)
	}
	if len(c.Grid.Breakpoints) == 0 {
		return errors.New("grid.breakpoints must include at least one breakpoint")
	}
	seenWidth := map[float64]struct{}{}
	for idx, bp := range c.Grid.Breakpoints {
		if bp.MinWidth < 0 {
			return fmt.Errorf("grid.breakpoints[%d].min_width must be >= 0", idx)
		}
		if bp.Columns < 1 {
			return fmt.Errorf("grid.breakpoints[%d].columns must be >= 1", idx)
		}
		if _, ok := seenWidth[bp.MinWidth]; ok {
			return fmt.Errorf("grid.breakpoints[%d].min_width is duplicated: %v", idx, bp.MinWidth)
		}
		seenWidth[bp.MinWidth] = struct{}{}
	}

	if c.TUI.CellWidth < 8 {
		return fmt.Errorf("tui.cell_width must be >= 8, got %d", c.TUI.CellWidth)
	}
	if c.TUI.CellHeight < 3 {
		return fmt.Errorf("tui.cell_height must be >= 3, got %d", c.TUI.CellHeight)
	}
	if c.TUI.Gap < 0 {
		return fmt.Errorf("tui.gap must be >= 0, got %d", c.TUI.Gap)
	}

	seenKey := map[string]string{}
	for name, key := range map[string]string{
		"grab":   c.Keys.Grab,
		"swap":   c.Keys.Swap,
		"reset":  c.Keys.Reset,
		"detail": c.Keys.Detail,
		"copy":   c.Keys.Copy,
	} {
		if key == "" {
			return fmt.Errorf("keys.%s is required", name)
		}
		if other, ok := seenKey[key]; ok {
			return fmt.Errorf("keys.%s and keys.%s share binding %q", name, other, key)
		}
		seenKey[key] = name
	}

	if c.Server.RateLimit < 0 || c.Server.RateBurst < 0 {
		return fmt.Errorf("server.rate_limit and server.rate_burst must be >= 0")
	}

	switch LogLevel(strings.ToLower(strings.TrimSpace(string(c.Logging.Level)))) {
	case "", LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
	default:
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}

	return nil
}

func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
