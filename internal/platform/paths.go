package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// Environment variables that pin individual paths.
const (
	EnvConfig    = "TESSERA_CONFIG"
	EnvDBPath    = "TESSERA_DB_PATH"
	EnvExportDir = "TESSERA_EXPORT_DIR"
)

// Paths lists the per-user locations tessera reads and writes.
type Paths struct {
	ConfigPath string
	DataDir    string
	DBPath     string
	LogPath    string
	ExportDir  string
	// Pinned records paths chosen by a flag or environment variable.
	Pinned Pinned

	home string
}

// Pinned marks paths that config files must not override.
type Pinned struct {
	Config bool
	DB     bool
	Export bool
}

// Options selects the app directory name and explicit overrides.
type Options struct {
	AppName    string
	DevMode    bool
	ConfigPath string
	DBPath     string
}

// System is the slice of process state path resolution reads.
type System struct {
	GOOS          string
	Getenv        func(string) string
	HomeDir       string
	UserConfigDir string
}

// DefaultPaths resolves paths for the production app name.
func DefaultPaths() (Paths, error) {
	return DefaultPathsWithOptions(Options{AppName: "tessera"})
}

// DefaultPathsWithOptions resolves paths against the running process.
func DefaultPathsWithOptions(opts Options) (Paths, error) {
	sys, err := CurrentSystem()
	if err != nil {
		return Paths{}, err
	}
	return Resolve(sys, opts)
}

// CurrentSystem captures the running process environment.
func CurrentSystem() (System, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return System{}, fmt.Errorf("user config dir: %w", err)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return System{}, fmt.Errorf("user home dir: %w", err)
	}
	return System{GOOS: runtime.GOOS, Getenv: os.Getenv, HomeDir: home, UserConfigDir: configDir}, nil
}

// Resolve computes tessera's paths. Precedence per path is explicit option,
// then TESSERA_* variable, then the platform default.
func Resolve(sys System, opts Options) (Paths, error) {
	appName := AppDirName(opts.AppName, opts.DevMode)
	getenv := sys.Getenv
	if getenv == nil {
		getenv = func(string) string { return "" }
	}
	roots, err := rootsFor(sys, getenv)
	if err != nil {
		return Paths{}, err
	}

	dataDir := filepath.Join(roots.data, appName)
	p := Paths{
		ConfigPath: filepath.Join(roots.config, appName, "config.toml"),
		DataDir:    dataDir,
		DBPath:     filepath.Join(dataDir, appName+".db"),
		LogPath:    filepath.Join(roots.state, appName, "logs", appName+".log"),
		ExportDir:  filepath.Join(dataDir, "exports"),
		home:       sys.HomeDir,
	}
	p.ConfigPath, p.Pinned.Config = pick(opts.ConfigPath, getenv(EnvConfig), p.ConfigPath)
	p.DBPath, p.Pinned.DB = pick(opts.DBPath, getenv(EnvDBPath), p.DBPath)
	p.ExportDir, p.Pinned.Export = pick("", getenv(EnvExportDir), p.ExportDir)
	return p, nil
}

// AppDirName is the directory and file stem for an app name; dev mode gets its own tree.
func AppDirName(appName string, devMode bool) string {
	appName = strings.TrimSpace(appName)
	if appName == "" {
		appName = "tessera"
	}
	if devMode {
		appName += "-dev"
	}
	return appName
}

// WithExportDir applies a configured export dir unless one is pinned.
func (p Paths) WithExportDir(dir string) Paths {
	dir = strings.TrimSpace(dir)
	if dir == "" || p.Pinned.Export {
		return p
	}
	p.ExportDir = expandHome(dir, p.home)
	return p
}

// ExportFile names a timestamped snapshot file for one dashboard.
func (p Paths) ExportFile(dashboardID string, at time.Time) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '_'
		}
		return r
	}, strings.TrimSpace(dashboardID))
	if name == "" {
		name = "dashboard"
	}
	return filepath.Join(p.ExportDir, fmt.Sprintf("%s-%s.json", name, at.UTC().Format("20060102T150405Z")))
}

type roots struct {
	config string
	data   string
	state  string
}

// rootsFor picks per-OS base directories. Linux follows the XDG base dir layout,
// including XDG_STATE_HOME for logs; other systems keep logs under data.
func rootsFor(sys System, getenv func(string) string) (roots, error) {
	if sys.UserConfigDir == "" {
		return roots{}, errors.New("empty user config dir")
	}
	switch sys.GOOS {
	case "linux":
		if sys.HomeDir == "" {
			return roots{}, errors.New("empty home dir")
		}
		return roots{
			config: firstSet(getenv("XDG_CONFIG_HOME"), sys.UserConfigDir),
			data:   firstSet(getenv("XDG_DATA_HOME"), filepath.Join(sys.HomeDir, ".local", "share")),
			state:  firstSet(getenv("XDG_STATE_HOME"), filepath.Join(sys.HomeDir, ".local", "state")),
		}, nil
	case "windows":
		data := firstSet(getenv("LOCALAPPDATA"), sys.UserConfigDir)
		return roots{config: firstSet(getenv("APPDATA"), sys.UserConfigDir), data: data, state: data}, nil
	default:
		return roots{config: sys.UserConfigDir, data: sys.UserConfigDir, state: sys.UserConfigDir}, nil
	}
}

func pick(explicit, env, fallback string) (string, bool) {
	if v := strings.TrimSpace(explicit); v != "" {
		return v, true
	}
	if v := strings.TrimSpace(env); v != "" {
		return v, true
	}
	return fallback, false
}

func firstSet(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func expandHome(path, home string) string {
	if home == "" {
		return path
	}
	if path == "~" {
		return home
	}
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		return filepath.Join(home, rest)
	}
	return path
}
