package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "charm.land/bubbletea/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serveradapter "github.com/hylla/tessera/internal/adapters/server"
	"github.com/hylla/tessera/internal/config"
	"github.com/hylla/tessera/internal/tui"
)

// TestMain sets deterministic environment defaults for CLI tests.
func TestMain(m *testing.M) {
	_ = os.Setenv("TESSERA_DEV_MODE", "false")
	os.Exit(m.Run())
}

type fakeProgram struct {
	model  tea.Model
	runErr error
	seen   *tea.Model
}

func (f fakeProgram) Run() (tea.Model, error) {
	if f.seen != nil {
		*f.seen = f.model
	}
	return f.model, f.runErr
}

// runCLI runs one command against an isolated config and database.
func runCLI(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	base := []string{
		"--config", filepath.Join(dir, "config.toml"),
		"--db", filepath.Join(dir, "tessera.db"),
	}
	err := run(context.Background(), append(base, args...), &stdout, &stderr)
	return stdout.String(), err
}

// widgetIDs parses `widget list` output into ids by title.
func widgetIDs(t *testing.T, out string) map[string]string {
	t.Helper()
	ids := map[string]string{}
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		fields := strings.Split(line, "\t")
		require.Len(t, fields, 4, "unexpected list line %q", line)
		ids[fields[3]] = fields[0]
	}
	return ids
}

func TestRunVersion(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"--version"}, &out, nil))
	assert.Equal(t, "tessera dev\n", out.String())
}

func TestRunStartsProgram(t *testing.T) {
	orig := programFactory
	t.Cleanup(func() { programFactory = orig })

	var seen tea.Model
	programFactory = func(m tea.Model) program {
		return fakeProgram{model: m, seen: &seen}
	}

	_, err := runCLI(t, t.TempDir(), "--dashboard", "ops")
	require.NoError(t, err)
	_, ok := seen.(tui.Model)
	assert.True(t, ok, "expected tui.Model, got %T", seen)
}

func TestRunPropagatesProgramError(t *testing.T) {
	orig := programFactory
	t.Cleanup(func() { programFactory = orig })
	programFactory = func(m tea.Model) program {
		return fakeProgram{model: m, runErr: assert.AnError}
	}

	_, err := runCLI(t, t.TempDir())
	require.ErrorIs(t, err, assert.AnError)
}

func TestRunUnknownCommand(t *testing.T) {
	_, err := runCLI(t, t.TempDir(), "bogus")
	require.Error(t, err)
}

func TestRunPathsCommand(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"--app", "tessera-test", "paths"}, &out, nil))
	for _, want := range []string{"app: tessera-test", "config:", "db:", "log:", "exports:"} {
		assert.Contains(t, out.String(), want)
	}
}

func TestRunWidgetAndLayoutCommands(t *testing.T) {
	dir := t.TempDir()

	out, err := runCLI(t, dir, "widget", "add", "--title", "Revenue", "--kind", "chart", "--size", "wide")
	require.NoError(t, err)
	assert.Contains(t, out, "Revenue at (1,1 2x1)")
	_, err = runCLI(t, dir, "widget", "add", "--title", "Notes")
	require.NoError(t, err)

	out, err = runCLI(t, dir, "widget", "list")
	require.NoError(t, err)
	ids := widgetIDs(t, out)
	require.Len(t, ids, 2)

	out, err = runCLI(t, dir, "layout", "show", "--columns", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "home · 4 columns")
	assert.Less(t, strings.Index(out, "Revenue"), strings.Index(out, "Notes"))

	out, err = runCLI(t, dir, "widget", "resize", ids["Notes"], "tall")
	require.NoError(t, err)
	assert.Contains(t, out, "resized to tall")

	out, err = runCLI(t, dir, "widget", "edit", ids["Notes"], "--title", "Runbook", "--body", "# steps")
	require.NoError(t, err)
	assert.Contains(t, out, "Runbook")
	_, err = runCLI(t, dir, "widget", "edit", ids["Notes"])
	require.Error(t, err)
	out, err = runCLI(t, dir, "widget", "list")
	require.NoError(t, err)
	assert.Contains(t, widgetIDs(t, out), "Runbook")

	out, err = runCLI(t, dir, "layout", "reset", "--columns", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "at 2 columns")

	out, err = runCLI(t, dir, "layout", "events", "--limit", "50")
	require.NoError(t, err)
	assert.Contains(t, out, "create")
	assert.Contains(t, out, "reset")

	out, err = runCLI(t, dir, "widget", "rm", ids["Revenue"])
	require.NoError(t, err)
	assert.Contains(t, out, "deleted")

	out, err = runCLI(t, dir, "widget", "list")
	require.NoError(t, err)
	assert.NotContains(t, out, "Revenue")
}

func TestRunWidgetAddRejectsBadSize(t *testing.T) {
	_, err := runCLI(t, t.TempDir(), "widget", "add", "--title", "X", "--size", "huge")
	require.Error(t, err)
}

func TestRunExportImportRoundTrip(t *testing.T) {
	src := t.TempDir()
	_, err := runCLI(t, src, "widget", "add", "--title", "Revenue", "--size", "wide")
	require.NoError(t, err)
	_, err = runCLI(t, src, "layout", "show")
	require.NoError(t, err)

	snapPath := filepath.Join(src, "exports", "home.json")
	_, err = runCLI(t, src, "layout", "export", "--out", snapPath)
	require.NoError(t, err)

	stdoutSnap, err := runCLI(t, src, "layout", "export")
	require.NoError(t, err)
	assert.Contains(t, stdoutSnap, `"version": "tessera.snapshot.v1"`)

	dst := t.TempDir()
	_, err = runCLI(t, dst, "layout", "import", "--in", snapPath)
	require.NoError(t, err)
	out, err := runCLI(t, dst, "widget", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Revenue")

	_, err = runCLI(t, dst, "layout", "import", "--in", filepath.Join(dst, "missing.json"))
	require.Error(t, err)
}

func TestRunExportSaveUsesExportDir(t *testing.T) {
	dir := t.TempDir()
	backups := filepath.Join(dir, "backups")
	t.Setenv("TESSERA_EXPORT_DIR", "")
	cfg := "[export]\ndir = \"" + filepath.ToSlash(backups) + "\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(cfg), 0o644))
	_, err := runCLI(t, dir, "widget", "add", "--title", "Revenue")
	require.NoError(t, err)

	out, err := runCLI(t, dir, "layout", "export", "--save")
	require.NoError(t, err)
	assert.Contains(t, out, "exported home to "+backups)
	saved, err := filepath.Glob(filepath.Join(backups, "home-*.json"))
	require.NoError(t, err)
	require.Len(t, saved, 1)

	pinned := filepath.Join(dir, "pinned")
	t.Setenv("TESSERA_EXPORT_DIR", pinned)
	_, err = runCLI(t, dir, "--dashboard", "ops", "layout", "export", "--save")
	require.NoError(t, err)
	saved, err = filepath.Glob(filepath.Join(pinned, "ops-*.json"))
	require.NoError(t, err)
	assert.Len(t, saved, 1)

	_, err = runCLI(t, dir, "layout", "export", "--save", "--out", filepath.Join(dir, "x.json"))
	require.Error(t, err)
}

func TestRunServeWiresDependencies(t *testing.T) {
	orig := serveCommandRunner
	t.Cleanup(func() { serveCommandRunner = orig })

	var gotCfg serveradapter.Config
	var gotDeps serveradapter.Dependencies
	serveCommandRunner = func(_ context.Context, cfg serveradapter.Config, deps serveradapter.Dependencies) error {
		gotCfg, gotDeps = cfg, deps
		return nil
	}

	_, err := runCLI(t, t.TempDir(), "serve", "--http", "127.0.0.1:9999")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", gotCfg.HTTPBind)
	assert.Equal(t, "/api/v1", gotCfg.APIEndpoint)
	assert.Equal(t, "/mcp", gotCfg.MCPEndpoint)
	assert.Equal(t, 20.0, gotCfg.RateLimit)
	assert.NotNil(t, gotDeps.Layouts)
	assert.NotNil(t, gotDeps.MCP)
	assert.NotNil(t, gotDeps.Readiness)
}

func TestRunConfigAndDBEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "env.db")
	t.Setenv("TESSERA_CONFIG", filepath.Join(dir, "missing.toml"))
	t.Setenv("TESSERA_DB_PATH", dbPath)

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"widget", "add", "--title", "Env"}, &out, nil))
	_, err := os.Stat(dbPath)
	require.NoError(t, err)
}

func TestRunRejectsInvalidLoggingLevelFromConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[logging]\nlevel = \"loud\"\n"), 0o644))

	_, err := runCLI(t, dir, "widget", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestRunDevModeWritesLogFile(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "logs", "dev.log")
	cfg := "[logging]\nlevel = \"debug\"\ndev_file = \"" + filepath.ToSlash(logPath) + "\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(cfg), 0o644))

	_, err := runCLI(t, dir, "--dev", "widget", "list")
	require.NoError(t, err)
	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "command flow start")
	assert.Contains(t, string(content), "command=\"widget list\"")
}

func TestParseBoolEnv(t *testing.T) {
	t.Setenv("TESSERA_TEST_BOOL", "true")
	v, ok := parseBoolEnv("TESSERA_TEST_BOOL")
	assert.True(t, ok)
	assert.True(t, v)

	t.Setenv("TESSERA_TEST_BOOL", "nope")
	_, ok = parseBoolEnv("TESSERA_TEST_BOOL")
	assert.False(t, ok)

	_, ok = parseBoolEnv("TESSERA_TEST_UNSET")
	assert.False(t, ok)
}

func TestRuntimeLoggerCanMuteConsoleSink(t *testing.T) {
	var stderr bytes.Buffer
	logger, err := newRuntimeLogger(&stderr, "tessera", false, config.LoggingConfig{Level: config.LogLevelInfo}, "")
	require.NoError(t, err)

	logger.Info("visible")
	logger.SetConsoleEnabled(false)
	logger.Info("hidden")
	require.NoError(t, logger.Close())

	assert.Contains(t, stderr.String(), "visible")
	assert.NotContains(t, stderr.String(), "hidden")
	assert.Empty(t, logger.DevLogPath())
}

func TestToTUIRuntimeConfigMapsFields(t *testing.T) {
	cfg := config.Default("/tmp/tessera.db")
	cfg.TUI.CellWidth = 40
	cfg.Keys.Grab = "g"

	got := toTUIRuntimeConfig(cfg)
	assert.Equal(t, 40, got.Style.CellWidth)
	assert.Equal(t, cfg.TUI.CellHeight, got.Style.CellHeight)
	assert.Equal(t, "g", got.Keys.Grab)
	assert.Equal(t, cfg.Keys.Copy, got.Keys.Copy)
}

func TestBridgeConfigReloads(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reloads := make(chan config.Reload, 2)
	reloads <- config.Reload{Config: config.Default("/tmp/tessera.db")}
	reloads <- config.Reload{Err: assert.AnError}
	close(reloads)

	logger, err := newRuntimeLogger(nil, "tessera", false, config.LoggingConfig{Level: config.LogLevelInfo}, "")
	require.NoError(t, err)
	updates := bridgeConfigReloads(ctx, reloads, logger)

	first := <-updates
	require.NoError(t, first.Err)
	assert.Equal(t, 28, first.Config.Style.CellWidth)
	second := <-updates
	require.ErrorIs(t, second.Err, assert.AnError)
	_, open := <-updates
	assert.False(t, open)
}
