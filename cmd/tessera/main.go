package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	serveradapter "github.com/hylla/tessera/internal/adapters/server"
	servercommon "github.com/hylla/tessera/internal/adapters/server/common"
	"github.com/hylla/tessera/internal/adapters/storage/sqlite"
	"github.com/hylla/tessera/internal/app"
	"github.com/hylla/tessera/internal/config"
	"github.com/hylla/tessera/internal/domain"
	"github.com/hylla/tessera/internal/platform"
	"github.com/hylla/tessera/internal/tui"
)

var version = "dev"

type program interface {
	Run() (tea.Model, error)
}

var programFactory = func(m tea.Model) program {
	return tea.NewProgram(m)
}

// serveCommandRunner starts the HTTP+MCP serve flow.
var serveCommandRunner = func(ctx context.Context, cfg serveradapter.Config, deps serveradapter.Dependencies) error {
	return serveradapter.Run(ctx, cfg, deps)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := fang.Execute(ctx, newRootCommand(os.Stdout, os.Stderr), fang.WithVersion(version)); err != nil {
		os.Exit(1)
	}
}

// run executes the command tree with explicit args and writers.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	root := newRootCommand(stdout, stderr)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// rootOptions holds persistent flag values shared by every command.
type rootOptions struct {
	configPath  string
	dbPath      string
	appName     string
	devMode     bool
	dashboardID string
	stdout      io.Writer
	stderr      io.Writer
}

// resolvePaths applies --config and --db over TESSERA_* variables and platform defaults.
func (o *rootOptions) resolvePaths() (platform.Paths, error) {
	return platform.DefaultPathsWithOptions(platform.Options{
		AppName:    o.appName,
		DevMode:    o.devMode,
		ConfigPath: o.configPath,
		DBPath:     o.dbPath,
	})
}

// stack bundles the opened stack for one command invocation.
type stack struct {
	cfg        config.Config
	configPath string
	defaults   config.Config
	paths      platform.Paths
	logger     *runtimeLogger
	repo       *sqlite.Repository
	svc        *app.Service
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{stdout: stdout, stderr: stderr}

	defaultDevMode := version == "dev"
	if envDev, ok := parseBoolEnv("TESSERA_DEV_MODE"); ok {
		defaultDevMode = envDev
	}
	defaultApp := "tessera"
	if envApp := strings.TrimSpace(os.Getenv("TESSERA_APP_NAME")); envApp != "" {
		defaultApp = envApp
	}

	root := &cobra.Command{
		Use:           "tessera",
		Short:         "Draggable widget grid dashboards for the terminal",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd.Context(), opts)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetVersionTemplate("tessera {{.Version}}\n")

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to config TOML")
	flags.StringVar(&opts.dbPath, "db", "", "path to sqlite database")
	flags.StringVar(&opts.appName, "app", defaultApp, "application name for config/data path resolution")
	flags.BoolVar(&opts.devMode, "dev", defaultDevMode, "use dev mode paths (<app>-dev)")
	flags.StringVar(&opts.dashboardID, "dashboard", "", "dashboard id (defaults to grid.default_dashboard)")

	root.AddCommand(
		newPathsCommand(opts),
		newServeCommand(opts),
		newLayoutCommand(opts),
		newWidgetCommand(opts),
	)
	return root
}

func newPathsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print resolved config, data, and log paths",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			paths, err := opts.resolvePaths()
			if err != nil {
				return err
			}
			out := opts.stdout
			_, _ = fmt.Fprintf(out, "app: %s\n", opts.appName)
			_, _ = fmt.Fprintf(out, "dev_mode: %t\n", opts.devMode)
			_, _ = fmt.Fprintf(out, "config: %s\n", paths.ConfigPath)
			_, _ = fmt.Fprintf(out, "data_dir: %s\n", paths.DataDir)
			_, _ = fmt.Fprintf(out, "db: %s\n", paths.DBPath)
			_, _ = fmt.Fprintf(out, "log: %s\n", paths.LogPath)
			_, _ = fmt.Fprintf(out, "exports: %s\n", paths.ExportDir)
			return nil
		},
	}
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	var httpBind, apiEndpoint, mcpEndpoint string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the layout REST API and MCP endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd.Context(), opts, "serve", true, func(ctx context.Context, rt *stack) error {
				cfg := serveradapter.Config{
					HTTPBind:      firstNonEmpty(httpBind, rt.cfg.Server.HTTPBind),
					APIEndpoint:   firstNonEmpty(apiEndpoint, rt.cfg.Server.APIEndpoint),
					MCPEndpoint:   firstNonEmpty(mcpEndpoint, rt.cfg.Server.MCPEndpoint),
					ServerName:    opts.appName,
					ServerVersion: version,
					RateLimit:     rt.cfg.Server.RateLimit,
					RateBurst:     rt.cfg.Server.RateBurst,
				}
				adapter := servercommon.NewAppServiceAdapter(rt.svc)
				agent := adapter.WithActor(app.MutationActor{ActorID: "mcp", ActorType: app.ActorTypeAgent})
				rt.logger.Info("serving", "http", cfg.HTTPBind, "api", cfg.APIEndpoint, "mcp", cfg.MCPEndpoint)
				return serveCommandRunner(ctx, cfg, serveradapter.Dependencies{
					Layouts:   adapter,
					Widgets:   adapter,
					Events:    adapter,
					MCP:       agent,
					MCPWidget: agent,
					Readiness: rt.repo,
				})
			})
		},
	}
	cmd.Flags().StringVar(&httpBind, "http", "", "listen address (defaults to server.http)")
	cmd.Flags().StringVar(&apiEndpoint, "api-endpoint", "", "REST base path")
	cmd.Flags().StringVar(&mcpEndpoint, "mcp-endpoint", "", "MCP endpoint path")
	return cmd
}

func newLayoutCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "layout",
		Short: "Inspect and manage saved layouts",
	}

	var showColumns int
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the committed layout as a table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd.Context(), opts, "layout show", true, func(ctx context.Context, rt *stack) error {
				view, err := rt.svc.Layout(ctx, app.LayoutQuery{DashboardID: opts.dashboardID, Columns: showColumns})
				if err != nil {
					return fmt.Errorf("load layout: %w", err)
				}
				_, err = fmt.Fprintln(opts.stdout, renderLayoutTable(view))
				return err
			})
		},
	}
	show.Flags().IntVar(&showColumns, "columns", 0, "column count (defaults to grid.default_columns)")

	var resetColumns int
	reset := &cobra.Command{
		Use:   "reset",
		Short: "Reflow the dashboard in definition order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd.Context(), opts, "layout reset", true, func(ctx context.Context, rt *stack) error {
				view, err := rt.svc.ResetLayout(ctx, opts.dashboardID, resetColumns)
				if err != nil {
					return fmt.Errorf("reset layout: %w", err)
				}
				_, err = fmt.Fprintf(opts.stdout, "reset %s at %d columns (%d rows)\n", view.DashboardID, view.Columns, view.Rows)
				return err
			})
		},
	}
	reset.Flags().IntVar(&resetColumns, "columns", 0, "column count (defaults to grid.default_columns)")

	var outPath string
	var save bool
	export := &cobra.Command{
		Use:   "export",
		Short: "Write a dashboard snapshot as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd.Context(), opts, "layout export", true, func(ctx context.Context, rt *stack) error {
				if !save {
					return runExport(ctx, rt.svc, opts.dashboardID, outPath, opts.stdout)
				}
				dashboardID := firstNonEmpty(opts.dashboardID, rt.svc.DefaultDashboard())
				target := rt.paths.ExportFile(dashboardID, time.Now())
				if err := runExport(ctx, rt.svc, dashboardID, target, opts.stdout); err != nil {
					return err
				}
				_, err := fmt.Fprintf(opts.stdout, "exported %s to %s\n", dashboardID, target)
				return err
			})
		},
	}
	export.Flags().StringVar(&outPath, "out", "-", "output file path ('-' for stdout)")
	export.Flags().BoolVar(&save, "save", false, "write a timestamped file into the export dir")
	export.MarkFlagsMutuallyExclusive("out", "save")

	var inPath string
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Load a dashboard snapshot from JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd.Context(), opts, "layout import", true, func(ctx context.Context, rt *stack) error {
				return runImport(ctx, rt.svc, inPath)
			})
		},
	}
	importCmd.Flags().StringVar(&inPath, "in", "", "input snapshot JSON file")
	_ = importCmd.MarkFlagRequired("in")

	var limit int
	events := &cobra.Command{
		Use:   "events",
		Short: "List recent layout activity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd.Context(), opts, "layout events", true, func(ctx context.Context, rt *stack) error {
				list, err := rt.svc.ListLayoutEvents(ctx, opts.dashboardID, limit)
				if err != nil {
					return fmt.Errorf("list layout events: %w", err)
				}
				_, err = fmt.Fprintln(opts.stdout, renderEventTable(list))
				return err
			})
		},
	}
	events.Flags().IntVar(&limit, "limit", 20, "maximum events to show")

	cmd.AddCommand(show, reset, export, importCmd, events)
	return cmd
}

func newWidgetCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "widget",
		Short: "Manage dashboard widgets",
	}

	var kind, title, body, size string
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a widget at the first free cell",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsed, err := domain.ParseWidgetSize(size)
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), opts, "widget add", true, func(ctx context.Context, rt *stack) error {
				widget, err := rt.svc.CreateWidget(ctx, app.CreateWidgetInput{
					DashboardID: opts.dashboardID,
					Kind:        kind,
					Title:       title,
					Body:        body,
					Size:        parsed,
				})
				if err != nil {
					return fmt.Errorf("create widget: %w", err)
				}
				_, err = fmt.Fprintf(opts.stdout, "%s %s at %s\n", widget.ID, widget.Title, widget.Position)
				return err
			})
		},
	}
	add.Flags().StringVar(&kind, "kind", "note", "widget kind")
	add.Flags().StringVar(&title, "title", "", "widget title")
	add.Flags().StringVar(&body, "body", "", "markdown body")
	add.Flags().StringVar(&size, "size", string(domain.WidgetSizeSmall), "small, wide, tall, or large")
	_ = add.MarkFlagRequired("title")

	list := &cobra.Command{
		Use:   "list",
		Short: "List widget definitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd.Context(), opts, "widget list", true, func(ctx context.Context, rt *stack) error {
				widgets, err := rt.svc.ListWidgets(ctx, opts.dashboardID)
				if err != nil {
					return fmt.Errorf("list widgets: %w", err)
				}
				for _, w := range widgets {
					if _, err := fmt.Fprintf(opts.stdout, "%s\t%s\t%s\t%s\n", w.ID, w.Kind, w.Size, w.Title); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	resize := &cobra.Command{
		Use:   "resize <id> <size>",
		Short: "Change a widget's footprint",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := domain.ParseWidgetSize(args[1])
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), opts, "widget resize", true, func(ctx context.Context, rt *stack) error {
				widget, err := rt.svc.ResizeWidget(ctx, args[0], parsed)
				if err != nil {
					return fmt.Errorf("resize widget: %w", err)
				}
				_, err = fmt.Fprintf(opts.stdout, "%s resized to %s\n", widget.ID, widget.Size)
				return err
			})
		},
	}

	var editTitle, editBody string
	editCmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change a widget's title or body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := app.EditWidgetInput{WidgetID: args[0]}
			if cmd.Flags().Changed("title") {
				in.Title = &editTitle
			}
			if cmd.Flags().Changed("body") {
				in.Body = &editBody
			}
			if in.Title == nil && in.Body == nil {
				return errors.New("edit widget: pass --title or --body")
			}
			return withRuntime(cmd.Context(), opts, "widget edit", true, func(ctx context.Context, rt *stack) error {
				widget, err := rt.svc.EditWidget(ctx, in)
				if err != nil {
					return fmt.Errorf("edit widget: %w", err)
				}
				_, err = fmt.Fprintf(opts.stdout, "%s\t%s\n", widget.ID, widget.Title)
				return err
			})
		},
	}
	editCmd.Flags().StringVar(&editTitle, "title", "", "new title")
	editCmd.Flags().StringVar(&editBody, "body", "", "new markdown body")

	remove := &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a widget",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), opts, "widget rm", true, func(ctx context.Context, rt *stack) error {
				if err := rt.svc.DeleteWidget(ctx, args[0]); err != nil {
					return fmt.Errorf("delete widget: %w", err)
				}
				_, err := fmt.Fprintf(opts.stdout, "deleted %s\n", args[0])
				return err
			})
		},
	}

	cmd.AddCommand(add, list, resize, editCmd, remove)
	return cmd
}

// runTUI opens the stack and runs the interactive dashboard.
func runTUI(ctx context.Context, opts *rootOptions) error {
	return withRuntime(ctx, opts, "tui", false, func(ctx context.Context, rt *stack) error {
		dashboardID := firstNonEmpty(opts.dashboardID, rt.cfg.Grid.DefaultDashboard)
		runtimeCfg := toTUIRuntimeConfig(rt.cfg)
		tuiOpts := []tui.Option{
			tui.WithDashboard(dashboardID),
			tui.WithGridStyle(runtimeCfg.Style),
			tui.WithKeyConfig(runtimeCfg.Keys),
			tui.WithLogger(rt.logger),
		}

		watchCtx, stopWatch := context.WithCancel(ctx)
		defer stopWatch()
		if reloads, err := config.Watch(watchCtx, rt.configPath, rt.defaults); err != nil {
			rt.logger.Warn("config watch unavailable", "config_path", rt.configPath, "err", err)
		} else {
			tuiOpts = append(tuiOpts, tui.WithConfigUpdates(bridgeConfigReloads(watchCtx, reloads, rt.logger)))
		}

		m := tui.NewModel(rt.svc, tuiOpts...)
		rt.logger.Info("starting tui program loop", "dashboard", dashboardID)
		if _, err := programFactory(m).Run(); err != nil {
			rt.logger.Error("tui program terminated with error", "err", err)
			return fmt.Errorf("run tui program: %w", err)
		}
		return nil
	})
}

// toTUIRuntimeConfig maps the live-reloadable config sections onto the TUI.
func toTUIRuntimeConfig(cfg config.Config) tui.RuntimeConfig {
	return tui.RuntimeConfig{
		Style: tui.GridStyle{
			CellWidth:  cfg.TUI.CellWidth,
			CellHeight: cfg.TUI.CellHeight,
			Gap:        cfg.TUI.Gap,
		},
		Keys: tui.KeyConfig{
			Grab:   cfg.Keys.Grab,
			Swap:   cfg.Keys.Swap,
			Reset:  cfg.Keys.Reset,
			Detail: cfg.Keys.Detail,
			Copy:   cfg.Keys.Copy,
		},
	}
}

// bridgeConfigReloads converts file reloads into TUI updates until ctx ends.
func bridgeConfigReloads(ctx context.Context, reloads <-chan config.Reload, logger *runtimeLogger) <-chan tui.ConfigUpdate {
	out := make(chan tui.ConfigUpdate)
	go func() {
		defer close(out)
		for reload := range reloads {
			update := tui.ConfigUpdate{Err: reload.Err}
			if reload.Err == nil {
				update.Config = toTUIRuntimeConfig(reload.Config)
				logger.Info("runtime config reloaded")
			}
			select {
			case out <- update:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// withRuntime resolves config, opens storage, builds the service, and runs fn.
// Queued layout writes are flushed before storage closes.
func withRuntime(ctx context.Context, opts *rootOptions, command string, console bool, fn func(context.Context, *stack) error) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	paths, err := opts.resolvePaths()
	if err != nil {
		return err
	}

	configPath := paths.ConfigPath
	defaults := config.Default(paths.DBPath)
	cfg, err := config.Load(configPath, defaults)
	if err != nil {
		return fmt.Errorf("load config %q: %w", configPath, err)
	}
	if paths.Pinned.DB {
		cfg.Database.Path = paths.DBPath
	}
	paths = paths.WithExportDir(cfg.Export.Dir)

	logger, err := newRuntimeLogger(opts.stderr, opts.appName, opts.devMode, cfg.Logging, paths.LogPath)
	if err != nil {
		return fmt.Errorf("configure runtime logger: %w", err)
	}
	logger.SetConsoleEnabled(console)
	defer func() {
		if closeErr := logger.Close(); closeErr != nil && console {
			_, _ = fmt.Fprintf(opts.stderr, "warning: close runtime log sink: %v\n", closeErr)
		}
	}()
	logger.Debug("configuration loaded", "config_path", configPath, "db_path", cfg.Database.Path, "command", command)
	if devPath := logger.DevLogPath(); devPath != "" {
		logger.Debug("dev file logging enabled", "path", devPath)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	repo, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Error("sqlite open failed", "db_path", cfg.Database.Path, "err", err)
		return fmt.Errorf("open sqlite repository: %w", err)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			logger.Warn("sqlite close failed", "db_path", cfg.Database.Path, "err", closeErr)
		}
	}()

	breakpoints := make([]app.Breakpoint, 0, len(cfg.Grid.Breakpoints))
	for _, bp := range cfg.Grid.Breakpoints {
		breakpoints = append(breakpoints, app.Breakpoint{MinWidth: bp.MinWidth, Columns: bp.Columns})
	}
	svc := app.NewService(repo, uuid.NewString, nil, app.ServiceConfig{
		KeyPrefix:        cfg.Grid.KeyPrefix,
		DefaultDashboard: cfg.Grid.DefaultDashboard,
		DefaultColumns:   cfg.Grid.DefaultColumns,
		Gap:              cfg.Grid.Gap,
		MirrorLegacyKey:  cfg.Grid.MirrorLegacyKey,
		Breakpoints:      breakpoints,
		Logger:           logger,
	})
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if closeErr := svc.Close(closeCtx); closeErr != nil {
			logger.Error("flush queued layout writes failed", "err", closeErr)
			err = errors.Join(err, fmt.Errorf("flush layout writes: %w", closeErr))
		}
	}()

	logger.Info("command flow start", "command", command)
	if err := fn(ctx, &stack{cfg: cfg, configPath: configPath, defaults: defaults, paths: paths, logger: logger, repo: repo, svc: svc}); err != nil {
		logger.Error("command flow failed", "command", command, "err", err)
		return err
	}
	logger.Debug("command flow complete", "command", command)
	return nil
}

// runExport writes one dashboard snapshot to outPath or stdout.
func runExport(ctx context.Context, svc *app.Service, dashboardID, outPath string, stdout io.Writer) error {
	snap, err := svc.ExportSnapshot(ctx, dashboardID)
	if err != nil {
		return fmt.Errorf("export snapshot: %w", err)
	}
	encoded, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot json: %w", err)
	}
	encoded = append(encoded, '\n')

	if outPath == "" || outPath == "-" {
		if _, err := stdout.Write(encoded); err != nil {
			return fmt.Errorf("write snapshot to stdout: %w", err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create export output dir: %w", err)
	}
	if err := os.WriteFile(outPath, encoded, 0o644); err != nil {
		return fmt.Errorf("write export file: %w", err)
	}
	return nil
}

// runImport restores a dashboard snapshot from inPath.
func runImport(ctx context.Context, svc *app.Service, inPath string) error {
	content, err := os.ReadFile(inPath)
	if err != nil {
		return fmt.Errorf("read import file: %w", err)
	}
	var snap app.Snapshot
	if err := json.Unmarshal(content, &snap); err != nil {
		return fmt.Errorf("decode snapshot json: %w", err)
	}
	if err := svc.ImportSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("import snapshot: %w", err)
	}
	return nil
}

// renderLayoutTable prints committed positions in reading order.
func renderLayoutTable(view app.LayoutView) string {
	all := domain.WidgetItems(view.Widgets)
	items := domain.ReadingOrder(all, app.ToSavedLayout(all, view.Columns).Positions)
	titles := make(map[string]domain.Widget, len(view.Widgets))
	for _, w := range view.Widgets {
		titles[w.ID] = w
	}
	rows := make([][]string, 0, len(items))
	for _, it := range items {
		w := titles[it.ID]
		rows = append(rows, []string{
			it.ID,
			w.Title,
			string(w.Size),
			strconv.Itoa(it.Position.Column),
			strconv.Itoa(it.Position.Row),
			fmt.Sprintf("%dx%d", it.Position.ColSpan(), it.Position.RSpan()),
		})
	}
	header := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("239"))).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		}).
		Headers("ID", "TITLE", "SIZE", "COL", "ROW", "SPAN").
		Rows(rows...)
	summary := fmt.Sprintf("%s · %d columns · %d rows · %s", view.DashboardID, view.Columns, view.Rows, view.Source)
	return summary + "\n" + t.String()
}

// renderEventTable prints layout activity newest first.
func renderEventTable(events []domain.LayoutEvent) string {
	rows := make([][]string, 0, len(events))
	for _, ev := range events {
		rows = append(rows, []string{
			ev.OccurredAt.Local().Format(time.DateTime),
			string(ev.Operation),
			ev.WidgetID,
			ev.Metadata["actor_id"],
		})
	}
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers("WHEN", "OP", "WIDGET", "ACTOR").
		Rows(rows...).
		String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// parseBoolEnv parses one boolean environment variable.
func parseBoolEnv(name string) (bool, bool) {
	raw, ok := os.LookupEnv(name)
	if !ok {
		return false, false
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, false
	}
	return v, true
}
