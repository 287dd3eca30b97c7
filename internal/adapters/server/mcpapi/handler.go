// Package mcpapi provides a stateless MCP streamable-HTTP adapter.
package mcpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/hylla/tessera/internal/adapters/server/common"
	"github.com/hylla/tessera/internal/domain"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Config captures MCP transport configuration.
type Config struct {
	ServerName    string
	ServerVersion string
	EndpointPath  string
}

// Handler wraps one stateless MCP streamable HTTP handler.
type Handler struct {
	httpHandler http.Handler
}

// NewHandler builds one stateless MCP adapter with layout tools plus optional widget and event tools.
func NewHandler(cfg Config, layouts common.LayoutService, widgets common.WidgetService, events common.EventService) (*Handler, error) {
	if layouts == nil {
		return nil, fmt.Errorf("layout service is required")
	}
	cfg = normalizeConfig(cfg)

	mcpSrv := mcpserver.NewMCPServer(
		cfg.ServerName,
		cfg.ServerVersion,
		mcpserver.WithToolCapabilities(false),
	)
	registerLayoutTools(mcpSrv, layouts)
	if widgets != nil {
		registerWidgetTools(mcpSrv, widgets)
	}
	if events != nil {
		registerEventTools(mcpSrv, events)
	}

	streamable := mcpserver.NewStreamableHTTPServer(
		mcpSrv,
		mcpserver.WithEndpointPath(cfg.EndpointPath),
		mcpserver.WithStateLess(true),
	)
	return &Handler{httpHandler: streamable}, nil
}

// ServeHTTP handles one MCP streamable HTTP request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.httpHandler == nil {
		http.Error(w, "mcp handler unavailable", http.StatusServiceUnavailable)
		return
	}
	h.httpHandler.ServeHTTP(w, r)
}

// normalizeConfig applies deterministic defaults to MCP adapter config.
func normalizeConfig(cfg Config) Config {
	cfg.ServerName = strings.TrimSpace(cfg.ServerName)
	if cfg.ServerName == "" {
		cfg.ServerName = "tessera"
	}
	cfg.ServerVersion = strings.TrimSpace(cfg.ServerVersion)
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}
	cfg.EndpointPath = strings.TrimSpace(cfg.EndpointPath)
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/mcp"
	}
	if !strings.HasPrefix(cfg.EndpointPath, "/") {
		cfg.EndpointPath = "/" + cfg.EndpointPath
	}
	cfg.EndpointPath = "/" + strings.Trim(cfg.EndpointPath, "/")
	return cfg
}

// registerLayoutTools registers layout read and mutation tools.
func registerLayoutTools(srv *mcpserver.MCPServer, layouts common.LayoutService) {
	srv.AddTool(
		mcp.NewTool(
			"tessera.get_layout",
			mcp.WithDescription("Return the committed widget layout for one dashboard."),
			mcp.WithString("dashboard_id", mcp.Description("Dashboard identifier (defaults to the configured dashboard)")),
			mcp.WithNumber("columns", mcp.Description("Column count to lay out for")),
			mcp.WithNumber("grid_width", mcp.Description("Grid width in pixels; selects columns by breakpoint")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args common.LayoutRequest
			if err := req.BindArguments(&args); err != nil {
				return invalidRequestToolResult(err), nil
			}
			return layoutToolResult(layouts.Layout(ctx, args))
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"tessera.move_widget",
			mcp.WithDescription("Move one widget to an explicit 1-based cell. Rejected moves leave the layout unchanged."),
			mcp.WithString("dashboard_id", mcp.Description("Dashboard identifier")),
			mcp.WithString("widget_id", mcp.Required(), mcp.Description("Widget identifier")),
			mcp.WithNumber("column", mcp.Required(), mcp.Description("Target column (1-based)")),
			mcp.WithNumber("row", mcp.Required(), mcp.Description("Target row (1-based)")),
			mcp.WithNumber("columns", mcp.Description("Column count to lay out for")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args common.MoveWidgetRequest
			if err := req.BindArguments(&args); err != nil {
				return invalidRequestToolResult(err), nil
			}
			if strings.TrimSpace(args.WidgetID) == "" {
				return mcp.NewToolResultError(`invalid_request: required argument "widget_id" not found`), nil
			}
			return layoutToolResult(layouts.MoveWidget(ctx, args))
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"tessera.drag_widget",
			mcp.WithDescription("Commit the end of a drag gesture from its pixel travel."),
			mcp.WithString("dashboard_id", mcp.Description("Dashboard identifier")),
			mcp.WithString("widget_id", mcp.Required(), mcp.Description("Widget identifier")),
			mcp.WithNumber("delta_x", mcp.Required(), mcp.Description("Horizontal travel in pixels")),
			mcp.WithNumber("delta_y", mcp.Required(), mcp.Description("Vertical travel in pixels")),
			mcp.WithNumber("grid_width", mcp.Required(), mcp.Description("Grid container width in pixels")),
			mcp.WithNumber("gap", mcp.Description("Gap between cells in pixels")),
			mcp.WithNumber("columns", mcp.Description("Column count to lay out for")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args common.DragWidgetRequest
			if err := req.BindArguments(&args); err != nil {
				return invalidRequestToolResult(err), nil
			}
			if strings.TrimSpace(args.WidgetID) == "" {
				return mcp.NewToolResultError(`invalid_request: required argument "widget_id" not found`), nil
			}
			return layoutToolResult(layouts.DragWidget(ctx, args))
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"tessera.swap_widgets",
			mcp.WithDescription("Exchange the cells of two widgets; each keeps its own size."),
			mcp.WithString("dashboard_id", mcp.Description("Dashboard identifier")),
			mcp.WithString("active_id", mcp.Required(), mcp.Description("Dragged widget identifier")),
			mcp.WithString("over_id", mcp.Required(), mcp.Description("Drop target widget identifier")),
			mcp.WithNumber("columns", mcp.Description("Column count to lay out for")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args common.SwapWidgetsRequest
			if err := req.BindArguments(&args); err != nil {
				return invalidRequestToolResult(err), nil
			}
			return layoutToolResult(layouts.SwapWidgets(ctx, args))
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"tessera.reset_layout",
			mcp.WithDescription("Discard the saved arrangement and reflow widgets in definition order."),
			mcp.WithString("dashboard_id", mcp.Description("Dashboard identifier")),
			mcp.WithNumber("columns", mcp.Description("Column count to lay out for")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args common.ResetLayoutRequest
			if err := req.BindArguments(&args); err != nil {
				return invalidRequestToolResult(err), nil
			}
			return layoutToolResult(layouts.ResetLayout(ctx, args))
		},
	)
}

// registerWidgetTools registers optional widget definition tools.
func registerWidgetTools(srv *mcpserver.MCPServer, widgets common.WidgetService) {
	sizes := make([]string, 0, len(domain.WidgetSizes()))
	for _, size := range domain.WidgetSizes() {
		sizes = append(sizes, string(size))
	}

	srv.AddTool(
		mcp.NewTool(
			"tessera.list_widgets",
			mcp.WithDescription("List widget definitions for one dashboard in definition order."),
			mcp.WithString("dashboard_id", mcp.Description("Dashboard identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			list, err := widgets.ListWidgets(ctx, req.GetString("dashboard_id", ""))
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{"widgets": list})
			if err != nil {
				return nil, fmt.Errorf("encode list_widgets result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"tessera.create_widget",
			mcp.WithDescription("Create one widget at the first free cell of its dashboard."),
			mcp.WithString("dashboard_id", mcp.Description("Dashboard identifier")),
			mcp.WithString("title", mcp.Required(), mcp.Description("Card title")),
			mcp.WithString("kind", mcp.Description("Widget kind (defaults to note)")),
			mcp.WithString("body", mcp.Description("Markdown body")),
			mcp.WithString("size", mcp.Description("Card footprint"), mcp.Enum(sizes...)),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args common.CreateWidgetRequest
			if err := req.BindArguments(&args); err != nil {
				return invalidRequestToolResult(err), nil
			}
			if strings.TrimSpace(args.Title) == "" {
				return mcp.NewToolResultError(`invalid_request: required argument "title" not found`), nil
			}
			return widgetToolResult(widgets.CreateWidget(ctx, args))
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"tessera.resize_widget",
			mcp.WithDescription("Change one widget's footprint; the layout re-places it if it no longer fits."),
			mcp.WithString("widget_id", mcp.Required(), mcp.Description("Widget identifier")),
			mcp.WithString("size", mcp.Required(), mcp.Description("Card footprint"), mcp.Enum(sizes...)),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			widgetID, err := req.RequireString("widget_id")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			size, err := req.RequireString("size")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			return widgetToolResult(widgets.ResizeWidget(ctx, common.ResizeWidgetRequest{WidgetID: widgetID, Size: size}))
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"tessera.edit_widget",
			mcp.WithDescription("Retitle a widget or replace its markdown body. Its cell does not change."),
			mcp.WithString("widget_id", mcp.Required(), mcp.Description("Widget identifier")),
			mcp.WithString("title", mcp.Description("New title")),
			mcp.WithString("body", mcp.Description("New markdown body")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			if _, err := req.RequireString("widget_id"); err != nil {
				return invalidRequestToolResult(err), nil
			}
			var edit common.EditWidgetRequest
			if err := req.BindArguments(&edit); err != nil {
				return invalidRequestToolResult(err), nil
			}
			return widgetToolResult(widgets.EditWidget(ctx, edit))
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"tessera.delete_widget",
			mcp.WithDescription("Delete one widget definition."),
			mcp.WithString("widget_id", mcp.Required(), mcp.Description("Widget identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			widgetID, err := req.RequireString("widget_id")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			if err := widgets.DeleteWidget(ctx, widgetID); err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{"deleted": widgetID})
			if err != nil {
				return nil, fmt.Errorf("encode delete_widget result: %w", err)
			}
			return result, nil
		},
	)
}

// registerEventTools registers the optional layout activity tool.
func registerEventTools(srv *mcpserver.MCPServer, events common.EventService) {
	srv.AddTool(
		mcp.NewTool(
			"tessera.list_layout_events",
			mcp.WithDescription("List recent layout activity for one dashboard, newest first."),
			mcp.WithString("dashboard_id", mcp.Description("Dashboard identifier")),
			mcp.WithNumber("limit", mcp.Description("Maximum rows to return (default 50)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			list, err := events.ListLayoutEvents(ctx, common.ListEventsRequest{
				DashboardID: req.GetString("dashboard_id", ""),
				Limit:       req.GetInt("limit", 0),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{"events": list})
			if err != nil {
				return nil, fmt.Errorf("encode list_layout_events result: %w", err)
			}
			return result, nil
		},
	)
}

// layoutToolResult encodes one layout result or maps its error.
func layoutToolResult(layout common.Layout, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		return toolResultFromError(err), nil
	}
	result, err := mcp.NewToolResultJSON(layout)
	if err != nil {
		return nil, fmt.Errorf("encode layout result: %w", err)
	}
	return result, nil
}

// widgetToolResult encodes one widget result or maps its error.
func widgetToolResult(widget common.Widget, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		return toolResultFromError(err), nil
	}
	result, err := mcp.NewToolResultJSON(widget)
	if err != nil {
		return nil, fmt.Errorf("encode widget result: %w", err)
	}
	return result, nil
}

// toolResultFromError maps service errors into MCP-visible tool errors.
func toolResultFromError(err error) *mcp.CallToolResult {
	switch {
	case err == nil:
		return mcp.NewToolResultError("unknown error")
	case errors.Is(err, common.ErrConflict):
		return mcp.NewToolResultError("layout_conflict: " + err.Error())
	case errors.Is(err, common.ErrInvalidRequest):
		return mcp.NewToolResultError("invalid_request: " + err.Error())
	case errors.Is(err, common.ErrNotFound):
		return mcp.NewToolResultError("not_found: " + err.Error())
	default:
		return mcp.NewToolResultError("internal_error: " + err.Error())
	}
}

// invalidRequestToolResult reports malformed tool arguments.
func invalidRequestToolResult(err error) *mcp.CallToolResult {
	if err == nil {
		return mcp.NewToolResultError("invalid_request: malformed arguments")
	}
	return mcp.NewToolResultError("invalid_request: " + err.Error())
}
