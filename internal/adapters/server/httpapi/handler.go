// Package httpapi provides the REST HTTP adapter for the server surfaces.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/hylla/tessera/internal/adapters/server/common"
)

// maxRequestBodyBytes limits decoded JSON payload size for fail-closed request handling.
const maxRequestBodyBytes int64 = 1 << 20

// Handler serves the versioned API subrouter mounted under `/api/v1`.
type Handler struct {
	layouts common.LayoutService
	widgets common.WidgetService
	events  common.EventService
}

// APIError represents one structured API failure response.
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ErrorEnvelope wraps one structured API error.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// NewHandler constructs one HTTP API adapter. Widget and event services are optional.
func NewHandler(layouts common.LayoutService, widgets common.WidgetService, events common.EventService) *Handler {
	return &Handler{
		layouts: layouts,
		widgets: widgets,
		events:  events,
	}
}

// ServeHTTP routes one versioned API request to the matching handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path)
	switch {
	case len(parts) >= 3 && parts[0] == "dashboards" && parts[2] == "layout":
		h.routeLayout(w, r, parts[1], parts[3:])
	case len(parts) == 3 && parts[0] == "dashboards" && parts[2] == "widgets":
		switch r.Method {
		case http.MethodGet:
			h.handleListWidgets(w, r, parts[1])
		case http.MethodPost:
			h.handleCreateWidget(w, r, parts[1])
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
	case len(parts) == 3 && parts[0] == "dashboards" && parts[2] == "events":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleListEvents(w, r, parts[1])
	case len(parts) == 2 && parts[0] == "widgets":
		switch r.Method {
		case http.MethodPatch:
			h.handleEditWidget(w, r, parts[1])
		case http.MethodDelete:
			h.handleDeleteWidget(w, r, parts[1])
		default:
			writeMethodNotAllowed(w, http.MethodPatch, http.MethodDelete)
		}
	case len(parts) == 3 && parts[0] == "widgets" && parts[2] == "resize":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleResizeWidget(w, r, parts[1])
	default:
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: "endpoint not found",
		})
	}
}

// routeLayout dispatches `/dashboards/{id}/layout[/{action}]`.
func (h *Handler) routeLayout(w http.ResponseWriter, r *http.Request, dashboardID string, rest []string) {
	if h.layouts == nil {
		writeJSONError(w, http.StatusServiceUnavailable, APIError{
			Code:    "service_unavailable",
			Message: "layout service is not configured",
		})
		return
	}
	if len(rest) == 0 {
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleGetLayout(w, r, dashboardID)
		return
	}
	if len(rest) > 1 {
		writeJSONError(w, http.StatusNotFound, APIError{Code: "not_found", Message: "endpoint not found"})
		return
	}
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}
	switch rest[0] {
	case "move":
		h.handleMove(w, r, dashboardID)
	case "drag":
		h.handleDrag(w, r, dashboardID)
	case "swap":
		h.handleSwap(w, r, dashboardID)
	case "reset":
		h.handleReset(w, r, dashboardID)
	default:
		writeJSONError(w, http.StatusNotFound, APIError{Code: "not_found", Message: "endpoint not found"})
	}
}

// handleGetLayout serves GET `/dashboards/{id}/layout`.
func (h *Handler) handleGetLayout(w http.ResponseWriter, r *http.Request, dashboardID string) {
	req := common.LayoutRequest{DashboardID: dashboardID}
	query := r.URL.Query()
	if raw := strings.TrimSpace(query.Get("columns")); raw != "" {
		columns, err := strconv.Atoi(raw)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, APIError{
				Code:    "invalid_request",
				Message: "columns must be an integer",
				Details: map[string]any{"param": "columns"},
			})
			return
		}
		req.Columns = columns
	}
	if raw := strings.TrimSpace(query.Get("grid_width")); raw != "" {
		width, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, APIError{
				Code:    "invalid_request",
				Message: "grid_width must be a number",
				Details: map[string]any{"param": "grid_width"},
			})
			return
		}
		req.GridWidth = width
	}
	layout, err := h.layouts.Layout(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, layout)
}

// handleMove serves POST `/dashboards/{id}/layout/move`.
func (h *Handler) handleMove(w http.ResponseWriter, r *http.Request, dashboardID string) {
	var req common.MoveWidgetRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.DashboardID = dashboardID
	layout, err := h.layouts.MoveWidget(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, layout)
}

// handleDrag serves POST `/dashboards/{id}/layout/drag`.
func (h *Handler) handleDrag(w http.ResponseWriter, r *http.Request, dashboardID string) {
	var req common.DragWidgetRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.DashboardID = dashboardID
	layout, err := h.layouts.DragWidget(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, layout)
}

// handleSwap serves POST `/dashboards/{id}/layout/swap`.
func (h *Handler) handleSwap(w http.ResponseWriter, r *http.Request, dashboardID string) {
	var req common.SwapWidgetsRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.DashboardID = dashboardID
	layout, err := h.layouts.SwapWidgets(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, layout)
}

// handleReset serves POST `/dashboards/{id}/layout/reset`.
func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request, dashboardID string) {
	var req common.ResetLayoutRequest
	if err := decodeOptionalJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.DashboardID = dashboardID
	layout, err := h.layouts.ResetLayout(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, layout)
}

// handleListWidgets serves GET `/dashboards/{id}/widgets`.
func (h *Handler) handleListWidgets(w http.ResponseWriter, r *http.Request, dashboardID string) {
	if !h.requireWidgets(w) {
		return
	}
	widgets, err := h.widgets.ListWidgets(r.Context(), dashboardID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"widgets": widgets,
	})
}

// handleCreateWidget serves POST `/dashboards/{id}/widgets`.
func (h *Handler) handleCreateWidget(w http.ResponseWriter, r *http.Request, dashboardID string) {
	if !h.requireWidgets(w) {
		return
	}
	var req common.CreateWidgetRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.DashboardID = dashboardID
	widget, err := h.widgets.CreateWidget(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, widget)
}

// handleResizeWidget serves POST `/widgets/{id}/resize`.
func (h *Handler) handleResizeWidget(w http.ResponseWriter, r *http.Request, widgetID string) {
	if !h.requireWidgets(w) {
		return
	}
	var req common.ResizeWidgetRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.WidgetID = widgetID
	widget, err := h.widgets.ResizeWidget(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, widget)
}

// handleEditWidget serves PATCH `/widgets/{id}`.
func (h *Handler) handleEditWidget(w http.ResponseWriter, r *http.Request, widgetID string) {
	if !h.requireWidgets(w) {
		return
	}
	var req common.EditWidgetRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.WidgetID = widgetID
	widget, err := h.widgets.EditWidget(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, widget)
}

// handleDeleteWidget serves DELETE `/widgets/{id}`.
func (h *Handler) handleDeleteWidget(w http.ResponseWriter, r *http.Request, widgetID string) {
	if !h.requireWidgets(w) {
		return
	}
	if err := h.widgets.DeleteWidget(r.Context(), widgetID); err != nil {
		writeErrorFrom(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListEvents serves GET `/dashboards/{id}/events`.
func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request, dashboardID string) {
	if h.events == nil {
		writeJSONError(w, http.StatusNotImplemented, APIError{
			Code:    "not_implemented",
			Message: "layout event APIs are not available",
		})
		return
	}
	req := common.ListEventsRequest{DashboardID: dashboardID}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeJSONError(w, http.StatusBadRequest, APIError{
				Code:    "invalid_request",
				Message: "limit must be a non-negative integer",
			})
			return
		}
		req.Limit = limit
	}
	events, err := h.events.ListLayoutEvents(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
	})
}

// requireWidgets writes a 501 when the widget surface is missing.
func (h *Handler) requireWidgets(w http.ResponseWriter) bool {
	if h.widgets != nil {
		return true
	}
	writeJSONError(w, http.StatusNotImplemented, APIError{
		Code:    "not_implemented",
		Message: "widget APIs are not available",
	})
	return false
}

// splitPath canonicalizes one request path into non-empty segments.
func splitPath(path string) []string {
	path = strings.Trim(strings.TrimSpace(path), "/")
	if path == "" {
		return nil
	}
	parts := strings.Split(path, "/")
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			return nil
		}
	}
	return parts
}

// writeErrorFrom maps adapter errors into structured HTTP responses.
func writeErrorFrom(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: "unknown error",
		})
	case errors.Is(err, common.ErrConflict):
		writeJSONError(w, http.StatusConflict, APIError{
			Code:    "layout_conflict",
			Message: err.Error(),
			Details: map[string]any{"hint": "The target cell is occupied or outside the grid; the layout is unchanged."},
		})
	case errors.Is(err, common.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrInvalidRequest):
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: err.Error(),
		})
	default:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: err.Error(),
		})
	}
}

// writeMethodNotAllowed writes a structured 405 response with `Allow` headers.
func writeMethodNotAllowed(w http.ResponseWriter, methods ...string) {
	if len(methods) > 0 {
		w.Header().Set("Allow", strings.Join(methods, ", "))
	}
	writeJSONError(w, http.StatusMethodNotAllowed, APIError{
		Code:    "method_not_allowed",
		Message: "method not allowed",
		Details: map[string]any{"allow": methods},
	})
}

// writeJSONError writes one structured error envelope.
func writeJSONError(w http.ResponseWriter, statusCode int, apiErr APIError) {
	writeJSON(w, statusCode, ErrorEnvelope{Error: apiErr})
}

// writeJSON writes one JSON response envelope.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":{"code":"encode_error","message":"%s"}}`, err.Error()), http.StatusInternalServerError)
	}
}

// decodeJSONBody decodes one required JSON request body with strict shape checks.
func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode request body: %w", errors.Join(common.ErrInvalidRequest, err))
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode request body: trailing content: %w", common.ErrInvalidRequest)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("request canceled: %w", ctx.Err())
	default:
		return nil
	}
}

// decodeOptionalJSONBody decodes one optional JSON body and ignores empty payloads.
func decodeOptionalJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	err := decoder.Decode(out)
	if err == nil {
		select {
		case <-ctx.Done():
			return fmt.Errorf("request canceled: %w", ctx.Err())
		default:
			return nil
		}
	}
	if errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("decode request body: %w", errors.Join(common.ErrInvalidRequest, err))
}
