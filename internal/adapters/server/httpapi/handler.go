// Package httpapi provides the REST HTTP adapter for the server surfaces.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hylla/waypoint/internal/adapters/server/common"
)

// maxRequestBodyBytes limits decoded JSON payload size for fail-closed request handling.
const maxRequestBodyBytes int64 = 1 << 20

// TenantHeader carries the caller's tenant id; the tenant_id query parameter is the fallback.
const TenantHeader = "X-Tenant-ID"

// Handler serves the versioned API subrouter mounted under `/api/v1`.
type Handler struct {
	service common.PlanningService
	mux     *http.ServeMux
}

// APIError represents one structured API failure response.
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Hint    string         `json:"hint,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// ErrorEnvelope wraps one structured API error.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// NewHandler constructs one HTTP API adapter over the planning service.
func NewHandler(service common.PlanningService) *Handler {
	h := &Handler{service: service, mux: http.NewServeMux()}
	h.mux.HandleFunc("GET /milestones", h.handleListMilestones)
	h.mux.HandleFunc("POST /milestones", h.handleCreateMilestone)
	h.mux.HandleFunc("GET /milestones/{id}", h.handleGetMilestone)
	h.mux.HandleFunc("PATCH /milestones/{id}", h.handleUpdateMilestone)
	h.mux.HandleFunc("DELETE /milestones/{id}", h.handleDeleteMilestone)
	h.mux.HandleFunc("GET /milestones/{id}/progress", h.handleMilestoneProgress)
	h.mux.HandleFunc("POST /milestones/{id}/tasks", h.handleLinkTask)
	h.mux.HandleFunc("DELETE /milestones/{id}/tasks/{task_id}", h.handleUnlinkTask)
	h.mux.HandleFunc("POST /milestones/{id}/assignments", h.handleAssignUser)
	h.mux.HandleFunc("GET /dependencies", h.handleListDependencies)
	h.mux.HandleFunc("POST /dependencies", h.handleAddDependency)
	h.mux.HandleFunc("POST /dependencies/check", h.handleCheckDependency)
	h.mux.HandleFunc("DELETE /dependencies/{id}", h.handleRemoveDependency)
	h.mux.HandleFunc("PUT /tasks/{id}", h.handleUpsertTask)
	h.mux.HandleFunc("GET /roadmap", h.handleRoadmap)
	h.mux.HandleFunc("GET /rollup", h.handleRollup)
	h.mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: "endpoint not found",
		})
	})
	return h
}

// ServeHTTP routes one versioned API request to the matching handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeJSONError(w, http.StatusServiceUnavailable, APIError{
			Code:    "service_unavailable",
			Message: "planning service is not configured",
		})
		return
	}
	h.mux.ServeHTTP(w, r)
}

// handleListMilestones serves GET `/milestones`.
func (h *Handler) handleListMilestones(w http.ResponseWriter, r *http.Request) {
	milestones, err := h.service.ListMilestones(r.Context(), tenantID(r))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"milestones": milestones,
	})
}

// handleCreateMilestone serves POST `/milestones`.
func (h *Handler) handleCreateMilestone(w http.ResponseWriter, r *http.Request) {
	var req common.CreateMilestoneRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.TenantID = tenantID(r)
	milestone, err := h.service.CreateMilestone(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, milestone)
}

// handleGetMilestone serves GET `/milestones/{id}`.
func (h *Handler) handleGetMilestone(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.GetMilestone(r.Context(), tenantID(r), r.PathValue("id"))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleUpdateMilestone serves PATCH `/milestones/{id}`.
func (h *Handler) handleUpdateMilestone(w http.ResponseWriter, r *http.Request) {
	var req common.UpdateMilestoneRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.TenantID = tenantID(r)
	req.MilestoneID = r.PathValue("id")
	milestone, err := h.service.UpdateMilestone(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, milestone)
}

// handleDeleteMilestone serves DELETE `/milestones/{id}`.
func (h *Handler) handleDeleteMilestone(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteMilestone(r.Context(), tenantID(r), r.PathValue("id")); err != nil {
		writeErrorFrom(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMilestoneProgress serves GET `/milestones/{id}/progress`.
func (h *Handler) handleMilestoneProgress(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.MilestoneProgress(r.Context(), tenantID(r), r.PathValue("id"))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleLinkTask serves POST `/milestones/{id}/tasks`.
func (h *Handler) handleLinkTask(w http.ResponseWriter, r *http.Request) {
	var req common.LinkTaskRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.TenantID = tenantID(r)
	req.MilestoneID = r.PathValue("id")
	link, err := h.service.LinkTask(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, link)
}

// handleUnlinkTask serves DELETE `/milestones/{id}/tasks/{task_id}`.
func (h *Handler) handleUnlinkTask(w http.ResponseWriter, r *http.Request) {
	if err := h.service.UnlinkTask(r.Context(), tenantID(r), r.PathValue("id"), r.PathValue("task_id")); err != nil {
		writeErrorFrom(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAssignUser serves POST `/milestones/{id}/assignments`.
func (h *Handler) handleAssignUser(w http.ResponseWriter, r *http.Request) {
	var req common.AssignUserRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.TenantID = tenantID(r)
	req.MilestoneID = r.PathValue("id")
	assignment, err := h.service.AssignUser(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, assignment)
}

// handleListDependencies serves GET `/dependencies`.
func (h *Handler) handleListDependencies(w http.ResponseWriter, r *http.Request) {
	deps, err := h.service.ListDependencies(r.Context(), tenantID(r), strings.TrimSpace(r.URL.Query().Get("milestone_id")))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"dependencies": deps,
	})
}

// handleAddDependency serves POST `/dependencies`.
func (h *Handler) handleAddDependency(w http.ResponseWriter, r *http.Request) {
	var req common.DependencyRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.TenantID = tenantID(r)
	dep, err := h.service.AddDependency(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dep)
}

// handleCheckDependency serves POST `/dependencies/check`; a rejection is a 200 decision.
func (h *Handler) handleCheckDependency(w http.ResponseWriter, r *http.Request) {
	var req common.DependencyRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.TenantID = tenantID(r)
	decision, err := h.service.CheckDependency(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

// handleRemoveDependency serves DELETE `/dependencies/{id}`.
func (h *Handler) handleRemoveDependency(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RemoveDependency(r.Context(), tenantID(r), r.PathValue("id")); err != nil {
		writeErrorFrom(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUpsertTask serves PUT `/tasks/{id}`.
func (h *Handler) handleUpsertTask(w http.ResponseWriter, r *http.Request) {
	var req common.UpsertTaskRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.TenantID = tenantID(r)
	req.TaskID = r.PathValue("id")
	task, err := h.service.UpsertTask(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// handleRoadmap serves GET `/roadmap`.
func (h *Handler) handleRoadmap(w http.ResponseWriter, r *http.Request) {
	roadmap, err := h.service.Roadmap(r.Context(), tenantID(r))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roadmap)
}

// handleRollup serves GET `/rollup`.
func (h *Handler) handleRollup(w http.ResponseWriter, r *http.Request) {
	rollup, err := h.service.Rollup(r.Context(), tenantID(r))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rollup)
}

// tenantID reads the tenant from the header, falling back to the query string.
func tenantID(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get(TenantHeader)); v != "" {
		return v
	}
	return strings.TrimSpace(r.URL.Query().Get("tenant_id"))
}

// writeErrorFrom maps adapter errors into structured HTTP responses.
func writeErrorFrom(w http.ResponseWriter, err error) {
	var rejected *common.RejectionError
	switch {
	case err == nil:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: "unknown error",
		})
	case errors.As(err, &rejected):
		apiErr := APIError{
			Code:    rejected.Reason,
			Message: rejected.Message,
		}
		if len(rejected.CyclePath) > 0 {
			apiErr.Hint = "Remove one edge on the cycle path before adding this dependency."
			apiErr.Context = map[string]any{"cycle_path": rejected.CyclePath}
		}
		writeJSONError(w, http.StatusUnprocessableEntity, apiErr)
	case errors.Is(err, common.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrConflict):
		writeJSONError(w, http.StatusConflict, APIError{
			Code:    "conflict",
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
	// Reject trailing payloads so malformed JSON bodies fail closed.
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
