package table

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rpattn/resultgrid/internal/auth"
	"github.com/rpattn/resultgrid/internal/domain"
	"github.com/rpattn/resultgrid/internal/metrics"
	"github.com/rpattn/resultgrid/internal/middleware"
	"github.com/rpattn/resultgrid/internal/repository"

	"github.com/google/uuid"
)

const defaultListLimit = 50

// Handler serves the result grid endpoints:
//
//	GET    /results                 list result sets of a workspace
//	GET    /results/{id}            result set without rows
//	DELETE /results/{id}            drop a result set
//	POST   /results/{id}/view       filtered, sorted page of rows
//	POST   /results/{id}/profiles   column summaries over the unfiltered rows
type Handler struct {
	repo     repository.ResultSetRepository
	profiler *Profiler
	metrics  *metrics.Metrics
	mux      *http.ServeMux
}

func NewHTTPHandler(repo repository.ResultSetRepository, profiler *Profiler, m *metrics.Metrics) http.Handler {
	h := &Handler{repo: repo, profiler: profiler, metrics: m, mux: http.NewServeMux()}
	h.mux.HandleFunc("GET /results", h.handleList)
	h.mux.HandleFunc("GET /results/{id}", h.handleGet)
	h.mux.HandleFunc("DELETE /results/{id}", h.handleDelete)
	h.mux.HandleFunc("POST /results/{id}/view", h.handleView)
	h.mux.HandleFunc("POST /results/{id}/profiles", h.handleProfiles)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

type listResponse struct {
	Items  []repository.ResultSetSummary `json:"items"`
	Total  int                           `json:"total"`
	Limit  int                           `json:"limit"`
	Offset int                           `json:"offset"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	workspaceID, ok := auth.WorkspaceIDFromContext(r.Context())
	if raw := strings.TrimSpace(query.Get("workspaceId")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid workspaceId: %v", err), http.StatusBadRequest)
			return
		}
		if err := auth.EnforceWorkspaceScope(r.Context(), id); err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		workspaceID, ok = id, true
	}
	if !ok {
		http.Error(w, "workspaceId is required", http.StatusBadRequest)
		return
	}

	limit := parseNonNegative(query.Get("limit"), defaultListLimit)
	offset := parseNonNegative(query.Get("offset"), 0)
	items, total, err := h.repo.List(r.Context(), workspaceID, limit, offset)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Items: items, Total: total, Limit: limit, Offset: offset})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	rs, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, repository.Summarize(rs))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	rs, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.repo.Delete(r.Context(), rs.ID); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	if loader := middleware.ResultSetLoaderFromContext(r.Context()); loader != nil {
		loader.Forget(r.Context(), rs.ID)
	}
	h.profiler.Forget(rs.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleView(w http.ResponseWriter, r *http.Request) {
	rs, ok := h.load(w, r)
	if !ok {
		return
	}
	req, ok := decodeViewRequest(w, r)
	if !ok {
		return
	}

	tbl, err := req.Apply(New(rs))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	view, err := tbl.Page(req.Limit, req.Offset)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if h.metrics != nil {
		h.metrics.RowsFiltered.WithLabelValues("kept").Add(float64(view.Total))
		h.metrics.RowsFiltered.WithLabelValues("dropped").Add(float64(len(rs.Rows) - view.Total))
	}
	writeJSON(w, http.StatusOK, view)
}

type profilesRequest struct {
	Columns []string `json:"columns"`
}

type profilesResponse struct {
	ResultSetID uuid.UUID       `json:"resultSetId"`
	Version     int64           `json:"version"`
	Columns     []ColumnSummary `json:"columns"`
}

func (h *Handler) handleProfiles(w http.ResponseWriter, r *http.Request) {
	rs, ok := h.load(w, r)
	if !ok {
		return
	}
	defer r.Body.Close()
	var req profilesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}

	summaries, err := h.profiler.Summaries(r.Context(), rs, req.Columns)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, profilesResponse{ResultSetID: rs.ID, Version: rs.Version, Columns: summaries})
}

// load resolves the {id} path value and checks it against the request's
// workspace scope, writing the error response itself when that fails.
func (h *Handler) load(w http.ResponseWriter, r *http.Request) (domain.ResultSet, bool) {
	id, err := uuid.Parse(strings.TrimSpace(r.PathValue("id")))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid result set id: %v", err), http.StatusBadRequest)
		return domain.ResultSet{}, false
	}
	rs, err := middleware.LoadResultSet(r.Context(), h.repo, id)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return domain.ResultSet{}, false
	}
	if err := auth.EnforceWorkspaceScope(r.Context(), rs.WorkspaceID); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return domain.ResultSet{}, false
	}
	return rs, true
}

func decodeViewRequest(w http.ResponseWriter, r *http.Request) (ViewRequest, bool) {
	defer r.Body.Close()
	var req ViewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return ViewRequest{}, false
	}
	return req, true
}

func parseNonNegative(raw string, fallback int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, auth.ErrScopeMismatch):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
