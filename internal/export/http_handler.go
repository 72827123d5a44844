package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rpattn/resultgrid/internal/auth"
	"github.com/rpattn/resultgrid/internal/middleware"
	"github.com/rpattn/resultgrid/internal/repository"
	"github.com/rpattn/resultgrid/internal/table"

	"github.com/google/uuid"
)

// Handler serves POST /results/{id}/export?format=csv|xlsx. The optional JSON
// body carries the table state to export; an empty body exports every row.
type Handler struct {
	service *Service
	repo    repository.ResultSetRepository
}

func NewHTTPHandler(service *Service, repo repository.ResultSetRepository) http.Handler {
	return &Handler{service: service, repo: repo}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()

	id, err := uuid.Parse(strings.TrimSpace(r.PathValue("id")))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid result set id: %v", err), http.StatusBadRequest)
		return
	}
	format, err := ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var payload table.ViewRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}

	rs, err := middleware.LoadResultSet(r.Context(), h.repo, id)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	if err := auth.EnforceWorkspaceScope(r.Context(), rs.WorkspaceID); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	tbl, err := payload.Apply(table.New(rs))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Buffer so a failure midway still produces a clean error response.
	var buf bytes.Buffer
	result, err := h.service.Write(r.Context(), &buf, tbl, format)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.FileName))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Row-Count", strconv.Itoa(result.Rows))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, auth.ErrScopeMismatch):
		return http.StatusForbidden
	case errors.Is(err, ErrUnsupportedFormat):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
