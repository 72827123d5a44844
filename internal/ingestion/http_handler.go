package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/rpattn/resultgrid/internal/auth"
	"github.com/rpattn/resultgrid/internal/domain"
	"github.com/rpattn/resultgrid/internal/middleware"
	"github.com/rpattn/resultgrid/internal/repository"

	"github.com/google/uuid"
)

const maxUploadMemory = 32 << 20

// Handler exposes ingestion as an HTTP endpoint.
type Handler struct {
	service *Service
	preview bool
	refresh bool
}

// NewHTTPHandler wraps the service with a POST endpoint that stores the upload.
func NewHTTPHandler(service *Service) http.Handler {
	return &Handler{service: service}
}

// NewPreviewHandler wraps the service with a POST endpoint that only types
// and samples the upload.
func NewPreviewHandler(service *Service) http.Handler {
	return &Handler{service: service, preview: true}
}

// NewRefreshHandler wraps the service with a PUT endpoint that replaces the
// rows of the result set named by the {id} path value.
func NewRefreshHandler(service *Service) http.Handler {
	return &Handler{service: service, refresh: true}
}

type upload struct {
	file           multipart.File
	fileName       string
	headerRowIndex *int
	overrides      map[string]domain.ColumnType
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := http.MethodPost
	if h.refresh {
		method = http.MethodPut
	}
	if r.Method != method {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	up, err := readUpload(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer up.file.Close()

	if h.refresh {
		h.serveRefresh(w, r, up)
		return
	}

	if h.preview {
		limit, _ := strconv.Atoi(r.FormValue("limit"))
		result, err := h.service.Preview(r.Context(), PreviewRequest{
			FileName:        up.fileName,
			HeaderRowIndex:  up.headerRowIndex,
			ColumnOverrides: up.overrides,
			Data:            up.file,
			Limit:           limit,
		})
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	workspaceID, err := resolveWorkspace(r)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	summary, err := h.service.Import(r.Context(), Request{
		WorkspaceID:     workspaceID,
		Name:            strings.TrimSpace(r.FormValue("name")),
		Query:           strings.TrimSpace(r.FormValue("query")),
		FileName:        up.fileName,
		HeaderRowIndex:  up.headerRowIndex,
		ColumnOverrides: up.overrides,
		Data:            up.file,
	})
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	writeJSON(w, http.StatusCreated, summary)
}

func (h *Handler) serveRefresh(w http.ResponseWriter, r *http.Request, up upload) {
	id, err := uuid.Parse(strings.TrimSpace(r.PathValue("id")))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid result set id: %v", err), http.StatusBadRequest)
		return
	}

	summary, err := h.service.Refresh(r.Context(), RefreshRequest{
		ResultSetID:    id,
		FileName:       up.fileName,
		HeaderRowIndex: up.headerRowIndex,
		Data:           up.file,
	})
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	if loader := middleware.ResultSetLoaderFromContext(r.Context()); loader != nil {
		loader.Forget(r.Context(), id)
	}
	writeJSON(w, http.StatusOK, summary)
}

func readUpload(r *http.Request) (upload, error) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		return upload{}, fmt.Errorf("invalid form data: %v", err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return upload{}, fmt.Errorf("file required: %v", err)
	}
	up := upload{file: file, fileName: header.Filename}

	if raw := strings.TrimSpace(r.FormValue("headerRow")); raw != "" {
		index, err := strconv.Atoi(raw)
		if err != nil {
			file.Close()
			return upload{}, fmt.Errorf("invalid headerRow: %v", err)
		}
		up.headerRowIndex = &index
	}

	overrides, err := parseOverrides(r.FormValue("overrides"))
	if err != nil {
		file.Close()
		return upload{}, err
	}
	up.overrides = overrides
	return up, nil
}

// parseOverrides decodes a JSON object of column name to column type.
func parseOverrides(raw string) (map[string]domain.ColumnType, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var named map[string]string
	if err := json.Unmarshal([]byte(raw), &named); err != nil {
		return nil, fmt.Errorf("invalid overrides: %v", err)
	}
	overrides := make(map[string]domain.ColumnType, len(named))
	for column, typeName := range named {
		columnType, err := domain.ParseColumnType(typeName)
		if err != nil {
			return nil, fmt.Errorf("override for %s: %w", column, err)
		}
		overrides[column] = columnType
	}
	return overrides, nil
}

// resolveWorkspace prefers the form field and checks it against the request
// scope; without a form field the scope itself is used.
func resolveWorkspace(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(r.FormValue("workspaceId"))
	if raw == "" {
		if scoped, ok := auth.WorkspaceIDFromContext(r.Context()); ok {
			return scoped, nil
		}
		return uuid.Nil, errors.New("workspaceId is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid workspace id: %v", err)
	}
	if err := auth.EnforceWorkspaceScope(r.Context(), id); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, auth.ErrScopeMismatch):
		return http.StatusForbidden
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, errStore):
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
