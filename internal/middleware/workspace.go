package middleware

import (
	"net/http"
	"strings"

	"github.com/rpattn/resultgrid/internal/auth"

	"github.com/google/uuid"
)

// WorkspaceHeader names the header carrying the caller's workspace.
const WorkspaceHeader = "X-Workspace-ID"

// WorkspaceMiddleware scopes the request to the workspace in WorkspaceHeader.
// Requests without the header pass through unscoped; malformed IDs are rejected.
func WorkspaceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(WorkspaceHeader))
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, "invalid "+WorkspaceHeader+" header", http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithWorkspaceID(r.Context(), id)))
	})
}
