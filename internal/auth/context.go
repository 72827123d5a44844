package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrScopeMismatch is returned when a result set belongs to another workspace.
var ErrScopeMismatch = errors.New("workspace does not match request scope")

type contextKey string

const workspaceIDKey contextKey = "workspaceID"

// ContextWithWorkspaceID returns a new context that carries the workspace scope.
func ContextWithWorkspaceID(ctx context.Context, id uuid.UUID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, workspaceIDKey, id)
}

// WorkspaceIDFromContext retrieves the workspace scope from the context, if any.
func WorkspaceIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	if ctx == nil {
		return uuid.Nil, false
	}
	id, ok := ctx.Value(workspaceIDKey).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// EnforceWorkspaceScope ensures the provided workspace matches the request scope when present.
func EnforceWorkspaceScope(ctx context.Context, workspaceID uuid.UUID) error {
	if workspaceID == uuid.Nil {
		return fmt.Errorf("workspaceId is required")
	}
	scopedID, ok := WorkspaceIDFromContext(ctx)
	if !ok {
		return nil
	}
	if scopedID != workspaceID {
		return fmt.Errorf("%w: %s", ErrScopeMismatch, workspaceID)
	}
	return nil
}
