package middleware

import (
	"context"
	"net/http"

	"github.com/rpattn/resultgrid/internal/domain"
	"github.com/rpattn/resultgrid/internal/repository"
	"github.com/rpattn/resultgrid/internal/resultloader"

	"github.com/google/uuid"
)

type ctxKey string

const resultSetLoaderKey ctxKey = "resultSetLoader"

// DataLoaderMiddleware attaches a fresh result set loader to every request.
func DataLoaderMiddleware(repo repository.ResultSetRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loader := resultloader.NewResultSetLoader(repo)
			ctx := context.WithValue(r.Context(), resultSetLoaderKey, loader)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ResultSetLoaderFromContext retrieves the request's loader.
func ResultSetLoaderFromContext(ctx context.Context) *resultloader.ResultSetLoader {
	if l, ok := ctx.Value(resultSetLoaderKey).(*resultloader.ResultSetLoader); ok {
		return l
	}
	return nil
}

// LoadResultSet resolves id through the request loader when one is attached
// and falls back to repo otherwise.
func LoadResultSet(ctx context.Context, repo repository.ResultSetRepository, id uuid.UUID) (domain.ResultSet, error) {
	if loader := ResultSetLoaderFromContext(ctx); loader != nil {
		return loader.Load(ctx, id)
	}
	return repo.GetByID(ctx, id)
}
