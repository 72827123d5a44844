package resultloader

import (
	"context"
	"fmt"
	"time"

	"github.com/rpattn/resultgrid/internal/domain"
	"github.com/rpattn/resultgrid/internal/repository"

	"github.com/google/uuid"
	"github.com/graph-gophers/dataloader"
)

// ResultSetLoader batches result set lookups made while serving one request.
type ResultSetLoader struct {
	Loader *dataloader.Loader
}

// NewResultSetLoader wraps repo.GetByIDs in a batched loader.
func NewResultSetLoader(repo repository.ResultSetRepository) *ResultSetLoader {
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		ids := make([]uuid.UUID, len(keys))
		for i, k := range keys {
			id, err := uuid.Parse(k.String())
			if err != nil {
				results := make([]*dataloader.Result, len(keys))
				for j := range results {
					results[j] = &dataloader.Result{Error: fmt.Errorf("invalid UUID: %w", err)}
				}
				return results
			}
			ids[i] = id
		}

		sets, err := repo.GetByIDs(ctx, ids)
		if err != nil {
			results := make([]*dataloader.Result, len(keys))
			for i := range results {
				results[i] = &dataloader.Result{Error: err}
			}
			return results
		}

		byID := make(map[uuid.UUID]domain.ResultSet, len(sets))
		for _, rs := range sets {
			byID[rs.ID] = rs
		}

		// Results must line up with keys.
		results := make([]*dataloader.Result, len(keys))
		for i, id := range ids {
			if rs, ok := byID[id]; ok {
				results[i] = &dataloader.Result{Data: rs}
			} else {
				results[i] = &dataloader.Result{Error: fmt.Errorf("%w: %s", repository.ErrNotFound, id)}
			}
		}
		return results
	}

	loader := dataloader.NewBatchedLoader(batchFn, dataloader.WithWait(5*time.Millisecond))
	return &ResultSetLoader{Loader: loader}
}

// Load fetches one result set through the batch.
func (l *ResultSetLoader) Load(ctx context.Context, id uuid.UUID) (domain.ResultSet, error) {
	data, err := l.Loader.Load(ctx, dataloader.StringKey(id.String()))()
	if err != nil {
		return domain.ResultSet{}, err
	}
	rs, ok := data.(domain.ResultSet)
	if !ok {
		return domain.ResultSet{}, fmt.Errorf("unexpected loader value %T", data)
	}
	return rs, nil
}

// Forget evicts a cached result set, e.g. after it was deleted.
func (l *ResultSetLoader) Forget(ctx context.Context, id uuid.UUID) {
	l.Loader.Clear(ctx, dataloader.StringKey(id.String()))
}
