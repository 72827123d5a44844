package resultloader

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rpattn/resultgrid/internal/domain"
	"github.com/rpattn/resultgrid/internal/repository"

	"github.com/google/uuid"
)

type countingRepo struct {
	repository.ResultSetRepository
	mu      sync.Mutex
	batches [][]uuid.UUID
}

func (r *countingRepo) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.ResultSet, error) {
	r.mu.Lock()
	r.batches = append(r.batches, append([]uuid.UUID(nil), ids...))
	r.mu.Unlock()
	return r.ResultSetRepository.GetByIDs(ctx, ids)
}

func TestResultSetLoaderBatchesConcurrentLoads(t *testing.T) {
	ctx := context.Background()
	inner := repository.NewMemoryResultSetRepository()
	workspace := uuid.New()

	ids := make([]uuid.UUID, 3)
	for i := range ids {
		rs := domain.NewResultSet(workspace, "rs", "", nil, domain.Dataset{})
		if _, err := inner.Create(ctx, rs); err != nil {
			t.Fatalf("create returned error: %v", err)
		}
		ids[i] = rs.ID
	}

	repo := &countingRepo{ResultSetRepository: inner}
	loader := NewResultSetLoader(repo)

	var wg sync.WaitGroup
	errs := make([]error, len(ids))
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rs, err := loader.Load(ctx, id)
			if err == nil && rs.ID != id {
				err = errors.New("loaded the wrong result set")
			}
			errs[i] = err
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			t.Fatalf("load returned error: %v", err)
		}
	}
	total := 0
	for _, batch := range repo.batches {
		total += len(batch)
	}
	if total != len(ids) {
		t.Fatalf("expected %d keys across batches, got %d", len(ids), total)
	}
}

func TestResultSetLoaderMissing(t *testing.T) {
	loader := NewResultSetLoader(repository.NewMemoryResultSetRepository())
	_, err := loader.Load(context.Background(), uuid.New())
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
