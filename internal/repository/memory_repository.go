package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rpattn/resultgrid/internal/domain"

	"github.com/google/uuid"
)

type memoryResultSetRepository struct {
	mu   sync.RWMutex
	sets map[uuid.UUID]domain.ResultSet
}

// NewMemoryResultSetRepository keeps result sets in process memory.
func NewMemoryResultSetRepository() ResultSetRepository {
	return &memoryResultSetRepository{sets: make(map[uuid.UUID]domain.ResultSet)}
}

func (r *memoryResultSetRepository) Create(ctx context.Context, rs domain.ResultSet) (domain.ResultSet, error) {
	if rs.ID == uuid.Nil {
		return domain.ResultSet{}, fmt.Errorf("result set id is required")
	}
	if err := checkRows(rs); err != nil {
		return domain.ResultSet{}, err
	}
	stored := rs
	stored.Rows = rs.Rows.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sets[rs.ID]; exists {
		return domain.ResultSet{}, fmt.Errorf("result set %s already exists", rs.ID)
	}
	r.sets[rs.ID] = stored
	return rs, nil
}

func (r *memoryResultSetRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.ResultSet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rs, ok := r.sets[id]
	if !ok {
		return domain.ResultSet{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rs, nil
}

// GetByIDs returns the sets that exist, in the order requested.
func (r *memoryResultSetRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.ResultSet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ResultSet, 0, len(ids))
	for _, id := range ids {
		if rs, ok := r.sets[id]; ok {
			out = append(out, rs)
		}
	}
	return out, nil
}

func (r *memoryResultSetRepository) List(ctx context.Context, workspaceID uuid.UUID, limit int, offset int) ([]ResultSetSummary, int, error) {
	r.mu.RLock()
	matches := make([]domain.ResultSet, 0)
	for _, rs := range r.sets {
		if rs.WorkspaceID == workspaceID {
			matches = append(matches, rs)
		}
	}
	r.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].ID.String() < matches[j].ID.String()
		}
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})

	total := len(matches)
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}

	summaries := make([]ResultSetSummary, 0, end-offset)
	for _, rs := range matches[offset:end] {
		summaries = append(summaries, Summarize(rs))
	}
	return summaries, total, nil
}

func (r *memoryResultSetRepository) UpdateRows(ctx context.Context, rs domain.ResultSet) (domain.ResultSet, error) {
	if err := checkRows(rs); err != nil {
		return domain.ResultSet{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.sets[rs.ID]
	if !ok {
		return domain.ResultSet{}, fmt.Errorf("%w: %s", ErrNotFound, rs.ID)
	}
	if rs.Version != stored.Version+1 {
		return domain.ResultSet{}, fmt.Errorf("%w: %s is at version %d, update carries %d", ErrVersionConflict, rs.ID, stored.Version, rs.Version)
	}
	stored.Rows = rs.Rows.Clone()
	stored.Version = rs.Version
	stored.UpdatedAt = rs.UpdatedAt
	r.sets[rs.ID] = stored
	return rs, nil
}

func (r *memoryResultSetRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sets[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(r.sets, id)
	return nil
}
