package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rpattn/resultgrid/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type resultSetRepository struct {
	pool *pgxpool.Pool
}

// NewResultSetRepository wires a repository backed by pgxpool. Columns and
// rows are stored as JSONB documents.
func NewResultSetRepository(pool *pgxpool.Pool) ResultSetRepository {
	return &resultSetRepository{pool: pool}
}

const resultSetColumns = `id, workspace_id, name, query, column_defs, row_data, version, created_at, updated_at`

func (r *resultSetRepository) Create(ctx context.Context, rs domain.ResultSet) (domain.ResultSet, error) {
	if r.pool == nil {
		return domain.ResultSet{}, fmt.Errorf("result set repository not initialized")
	}
	if err := checkRows(rs); err != nil {
		return domain.ResultSet{}, err
	}

	columnsJSON, err := json.Marshal(rs.Columns)
	if err != nil {
		return domain.ResultSet{}, fmt.Errorf("failed to marshal columns: %w", err)
	}
	rowsJSON, err := json.Marshal(rs.Rows)
	if err != nil {
		return domain.ResultSet{}, fmt.Errorf("failed to marshal rows: %w", err)
	}

	_, err = r.pool.Exec(
		ctx,
		`INSERT INTO result_sets (id, workspace_id, name, query, column_defs, row_data, row_count, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rs.ID,
		rs.WorkspaceID,
		rs.Name,
		rs.Query,
		columnsJSON,
		rowsJSON,
		len(rs.Rows),
		rs.Version,
		rs.CreatedAt,
		rs.UpdatedAt,
	)
	if err != nil {
		return domain.ResultSet{}, fmt.Errorf("failed to create result set: %w", err)
	}
	return rs, nil
}

func (r *resultSetRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.ResultSet, error) {
	if r.pool == nil {
		return domain.ResultSet{}, fmt.Errorf("result set repository not initialized")
	}

	row := r.pool.QueryRow(ctx, `SELECT `+resultSetColumns+` FROM result_sets WHERE id = $1`, id)
	rs, err := scanResultSet(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ResultSet{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return domain.ResultSet{}, fmt.Errorf("failed to get result set: %w", err)
	}
	return rs, nil
}

func (r *resultSetRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.ResultSet, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("result set repository not initialized")
	}
	if len(ids) == 0 {
		return []domain.ResultSet{}, nil
	}

	rows, err := r.pool.Query(ctx, `SELECT `+resultSetColumns+` FROM result_sets WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get result sets: %w", err)
	}
	defer rows.Close()

	byID := make(map[uuid.UUID]domain.ResultSet, len(ids))
	for rows.Next() {
		rs, scanErr := scanResultSet(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan result set: %w", scanErr)
		}
		byID[rs.ID] = rs
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate result sets: %w", rowsErr)
	}

	out := make([]domain.ResultSet, 0, len(byID))
	for _, id := range ids {
		if rs, ok := byID[id]; ok {
			out = append(out, rs)
		}
	}
	return out, nil
}

func (r *resultSetRepository) List(ctx context.Context, workspaceID uuid.UUID, limit int, offset int) ([]ResultSetSummary, int, error) {
	if r.pool == nil {
		return nil, 0, fmt.Errorf("result set repository not initialized")
	}

	if limit <= 0 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM result_sets WHERE workspace_id = $1`, workspaceID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count result sets: %w", err)
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT id, workspace_id, name, query, column_defs, row_count, version
		 FROM result_sets
		 WHERE workspace_id = $1
		 ORDER BY created_at DESC, id
		 LIMIT $2 OFFSET $3`,
		workspaceID,
		limit,
		offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list result sets: %w", err)
	}
	defer rows.Close()

	summaries := []ResultSetSummary{}
	for rows.Next() {
		var (
			summary     ResultSetSummary
			query       pgtype.Text
			columnsJSON []byte
		)
		if scanErr := rows.Scan(
			&summary.ID,
			&summary.WorkspaceID,
			&summary.Name,
			&query,
			&columnsJSON,
			&summary.RowCount,
			&summary.Version,
		); scanErr != nil {
			return nil, 0, fmt.Errorf("failed to scan result set: %w", scanErr)
		}
		if query.Valid {
			summary.Query = query.String
		}
		if err := json.Unmarshal(columnsJSON, &summary.Columns); err != nil {
			return nil, 0, fmt.Errorf("failed to decode columns: %w", err)
		}
		summaries = append(summaries, summary)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, 0, fmt.Errorf("failed to iterate result sets: %w", rowsErr)
	}

	return summaries, total, nil
}

func (r *resultSetRepository) UpdateRows(ctx context.Context, rs domain.ResultSet) (domain.ResultSet, error) {
	if r.pool == nil {
		return domain.ResultSet{}, fmt.Errorf("result set repository not initialized")
	}
	if err := checkRows(rs); err != nil {
		return domain.ResultSet{}, err
	}

	rowsJSON, err := json.Marshal(rs.Rows)
	if err != nil {
		return domain.ResultSet{}, fmt.Errorf("failed to marshal rows: %w", err)
	}

	tag, err := r.pool.Exec(
		ctx,
		`UPDATE result_sets
		 SET row_data = $2, row_count = $3, version = $4, updated_at = $5
		 WHERE id = $1 AND version = $4 - 1`,
		rs.ID,
		rowsJSON,
		len(rs.Rows),
		rs.Version,
		rs.UpdatedAt,
	)
	if err != nil {
		return domain.ResultSet{}, fmt.Errorf("failed to update result set rows: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM result_sets WHERE id = $1)`, rs.ID).Scan(&exists); err != nil {
			return domain.ResultSet{}, fmt.Errorf("failed to check result set: %w", err)
		}
		if !exists {
			return domain.ResultSet{}, fmt.Errorf("%w: %s", ErrNotFound, rs.ID)
		}
		return domain.ResultSet{}, fmt.Errorf("%w: %s", ErrVersionConflict, rs.ID)
	}
	return rs, nil
}

func (r *resultSetRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if r.pool == nil {
		return fmt.Errorf("result set repository not initialized")
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM result_sets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete result set: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func scanResultSet(row pgx.Row) (domain.ResultSet, error) {
	var (
		rs          domain.ResultSet
		query       pgtype.Text
		columnsJSON []byte
		rowsJSON    []byte
		createdAt   pgtype.Timestamptz
		updatedAt   pgtype.Timestamptz
	)
	if err := row.Scan(
		&rs.ID,
		&rs.WorkspaceID,
		&rs.Name,
		&query,
		&columnsJSON,
		&rowsJSON,
		&rs.Version,
		&createdAt,
		&updatedAt,
	); err != nil {
		return domain.ResultSet{}, err
	}

	if query.Valid {
		rs.Query = query.String
	}
	if createdAt.Valid {
		rs.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		rs.UpdatedAt = updatedAt.Time
	}
	if err := json.Unmarshal(columnsJSON, &rs.Columns); err != nil {
		return domain.ResultSet{}, fmt.Errorf("failed to decode columns: %w", err)
	}
	if err := json.Unmarshal(rowsJSON, &rs.Rows); err != nil {
		return domain.ResultSet{}, fmt.Errorf("failed to decode rows: %w", err)
	}
	return rs, nil
}
