package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/rpattn/resultgrid/internal/domain"
	"github.com/rpattn/resultgrid/pkg/validator"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a result set does not exist.
var ErrNotFound = errors.New("result set not found")

// ErrVersionConflict is returned when a row update does not follow the stored
// version, usually because another update landed first.
var ErrVersionConflict = errors.New("result set version conflict")

// ErrInvalidRows is returned when rows hold values outside the record model.
var ErrInvalidRows = errors.New("result set rows are invalid")

var recordValidator = validator.NewRecordValidator()

// checkRows rejects rows the analytics could not read. Cells that merely
// mismatch their column type are allowed; they read as null.
func checkRows(rs domain.ResultSet) error {
	result := recordValidator.ValidateDataset(rs.Columns, rs.Rows)
	if result.IsValid {
		return nil
	}
	first := result.Errors[0]
	return fmt.Errorf("%w: row %d column %s: %s (%d errors)", ErrInvalidRows, first.Row, first.Column, first.Message, len(result.Errors))
}

// ResultSetSummary is a result set without its rows.
type ResultSetSummary struct {
	ID          uuid.UUID                 `json:"id"`
	WorkspaceID uuid.UUID                 `json:"workspace_id"`
	Name        string                    `json:"name"`
	Query       string                    `json:"query,omitempty"`
	Columns     []domain.ColumnDescriptor `json:"columns"`
	RowCount    int                       `json:"row_count"`
	Version     int64                     `json:"version"`
}

// Summarize drops the rows of a result set.
func Summarize(rs domain.ResultSet) ResultSetSummary {
	return ResultSetSummary{
		ID:          rs.ID,
		WorkspaceID: rs.WorkspaceID,
		Name:        rs.Name,
		Query:       rs.Query,
		Columns:     rs.Columns,
		RowCount:    len(rs.Rows),
		Version:     rs.Version,
	}
}

// ResultSetRepository defines the interface for the query result cache
type ResultSetRepository interface {
	Create(ctx context.Context, rs domain.ResultSet) (domain.ResultSet, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.ResultSet, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.ResultSet, error)
	List(ctx context.Context, workspaceID uuid.UUID, limit int, offset int) ([]ResultSetSummary, int, error)
	// UpdateRows stores rs's rows, which must carry the stored version plus one.
	UpdateRows(ctx context.Context, rs domain.ResultSet) (domain.ResultSet, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
