package domain

import (
	"time"

	"github.com/google/uuid"
)

// Record is one row of a query result keyed by column name. Values are nil,
// scalars (number, string, bool, time.Time) or containers ([]any of scalars).
type Record map[string]any

// Dataset is an ordered sequence of records sharing a logical schema.
// The engine treats datasets as read-only and derives new slices instead of
// reordering or editing the caller's copy.
type Dataset []Record

// ColumnDescriptor names a column and declares its semantic type.
type ColumnDescriptor struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// ResultSet is a materialized query result kept by the result cache.
type ResultSet struct {
	ID          uuid.UUID          `json:"id"`
	WorkspaceID uuid.UUID          `json:"workspace_id"`
	Name        string             `json:"name"`
	Query       string             `json:"query,omitempty"`
	Columns     []ColumnDescriptor `json:"columns"`
	Rows        Dataset            `json:"rows"`
	Version     int64              `json:"version"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// NewResultSet creates a new result set with immutable pattern
func NewResultSet(workspaceID uuid.UUID, name, query string, columns []ColumnDescriptor, rows Dataset) ResultSet {
	now := time.Now()
	return ResultSet{
		ID:          uuid.New(),
		WorkspaceID: workspaceID,
		Name:        name,
		Query:       query,
		Columns:     copyColumns(columns),
		Rows:        rows.Clone(),
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// WithRows returns a new result set holding the given rows and a bumped version.
func (rs ResultSet) WithRows(rows Dataset) ResultSet {
	return ResultSet{
		ID:          rs.ID,
		WorkspaceID: rs.WorkspaceID,
		Name:        rs.Name,
		Query:       rs.Query,
		Columns:     copyColumns(rs.Columns),
		Rows:        rows.Clone(),
		Version:     rs.Version + 1,
		CreatedAt:   rs.CreatedAt,
		UpdatedAt:   time.Now(),
	}
}

// Column looks up a descriptor by name.
func (rs ResultSet) Column(name string) (ColumnDescriptor, bool) {
	for _, column := range rs.Columns {
		if column.Name == name {
			return column, true
		}
	}
	return ColumnDescriptor{}, false
}

// ColumnNames returns the descriptor names in declaration order.
func (rs ResultSet) ColumnNames() []string {
	names := make([]string, len(rs.Columns))
	for i, column := range rs.Columns {
		names[i] = column.Name
	}
	return names
}

// Value returns the column value and whether it is present and non-null.
func (r Record) Value(column string) (any, bool) {
	if r == nil {
		return nil, false
	}
	value, ok := r[column]
	if !ok || value == nil {
		return nil, false
	}
	return value, true
}

// Clone copies the dataset and every record map. Container values are copied
// one level deep.
func (d Dataset) Clone() Dataset {
	if d == nil {
		return nil
	}
	cloned := make(Dataset, len(d))
	for i, record := range d {
		cloned[i] = copyRecord(record)
	}
	return cloned
}

func copyRecord(record Record) Record {
	if record == nil {
		return nil
	}
	out := make(Record, len(record))
	for key, value := range record {
		if items, ok := value.([]any); ok {
			copied := make([]any, len(items))
			copy(copied, items)
			out[key] = copied
			continue
		}
		out[key] = value
	}
	return out
}

func copyColumns(columns []ColumnDescriptor) []ColumnDescriptor {
	if columns == nil {
		return nil
	}
	out := make([]ColumnDescriptor, len(columns))
	copy(out, columns)
	return out
}
