package validator

import (
	"fmt"
	"math"
	"strings"

	"github.com/rpattn/resultgrid/internal/domain"
)

// ValidateColumns ensures a result set's column descriptors are usable as a
// grid header: every name is non-blank and unique and every type is known.
func ValidateColumns(columns []domain.ColumnDescriptor) error {
	seen := make(map[string]struct{}, len(columns))
	for i, column := range columns {
		if strings.TrimSpace(column.Name) == "" {
			return fmt.Errorf("column %d has no name", i)
		}
		if _, dup := seen[column.Name]; dup {
			return fmt.Errorf("column %s is declared more than once", column.Name)
		}
		seen[column.Name] = struct{}{}
		if err := column.Type.Validate(); err != nil {
			return fmt.Errorf("column %s: %w", column.Name, err)
		}
	}
	return nil
}

// ValidateFilter checks f against the column it targets. The filter's type,
// when set, must match the column, and its values must have the shape that
// type expects: a finite ordered range for numeric and timestamp columns,
// tokens for the rest.
func ValidateFilter(column domain.ColumnDescriptor, f domain.Filter) error {
	if f.ColName != column.Name {
		return fmt.Errorf("filter on %s does not target column %s", f.ColName, column.Name)
	}
	if f.ColType != "" && f.ColType != column.Type {
		return fmt.Errorf("filter on %s declares type %s but the column is %s", f.ColName, f.ColType, column.Type)
	}
	if f.IsEmpty() {
		return nil
	}

	if domain.IsRangeFiltered(column.Type) {
		if len(f.Values.Tokens) > 0 {
			return fmt.Errorf("filter on %s expects a range, got tokens", f.ColName)
		}
		r := f.Values.Range
		if r == nil {
			return fmt.Errorf("filter on %s expects a range", f.ColName)
		}
		if math.IsNaN(r.Start) || math.IsNaN(r.End) {
			return fmt.Errorf("filter on %s has a NaN bound", f.ColName)
		}
		if r.Start > r.End {
			return fmt.Errorf("filter on %s has start %v after end %v", f.ColName, r.Start, r.End)
		}
		return nil
	}

	if f.Values.Range != nil {
		return fmt.Errorf("filter on %s expects tokens, got a range", f.ColName)
	}
	return nil
}
