package validator

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rpattn/resultgrid/internal/domain"
)

// RecordValidator checks dataset cells against their column descriptors.
type RecordValidator struct{}

// NewRecordValidator creates a new record validator
func NewRecordValidator() *RecordValidator {
	return &RecordValidator{}
}

// ValidationError represents a validation error
type ValidationError struct {
	Row     int    `json:"row"`
	Column  string `json:"column"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

// ValidationResult represents the result of validation. Errors are cells the
// analytics cannot read at all; warnings are readable cells that do not fit
// the declared type and will be treated as null or compared as text.
type ValidationResult struct {
	IsValid  bool              `json:"is_valid"`
	Errors   []ValidationError `json:"errors"`
	Warnings []ValidationError `json:"warnings"`
}

// ValidateDataset validates every record of rows against columns.
func (rv *RecordValidator) ValidateDataset(columns []domain.ColumnDescriptor, rows domain.Dataset) ValidationResult {
	result := ValidationResult{
		IsValid:  true,
		Errors:   []ValidationError{},
		Warnings: []ValidationError{},
	}

	declared := make(map[string]domain.ColumnType, len(columns))
	for _, column := range columns {
		declared[column.Name] = column.Type
	}

	for i, record := range rows {
		for name, value := range record {
			columnType, ok := declared[name]
			if !ok {
				result.Warnings = append(result.Warnings, ValidationError{
					Row:     i,
					Column:  name,
					Message: fmt.Sprintf("property '%s' is not a declared column", name),
				})
				continue
			}
			if value == nil {
				continue
			}

			if err := rv.validateShape(value, domain.IsContainerType(columnType) || columnType == domain.ColumnTypeVector); err != nil {
				result.IsValid = false
				result.Errors = append(result.Errors, ValidationError{Row: i, Column: name, Message: err.Error(), Value: value})
				continue
			}
			if err := rv.validateCellType(value, columnType); err != nil {
				result.Warnings = append(result.Warnings, ValidationError{Row: i, Column: name, Message: err.Error(), Value: value})
			}
		}
	}

	return result
}

// validateShape rejects values outside the record model: a scalar, or a flat
// list of scalars for container columns.
func (rv *RecordValidator) validateShape(value any, container bool) error {
	if items, ok := value.([]any); ok {
		if !container {
			return fmt.Errorf("list value in a scalar column")
		}
		for _, item := range items {
			if !rv.isScalar(item) {
				return fmt.Errorf("list element of type %T is not a scalar", item)
			}
		}
		return nil
	}
	if !rv.isScalar(value) {
		return fmt.Errorf("value of type %T is not supported", value)
	}
	return nil
}

// validateCellType checks a well-shaped value against the column type.
func (rv *RecordValidator) validateCellType(value any, columnType domain.ColumnType) error {
	if items, ok := value.([]any); ok {
		for _, item := range items {
			if item == nil {
				continue
			}
			if err := rv.validateScalarType(item, columnType); err != nil {
				return err
			}
		}
		return nil
	}
	if domain.IsContainerType(columnType) {
		return fmt.Errorf("expected a list for %s, got %T", columnType, value)
	}
	return rv.validateScalarType(value, columnType)
}

func (rv *RecordValidator) validateScalarType(value any, columnType domain.ColumnType) error {
	switch {
	case domain.IsAllNumericalTypes(columnType), columnType == domain.ColumnTypeVector:
		if !rv.isNumber(value) {
			return fmt.Errorf("expected a number for %s, got %T", columnType, value)
		}
	case columnType == domain.ColumnTypeBinary,
		columnType == domain.ColumnTypeSequenceBinary,
		columnType == domain.ColumnTypeSetBinary:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("expected a boolean for %s, got %T", columnType, value)
		}
	case columnType == domain.ColumnTypeTimestamp:
		switch v := value.(type) {
		case time.Time:
		case string:
			if _, err := domain.ParseTimestamp(v); err != nil {
				return fmt.Errorf("expected a timestamp: %v", err)
			}
		default:
			if !rv.isNumber(value) {
				return fmt.Errorf("expected a timestamp, got %T", value)
			}
		}
	case columnType == domain.ColumnTypeURL, columnType == domain.ColumnTypeImage:
		s, ok := value.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return fmt.Errorf("expected a non-empty link for %s", columnType)
		}
	}
	return nil
}

func (rv *RecordValidator) isScalar(value any) bool {
	switch value.(type) {
	case nil, string, bool, time.Time, json.Number:
		return true
	}
	return rv.isNumber(value)
}

// Helper methods for type checking
func (rv *RecordValidator) isNumber(value any) bool {
	switch value.(type) {
	case float32, float64:
		return true
	case int, int8, int16, int32, int64:
		return true
	case uint, uint8, uint16, uint32, uint64:
		return true
	case json.Number:
		return true
	default:
		return false
	}
}
