package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedColumnType is returned when a column type outside the taxonomy
// reaches the engine boundary.
var ErrUnsupportedColumnType = errors.New("unsupported column type")

// ColumnType represents the semantic type of a result column
type ColumnType string

const (
	ColumnTypeID           ColumnType = "Id"
	ColumnTypeTimestamp    ColumnType = "Timestamp"
	ColumnTypeCategory     ColumnType = "Category"
	ColumnTypeTextCategory ColumnType = "TextCategory"
	ColumnTypeBinary       ColumnType = "Binary"
	ColumnTypeNumerical    ColumnType = "Numerical"
	ColumnTypeText         ColumnType = "Text"
	ColumnTypeURL          ColumnType = "Url"
	ColumnTypeVector       ColumnType = "Vector"
	ColumnTypeImage        ColumnType = "Image"

	ColumnTypeSequenceCategory     ColumnType = "SequenceCategory"
	ColumnTypeSequenceTextCategory ColumnType = "SequenceTextCategory"
	ColumnTypeSequenceText         ColumnType = "SequenceText"
	ColumnTypeSequenceNumerical    ColumnType = "SequenceNumerical"
	ColumnTypeSequenceBinary       ColumnType = "SequenceBinary"

	ColumnTypeSetCategory     ColumnType = "SetCategory"
	ColumnTypeSetTextCategory ColumnType = "SetTextCategory"
	ColumnTypeSetText         ColumnType = "SetText"
	ColumnTypeSetNumerical    ColumnType = "SetNumerical"
	ColumnTypeSetBinary       ColumnType = "SetBinary"
)

// AllColumnTypes lists every member of the taxonomy in declaration order.
var AllColumnTypes = []ColumnType{
	ColumnTypeID,
	ColumnTypeTimestamp,
	ColumnTypeCategory,
	ColumnTypeTextCategory,
	ColumnTypeBinary,
	ColumnTypeNumerical,
	ColumnTypeText,
	ColumnTypeURL,
	ColumnTypeVector,
	ColumnTypeImage,
	ColumnTypeSequenceCategory,
	ColumnTypeSequenceTextCategory,
	ColumnTypeSequenceText,
	ColumnTypeSequenceNumerical,
	ColumnTypeSequenceBinary,
	ColumnTypeSetCategory,
	ColumnTypeSetTextCategory,
	ColumnTypeSetText,
	ColumnTypeSetNumerical,
	ColumnTypeSetBinary,
}

var columnTypeLookup = func() map[string]ColumnType {
	lookup := make(map[string]ColumnType, len(AllColumnTypes))
	for _, t := range AllColumnTypes {
		lookup[strings.ToLower(string(t))] = t
	}
	return lookup
}()

// ParseColumnType resolves a type name case-insensitively.
func ParseColumnType(raw string) (ColumnType, error) {
	if t, ok := columnTypeLookup[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedColumnType, raw)
}

// Validate reports ErrUnsupportedColumnType for tags outside the taxonomy.
func (t ColumnType) Validate() error {
	if known, ok := columnTypeLookup[strings.ToLower(string(t))]; ok && known == t {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedColumnType, string(t))
}

// IsAllNumericalTypes reports whether values of the type order numerically,
// scalar or container.
func IsAllNumericalTypes(t ColumnType) bool {
	switch t {
	case ColumnTypeNumerical, ColumnTypeSequenceNumerical, ColumnTypeSetNumerical:
		return true
	}
	return false
}

// IsSequenceType reports whether cells of the type are ordered lists.
func IsSequenceType(t ColumnType) bool {
	switch t {
	case ColumnTypeSequenceCategory,
		ColumnTypeSequenceTextCategory,
		ColumnTypeSequenceText,
		ColumnTypeSequenceNumerical,
		ColumnTypeSequenceBinary:
		return true
	}
	return false
}

// IsSetType reports whether cells of the type are unordered collections.
func IsSetType(t ColumnType) bool {
	switch t {
	case ColumnTypeSetCategory,
		ColumnTypeSetTextCategory,
		ColumnTypeSetText,
		ColumnTypeSetNumerical,
		ColumnTypeSetBinary:
		return true
	}
	return false
}

// IsContainerType reports whether cells hold a list of scalars.
func IsContainerType(t ColumnType) bool {
	return IsSequenceType(t) || IsSetType(t)
}

// IsCategoricalType reports whether the type is matched by token membership.
func IsCategoricalType(t ColumnType) bool {
	switch t {
	case ColumnTypeCategory,
		ColumnTypeTextCategory,
		ColumnTypeSequenceCategory,
		ColumnTypeSequenceTextCategory,
		ColumnTypeSetCategory,
		ColumnTypeSetTextCategory:
		return true
	}
	return false
}

// IsTextType reports whether the type is free text, scalar or container.
// Free text is profiled and sorted by string length.
func IsTextType(t ColumnType) bool {
	switch t {
	case ColumnTypeText, ColumnTypeSequenceText, ColumnTypeSetText:
		return true
	}
	return false
}

// IsRangeFiltered reports whether filters on the type carry a [start, end] range
// instead of a token list.
func IsRangeFiltered(t ColumnType) bool {
	return IsAllNumericalTypes(t) || t == ColumnTypeTimestamp
}
