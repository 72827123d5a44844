package analytics

import (
	"fmt"
	"strings"

	"github.com/rpattn/resultgrid/internal/domain"
)

type rowPredicate func(value any) bool

// ApplyFilters returns the records passing every filter, in source order.
// Filters are applied left to right, each narrowing the previous result.
// Empty filters restrict nothing. A null or missing value fails any filter on
// its column. The input dataset is never modified.
func ApplyFilters(dataset domain.Dataset, filters []domain.Filter) (domain.Dataset, error) {
	predicates := make([]rowPredicate, len(filters))
	for i, filter := range filters {
		if err := filter.ColType.Validate(); err != nil {
			return nil, fmt.Errorf("filter on %s: %w", filter.ColName, err)
		}
		predicates[i] = compileFilter(filter)
	}

	current := make(domain.Dataset, len(dataset))
	copy(current, dataset)
	for i, filter := range filters {
		if filter.IsEmpty() {
			continue
		}
		match := predicates[i]
		next := make(domain.Dataset, 0, len(current))
		for _, record := range current {
			value, ok := present(record, filter.ColName)
			if !ok {
				continue
			}
			if match(value) {
				next = append(next, record)
			}
		}
		current = next
	}
	return current, nil
}

func compileFilter(filter domain.Filter) rowPredicate {
	values := filter.Values
	switch filter.ColType {
	case domain.ColumnTypeNumerical:
		return rangePredicate(values.Range, func(value any) (float64, bool) {
			return numberValue(value), true
		})
	case domain.ColumnTypeTimestamp:
		return rangePredicate(values.Range, unixSeconds)
	case domain.ColumnTypeSequenceNumerical, domain.ColumnTypeSetNumerical:
		if values.Range == nil {
			return rejectAll
		}
		r := *values.Range
		return func(value any) bool {
			for _, item := range cellElements(value) {
				if item != nil && r.Contains(numberValue(item)) {
					return true
				}
			}
			return false
		}
	case domain.ColumnTypeText:
		tokens := values.Tokens
		return func(value any) bool {
			return containsAnyToken(textValue(value), tokens)
		}
	case domain.ColumnTypeSequenceText, domain.ColumnTypeSetText:
		tokens := values.Tokens
		return func(value any) bool {
			for _, item := range cellElements(value) {
				if item != nil && containsAnyToken(textValue(item), tokens) {
					return true
				}
			}
			return false
		}
	case domain.ColumnTypeID,
		domain.ColumnTypeCategory,
		domain.ColumnTypeTextCategory,
		domain.ColumnTypeBinary,
		domain.ColumnTypeURL,
		domain.ColumnTypeVector,
		domain.ColumnTypeImage,
		domain.ColumnTypeSequenceCategory,
		domain.ColumnTypeSequenceTextCategory,
		domain.ColumnTypeSequenceBinary,
		domain.ColumnTypeSetCategory,
		domain.ColumnTypeSetTextCategory,
		domain.ColumnTypeSetBinary:
		allowed := make(map[string]struct{}, len(values.Tokens))
		for _, token := range values.Tokens {
			allowed[token] = struct{}{}
		}
		return func(value any) bool {
			for _, item := range cellElements(value) {
				if item == nil {
					continue
				}
				if _, ok := allowed[domain.FormatToken(item)]; ok {
					return true
				}
			}
			return false
		}
	}
	return rejectAll
}

func rangePredicate(r *domain.Range, key func(any) (float64, bool)) rowPredicate {
	if r == nil {
		return rejectAll
	}
	bounds := *r
	return func(value any) bool {
		k, ok := key(value)
		return ok && bounds.Contains(k)
	}
}

func containsAnyToken(text string, tokens []string) bool {
	for _, token := range tokens {
		if strings.Contains(text, token) {
			return true
		}
	}
	return false
}

func rejectAll(any) bool { return false }
