package analytics

import (
	"fmt"
	"math"
	"sort"

	"github.com/rpattn/resultgrid/internal/domain"
)

// ApplySort returns a stably sorted copy of dataset. Text columns order by
// length, timestamps by time and every other type by numeric value. Null,
// missing and non-numeric values go last in both directions. An empty spec
// returns a copy in source order.
func ApplySort(dataset domain.Dataset, spec domain.SortSpec) (domain.Dataset, error) {
	sorted := make(domain.Dataset, len(dataset))
	copy(sorted, dataset)
	if spec.IsEmpty() {
		return sorted, nil
	}
	if err := spec.ColType.Validate(); err != nil {
		return nil, fmt.Errorf("sort on %s: %w", spec.ColName, err)
	}
	descending := false
	switch spec.Order {
	case domain.SortOrderAscending:
	case domain.SortOrderDescending:
		descending = true
	default:
		return nil, fmt.Errorf("sort on %s: unknown order %q", spec.ColName, spec.Order)
	}

	keys := make([]float64, len(sorted))
	for i, record := range sorted {
		keys[i] = sortKey(record, spec)
	}
	order := make([]int, len(sorted))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ka, kb := keys[order[a]], keys[order[b]]
		if math.IsNaN(ka) || math.IsNaN(kb) {
			return !math.IsNaN(ka) && math.IsNaN(kb)
		}
		if descending {
			return ka > kb
		}
		return ka < kb
	})

	out := make(domain.Dataset, len(sorted))
	for i, idx := range order {
		out[i] = sorted[idx]
	}
	return out, nil
}

// sortKey maps a record to its ordering key; NaN marks values that sort last.
func sortKey(record domain.Record, spec domain.SortSpec) float64 {
	value, ok := present(record, spec.ColName)
	if !ok {
		return math.NaN()
	}
	key, ok := orderKey(spec.ColType, value)
	if !ok {
		return math.NaN()
	}
	return key
}
