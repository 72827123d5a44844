package analytics

import (
	"sort"

	"github.com/rpattn/resultgrid/internal/domain"
)

// Cardinality counts distinct values in a column. Container cells contribute
// each item rather than the container as a whole.
func Cardinality(dataset domain.Dataset, column string) int {
	seen := make(map[any]struct{})
	for _, record := range dataset {
		value, ok := present(record, column)
		if !ok {
			continue
		}
		for _, item := range cellElements(value) {
			if item == nil {
				continue
			}
			seen[distinctKey(item)] = struct{}{}
		}
	}
	return len(seen)
}

// FrequencyTable counts occurrences per distinct value, most frequent first.
// Ties keep first-seen order. Each container item increments its own counter,
// so the counts can sum to more than the row count.
func FrequencyTable(dataset domain.Dataset, column string) []domain.FrequencyEntry {
	index := make(map[any]int)
	entries := make([]domain.FrequencyEntry, 0)
	for _, record := range dataset {
		value, ok := present(record, column)
		if !ok {
			continue
		}
		for _, item := range cellElements(value) {
			if item == nil {
				continue
			}
			key := distinctKey(item)
			if pos, exists := index[key]; exists {
				entries[pos].Count++
				continue
			}
			index[key] = len(entries)
			entries = append(entries, domain.FrequencyEntry{Value: key, Count: 1})
		}
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Count > entries[j].Count })
	return entries
}
