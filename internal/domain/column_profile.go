package domain

import (
	"encoding/json"
	"fmt"
	"math"
)

// Bucket is one histogram interval. Start and End are numbers, or calendar
// dates (YYYY-MM-DD) for timestamp columns. NaN boundaries mean "unknown".
type Bucket struct {
	Index int `json:"index"`
	Start any `json:"start"`
	End   any `json:"end"`
	Count int `json:"count"`
}

// ColumnStats summarizes one column.
type ColumnStats struct {
	TotalRows   int `json:"totalRows"`
	NullCount   int `json:"nullCount"`
	MinValue    any `json:"minValue"`
	MaxValue    any `json:"maxValue"`
	MedianValue any `json:"medianValue,omitempty"`
}

// ColumnProfile is the histogram and summary statistics of a column.
type ColumnProfile struct {
	Column  string      `json:"column"`
	Type    ColumnType  `json:"type"`
	Buckets []Bucket    `json:"buckets"`
	Stats   ColumnStats `json:"stats"`
}

// FrequencyEntry counts occurrences of one distinct value.
type FrequencyEntry struct {
	Value any `json:"value"`
	Count int `json:"count"`
}

// FrequencyShare is a display row of a top-N frequency table.
type FrequencyShare struct {
	Label   string  `json:"label"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
	Others  bool    `json:"others,omitempty"`
}

// TopFrequencies keeps the k most frequent entries and folds the rest into a
// synthetic "Others(n)" row whose percentage is 100 minus the kept percentages.
// Entries must already be ordered by descending count.
func TopFrequencies(entries []FrequencyEntry, k int) []FrequencyShare {
	total := 0
	for _, entry := range entries {
		total += entry.Count
	}
	if total == 0 {
		return []FrequencyShare{}
	}
	if k <= 0 || k > len(entries) {
		k = len(entries)
	}

	shares := make([]FrequencyShare, 0, k+1)
	var keptPercent float64
	for _, entry := range entries[:k] {
		percent := float64(entry.Count) / float64(total) * 100
		keptPercent += percent
		shares = append(shares, FrequencyShare{
			Label:   FormatToken(entry.Value),
			Count:   entry.Count,
			Percent: percent,
		})
	}

	rest := entries[k:]
	if len(rest) == 0 {
		return shares
	}
	othersCount := 0
	for _, entry := range rest {
		othersCount += entry.Count
	}
	shares = append(shares, FrequencyShare{
		Label:   fmt.Sprintf("Others(%d)", len(rest)),
		Count:   othersCount,
		Percent: math.Max(0, 100-keptPercent),
		Others:  true,
	})
	return shares
}

// MarshalJSON writes NaN and infinite boundaries as null.
func (b Bucket) MarshalJSON() ([]byte, error) {
	type alias Bucket
	out := alias(b)
	out.Start = finiteOrNil(b.Start)
	out.End = finiteOrNil(b.End)
	return json.Marshal(out)
}

// MarshalJSON writes NaN and infinite statistics as null.
func (s ColumnStats) MarshalJSON() ([]byte, error) {
	type alias ColumnStats
	out := alias(s)
	out.MinValue = finiteOrNil(s.MinValue)
	out.MaxValue = finiteOrNil(s.MaxValue)
	out.MedianValue = finiteOrNil(s.MedianValue)
	return json.Marshal(out)
}

func finiteOrNil(value any) any {
	if f, ok := value.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
		return nil
	}
	return value
}
