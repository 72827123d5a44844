package analytics

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rpattn/resultgrid/internal/domain"
)

// numberValue follows JavaScript Number() coercion: invalid input becomes NaN
// instead of an error so partially broken columns still profile.
func numberValue(value any) float64 {
	switch v := value.(type) {
	case nil:
		return math.NaN()
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int8:
		return float64(v)
	case int16:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case uint:
		return float64(v)
	case uint8:
		return float64(v)
	case uint16:
		return float64(v)
	case uint32:
		return float64(v)
	case uint64:
		return float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return math.NaN()
		}
		return f
	case bool:
		if v {
			return 1
		}
		return 0
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	case time.Time:
		return float64(v.UnixMilli())
	}
	if items, ok := elements(value); ok {
		switch len(items) {
		case 0:
			return 0
		case 1:
			return numberValue(items[0])
		}
	}
	return math.NaN()
}

// elements returns the items of a container cell.
func elements(value any) ([]any, bool) {
	switch v := value.(type) {
	case []any:
		return v, true
	case []string:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = item
		}
		return out, true
	case []float64:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = item
		}
		return out, true
	case []int:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = item
		}
		return out, true
	case []int64:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = item
		}
		return out, true
	case []bool:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = item
		}
		return out, true
	}
	return nil, false
}

// cellElements yields container items, or the value itself for scalars.
func cellElements(value any) []any {
	if items, ok := elements(value); ok {
		return items
	}
	return []any{value}
}

// present returns a column value unless it is null, missing or an empty container.
func present(record domain.Record, column string) (any, bool) {
	value, ok := record.Value(column)
	if !ok {
		return nil, false
	}
	if items, isContainer := elements(value); isContainer && len(items) == 0 {
		return nil, false
	}
	return value, true
}

// textValue renders a cell as display text; containers join with commas.
func textValue(value any) string {
	if items, ok := elements(value); ok {
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = textValue(item)
		}
		return strings.Join(parts, ",")
	}
	switch v := value.(type) {
	case nil:
		return ""
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case map[string]any:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	}
	return domain.FormatToken(value)
}

func textLength(value any) float64 {
	return float64(utf8.RuneCountInString(textValue(value)))
}

// unixSeconds resolves a timestamp cell; containers use their first item.
func unixSeconds(value any) (float64, bool) {
	if items, ok := elements(value); ok {
		if len(items) == 0 {
			return 0, false
		}
		value = items[0]
	}
	ts, ok := domain.TimestampValue(value)
	if !ok {
		return 0, false
	}
	return float64(ts.Unix()), true
}

// orderKey is the scalar a cell is ordered by for its column type: string
// length for text, Unix seconds for timestamps, and the numeric value (first
// item for containers) for everything else.
func orderKey(columnType domain.ColumnType, value any) (float64, bool) {
	switch {
	case columnType == domain.ColumnTypeTimestamp:
		return unixSeconds(value)
	case domain.IsTextType(columnType):
		return textLength(value), true
	}
	if items, ok := elements(value); ok {
		if len(items) == 0 {
			return 0, false
		}
		return numberValue(items[0]), true
	}
	return numberValue(value), true
}

// distinctKey normalizes a scalar so equal values from different decoders
// (int64 from ingestion, float64 from JSON) collapse to one map key.
func distinctKey(value any) any {
	switch v := value.(type) {
	case string, bool:
		return v
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, json.Number:
		return numberValue(v)
	}
	return fmt.Sprintf("%v", value)
}

func isIntegral(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0) && f == math.Trunc(f)
}

// lessNaNLast orders numbers ascending with NaN after every number.
func lessNaNLast(a, b float64) bool {
	if math.IsNaN(a) {
		return false
	}
	if math.IsNaN(b) {
		return true
	}
	return a < b
}

func roundTo(value float64, decimals int) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return value
	}
	scale := math.Pow(10, float64(decimals))
	return math.Round(value*scale) / scale
}
