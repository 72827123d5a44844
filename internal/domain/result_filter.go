package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Filter narrows a dataset on a single column. The shape of Values depends on
// the declared column type: numeric and timestamp columns carry a range, every
// other type carries a list of allowed tokens.
type Filter struct {
	ColName string
	ColType ColumnType
	Values  FilterValues

	// pending holds JSON values decoded without a column type; WithColumnType
	// decodes them once the type is known.
	pending []json.RawMessage
}

// FilterValues holds either an inclusive range or a token list.
type FilterValues struct {
	Range  *Range
	Tokens []string
}

// Range is an inclusive [Start, End] interval. Timestamp ranges are in Unix seconds.
type Range struct {
	Start float64
	End   float64
}

// NewRangeFilter builds a range filter.
func NewRangeFilter(column string, columnType ColumnType, start, end float64) Filter {
	return Filter{ColName: column, ColType: columnType, Values: FilterValues{Range: &Range{Start: start, End: end}}}
}

// NewTokenFilter builds a token filter.
func NewTokenFilter(column string, columnType ColumnType, tokens ...string) Filter {
	return Filter{ColName: column, ColType: columnType, Values: FilterValues{Tokens: append([]string(nil), tokens...)}}
}

// IsEmpty reports whether the filter has no values and therefore restricts nothing.
func (f Filter) IsEmpty() bool {
	return f.Values.Range == nil && len(f.Values.Tokens) == 0 && len(f.pending) == 0
}

// WithColumnType returns f typed as columnType. Values that arrived without a
// type are decoded now, with the shape columnType expects.
func (f Filter) WithColumnType(columnType ColumnType) (Filter, error) {
	if err := columnType.Validate(); err != nil {
		return f, err
	}
	if f.pending == nil {
		f.ColType = columnType
		return f, nil
	}
	values, err := decodeFilterValues(f.ColName, columnType, f.pending)
	if err != nil {
		return f, err
	}
	return Filter{ColName: f.ColName, ColType: columnType, Values: values}, nil
}

// Contains reports whether key lies in the inclusive range.
func (r Range) Contains(key float64) bool {
	return r.Start <= key && key <= r.End
}

// WithFilter returns a new filter list with f replacing any filter on the same
// column. An empty f removes the column's filter instead.
func WithFilter(filters []Filter, f Filter) []Filter {
	out := make([]Filter, 0, len(filters)+1)
	replaced := false
	for _, existing := range filters {
		if existing.ColName != f.ColName {
			out = append(out, existing)
			continue
		}
		if !replaced && !f.IsEmpty() {
			out = append(out, f)
		}
		replaced = true
	}
	if !replaced && !f.IsEmpty() {
		out = append(out, f)
	}
	return out
}

// WithoutFilter returns a new filter list without the filter on column.
func WithoutFilter(filters []Filter, column string) []Filter {
	out := make([]Filter, 0, len(filters))
	for _, existing := range filters {
		if existing.ColName != column {
			out = append(out, existing)
		}
	}
	return out
}

type filterJSON struct {
	ColName string            `json:"colName"`
	ColType ColumnType        `json:"colType"`
	Values  []json.RawMessage `json:"values"`
}

// MarshalJSON renders range filters as [start, end] and token filters as a list.
func (f Filter) MarshalJSON() ([]byte, error) {
	payload := struct {
		ColName string     `json:"colName"`
		ColType ColumnType `json:"colType"`
		Values  []any      `json:"values"`
	}{ColName: f.ColName, ColType: f.ColType, Values: []any{}}
	switch {
	case f.pending != nil:
		for _, value := range f.pending {
			payload.Values = append(payload.Values, value)
		}
	case f.Values.Range != nil:
		payload.Values = []any{f.Values.Range.Start, f.Values.Range.End}
	default:
		for _, token := range f.Values.Tokens {
			payload.Values = append(payload.Values, token)
		}
	}
	return json.Marshal(payload)
}

// UnmarshalJSON decodes values according to the declared column type. A filter
// without a type keeps its values undecoded until WithColumnType is called.
func (f *Filter) UnmarshalJSON(data []byte) error {
	var raw filterJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if strings.TrimSpace(string(raw.ColType)) == "" {
		*f = Filter{ColName: raw.ColName}
		if len(raw.Values) > 0 {
			f.pending = raw.Values
		}
		return nil
	}
	columnType, err := ParseColumnType(string(raw.ColType))
	if err != nil {
		return err
	}
	values, err := decodeFilterValues(raw.ColName, columnType, raw.Values)
	if err != nil {
		return err
	}
	*f = Filter{ColName: raw.ColName, ColType: columnType, Values: values}
	return nil
}

func decodeFilterValues(column string, columnType ColumnType, raw []json.RawMessage) (FilterValues, error) {
	if IsRangeFiltered(columnType) {
		if len(raw) == 0 {
			return FilterValues{}, nil
		}
		if len(raw) != 2 {
			return FilterValues{}, fmt.Errorf("filter on %s expects [start, end], got %d values", column, len(raw))
		}
		start, err := decodeRangeBound(columnType, raw[0])
		if err != nil {
			return FilterValues{}, fmt.Errorf("filter on %s: invalid start: %w", column, err)
		}
		end, err := decodeRangeBound(columnType, raw[1])
		if err != nil {
			return FilterValues{}, fmt.Errorf("filter on %s: invalid end: %w", column, err)
		}
		return FilterValues{Range: &Range{Start: start, End: end}}, nil
	}

	tokens := make([]string, 0, len(raw))
	for _, value := range raw {
		var anyValue any
		if err := json.Unmarshal(value, &anyValue); err != nil {
			return FilterValues{}, fmt.Errorf("filter on %s: invalid token: %w", column, err)
		}
		tokens = append(tokens, FormatToken(anyValue))
	}
	return FilterValues{Tokens: tokens}, nil
}

func decodeRangeBound(columnType ColumnType, raw json.RawMessage) (float64, error) {
	var number float64
	if err := json.Unmarshal(raw, &number); err == nil {
		return number, nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return 0, err
	}
	if columnType == ColumnTypeTimestamp {
		ts, err := ParseTimestamp(text)
		if err != nil {
			return 0, err
		}
		return float64(ts.Unix()), nil
	}
	return strconv.ParseFloat(strings.TrimSpace(text), 64)
}

// FormatToken renders a scalar the way token filters and frequency tables
// compare it: numbers without trailing zeros, booleans as true/false.
func FormatToken(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case json.Number:
		return v.String()
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
