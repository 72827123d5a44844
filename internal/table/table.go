package table

import (
	"fmt"

	"github.com/rpattn/resultgrid/internal/analytics"
	"github.com/rpattn/resultgrid/internal/domain"
	"github.com/rpattn/resultgrid/internal/schema/validator"
)

// Table is the interactive state of one result grid: the pristine result set
// plus the active filters and sort. Table values are immutable; every With*
// method returns a new value and leaves the receiver untouched.
type Table struct {
	source  domain.ResultSet
	filters []domain.Filter
	sort    domain.SortSpec
}

// View is a page of derived rows.
type View struct {
	Rows   domain.Dataset  `json:"rows"`
	Total  int             `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
	Sort   domain.SortSpec `json:"sort"`
	Filter []domain.Filter `json:"filters"`
}

// New wraps a result set with no filters and no sort.
func New(source domain.ResultSet) Table {
	return Table{source: source}
}

// Source returns the result set the table derives from.
func (t Table) Source() domain.ResultSet { return t.source }

// Filters returns a copy of the active filters in application order.
func (t Table) Filters() []domain.Filter {
	out := make([]domain.Filter, len(t.filters))
	copy(out, t.filters)
	return out
}

// Sort returns the active sort; the zero value means none.
func (t Table) Sort() domain.SortSpec { return t.sort }

// WithFilter sets the filter for f's column, replacing any earlier one. An
// empty filter clears the column. The filter must match the column's type.
func (t Table) WithFilter(f domain.Filter) (Table, error) {
	column, ok := t.source.Column(f.ColName)
	if !ok {
		return t, fmt.Errorf("filter on unknown column %q", f.ColName)
	}
	if f.ColType == "" {
		typed, err := f.WithColumnType(column.Type)
		if err != nil {
			return t, err
		}
		f = typed
	}
	if err := validator.ValidateFilter(column, f); err != nil {
		return t, err
	}
	next := t
	next.filters = domain.WithFilter(t.filters, f)
	return next, nil
}

// WithFilters applies each filter in turn.
func (t Table) WithFilters(filters []domain.Filter) (Table, error) {
	next := t
	for _, f := range filters {
		var err error
		if next, err = next.WithFilter(f); err != nil {
			return t, err
		}
	}
	return next, nil
}

// WithoutFilter clears the filter on column.
func (t Table) WithoutFilter(column string) Table {
	next := t
	next.filters = domain.WithoutFilter(t.filters, column)
	return next
}

// WithSort replaces the active sort. The column type is taken from the result
// set when the sort leaves it blank.
func (t Table) WithSort(spec domain.SortSpec) (Table, error) {
	if spec.IsEmpty() {
		next := t
		next.sort = domain.SortSpec{}
		return next, nil
	}
	column, ok := t.source.Column(spec.ColName)
	if !ok {
		return t, fmt.Errorf("sort on unknown column %q", spec.ColName)
	}
	if spec.ColType == "" {
		spec.ColType = column.Type
	}
	next := t
	next.sort = spec
	return next, nil
}

// WithSortToggle applies one click on a column's ascending or descending
// control: ascending, then descending, then back to insertion order.
func (t Table) WithSortToggle(columnName string, order domain.SortOrder) (Table, error) {
	column, ok := t.source.Column(columnName)
	if !ok {
		return t, fmt.Errorf("sort on unknown column %q", columnName)
	}
	next := t
	next.sort = domain.ToggleSort(t.sort, column, order)
	return next, nil
}

// Rows derives the visible rows: filters first, then the sort. The source
// rows are never reordered.
func (t Table) Rows() (domain.Dataset, error) {
	filtered, err := analytics.ApplyFilters(t.source.Rows, t.filters)
	if err != nil {
		return nil, err
	}
	return analytics.ApplySort(filtered, t.sort)
}

// Page returns the window [offset, offset+limit) of the derived rows. A zero
// limit returns everything after offset.
func (t Table) Page(limit, offset int) (View, error) {
	rows, err := t.Rows()
	if err != nil {
		return View{}, err
	}

	limiter := newPageLimiter(pageRequest{limit: limit, offset: offset})
	page := make(domain.Dataset, 0)
	for _, record := range rows {
		if !limiter.ShouldContinue() {
			break
		}
		if limiter.Consider() {
			page = append(page, record)
		}
	}

	return View{
		Rows:   page,
		Total:  len(rows),
		Limit:  limiter.limit,
		Offset: limiter.offset,
		Sort:   t.sort,
		Filter: t.Filters(),
	}, nil
}

type pageRequest struct {
	limit  int
	offset int
}

type pageLimiter struct {
	limit  int
	offset int
	seen   int
}

func newPageLimiter(req pageRequest) pageLimiter {
	limiter := pageLimiter{limit: req.limit, offset: req.offset}
	if limiter.limit < 0 {
		limiter.limit = 0
	}
	if limiter.offset < 0 {
		limiter.offset = 0
	}
	return limiter
}

func (p *pageLimiter) ShouldContinue() bool {
	if p.limit == 0 {
		return true
	}
	return p.seen < p.offset+p.limit
}

func (p *pageLimiter) Consider() bool {
	p.seen++
	if p.seen <= p.offset {
		return false
	}
	if p.limit == 0 {
		return true
	}
	return p.seen <= p.offset+p.limit
}
