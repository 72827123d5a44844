package table

import (
	"fmt"

	"github.com/rpattn/resultgrid/internal/domain"
)

// SortClick is one press of a column's ascending or descending control.
type SortClick struct {
	ColName string           `json:"colName"`
	Order   domain.SortOrder `json:"order"`
}

// ViewRequest is the table state a client sends with every view, profile or
// export call. The server keeps no per-client state: the client echoes its
// current sort and, optionally, the click that should be applied on top.
type ViewRequest struct {
	Filters []domain.Filter  `json:"filters"`
	Sort    *domain.SortSpec `json:"sort,omitempty"`
	Click   *SortClick       `json:"click,omitempty"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

// Apply layers the request onto t.
func (r ViewRequest) Apply(t Table) (Table, error) {
	next, err := t.WithFilters(r.Filters)
	if err != nil {
		return t, err
	}
	if r.Sort != nil {
		if next, err = next.WithSort(*r.Sort); err != nil {
			return t, err
		}
	}
	if r.Click != nil {
		switch r.Click.Order {
		case domain.SortOrderAscending, domain.SortOrderDescending:
		default:
			return t, fmt.Errorf("unknown sort order %q", r.Click.Order)
		}
		if next, err = next.WithSortToggle(r.Click.ColName, r.Click.Order); err != nil {
			return t, err
		}
	}
	return next, nil
}
