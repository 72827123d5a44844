package domain

// SortOrder represents ordering direction for the active sort column.
type SortOrder string

const (
	SortOrderAscending  SortOrder = "Ascending"
	SortOrderDescending SortOrder = "Descending"
)

// SortSpec captures the single active sort. The zero value means no sort.
type SortSpec struct {
	ColName string     `json:"colName,omitempty"`
	ColType ColumnType `json:"colType,omitempty"`
	Order   SortOrder  `json:"order,omitempty"`
}

// IsEmpty reports whether no sort is active.
func (s SortSpec) IsEmpty() bool {
	return s.ColName == "" || s.Order == ""
}

// ToggleSort applies one click on a column's sort control. Clicking the order
// that is already active clears the sort; anything else activates it.
func ToggleSort(current SortSpec, column ColumnDescriptor, order SortOrder) SortSpec {
	if !current.IsEmpty() && current.ColName == column.Name && current.Order == order {
		return SortSpec{}
	}
	return SortSpec{ColName: column.Name, ColType: column.Type, Order: order}
}
