// Package types holds the shared data types passed between notebooklets,
// data providers and the display layer.
package types

import (
	"fmt"
	"sort"
	"strings"
)

// Table is a column-ordered tabular result returned by query providers
// and carried in notebooklet results. Cell values are untyped; callers
// that need typed access use the accessor helpers.
type Table struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// NewTable creates an empty table with the given column names.
func NewTable(columns ...string) *Table {
	return &Table{Columns: columns}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}

	return len(t.Rows)
}

// IsEmpty reports whether the table is nil or has no rows.
func (t *Table) IsEmpty() bool {
	return t.Len() == 0
}

// ColumnIndex returns the index of the named column, or -1 if absent.
func (t *Table) ColumnIndex(name string) int {
	for i, col := range t.Columns {
		if col == name {
			return i
		}
	}

	return -1
}

// HasColumn reports whether the named column exists.
func (t *Table) HasColumn(name string) bool {
	return t.ColumnIndex(name) >= 0
}

// AppendRow appends a row. The number of values must match the column count.
func (t *Table) AppendRow(values ...any) error {
	if len(values) != len(t.Columns) {
		return fmt.Errorf("row has %d values, table has %d columns", len(values), len(t.Columns))
	}

	t.Rows = append(t.Rows, values)

	return nil
}

// Value returns the cell at row index `row` in the named column.
// Returns nil when the row or column is out of range.
func (t *Table) Value(row int, column string) any {
	idx := t.ColumnIndex(column)
	if idx < 0 || row < 0 || row >= len(t.Rows) {
		return nil
	}

	return t.Rows[row][idx]
}

// StringValue returns the cell at `row`/`column` rendered as a string.
func (t *Table) StringValue(row int, column string) string {
	val := t.Value(row, column)
	if val == nil {
		return ""
	}

	if s, ok := val.(string); ok {
		return s
	}

	return fmt.Sprint(val)
}

// ColumnValues returns all values of the named column in row order.
func (t *Table) ColumnValues(column string) []any {
	idx := t.ColumnIndex(column)
	if idx < 0 {
		return nil
	}

	values := make([]any, 0, len(t.Rows))
	for _, row := range t.Rows {
		values = append(values, row[idx])
	}

	return values
}

// UniqueStrings returns the distinct, non-empty string renderings of the
// named column, preserving first-seen order.
func (t *Table) UniqueStrings(column string) []string {
	idx := t.ColumnIndex(column)
	if idx < 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(t.Rows))
	unique := make([]string, 0, len(t.Rows))

	for _, row := range t.Rows {
		val := row[idx]
		if val == nil {
			continue
		}

		str := fmt.Sprint(val)
		if str == "" {
			continue
		}

		if _, ok := seen[str]; ok {
			continue
		}

		seen[str] = struct{}{}
		unique = append(unique, str)
	}

	return unique
}

// Filter returns a new table containing the rows for which keep returns true.
// The column slice is shared with the receiver.
func (t *Table) Filter(keep func(row []any) bool) *Table {
	filtered := &Table{Columns: t.Columns}
	for _, row := range t.Rows {
		if keep(row) {
			filtered.Rows = append(filtered.Rows, row)
		}
	}

	return filtered
}

// FilterEquals returns the rows whose named column renders equal to value.
func (t *Table) FilterEquals(column, value string) *Table {
	idx := t.ColumnIndex(column)
	if idx < 0 {
		return &Table{Columns: t.Columns}
	}

	return t.Filter(func(row []any) bool {
		return fmt.Sprint(row[idx]) == value
	})
}

// SortBy returns a new table sorted by the named column. Numeric cell
// values sort numerically, everything else by string rendering.
func (t *Table) SortBy(column string, descending bool) *Table {
	idx := t.ColumnIndex(column)
	sorted := &Table{Columns: t.Columns, Rows: make([][]any, len(t.Rows))}
	copy(sorted.Rows, t.Rows)

	if idx < 0 {
		return sorted
	}

	sort.SliceStable(sorted.Rows, func(i, j int) bool {
		less := lessValues(sorted.Rows[i][idx], sorted.Rows[j][idx])
		if descending {
			return !less && !equalValues(sorted.Rows[i][idx], sorted.Rows[j][idx])
		}

		return less
	})

	return sorted
}

// Head returns a copy containing at most n rows.
func (t *Table) Head(n int) *Table {
	if n > len(t.Rows) {
		n = len(t.Rows)
	}

	head := &Table{Columns: t.Columns, Rows: make([][]any, n)}
	copy(head.Rows, t.Rows[:n])

	return head
}

// AddColumn appends a column with one value per existing row.
func (t *Table) AddColumn(name string, values []any) error {
	if len(values) != len(t.Rows) {
		return fmt.Errorf("column %q has %d values, table has %d rows", name, len(values), len(t.Rows))
	}

	t.Columns = append(t.Columns, name)
	for i := range t.Rows {
		t.Rows[i] = append(t.Rows[i], values[i])
	}

	return nil
}

// String returns a short description of the table shape.
func (t *Table) String() string {
	if t == nil {
		return "Table(nil)"
	}

	return fmt.Sprintf("Table(%d rows, columns: %s)", len(t.Rows), strings.Join(t.Columns, ", "))
}

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint64:
		return float64(val), true
	default:
		return 0, false
	}
}

func lessValues(a, b any) bool {
	fa, aok := toFloat(a)
	fb, bok := toFloat(b)

	if aok && bok {
		return fa < fb
	}

	return fmt.Sprint(a) < fmt.Sprint(b)
}

func equalValues(a, b any) bool {
	fa, aok := toFloat(a)
	fb, bok := toFloat(b)

	if aok && bok {
		return fa == fb
	}

	return fmt.Sprint(a) == fmt.Sprint(b)
}
