package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrMultipleUniqueIdentifiers is returned when more than one active
	// column of a table is flagged as its unique identifier.
	ErrMultipleUniqueIdentifiers = errors.New("more than one active unique identifier column")

	// ErrDuplicateColumn is returned when two columns share a name or alias.
	ErrDuplicateColumn = errors.New("duplicate column name")
)

// SortColumns orders columns by OrderIndex, breaking ties by ID.
func SortColumns(cols []Column) {
	sort.SliceStable(cols, func(i, j int) bool {
		if cols[i].OrderIndex != cols[j].OrderIndex {
			return cols[i].OrderIndex < cols[j].OrderIndex
		}
		return cols[i].ID < cols[j].ID
	})
}

// SortedColumns returns a sorted copy of the table's columns. Passive
// columns are dropped unless includeInactive is set.
func (t Table) SortedColumns(includeInactive bool) []Column {
	out := make([]Column, 0, len(t.Columns))
	for _, c := range t.Columns {
		if includeInactive || c.Active() {
			out = append(out, c)
		}
	}
	SortColumns(out)
	return out
}

// ActiveColumns returns the active columns in display order.
func (t Table) ActiveColumns() []Column {
	return t.SortedColumns(false)
}

// UniqueIdentifier returns the active column flagged as the natural key.
// When the schema is invalid and several are flagged, the first in display
// order is returned; Validate reports that case.
func (t Table) UniqueIdentifier() (Column, bool) {
	for _, c := range t.ActiveColumns() {
		if c.IsUniqueIdentifier {
			return c, true
		}
	}
	return Column{}, false
}

// Validate checks the structural rules the exchange pipeline depends on:
// column names and header aliases do not collide, and at most one active
// column is the unique identifier.
func (t Table) Validate() error {
	var errs []error

	seen := make(map[string]string)
	unique := 0
	for _, c := range t.ActiveColumns() {
		if c.IsUniqueIdentifier {
			unique++
		}
		for _, key := range []string{c.Name, c.HeaderAlias} {
			if key == "" {
				continue
			}
			k := strings.ToLower(key)
			if owner, ok := seen[k]; ok && owner != c.Name {
				errs = append(errs, fmt.Errorf("%w: table %q: %q used by %q and %q",
					ErrDuplicateColumn, t.Name, key, owner, c.Name))
				continue
			}
			seen[k] = c.Name
		}
	}
	if unique > 1 {
		errs = append(errs, fmt.Errorf("%w: table %q has %d", ErrMultipleUniqueIdentifiers, t.Name, unique))
	}

	return errors.Join(errs...)
}

// FindTable resolves a table by name within a set, ignoring case.
func FindTable(tables []Table, name string) (Table, bool) {
	for _, t := range tables {
		if t.Name == name {
			return t, true
		}
	}
	for _, t := range tables {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return Table{}, false
}
