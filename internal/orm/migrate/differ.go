// Package migrate keeps the tables of the database in line with the entity
// model: it diffs declared columns against the live schema and applies the
// additive or recreating update the differences call for.
package migrate

import (
	"fmt"
	"strings"

	"github.com/hivesolutions/colony-plugins-sub002/internal/orm/schema"
)

// MismatchKind represents the kind of difference between model and database
type MismatchKind int

const (
	// InexistingAttribute is a missing plain column or join table column
	InexistingAttribute MismatchKind = iota
	// InexistingRelationAttribute is a missing foreign key column
	InexistingRelationAttribute
	// InvalidAttributeType is a column whose storage type differs from the declared one
	InvalidAttributeType
	// MissingTable is a table that does not exist at all
	MissingTable
)

// String returns the string representation of the mismatch kind
func (k MismatchKind) String() string {
	switch k {
	case InexistingAttribute:
		return "inexisting_attribute"
	case InexistingRelationAttribute:
		return "inexisting_relation_attribute"
	case InvalidAttributeType:
		return "invalid_attribute_type"
	case MissingTable:
		return "missing_table"
	default:
		return "unknown"
	}
}

// Mismatch is a single difference between the model and the database
type Mismatch struct {
	Kind     MismatchKind
	Table    string
	Column   string
	Expected string
	Actual   string
	// JoinTable is set for mismatches of many-to-many join tables
	JoinTable bool
}

// ForcesUpdate returns true for mismatches that can only be fixed by
// recreating the table
func (m Mismatch) ForcesUpdate() bool {
	if m.JoinTable {
		return false
	}
	return m.Kind == InvalidAttributeType || m.Kind == InexistingRelationAttribute
}

// String returns a human readable description
func (m Mismatch) String() string {
	switch m.Kind {
	case MissingTable:
		return fmt.Sprintf("%s: table does not exist", m.Table)
	case InvalidAttributeType:
		return fmt.Sprintf("%s.%s: expected %s, found %s", m.Table, m.Column, m.Expected, m.Actual)
	default:
		return fmt.Sprintf("%s.%s: %s", m.Table, m.Column, m.Kind)
	}
}

// Diff is the set of mismatches of one entity type
type Diff struct {
	Type       *schema.EntityType
	Mismatches []Mismatch
}

// Synced returns true when the database matches the model
func (d *Diff) Synced() bool {
	return len(d.Mismatches) == 0
}

// TableMissing returns true when the entity table does not exist
func (d *Diff) TableMissing() bool {
	for _, m := range d.Mismatches {
		if m.Kind == MissingTable && !m.JoinTable {
			return true
		}
	}
	return false
}

// NeedsRecreate returns true when any mismatch forces a table recreation
func (d *Diff) NeedsRecreate() bool {
	for _, m := range d.Mismatches {
		if m.ForcesUpdate() {
			return true
		}
	}
	return false
}

// MissingColumns returns the plain columns that can be added in place
func (d *Diff) MissingColumns() []string {
	var columns []string
	for _, m := range d.Mismatches {
		if m.Kind == InexistingAttribute && !m.JoinTable {
			columns = append(columns, m.Column)
		}
	}
	return columns
}

// JoinTableMismatches returns the mismatches of many-to-many join tables
func (d *Diff) JoinTableMismatches() []Mismatch {
	var result []Mismatch
	for _, m := range d.Mismatches {
		if m.JoinTable {
			result = append(result, m)
		}
	}
	return result
}

// Summary returns a one line description of the diff
func (d *Diff) Summary() string {
	if d.Synced() {
		return "synced"
	}
	parts := make([]string, len(d.Mismatches))
	for i, m := range d.Mismatches {
		parts[i] = m.String()
	}
	return strings.Join(parts, "; ")
}
