package query

import (
	"strings"
)

// Assignment is a column bound to a rendered literal
type Assignment struct {
	Column  string
	Literal string
}

// Insert returns the statement inserting one row
func Insert(table string, values []Assignment) string {
	columns := make([]string, len(values))
	literals := make([]string, len(values))
	for i, v := range values {
		columns[i] = v.Column
		literals[i] = v.Literal
	}
	return "insert into " + table + "(" + strings.Join(columns, ", ") + ") values(" + strings.Join(literals, ", ") + ")"
}

// Update returns the statement updating the row whose idColumn equals id
func Update(table string, values []Assignment, idColumn, id string) string {
	sets := make([]string, len(values))
	for i, v := range values {
		sets[i] = v.Column + " = " + v.Literal
	}
	return "update " + table + " set " + strings.Join(sets, ", ") + " where " + idColumn + " = " + id
}

// Delete returns the statement deleting the row whose idColumn equals id
func Delete(table, idColumn, id string) string {
	return "delete from " + table + " where " + idColumn + " = " + id
}

// SetForeignKey returns the statement pointing the foreign key column of the
// row targetID at id
func SetForeignKey(table, column, id, idColumn, targetID string) string {
	return "update " + table + " set " + column + " = " + id + " where " + idColumn + " = " + targetID
}

// NullifyReverse returns the statement clearing every foreign key column of
// table that references id
func NullifyReverse(table, column, id string) string {
	return "update " + table + " set " + column + " = null where " + column + " = " + id
}

// DeleteJoinRows returns the statement removing the join rows of id
func DeleteJoinRows(table, column, id string) string {
	return "delete from " + table + " where " + column + " = " + id
}

// InsertJoinRow returns the statement inserting one join row
func InsertJoinRow(table, ownColumn, otherColumn, own, other string) string {
	return Insert(table, []Assignment{{Column: ownColumn, Literal: own}, {Column: otherColumn, Literal: other}})
}

// SelectJoinRows returns the query listing the target ids joined to id
func SelectJoinRows(table, ownColumn, otherColumn, id string) string {
	return "select " + otherColumn + " from " + table + " where " + ownColumn + " = " + id
}

// SelectColumn returns the query reading one column of the row id
func SelectColumn(table, column, idColumn, id string) string {
	return "select " + column + " from " + table + " where " + idColumn + " = " + id
}

// SelectAll returns the query reading every row of table
func SelectAll(table string, columns []string) string {
	return "select " + strings.Join(columns, ", ") + " from " + table
}

// SelectIDs returns the query listing the ids of the rows whose column equals id
func SelectIDs(table, idColumn, column, id string) string {
	return "select " + idColumn + " from " + table + " where " + column + " = " + id
}
