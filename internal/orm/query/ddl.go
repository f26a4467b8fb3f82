package query

import (
	"strings"
)

// CreateTable returns the definition of a table with the given columns
func CreateTable(table string, columns []Column) string {
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = c.Name + " " + c.Type
	}
	return "create table " + table + "(" + strings.Join(defs, ", ") + ")"
}

// CreateJoinTable returns the definition of a many-to-many join table
func CreateJoinTable(jt JoinTable) string {
	return CreateTable(jt.Name, jt.Columns())
}

// CreateIndex returns the definition of the index on column of table
func CreateIndex(table, column string) string {
	return "create index " + IndexName(table, column) + " on " + table + "(" + column + ")"
}

// IndexName returns the name of the index on column of table
func IndexName(table, column string) string {
	return table + column + "index"
}

// AddColumn returns the statement adding a column to table
func AddColumn(table string, column Column) string {
	return "alter table " + table + " add column " + column.Name + " " + column.Type
}

// DropTable returns the statement dropping table
func DropTable(table string) string {
	return "drop table " + table
}

// TableInfo returns the query describing the columns of table
func TableInfo(table string) string {
	return "pragma table_info(" + table + ")"
}

// TableExists returns the query listing table when it exists
func TableExists(table string) string {
	return "select name from sqlite_master where type = 'table' and name = " + Quote(table)
}

// ListTables returns the query listing every table of the database
func ListTables() string {
	return "select name from sqlite_master where type = 'table' order by name"
}
