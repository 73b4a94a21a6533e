// Package schema describes tables, columns and relationships of the backing database.
// Descriptors are built once by Introspect (or by hand for in-memory stores) and are
// read-only afterwards, so they can be shared across requests.
package schema

import (
	"strconv"
	"strings"

	"gridquery/internal/sqltype"
)

// Column represents a database column.
type Column struct {
	Name            string
	DataType        string
	ColumnType      string
	IsNullable      bool
	IsPrimaryKey    bool
	IsGenerated     bool
	IsAutoIncrement bool
	HasDefault      bool
	ColumnDefault   string
	EnumValues      []string
	Comment         string
	// Unsafe columns are readable but may not be used for filtering or sorting.
	Unsafe bool
}

// Kind returns the value kind of the column.
func (c Column) Kind() sqltype.Kind {
	if c.DataType != "" {
		return sqltype.KindOf(c.DataType)
	}
	return sqltype.KindOf(c.ColumnType)
}

// MaxLength returns the declared character length for char/varchar columns, or 0.
func (c Column) MaxLength() int {
	lower := strings.ToLower(strings.TrimSpace(c.ColumnType))
	if !strings.HasPrefix(lower, "varchar(") && !strings.HasPrefix(lower, "char(") {
		return 0
	}
	open := strings.Index(lower, "(")
	end := strings.Index(lower, ")")
	if open == -1 || end <= open {
		return 0
	}
	n, err := strconv.Atoi(lower[open+1 : end])
	if err != nil {
		return 0
	}
	return n
}

// IsRequired reports whether inserts must supply a value for the column.
func (c Column) IsRequired() bool {
	return !c.IsNullable && !c.HasDefault && !c.IsAutoIncrement && !c.IsGenerated
}

// ForeignKey represents one column of a foreign key constraint.
type ForeignKey struct {
	ColumnName       string
	ReferencedTable  string
	ReferencedColumn string
	ConstraintName   string
	OrdinalPosition  int
}

// Relationship is a named, one-hop association between two tables.
type Relationship struct {
	Name        string
	IsManyToOne bool
	IsOneToMany bool
	// LocalColumns[i] joins to RemoteColumns[i].
	LocalColumns  []string
	RemoteTable   string
	RemoteColumns []string
}

// IsToMany reports whether traversing the relationship yields a list of records.
func (r Relationship) IsToMany() bool {
	return r.IsOneToMany
}

// Table represents a database table.
type Table struct {
	Name          string
	IsView        bool
	Comment       string
	Columns       []Column
	ForeignKeys   []ForeignKey
	Relationships []Relationship
}

// Column returns the named column.
func (t *Table) Column(name string) (*Column, bool) {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// Relationship returns the named relationship.
func (t *Table) Relationship(name string) (*Relationship, bool) {
	for i := range t.Relationships {
		if t.Relationships[i].Name == name {
			return &t.Relationships[i], true
		}
	}
	return nil, false
}

// ColumnNames returns column names in declaration order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		names[i] = col.Name
	}
	return names
}

// IsSafe reports whether the column exists and may be filtered or sorted on.
func (t *Table) IsSafe(name string) bool {
	col, ok := t.Column(name)
	return ok && !col.Unsafe
}

// Schema represents the set of tables visible to the grid engine.
type Schema struct {
	Tables []Table
}

// Table returns the named table.
func (s *Schema) Table(name string) (*Table, bool) {
	if s == nil {
		return nil, false
	}
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i], true
		}
	}
	return nil, false
}

// MarkUnsafe flags the listed columns of a table as unsafe.
func (s *Schema) MarkUnsafe(tableName string, columns ...string) {
	table, ok := s.Table(tableName)
	if !ok {
		return
	}
	for _, name := range columns {
		if col, ok := table.Column(name); ok {
			col.Unsafe = true
		}
	}
}
