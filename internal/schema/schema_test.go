package schema

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridquery/internal/sqltype"
)

func TestParseQuotedList(t *testing.T) {
	tests := []struct {
		name    string
		keyword string
		input   string
		want    []string
		wantErr bool
	}{
		{name: "enum", keyword: "enum", input: "enum('a','b','c')", want: []string{"a", "b", "c"}},
		{name: "escaped quote", keyword: "enum", input: "enum('it''s','x\\'y')", want: []string{"it's", "x'y"}},
		{name: "comma inside value", keyword: "set", input: "set('a,b', 'c')", want: []string{"a,b", "c"}},
		{name: "wrong keyword", keyword: "enum", input: "set('a')", wantErr: true},
		{name: "unterminated", keyword: "enum", input: "enum('a)", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseQuotedList(tt.keyword, tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestColumn_KindAndLength(t *testing.T) {
	col := Column{Name: "code", DataType: "char", ColumnType: "char(3)"}
	assert.Equal(t, 3, col.MaxLength())
	assert.Equal(t, sqltype.KindString, col.Kind())

	num := Column{Name: "price", ColumnType: "decimal(10,2)"}
	assert.Equal(t, 0, num.MaxLength())
	assert.Equal(t, sqltype.KindDecimal, num.Kind())
}

func TestBuildRelationships_MultipleConstraintsToSameTable(t *testing.T) {
	s := &Schema{Tables: []Table{
		{Name: "users", Columns: []Column{{Name: "id", IsPrimaryKey: true}}},
		{
			Name: "posts",
			Columns: []Column{
				{Name: "id", IsPrimaryKey: true},
				{Name: "author_id"},
				{Name: "editor_id"},
			},
			ForeignKeys: []ForeignKey{
				{ColumnName: "author_id", ReferencedTable: "users", ReferencedColumn: "id", ConstraintName: "fk_author", OrdinalPosition: 1},
				{ColumnName: "editor_id", ReferencedTable: "users", ReferencedColumn: "id", ConstraintName: "fk_editor", OrdinalPosition: 1},
			},
		},
	}}

	BuildRelationships(context.Background(), s)

	posts, _ := s.Table("posts")
	_, ok := posts.Relationship("author")
	assert.True(t, ok)
	_, ok = posts.Relationship("editor")
	assert.True(t, ok)

	users, _ := s.Table("users")
	_, ok = users.Relationship("author_posts")
	assert.True(t, ok)
	_, ok = users.Relationship("editor_posts")
	assert.True(t, ok)
}

func TestBuildRelationships_CompositeKey(t *testing.T) {
	s := &Schema{Tables: []Table{
		{Name: "orders", Columns: []Column{{Name: "region", IsPrimaryKey: true}, {Name: "number", IsPrimaryKey: true}}},
		{
			Name:    "order_lines",
			Columns: []Column{{Name: "id", IsPrimaryKey: true}, {Name: "order_region"}, {Name: "order_number"}},
			ForeignKeys: []ForeignKey{
				{ColumnName: "order_number", ReferencedTable: "orders", ReferencedColumn: "number", ConstraintName: "fk_order", OrdinalPosition: 2},
				{ColumnName: "order_region", ReferencedTable: "orders", ReferencedColumn: "region", ConstraintName: "fk_order", OrdinalPosition: 1},
			},
		},
	}}

	BuildRelationships(context.Background(), s)

	lines, _ := s.Table("order_lines")
	rel, ok := lines.Relationship("order")
	require.True(t, ok)
	assert.Equal(t, []string{"order_region", "order_number"}, rel.LocalColumns)
	assert.Equal(t, []string{"region", "number"}, rel.RemoteColumns)
	assert.Equal(t, []string{"region", "number"}, PrimaryKeyNames(mustTable(t, s, "orders")))
}

func TestSchema_MarkUnsafe(t *testing.T) {
	s := &Schema{Tables: []Table{{Name: "users", Columns: []Column{{Name: "id"}, {Name: "password_hash"}}}}}
	s.MarkUnsafe("users", "password_hash", "missing")

	users := mustTable(t, s, "users")
	assert.True(t, users.IsSafe("id"))
	assert.False(t, users.IsSafe("password_hash"))
	assert.False(t, users.IsSafe("missing"))
}

func mustTable(t *testing.T, s *Schema, name string) *Table {
	t.Helper()
	table, ok := s.Table(name)
	require.True(t, ok)
	return table
}
