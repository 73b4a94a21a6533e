package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"gridquery/internal/schema"
)

// blogSchema builds posts -> users -> profiles with comments hanging off posts.
func blogSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s := &schema.Schema{Tables: []schema.Table{
		{
			Name: "posts",
			Columns: []schema.Column{
				{Name: "id", DataType: "int", IsPrimaryKey: true, IsAutoIncrement: true},
				{Name: "title", DataType: "varchar", ColumnType: "varchar(100)"},
				{Name: "status", DataType: "int"},
				{Name: "age", DataType: "int"},
				{Name: "author_id", DataType: "int", IsNullable: true},
				{Name: "secret", DataType: "varchar", Unsafe: true},
			},
			ForeignKeys: []schema.ForeignKey{
				{ColumnName: "author_id", ReferencedTable: "users", ReferencedColumn: "id", ConstraintName: "fk_author", OrdinalPosition: 1},
			},
		},
		{
			Name: "users",
			Columns: []schema.Column{
				{Name: "id", DataType: "int", IsPrimaryKey: true},
				{Name: "name", DataType: "varchar"},
				{Name: "profile_id", DataType: "int", IsNullable: true},
			},
			ForeignKeys: []schema.ForeignKey{
				{ColumnName: "profile_id", ReferencedTable: "profiles", ReferencedColumn: "id", ConstraintName: "fk_profile", OrdinalPosition: 1},
			},
		},
		{
			Name: "profiles",
			Columns: []schema.Column{
				{Name: "id", DataType: "int", IsPrimaryKey: true},
				{Name: "bio", DataType: "text"},
			},
		},
		{
			Name: "comments",
			Columns: []schema.Column{
				{Name: "id", DataType: "int", IsPrimaryKey: true},
				{Name: "post_id", DataType: "int"},
				{Name: "body", DataType: "text"},
			},
			ForeignKeys: []schema.ForeignKey{
				{ColumnName: "post_id", ReferencedTable: "posts", ReferencedColumn: "id", ConstraintName: "fk_post", OrdinalPosition: 1},
			},
		},
	}}
	schema.BuildRelationships(context.Background(), s)
	return s
}

func postsResolver(t *testing.T, aliases map[string]string) *PathResolver {
	t.Helper()
	s := blogSchema(t)
	posts, ok := s.Table("posts")
	require.True(t, ok)
	return NewPathResolver(s, posts, aliases)
}
