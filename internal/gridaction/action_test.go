package gridaction

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridquery/internal/gridrequest"
	"gridquery/internal/planner"
	"gridquery/internal/query"
	"gridquery/internal/schema"
	"gridquery/internal/store"
	"gridquery/internal/store/memstore"
)

// forumSchema has posts -> users -> teams plus a composite-key post_tags table.
func forumSchema() *schema.Schema {
	s := &schema.Schema{Tables: []schema.Table{
		{Name: "teams", Columns: []schema.Column{
			{Name: "id", DataType: "int", IsPrimaryKey: true, IsAutoIncrement: true},
			{Name: "name", DataType: "varchar", ColumnType: "varchar(20)"},
		}},
		{
			Name: "users",
			Columns: []schema.Column{
				{Name: "id", DataType: "int", IsPrimaryKey: true, IsAutoIncrement: true},
				{Name: "name", DataType: "varchar", ColumnType: "varchar(20)"},
				{Name: "team_id", DataType: "int", IsNullable: true},
			},
			ForeignKeys: []schema.ForeignKey{
				{ColumnName: "team_id", ReferencedTable: "teams", ReferencedColumn: "id", ConstraintName: "fk_team", OrdinalPosition: 1},
			},
		},
		{
			Name: "posts",
			Columns: []schema.Column{
				{Name: "id", DataType: "int", IsPrimaryKey: true, IsAutoIncrement: true},
				{Name: "title", DataType: "varchar", ColumnType: "varchar(20)"},
				{Name: "status", DataType: "int", HasDefault: true},
				{Name: "age", DataType: "int", IsNullable: true},
				{Name: "body", DataType: "text", IsNullable: true, Unsafe: true},
				{Name: "author_id", DataType: "int", IsNullable: true},
			},
			ForeignKeys: []schema.ForeignKey{
				{ColumnName: "author_id", ReferencedTable: "users", ReferencedColumn: "id", ConstraintName: "fk_author", OrdinalPosition: 1},
			},
		},
		{
			Name: "post_tags",
			Columns: []schema.Column{
				{Name: "post_id", DataType: "int", IsPrimaryKey: true},
				{Name: "tag", DataType: "varchar", ColumnType: "varchar(20)", IsPrimaryKey: true},
				{Name: "weight", DataType: "int", IsNullable: true},
			},
			ForeignKeys: []schema.ForeignKey{
				{ColumnName: "post_id", ReferencedTable: "posts", ReferencedColumn: "id", ConstraintName: "fk_post", OrdinalPosition: 1},
			},
		},
	}}
	schema.BuildRelationships(context.Background(), s)
	return s
}

func forumStore(t *testing.T) *memstore.Store {
	t.Helper()
	st := memstore.New(forumSchema())
	require.NoError(t, st.Insert("teams",
		map[string]any{"id": 1, "name": "core"},
	))
	require.NoError(t, st.Insert("users",
		map[string]any{"id": 1, "name": "ann", "team_id": 1},
		map[string]any{"id": 2, "name": "bob", "team_id": nil},
	))
	require.NoError(t, st.Insert("posts",
		map[string]any{"id": 1, "title": "foo one", "status": 1, "age": 30, "author_id": 1},
		map[string]any{"id": 2, "title": "bar", "status": 1, "age": 12, "author_id": 2},
		map[string]any{"id": 3, "title": "a foo", "status": 0, "age": 40, "author_id": 1},
		map[string]any{"id": 4, "title": "baz", "status": 1, "age": 19, "author_id": nil},
		map[string]any{"id": 5, "title": "qux", "status": 2, "age": nil, "author_id": 2},
	))
	require.NoError(t, st.Insert("post_tags",
		map[string]any{"post_id": 1, "tag": "go", "weight": 1},
		map[string]any{"post_id": 1, "tag": "sql", "weight": 2},
		map[string]any{"post_id": 3, "tag": "go", "weight": 3},
	))
	return st
}

func model(t *testing.T, st *memstore.Store, table string) store.Model {
	t.Helper()
	m, err := st.Model(table)
	require.NoError(t, err)
	return m
}

func newAction(t *testing.T, cfg Config) *Action {
	t.Helper()
	if cfg.Name == "" {
		cfg.Name = "posts"
	}
	a, err := New(cfg)
	require.NoError(t, err)
	return a
}

// spyModel counts store queries so tests can check that rejected requests never reach the store.
type spyModel struct {
	store.Model
	queries int
}

func (m *spyModel) Find() store.Collection {
	return &spyCollection{Collection: m.Model.Find(), model: m}
}

type spyCollection struct {
	store.Collection
	model *spyModel
}

func (c *spyCollection) wrap(inner store.Collection) store.Collection {
	return &spyCollection{Collection: inner, model: c.model}
}

func (c *spyCollection) Filter(p query.Predicate) store.Collection {
	return c.wrap(c.Collection.Filter(p))
}

func (c *spyCollection) Sort(fields ...query.SortField) store.Collection {
	return c.wrap(c.Collection.Sort(fields...))
}

func (c *spyCollection) Paginate(w query.Window) store.Collection {
	return c.wrap(c.Collection.Paginate(w))
}

func (c *spyCollection) JoinRelation(path string) store.Collection {
	return c.wrap(c.Collection.JoinRelation(path))
}

func (c *spyCollection) Count(ctx context.Context) (int64, error) {
	c.model.queries++
	return c.Collection.Count(ctx)
}

func (c *spyCollection) Fetch(ctx context.Context) ([]store.Record, error) {
	c.model.queries++
	return c.Collection.Fetch(ctx)
}

func TestNew_InvalidConfiguration(t *testing.T) {
	st := forumStore(t)
	noKey := memstore.New(&schema.Schema{Tables: []schema.Table{
		{Name: "logs", Columns: []schema.Column{{Name: "line", DataType: "text"}}},
	}})
	logs, err := noKey.Model("logs")
	require.NoError(t, err)

	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "missing name", cfg: Config{Model: model(t, st, "posts")}},
		{name: "missing model", cfg: Config{Name: "posts"}},
		{name: "no primary key", cfg: Config{Name: "logs", Model: logs}},
		{name: "unknown column", cfg: Config{Name: "posts", Model: model(t, st, "posts"), Columns: []string{"nope"}}},
		{name: "unknown relation", cfg: Config{Name: "posts", Model: model(t, st, "posts"), Columns: []string{"editor.name"}}},
		{name: "alias to unsafe column", cfg: Config{Name: "posts", Model: model(t, st, "posts"), Aliases: map[string]string{"text": "body"}}},
		{name: "bad search operator", cfg: Config{Name: "posts", Model: model(t, st, "posts"), SearchOperator: "like"}},
		{name: "bad subgrid column", cfg: Config{Name: "posts", Model: model(t, st, "posts"), Subgrid: &SubgridConfig{
			Model: model(t, st, "post_tags"), ParentColumn: "nope",
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfiguration), err.Error())
		})
	}
}

func TestNew_ColumnsAlwaysIncludeKey(t *testing.T) {
	st := forumStore(t)
	a := newAction(t, Config{Model: model(t, st, "posts"), Columns: []string{"title", "author.name"}})
	assert.Equal(t, []string{"id", "title", "author.name"}, a.Columns())

	tags := newAction(t, Config{Name: "tags", Model: model(t, st, "post_tags"), Columns: []string{"weight", "tag"}})
	assert.Equal(t, []string{"post_id", "weight", "tag"}, tags.Columns())

	all := newAction(t, Config{Model: model(t, st, "posts")})
	assert.Equal(t, []string{"id", "title", "status", "age", "body", "author_id"}, all.Columns())
}

func TestColumnSet_VisibleColumnsKeepKey(t *testing.T) {
	st := forumStore(t)
	a := newAction(t, Config{Model: model(t, st, "posts"), Columns: []string{"title", "status", "age"}})

	assert.Equal(t, []string{"id", "status"}, a.columnSet(gridrequest.Payload{"visibleColumns": []any{"status"}}))
	assert.Equal(t, []string{"id", "title", "age"}, a.columnSet(gridrequest.Payload{"visibleColumns": "age, title"}))
	assert.Equal(t, a.Columns(), a.columnSet(gridrequest.Payload{}))
}

func TestDo_UnsupportedAction(t *testing.T) {
	st := forumStore(t)
	a := newAction(t, Config{Model: model(t, st, "posts")})

	_, err := a.Do(context.Background(), "export", gridrequest.Payload{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBadRequest))
}

func TestNew_SearchOperatorDefaultsToContains(t *testing.T) {
	st := forumStore(t)
	a := newAction(t, Config{Model: model(t, st, "posts")})
	assert.Equal(t, planner.OpContains, a.cfg.SearchOperator)
	assert.Equal(t, "\n", a.cfg.Separator)
}
