package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridquery/internal/schema"
)

func postsTable() *schema.Table {
	return &schema.Table{
		Name: "posts",
		Columns: []schema.Column{
			{Name: "id", DataType: "int", IsPrimaryKey: true, IsAutoIncrement: true},
			{Name: "title", DataType: "varchar", ColumnType: "varchar(5)"},
			{Name: "views", DataType: "int", HasDefault: true},
			{Name: "price", DataType: "decimal", ColumnType: "decimal(10,2)", IsNullable: true},
			{Name: "status", DataType: "enum", ColumnType: "enum('draft','live')", EnumValues: []string{"draft", "live"}, HasDefault: true},
			{Name: "author_id", DataType: "int", IsNullable: true},
		},
	}
}

func TestRow_GetSetPending(t *testing.T) {
	row := NewRow(postsTable(), map[string]any{"id": int64(1), "title": "hello", "ignored": "x"}, true)

	v, ok := row.Get("title")
	assert.True(t, ok)
	assert.Equal(t, "hello", v)
	_, ok = row.Get("ignored")
	assert.False(t, ok)

	assert.False(t, row.IsNew())
	assert.Empty(t, row.PendingAttributes())

	require.NoError(t, row.Set("title", "bye"))
	assert.ErrorIs(t, row.Set("nope", 1), ErrUnknownAttribute)
	assert.Equal(t, []string{"title"}, row.PendingAttributes())
	assert.Empty(t, row.PendingAttributes("views"))

	require.NoError(t, row.Set("id", int64(9)))
	assert.Equal(t, map[string]any{"id": int64(1)}, row.OriginalKey())
	assert.Equal(t, []any{int64(9)}, row.PrimaryKey())

	row.MarkPersisted()
	assert.Equal(t, map[string]any{"id": int64(9)}, row.OriginalKey())
}

func TestRow_NewPendingAttributes(t *testing.T) {
	row := NewRow(postsTable(), nil, false)
	assert.True(t, row.IsNew())
	require.NoError(t, row.Set("title", "a"))
	require.NoError(t, row.Set("views", "3"))
	assert.Equal(t, []string{"title", "views"}, row.PendingAttributes())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		persisted bool
		values    map[string]any
		attrs     []string
		want      FieldErrors
	}{
		{
			name:   "valid new row",
			values: map[string]any{"title": "ok", "views": "12", "price": "9.50", "status": "live"},
		},
		{
			name:   "required title missing",
			values: map[string]any{"views": 1},
			want:   FieldErrors{{Field: "title", Messages: []string{"Title cannot be blank."}}},
		},
		{
			name:   "bad values",
			values: map[string]any{"title": "too long", "views": "1.5", "price": "abc", "status": "gone", "author_id": "x"},
			want: FieldErrors{
				{Field: "title", Messages: []string{"Title should contain at most 5 characters."}},
				{Field: "views", Messages: []string{"Views must be an integer."}},
				{Field: "price", Messages: []string{"Price must be a number."}},
				{Field: "status", Messages: []string{"Status is invalid."}},
				{Field: "author_id", Messages: []string{"Author ID must be an integer."}},
			},
		},
		{
			name:      "scoped to attrs",
			persisted: true,
			values:    map[string]any{"id": 1, "title": "too long", "views": "x"},
			attrs:     []string{"views"},
			want:      FieldErrors{{Field: "views", Messages: []string{"Views must be an integer."}}},
		},
		{
			name:      "null on not-null column of persisted row",
			persisted: true,
			values:    map[string]any{"id": 1, "title": nil, "author_id": nil},
			want:      FieldErrors{{Field: "title", Messages: []string{"Title cannot be blank."}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := NewRow(postsTable(), tt.values, tt.persisted)
			assert.Equal(t, tt.want, Validate(row, tt.attrs...))
		})
	}
}

func TestRenderErrors(t *testing.T) {
	errs := FieldErrors{}
	errs.Add("title", "Title cannot be blank.")
	errs.Add("views", "Views must be an integer.")
	errs.Add("title", "Title is invalid.")

	assert.Equal(t, "Title cannot be blank. Title is invalid. Views must be an integer. ", RenderErrors(errs))
	assert.Equal(t, "", RenderErrors(nil))
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "Author ID", Label("author_id"))
	assert.Equal(t, "Title", Label("title"))
	assert.Equal(t, "Created At", Label("created_at"))
}
