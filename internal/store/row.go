package store

import (
	"fmt"

	"gridquery/internal/schema"
)

// Row holds the attribute state shared by store records: current values,
// the values last read from or written to the store, and validation errors.
type Row struct {
	table    *schema.Table
	values   map[string]any
	original map[string]any
	dirty    map[string]struct{}
	errors   FieldErrors
}

// NewRow wraps values for table. Persisted rows remember their values as the
// original state used to address updates and deletes.
func NewRow(table *schema.Table, values map[string]any, persisted bool) *Row {
	r := &Row{
		table:  table,
		values: make(map[string]any, len(table.Columns)),
		dirty:  make(map[string]struct{}),
	}
	for _, col := range table.Columns {
		if v, ok := values[col.Name]; ok {
			r.values[col.Name] = v
		}
	}
	if persisted {
		r.MarkPersisted()
	}
	return r
}

func (r *Row) Table() *schema.Table {
	return r.table
}

func (r *Row) Get(attr string) (any, bool) {
	if _, ok := r.table.Column(attr); !ok {
		return nil, false
	}
	return r.values[attr], true
}

func (r *Row) Set(attr string, value any) error {
	if _, ok := r.table.Column(attr); !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownAttribute, r.table.Name, attr)
	}
	r.values[attr] = value
	r.dirty[attr] = struct{}{}
	return nil
}

func (r *Row) Attributes() []string {
	return r.table.ColumnNames()
}

func (r *Row) PrimaryKey() []any {
	names := schema.PrimaryKeyNames(r.table)
	key := make([]any, len(names))
	for i, name := range names {
		key[i] = r.values[name]
	}
	return key
}

// OriginalKey returns the primary key as last persisted.
func (r *Row) OriginalKey() map[string]any {
	source := r.original
	if source == nil {
		source = r.values
	}
	key := make(map[string]any)
	for _, name := range schema.PrimaryKeyNames(r.table) {
		key[name] = source[name]
	}
	return key
}

func (r *Row) IsNew() bool {
	return r.original == nil
}

func (r *Row) Errors() []FieldError {
	return append([]FieldError(nil), r.errors...)
}

// AddError records a validation message for field.
func (r *Row) AddError(field, message string) {
	r.errors.Add(field, message)
}

// SetErrors replaces the validation errors.
func (r *Row) SetErrors(errs FieldErrors) {
	r.errors = errs
}

// PendingAttributes returns the attributes a save should write. New rows write
// every attribute holding a value; persisted rows write modified attributes.
// A non-empty attrs restricts the result to those names.
func (r *Row) PendingAttributes(attrs ...string) []string {
	var scope map[string]struct{}
	if len(attrs) > 0 {
		scope = make(map[string]struct{}, len(attrs))
		for _, a := range attrs {
			scope[a] = struct{}{}
		}
	}
	var pending []string
	for _, col := range r.table.Columns {
		if scope != nil {
			if _, ok := scope[col.Name]; !ok {
				continue
			}
		}
		if r.IsNew() {
			if _, ok := r.values[col.Name]; ok {
				pending = append(pending, col.Name)
			}
			continue
		}
		if _, ok := r.dirty[col.Name]; ok {
			pending = append(pending, col.Name)
		}
	}
	return pending
}

// Values returns a copy of the current values.
func (r *Row) Values() map[string]any {
	out := make(map[string]any, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// MarkPersisted records the current values as the stored state.
func (r *Row) MarkPersisted() {
	r.original = r.Values()
	r.dirty = make(map[string]struct{})
}
