package memstore

import (
	"context"
	"fmt"

	"gridquery/internal/schema"
	"gridquery/internal/store"
)

type record struct {
	*store.Row
	model *Model
}

func (r *record) Save(_ context.Context, attrs ...string) (bool, error) {
	r.SetErrors(nil)
	errs := store.Validate(r.Row, attrs...)
	if v := r.model.store.validator(r.model.table.Name); v != nil {
		for _, fe := range v(r) {
			for _, msg := range fe.Messages {
				errs.Add(fe.Field, msg)
			}
		}
	}
	if len(errs) > 0 {
		r.SetErrors(errs)
		return false, nil
	}

	s := r.model.store
	s.mu.Lock()
	defer s.mu.Unlock()
	table := r.model.table
	data := s.tables[table.Name]

	if r.IsNew() {
		values := r.Values()
		assignAutoIncrement(table, data, values)
		if s.findIndex(table, keyOf(table, values)) >= 0 {
			r.AddError(duplicateField(table), "A record with this key already exists.")
			return false, nil
		}
		for _, name := range schema.PrimaryKeyNames(table) {
			if err := r.Set(name, values[name]); err != nil {
				return false, err
			}
		}
		data.rows = append(data.rows, values)
		r.MarkPersisted()
		return true, nil
	}

	idx := s.findIndex(table, r.OriginalKey())
	if idx < 0 {
		return false, fmt.Errorf("%s row %v no longer exists", table.Name, r.PrimaryKey())
	}
	current := r.Values()
	for _, name := range r.PendingAttributes(attrs...) {
		data.rows[idx][name] = current[name]
	}
	r.MarkPersisted()
	return true, nil
}

func (r *record) Delete(_ context.Context) (bool, error) {
	s := r.model.store
	s.mu.Lock()
	defer s.mu.Unlock()
	data := s.tables[r.model.table.Name]
	if idx := s.findIndex(r.model.table, r.OriginalKey()); idx >= 0 {
		data.rows = append(data.rows[:idx], data.rows[idx+1:]...)
	}
	return true, nil
}

func (r *record) Relation(_ context.Context, name string) (store.Related, error) {
	rel, ok := r.model.table.Relationship(name)
	if !ok {
		return store.Related{}, fmt.Errorf("%w: %s.%s", store.ErrUnknownRelation, r.model.table.Name, name)
	}
	remote, err := r.model.store.Model(rel.RemoteTable)
	if err != nil {
		return store.Related{}, err
	}
	values := r.Values()
	rows := remote.related(rel, values)
	if rel.IsToMany() {
		many := make([]store.Record, len(rows))
		for i, row := range rows {
			many[i] = remote.wrap(row)
		}
		return store.Related{ToMany: true, Many: many}, nil
	}
	if len(rows) == 0 {
		return store.Related{}, nil
	}
	return store.Related{One: remote.wrap(rows[0])}, nil
}

// related returns copies of the rows of m linked to a row of the relation's
// source table. Any null local column links nothing.
func (m *Model) related(rel *schema.Relationship, local map[string]any) []map[string]any {
	key := make(map[string]any, len(rel.LocalColumns))
	for i, col := range rel.LocalColumns {
		v := local[col]
		if v == nil {
			return nil
		}
		key[rel.RemoteColumns[i]] = v
	}
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	var out []map[string]any
	for _, row := range m.store.tables[m.table.Name].rows {
		if rowMatchesKey(m.table, row, key) {
			out = append(out, copyRows([]map[string]any{row})[0])
		}
	}
	return out
}

func keyOf(table *schema.Table, values map[string]any) map[string]any {
	key := make(map[string]any)
	for _, name := range schema.PrimaryKeyNames(table) {
		key[name] = values[name]
	}
	return key
}

func duplicateField(table *schema.Table) string {
	if names := schema.PrimaryKeyNames(table); len(names) > 0 {
		return names[0]
	}
	return ""
}
