// Package memstore is an in-memory implementation of the store capabilities.
// It backs static lookup grids and serves as the fixture store in tests.
// String comparisons and pattern matches are case-sensitive.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"gridquery/internal/schema"
	"gridquery/internal/sqltype"
	"gridquery/internal/store"
)

// Validator adds record-level checks on top of column metadata validation.
type Validator func(r store.Record) store.FieldErrors

type tableData struct {
	rows   []map[string]any
	nextID int64
}

// Store holds rows for every table of a schema.
type Store struct {
	mu         sync.RWMutex
	txMu       sync.Mutex
	schema     *schema.Schema
	tables     map[string]*tableData
	validators map[string]Validator
}

// New creates an empty store for s.
func New(s *schema.Schema) *Store {
	st := &Store{
		schema:     s,
		tables:     make(map[string]*tableData, len(s.Tables)),
		validators: make(map[string]Validator),
	}
	for _, t := range s.Tables {
		st.tables[t.Name] = &tableData{nextID: 1}
	}
	return st
}

// Insert seeds rows without validation. Missing auto-increment keys are assigned.
func (s *Store) Insert(tableName string, rows ...map[string]any) error {
	table, ok := s.schema.Table(tableName)
	if !ok {
		return fmt.Errorf("unknown table %q", tableName)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data := s.tables[tableName]
	for _, row := range rows {
		values := make(map[string]any, len(row))
		for k, v := range row {
			values[k] = v
		}
		assignAutoIncrement(table, data, values)
		data.rows = append(data.rows, values)
	}
	return nil
}

// SetValidator registers an extra validator for a table.
func (s *Store) SetValidator(tableName string, v Validator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validators[tableName] = v
}

// Rows returns a copy of the rows currently stored for a table.
func (s *Store) Rows(tableName string) []map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.tables[tableName]
	if !ok {
		return nil
	}
	return copyRows(data.rows)
}

// Model returns the model for a table.
func (s *Store) Model(tableName string) (*Model, error) {
	table, ok := s.schema.Table(tableName)
	if !ok {
		return nil, fmt.Errorf("unknown table %q", tableName)
	}
	return &Model{store: s, table: table}, nil
}

func (s *Store) validator(tableName string) Validator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.validators[tableName]
}

func (s *Store) snapshot() map[string]tableData {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := make(map[string]tableData, len(s.tables))
	for name, data := range s.tables {
		snap[name] = tableData{rows: copyRows(data.rows), nextID: data.nextID}
	}
	return snap
}

func (s *Store) restore(snap map[string]tableData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, data := range snap {
		s.tables[name] = &tableData{rows: data.rows, nextID: data.nextID}
	}
}

// findIndex returns the index of the row matching key, or -1. Callers hold mu.
func (s *Store) findIndex(table *schema.Table, key map[string]any) int {
	data := s.tables[table.Name]
	for i, row := range data.rows {
		if rowMatchesKey(table, row, key) {
			return i
		}
	}
	return -1
}

func rowMatchesKey(table *schema.Table, row map[string]any, key map[string]any) bool {
	if len(key) == 0 {
		return false
	}
	for name, want := range key {
		col, ok := table.Column(name)
		if !ok || !valuesEqual(row[name], want, col.Kind()) {
			return false
		}
	}
	return true
}

func assignAutoIncrement(table *schema.Table, data *tableData, values map[string]any) {
	pks := schema.PrimaryKeyColumns(table)
	if len(pks) != 1 || !pks[0].IsAutoIncrement {
		return
	}
	name := pks[0].Name
	if v, ok := values[name]; ok && v != nil && v != "" {
		if d, err := toDecimal(v); err == nil && d.IntPart() >= data.nextID {
			data.nextID = d.IntPart() + 1
		}
		return
	}
	values[name] = data.nextID
	data.nextID++
}

func copyRows(rows []map[string]any) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		cp := make(map[string]any, len(row))
		for k, v := range row {
			cp[k] = v
		}
		out[i] = cp
	}
	return out
}

// Model implements store.Model for one in-memory table.
type Model struct {
	store *Store
	table *schema.Table
}

func (m *Model) Schema() *schema.Schema {
	return m.store.schema
}

func (m *Model) Table() *schema.Table {
	return m.table
}

func (m *Model) Find() store.Collection {
	return &collection{model: m}
}

func (m *Model) FindByKey(_ context.Context, key map[string]any) (store.Record, error) {
	for _, name := range schema.PrimaryKeyNames(m.table) {
		if _, ok := key[name]; !ok {
			return nil, fmt.Errorf("missing primary key column %s", name)
		}
	}
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	idx := m.store.findIndex(m.table, key)
	if idx < 0 {
		return nil, nil
	}
	return m.wrap(m.store.tables[m.table.Name].rows[idx]), nil
}

func (m *Model) New() store.Record {
	return &record{Row: store.NewRow(m.table, nil, false), model: m}
}

type txKey struct{}

// Transact serializes transactions and restores a snapshot of every table when fn fails.
// Writes made outside the transaction while it runs are discarded by a restore.
func (m *Model) Transact(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	m.store.txMu.Lock()
	defer m.store.txMu.Unlock()

	snap := m.store.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		m.store.restore(snap)
		return err
	}
	return nil
}

func (m *Model) wrap(row map[string]any) *record {
	return &record{Row: store.NewRow(m.table, row, true), model: m}
}

func (m *Model) kindOf(column string) sqltype.Kind {
	if col, ok := m.table.Column(column); ok {
		return col.Kind()
	}
	return sqltype.KindString
}
