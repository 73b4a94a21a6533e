// Package sqlstore implements the store capabilities on a MySQL-compatible
// database through squirrel-built statements.
package sqlstore

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"gridquery/internal/dbexec"
	"gridquery/internal/schema"
	"gridquery/internal/store"
)

// Model implements store.Model for one table.
type Model struct {
	exec   dbexec.QueryExecutor
	schema *schema.Schema
	table  *schema.Table
}

// NewModel returns the model for tableName. Transact requires exec to implement dbexec.TxBeginner.
func NewModel(exec dbexec.QueryExecutor, s *schema.Schema, tableName string) (*Model, error) {
	table, ok := s.Table(tableName)
	if !ok {
		return nil, fmt.Errorf("unknown table %q", tableName)
	}
	return &Model{exec: exec, schema: s, table: table}, nil
}

func (m *Model) Schema() *schema.Schema {
	return m.schema
}

func (m *Model) Table() *schema.Table {
	return m.table
}

func (m *Model) Find() store.Collection {
	return &collection{model: m}
}

func (m *Model) FindByKey(ctx context.Context, key map[string]any) (rec store.Record, err error) {
	ctx, span := startSpan(ctx, "sqlstore.find_by_key", attribute.String("db.sql.table", m.table.Name))
	defer func() {
		recordSpanError(span, err)
		span.End()
	}()

	planned, err := PlanSelectByKey(m.table, key)
	if err != nil {
		return nil, err
	}
	rows, err := m.executor(ctx).QueryContext(ctx, planned.SQL, planned.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	values, err := scanRows(rows)
	if err != nil || len(values) == 0 {
		return nil, err
	}
	return m.wrap(values[0]), nil
}

func (m *Model) New() store.Record {
	return &record{Row: store.NewRow(m.table, nil, false), model: m}
}

func (m *Model) Transact(ctx context.Context, fn func(ctx context.Context) error) error {
	beginner, ok := m.exec.(dbexec.TxBeginner)
	if !ok {
		return fmt.Errorf("executor for %s cannot open transactions", m.table.Name)
	}
	return dbexec.RunInTx(ctx, beginner, fn)
}

func (m *Model) executor(ctx context.Context) dbexec.QueryExecutor {
	return dbexec.ExecutorFromContext(ctx, m.exec)
}

func (m *Model) sibling(tableName string) (*Model, error) {
	return NewModel(m.exec, m.schema, tableName)
}

func (m *Model) wrap(values map[string]any) *record {
	return &record{Row: store.NewRow(m.table, values, true), model: m}
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer("gridquery/sqlstore")
	ctx, span := tracer.Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
