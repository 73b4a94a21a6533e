package sqlstore

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"gridquery/internal/query"
	"gridquery/internal/schema"
	"gridquery/internal/store"
)

type record struct {
	*store.Row
	model *Model
}

func (r *record) Save(ctx context.Context, attrs ...string) (ok bool, err error) {
	table := r.model.table
	ctx, span := startSpan(ctx, "sqlstore.save",
		attribute.String("db.sql.table", table.Name),
		attribute.Bool("db.insert", r.IsNew()))
	defer func() {
		recordSpanError(span, err)
		span.End()
	}()

	r.SetErrors(nil)
	if errs := store.Validate(r.Row, attrs...); len(errs) > 0 {
		r.SetErrors(errs)
		return false, nil
	}

	pending := r.PendingAttributes(attrs...)
	current := r.Values()
	exec := r.model.executor(ctx)

	if r.IsNew() {
		values := make([]any, len(pending))
		for i, name := range pending {
			values[i] = current[name]
		}
		planned, err := PlanInsert(table, pending, values)
		if err != nil {
			return false, err
		}
		result, err := exec.ExecContext(ctx, planned.SQL, planned.Args...)
		if err != nil {
			return r.constraintFailure(err)
		}
		if col, ok := autoIncrementKey(table); ok && current[col] == nil {
			id, err := result.LastInsertId()
			if err != nil {
				return false, err
			}
			if err := r.Set(col, id); err != nil {
				return false, err
			}
		}
		r.MarkPersisted()
		return true, nil
	}

	if len(pending) == 0 {
		r.MarkPersisted()
		return true, nil
	}
	set := make(map[string]any, len(pending))
	for _, name := range pending {
		set[name] = current[name]
	}
	planned, err := PlanUpdate(table, set, r.OriginalKey())
	if err != nil {
		return false, err
	}
	if _, err := exec.ExecContext(ctx, planned.SQL, planned.Args...); err != nil {
		return r.constraintFailure(err)
	}
	r.MarkPersisted()
	return true, nil
}

func (r *record) Delete(ctx context.Context) (ok bool, err error) {
	ctx, span := startSpan(ctx, "sqlstore.delete", attribute.String("db.sql.table", r.model.table.Name))
	defer func() {
		recordSpanError(span, err)
		span.End()
	}()

	planned, err := PlanDelete(r.model.table, r.OriginalKey())
	if err != nil {
		return false, err
	}
	if _, err := r.model.executor(ctx).ExecContext(ctx, planned.SQL, planned.Args...); err != nil {
		return r.constraintFailure(err)
	}
	return true, nil
}

// constraintFailure turns constraint violations into validation errors and
// passes every other error through.
func (r *record) constraintFailure(err error) (bool, error) {
	fe, ok := constraintError(r.model.table, err)
	if !ok {
		return false, err
	}
	r.AddError(fe.Field, fe.Messages[0])
	return false, nil
}

func (r *record) Relation(ctx context.Context, name string) (store.Related, error) {
	rel, ok := r.model.table.Relationship(name)
	if !ok {
		return store.Related{}, fmt.Errorf("%w: %s.%s", store.ErrUnknownRelation, r.model.table.Name, name)
	}
	remote, err := r.model.sibling(rel.RemoteTable)
	if err != nil {
		return store.Related{}, err
	}

	values := r.Values()
	conds := make([]query.Predicate, len(rel.LocalColumns))
	for i, local := range rel.LocalColumns {
		v := values[local]
		if v == nil {
			return store.Related{ToMany: rel.IsToMany()}, nil
		}
		conds[i] = query.Compare{
			Field: query.FieldRef{Table: remote.table.Name, Column: rel.RemoteColumns[i]},
			Op:    query.Equal,
			Value: v,
		}
	}
	coll := remote.Find().Filter(query.Group{Conjunction: query.And, Items: conds})
	if !rel.IsToMany() {
		coll = coll.Paginate(query.Window{Limit: 1})
	}
	records, err := coll.Fetch(ctx)
	if err != nil {
		return store.Related{}, err
	}
	if rel.IsToMany() {
		return store.Related{ToMany: true, Many: records}, nil
	}
	if len(records) == 0 {
		return store.Related{}, nil
	}
	return store.Related{One: records[0]}, nil
}

func autoIncrementKey(table *schema.Table) (string, bool) {
	pks := schema.PrimaryKeyColumns(table)
	if len(pks) == 1 && pks[0].IsAutoIncrement {
		return pks[0].Name, true
	}
	return "", false
}
