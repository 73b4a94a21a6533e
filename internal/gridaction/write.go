package gridaction

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"gridquery/internal/gridrequest"
	"gridquery/internal/rowid"
	"gridquery/internal/schema"
	"gridquery/internal/sqltype"
	"gridquery/internal/store"
)

// WriteResult is the outcome of an edit, add or delete. A write that failed
// validation carries the field errors of the record that failed.
type WriteResult struct {
	Errors []store.FieldError
}

// OK reports whether the write went through.
func (r WriteResult) OK() bool {
	return len(r.Errors) == 0
}

// errValidation aborts a transaction after a record failed validation.
var errValidation = errors.New("validation failed")

// relationWrite groups the attributes written through one relation path.
type relationWrite struct {
	path  []string
	attrs map[string]any
	order []string
}

// Edit updates the record named by id. A missing record is a no-op. Direct
// attributes and attributes reached through to-one relations are saved in one
// transaction; a validation failure on any record rolls back every write.
func (a *Action) Edit(ctx context.Context, p gridrequest.Payload) (res WriteResult, err error) {
	ctx, span := a.startSpan(ctx, "gridaction.edit")
	defer func() {
		recordSpanError(span, err)
		span.End()
	}()

	if err := a.checkWritable(p); err != nil {
		return WriteResult{}, err
	}
	key, err := rowid.DecodeTyped(a.table, p.String(ParamID))
	if err != nil {
		return WriteResult{}, badRequest(err)
	}

	direct, relations, err := a.partitionEdit(p)
	if err != nil {
		return WriteResult{}, badRequest(err)
	}

	var failed []store.FieldError
	err = a.cfg.Model.Transact(ctx, func(ctx context.Context) error {
		rec, err := a.cfg.Model.FindByKey(ctx, key)
		if err != nil {
			return err
		}
		if rec == nil {
			return nil
		}

		names := make([]string, 0, len(direct))
		for _, name := range a.columns {
			value, ok := direct[name]
			if !ok {
				continue
			}
			if err := rec.Set(name, value); err != nil {
				return err
			}
			names = append(names, name)
		}
		if len(names) > 0 {
			ok, err := rec.Save(ctx, names...)
			if err != nil {
				return err
			}
			if !ok {
				failed = rec.Errors()
				return errValidation
			}
		}

		for _, rw := range relations {
			related, err := follow(ctx, rec, rw.path)
			if err != nil {
				return err
			}
			if related == nil {
				return badRequest(fmt.Errorf("related record %s does not exist", strings.Join(rw.path, ".")))
			}
			for _, name := range rw.order {
				if err := related.Set(name, rw.attrs[name]); err != nil {
					return err
				}
			}
			ok, err := related.Save(ctx, rw.order...)
			if err != nil {
				return err
			}
			if !ok {
				failed = related.Errors()
				return errValidation
			}
		}
		return nil
	})
	if errors.Is(err, errValidation) {
		a.cfg.Metrics.RecordValidationFailure(ctx, a.cfg.Name, ActionEdit)
		return WriteResult{Errors: failed}, nil
	}
	if err != nil {
		return WriteResult{}, fmt.Errorf("edit %s: %w", a.cfg.Name, err)
	}
	return WriteResult{}, nil
}

// partitionEdit splits the sent columns into direct attributes and relation
// writes grouped by relation path. Primary key columns are never edited.
func (a *Action) partitionEdit(p gridrequest.Payload) (map[string]any, []*relationWrite, error) {
	direct := make(map[string]any)
	var relations []*relationWrite
	byPath := make(map[string]*relationWrite)

	for _, col := range a.columnSet(p) {
		if col == ParamID || slices.Contains(a.keys, col) || !p.Has(col) {
			continue
		}
		path, attr, isRelation := cutLast(col)
		if !isRelation {
			value, err := writeValue(a.table, col, p[col])
			if err != nil {
				return nil, nil, err
			}
			direct[col] = value
			continue
		}

		target, err := a.toOneTarget(path)
		if err != nil {
			return nil, nil, err
		}
		value, err := writeValue(target, attr, p[col])
		if err != nil {
			return nil, nil, err
		}
		rw, ok := byPath[path]
		if !ok {
			rw = &relationWrite{path: strings.Split(path, "."), attrs: make(map[string]any)}
			byPath[path] = rw
			relations = append(relations, rw)
		}
		rw.attrs[attr] = value
		rw.order = append(rw.order, attr)
	}
	return direct, relations, nil
}

// toOneTarget walks a relation path and returns the table it ends on.
// Paths through to-many relations are rejected.
func (a *Action) toOneTarget(path string) (*schema.Table, error) {
	current := a.table
	for _, name := range strings.Split(path, ".") {
		rel, ok := current.Relationship(name)
		if !ok {
			return nil, fmt.Errorf("relation %q does not exist on %s", name, current.Name)
		}
		if rel.IsToMany() {
			return nil, fmt.Errorf("cannot write through to-many relation %q", path)
		}
		next, ok := a.cfg.Model.Schema().Table(rel.RemoteTable)
		if !ok {
			return nil, fmt.Errorf("relation %q targets unknown table %s", name, rel.RemoteTable)
		}
		current = next
	}
	return current, nil
}

func follow(ctx context.Context, rec store.Record, path []string) (store.Record, error) {
	current := rec
	for _, name := range path {
		rel, err := current.Relation(ctx, name)
		if err != nil {
			return nil, err
		}
		if rel.One == nil {
			return nil, nil
		}
		current = rel.One
	}
	return current, nil
}

// Add creates a record from the sent columns. An id of _empty means no preset
// key; any other id sets the primary key columns. Empty strings leave the
// column unset so store defaults apply.
func (a *Action) Add(ctx context.Context, p gridrequest.Payload) (res WriteResult, err error) {
	ctx, span := a.startSpan(ctx, "gridaction.add")
	defer func() {
		recordSpanError(span, err)
		span.End()
	}()

	if err := a.checkWritable(p); err != nil {
		return WriteResult{}, err
	}

	rec := a.cfg.Model.New()
	if id := p.String(ParamID); id != EmptyID && id != "" {
		key, err := rowid.DecodeTyped(a.table, id)
		if err != nil {
			return WriteResult{}, badRequest(err)
		}
		for _, name := range a.keys {
			if err := rec.Set(name, key[name]); err != nil {
				return WriteResult{}, err
			}
		}
	}

	for _, col := range a.columnSet(p) {
		if col == ParamID || strings.Contains(col, ".") || !p.Has(col) {
			continue
		}
		if s, isText := p[col].(string); isText && s == "" {
			continue
		}
		value, err := writeValue(a.table, col, p[col])
		if err != nil {
			return WriteResult{}, badRequest(err)
		}
		if err := rec.Set(col, value); err != nil {
			return WriteResult{}, err
		}
	}

	ok, err := rec.Save(ctx)
	if err != nil {
		return WriteResult{}, fmt.Errorf("add %s: %w", a.cfg.Name, err)
	}
	if !ok {
		a.cfg.Metrics.RecordValidationFailure(ctx, a.cfg.Name, ActionAdd)
		return WriteResult{Errors: rec.Errors()}, nil
	}
	return WriteResult{}, nil
}

// Delete removes every record named in the comma-separated id list. All ids
// are decoded before anything is deleted. Missing records are skipped; the
// first refused delete stops processing and reports that record's errors.
func (a *Action) Delete(ctx context.Context, p gridrequest.Payload) (res WriteResult, err error) {
	ctx, span := a.startSpan(ctx, "gridaction.delete")
	defer func() {
		recordSpanError(span, err)
		span.End()
	}()

	if err := a.checkWritable(p); err != nil {
		return WriteResult{}, err
	}
	ids := rowid.SplitList(p.String(ParamID))
	if len(ids) == 0 {
		return WriteResult{}, badRequest(fmt.Errorf("%s is empty", ParamID))
	}
	keys := make([]map[string]any, len(ids))
	for i, id := range ids {
		key, err := rowid.DecodeTyped(a.table, id)
		if err != nil {
			return WriteResult{}, badRequest(err)
		}
		keys[i] = key
	}

	for _, key := range keys {
		rec, err := a.cfg.Model.FindByKey(ctx, key)
		if err != nil {
			return WriteResult{}, fmt.Errorf("delete %s: %w", a.cfg.Name, err)
		}
		if rec == nil {
			continue
		}
		ok, err := rec.Delete(ctx)
		if err != nil {
			return WriteResult{}, fmt.Errorf("delete %s: %w", a.cfg.Name, err)
		}
		if !ok {
			a.cfg.Metrics.RecordValidationFailure(ctx, a.cfg.Name, ActionDelete)
			return WriteResult{Errors: rec.Errors()}, nil
		}
	}
	return WriteResult{}, nil
}

func (a *Action) checkWritable(p gridrequest.Payload) error {
	if a.cfg.ReadOnly {
		return badRequest(fmt.Errorf("grid %s is read-only", a.cfg.Name))
	}
	if !p.Has(ParamID) || p[ParamID] == nil {
		return badRequest(fmt.Errorf("missing %s", ParamID))
	}
	if _, isText := p[ParamID].(string); !isText {
		return badRequest(fmt.Errorf("%s must be a single value", ParamID))
	}
	return nil
}

// writeValue checks a sent value against the target column. Empty text for
// nullable non-text columns is stored as null.
func writeValue(table *schema.Table, name string, v any) (any, error) {
	col, ok := table.Column(name)
	if !ok {
		return nil, fmt.Errorf("column %q not found on %s", name, table.Name)
	}
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		if val == "" && col.IsNullable && !isTextKind(col.Kind()) {
			return nil, nil
		}
		return val, nil
	default:
		return nil, fmt.Errorf("%s must be a single value", name)
	}
}

func isTextKind(k sqltype.Kind) bool {
	return k == sqltype.KindString || k == sqltype.KindEnum
}

func cutLast(path string) (prefix, last string, ok bool) {
	i := strings.LastIndex(path, ".")
	if i < 0 {
		return "", path, false
	}
	return path[:i], path[i+1:], true
}
