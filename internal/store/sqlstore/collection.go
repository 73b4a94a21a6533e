package sqlstore

import (
	"context"
	"slices"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"go.opentelemetry.io/otel/attribute"

	"gridquery/internal/dbexec"
	"gridquery/internal/query"
	"gridquery/internal/sqlutil"
	"gridquery/internal/store"
)

type collection struct {
	model   *Model
	filters []query.Predicate
	sorts   []query.SortField
	window  *query.Window
	joins   []string
}

func (c *collection) clone() *collection {
	cp := *c
	cp.filters = slices.Clone(c.filters)
	cp.sorts = slices.Clone(c.sorts)
	cp.joins = slices.Clone(c.joins)
	return &cp
}

func (c *collection) Filter(p query.Predicate) store.Collection {
	cp := c.clone()
	cp.filters = append(cp.filters, p)
	return cp
}

func (c *collection) Sort(fields ...query.SortField) store.Collection {
	cp := c.clone()
	cp.sorts = append(cp.sorts, fields...)
	return cp
}

func (c *collection) Paginate(w query.Window) store.Collection {
	cp := c.clone()
	cp.window = &w
	return cp
}

func (c *collection) JoinRelation(path string) store.Collection {
	cp := c.clone()
	cp.joins = append(cp.joins, path)
	return cp
}

// joinPaths returns explicit joins plus every relation chain referenced by filters and sorts.
func (c *collection) joinPaths() []string {
	paths := slices.Clone(c.joins)
	add := func(f query.FieldRef) {
		if p := f.JoinPath(); p != "" {
			paths = append(paths, p)
		}
	}
	for _, p := range c.filters {
		for _, f := range query.Fields(p) {
			add(f)
		}
	}
	for _, s := range c.sorts {
		add(s.Field)
	}
	return paths
}

func (c *collection) from(builder sq.SelectBuilder) (sq.SelectBuilder, error) {
	base := c.model.table
	builder = builder.From(sqlutil.QuoteIdentifier(base.Name))
	joins, err := planJoins(c.model.schema, base, c.joinPaths())
	if err != nil {
		return builder, err
	}
	for _, j := range joins {
		builder = builder.LeftJoin(j.sql)
	}
	for _, p := range c.filters {
		cond, err := buildWhere(base.Name, p)
		if err != nil {
			return builder, err
		}
		if cond != nil {
			builder = builder.Where(cond)
		}
	}
	return builder.PlaceholderFormat(sq.Question), nil
}

// PlanSelect builds the row query: filters, sorts and window applied.
func (c *collection) PlanSelect() (SQLQuery, error) {
	builder, err := c.from(sq.Select(selectColumns(c.model.table)...))
	if err != nil {
		return SQLQuery{}, err
	}
	for _, s := range c.sorts {
		dir := "ASC"
		if s.Direction == query.Desc {
			dir = "DESC"
		}
		builder = builder.OrderBy(columnExpr(c.model.table.Name, s.Field) + " " + dir)
	}
	if c.window != nil {
		limit := max(c.window.Limit, 0)
		offset := max(c.window.Offset, 0)
		builder = builder.Limit(uint64(limit)).Offset(uint64(offset))
	}
	sqlText, args, err := builder.ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: sqlText, Args: args}, nil
}

// PlanCount builds the count query. Sorts and window are ignored.
func (c *collection) PlanCount() (SQLQuery, error) {
	builder, err := c.from(sq.Select("COUNT(*)"))
	if err != nil {
		return SQLQuery{}, err
	}
	sqlText, args, err := builder.ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: sqlText, Args: args}, nil
}

func (c *collection) Count(ctx context.Context) (count int64, err error) {
	ctx, span := startSpan(ctx, "sqlstore.count", attribute.String("db.sql.table", c.model.table.Name))
	defer func() {
		recordSpanError(span, err)
		span.End()
	}()

	planned, err := c.PlanCount()
	if err != nil {
		return 0, err
	}
	rows, err := c.model.executor(ctx).QueryContext(ctx, planned.SQL, planned.Args...)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return 0, err
		}
	}
	return count, rows.Err()
}

func (c *collection) Fetch(ctx context.Context) (records []store.Record, err error) {
	ctx, span := startSpan(ctx, "sqlstore.fetch", attribute.String("db.sql.table", c.model.table.Name))
	defer func() {
		recordSpanError(span, err)
		span.End()
	}()

	planned, err := c.PlanSelect()
	if err != nil {
		return nil, err
	}
	rows, err := c.model.executor(ctx).QueryContext(ctx, planned.SQL, planned.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values, err := scanRows(rows)
	if err != nil {
		return nil, err
	}
	records = make([]store.Record, len(values))
	for i, v := range values {
		records[i] = c.model.wrap(v)
	}
	span.SetAttributes(attribute.Int("db.rows", len(records)))
	return records, nil
}

// scanRows reads every row into a column-name keyed map. Text arrives as []byte
// from the driver and is converted to string.
func scanRows(rows dbexec.Rows) ([]map[string]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	for i, col := range columns {
		if idx := strings.LastIndex(col, "."); idx >= 0 {
			columns[i] = col[idx+1:]
		}
	}

	var out []map[string]any
	for rows.Next() {
		dest := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := dest[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = dest[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
