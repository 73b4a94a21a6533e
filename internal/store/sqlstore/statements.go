package sqlstore

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"gridquery/internal/query"
	"gridquery/internal/schema"
	"gridquery/internal/sqlutil"
)

// SQLQuery represents a planned SQL statement with bound args.
type SQLQuery struct {
	SQL  string
	Args []any
}

// aliasFor returns the join alias of a relation chain. The base table keeps its own name.
func aliasFor(base string, relations []string) string {
	if len(relations) == 0 {
		return base
	}
	return strings.Join(relations, "__")
}

func columnExpr(base string, f query.FieldRef) string {
	return sqlutil.QualifiedColumn(aliasFor(base, f.Relations), f.Column)
}

// joinClause is one LEFT JOIN reaching the end of a relation chain.
type joinClause struct {
	alias string
	sql   string
}

// planJoins resolves dotted relation paths into LEFT JOIN clauses. Every prefix
// of a path is joined once, in first-seen order.
func planJoins(s *schema.Schema, base *schema.Table, paths []string) ([]joinClause, error) {
	seen := make(map[string]struct{})
	var joins []joinClause
	for _, path := range paths {
		if path == "" {
			continue
		}
		relations := strings.Split(path, ".")
		table := base
		for i, name := range relations {
			rel, ok := table.Relationship(name)
			if !ok {
				return nil, fmt.Errorf("relation %s.%s not found", table.Name, name)
			}
			if rel.IsToMany() {
				return nil, fmt.Errorf("relation %s.%s is to-many and cannot be joined", table.Name, name)
			}
			remote, ok := s.Table(rel.RemoteTable)
			if !ok {
				return nil, fmt.Errorf("table %s not found", rel.RemoteTable)
			}
			parent := aliasFor(base.Name, relations[:i])
			alias := aliasFor(base.Name, relations[:i+1])
			table = remote
			if _, dup := seen[alias]; dup {
				continue
			}
			seen[alias] = struct{}{}

			conds := make([]string, len(rel.LocalColumns))
			for j, local := range rel.LocalColumns {
				conds[j] = fmt.Sprintf("%s = %s",
					sqlutil.QualifiedColumn(alias, rel.RemoteColumns[j]),
					sqlutil.QualifiedColumn(parent, local))
			}
			joins = append(joins, joinClause{
				alias: alias,
				sql: fmt.Sprintf("%s AS %s ON %s",
					sqlutil.QuoteIdentifier(remote.Name),
					sqlutil.QuoteIdentifier(alias),
					strings.Join(conds, " AND ")),
			})
		}
	}
	return joins, nil
}

// buildWhere translates a predicate tree into squirrel conditions.
// Empty groups yield nil and are skipped by callers.
func buildWhere(base string, p query.Predicate) (sq.Sqlizer, error) {
	switch n := p.(type) {
	case query.Compare:
		col := columnExpr(base, n.Field)
		switch n.Op {
		case query.Equal:
			return sq.Eq{col: n.Value}, nil
		case query.NotEqual:
			return sq.NotEq{col: n.Value}, nil
		case query.Less:
			return sq.Lt{col: n.Value}, nil
		case query.LessOrEqual:
			return sq.LtOrEq{col: n.Value}, nil
		case query.Greater:
			return sq.Gt{col: n.Value}, nil
		case query.GreaterOrEqual:
			return sq.GtOrEq{col: n.Value}, nil
		}
		return nil, fmt.Errorf("unsupported comparison %q", n.Op)

	case query.Match:
		col := columnExpr(base, n.Field)
		pattern := likePattern(n.Value, n.Anchor)
		if n.Negate {
			return sq.NotLike{col: pattern}, nil
		}
		return sq.Like{col: pattern}, nil

	case query.IsNull:
		col := columnExpr(base, n.Field)
		if n.Negate {
			return sq.NotEq{col: nil}, nil
		}
		return sq.Eq{col: nil}, nil

	case query.InSet:
		col := columnExpr(base, n.Field)
		values := append([]any(nil), n.Values...)
		if n.Negate {
			return sq.NotEq{col: values}, nil
		}
		return sq.Eq{col: values}, nil

	case query.Group:
		var parts []sq.Sqlizer
		for _, item := range n.Items {
			cond, err := buildWhere(base, item)
			if err != nil {
				return nil, err
			}
			if cond != nil {
				parts = append(parts, cond)
			}
		}
		if len(parts) == 0 {
			return nil, nil
		}
		if n.Conjunction == query.Or {
			return sq.Or(parts), nil
		}
		return sq.And(parts), nil
	}
	return nil, fmt.Errorf("unsupported predicate %T", p)
}

func likePattern(value string, anchor query.Anchor) string {
	escaped := sqlutil.EscapeLike(value)
	switch anchor {
	case query.Prefix:
		return escaped + "%"
	case query.Suffix:
		return "%" + escaped
	default:
		return "%" + escaped + "%"
	}
}

// PlanInsert builds SQL for inserting a single row with the provided columns.
func PlanInsert(table *schema.Table, columns []string, values []any) (SQLQuery, error) {
	if len(columns) == 0 {
		query := fmt.Sprintf("INSERT INTO %s () VALUES ()", sqlutil.QuoteIdentifier(table.Name))
		return SQLQuery{SQL: query}, nil
	}

	quotedCols := make([]string, len(columns))
	for i, col := range columns {
		quotedCols[i] = sqlutil.QuoteIdentifier(col)
	}

	query, args, err := sq.Insert(sqlutil.QuoteIdentifier(table.Name)).
		Columns(quotedCols...).
		Values(values...).
		PlaceholderFormat(sq.Question).
		ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: query, Args: args}, nil
}

// PlanUpdate builds SQL for updating a single row by primary key.
func PlanUpdate(table *schema.Table, set map[string]any, pkValues map[string]any) (SQLQuery, error) {
	if len(set) == 0 {
		return SQLQuery{}, fmt.Errorf("update set cannot be empty")
	}
	if err := validatePKValues(table, pkValues); err != nil {
		return SQLQuery{}, err
	}

	setMap := make(map[string]any, len(set))
	for col, val := range set {
		setMap[sqlutil.QuoteIdentifier(col)] = val
	}
	query, args, err := sq.Update(sqlutil.QuoteIdentifier(table.Name)).
		SetMap(setMap).
		Where(keyCondition(pkValues)).
		PlaceholderFormat(sq.Question).
		ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: query, Args: args}, nil
}

// PlanDelete builds SQL for deleting a single row by primary key.
func PlanDelete(table *schema.Table, pkValues map[string]any) (SQLQuery, error) {
	if err := validatePKValues(table, pkValues); err != nil {
		return SQLQuery{}, err
	}
	query, args, err := sq.Delete(sqlutil.QuoteIdentifier(table.Name)).
		Where(keyCondition(pkValues)).
		PlaceholderFormat(sq.Question).
		ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: query, Args: args}, nil
}

// PlanSelectByKey builds SQL for reading one row by primary key.
func PlanSelectByKey(table *schema.Table, pkValues map[string]any) (SQLQuery, error) {
	if err := validatePKValues(table, pkValues); err != nil {
		return SQLQuery{}, err
	}
	query, args, err := sq.Select(selectColumns(table)...).
		From(sqlutil.QuoteIdentifier(table.Name)).
		Where(keyCondition(pkValues)).
		PlaceholderFormat(sq.Question).
		ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: query, Args: args}, nil
}

func keyCondition(pkValues map[string]any) sq.Eq {
	where := sq.Eq{}
	for col, val := range pkValues {
		where[sqlutil.QuoteIdentifier(col)] = val
	}
	return where
}

func selectColumns(table *schema.Table) []string {
	cols := make([]string, len(table.Columns))
	for i, col := range table.Columns {
		cols[i] = sqlutil.QualifiedColumn(table.Name, col.Name)
	}
	return cols
}

func validatePKValues(table *schema.Table, pkValues map[string]any) error {
	pkCols := schema.PrimaryKeyColumns(table)
	if len(pkCols) == 0 {
		return fmt.Errorf("table %s has no primary key", table.Name)
	}
	if len(pkValues) != len(pkCols) {
		return fmt.Errorf("pkValues count (%d) does not match primary key column count (%d)", len(pkValues), len(pkCols))
	}
	for _, col := range pkCols {
		if _, ok := pkValues[col.Name]; !ok {
			return fmt.Errorf("missing primary key column %q in pkValues", col.Name)
		}
	}
	return nil
}
