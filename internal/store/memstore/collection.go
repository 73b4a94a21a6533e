package memstore

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"gridquery/internal/query"
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

func (c *collection) Count(ctx context.Context) (int64, error) {
	rows, err := c.matches(ctx)
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

func (c *collection) Fetch(ctx context.Context) ([]store.Record, error) {
	rows, err := c.matches(ctx)
	if err != nil {
		return nil, err
	}
	if len(c.sorts) > 0 {
		var sortErr error
		sort.SliceStable(rows, func(i, j int) bool {
			for _, sf := range c.sorts {
				a, kindA, err := c.lookup(rows[i], sf.Field)
				if err != nil {
					sortErr = err
					return false
				}
				b, _, err := c.lookup(rows[j], sf.Field)
				if err != nil {
					sortErr = err
					return false
				}
				cmp := compareNullable(a, b, kindA)
				if sf.Direction == query.Desc {
					cmp = -cmp
				}
				if cmp != 0 {
					return cmp < 0
				}
			}
			return false
		})
		if sortErr != nil {
			return nil, sortErr
		}
	}
	if c.window != nil {
		rows = applyWindow(rows, *c.window)
	}
	out := make([]store.Record, len(rows))
	for i, row := range rows {
		out[i] = c.model.wrap(row)
	}
	return out, nil
}

func applyWindow(rows []map[string]any, w query.Window) []map[string]any {
	offset := max(w.Offset, 0)
	if offset >= len(rows) || w.Limit <= 0 {
		return nil
	}
	end := min(offset+w.Limit, len(rows))
	return rows[offset:end]
}

func (c *collection) matches(ctx context.Context) ([]map[string]any, error) {
	for _, path := range c.joins {
		if _, err := c.walk(strings.Split(path, ".")); err != nil {
			return nil, err
		}
	}
	c.model.store.mu.RLock()
	rows := copyRows(c.model.store.tables[c.model.table.Name].rows)
	c.model.store.mu.RUnlock()

	out := rows[:0]
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ok := true
		for _, p := range c.filters {
			matched, err := c.eval(row, p)
			if err != nil {
				return nil, err
			}
			if !matched {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, row)
		}
	}
	return out, nil
}

// walk checks that a relation chain exists and is to-one at every step.
func (c *collection) walk(relations []string) (*Model, error) {
	m := c.model
	for _, name := range relations {
		rel, ok := m.table.Relationship(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", store.ErrUnknownRelation, m.table.Name, name)
		}
		if rel.IsToMany() {
			return nil, fmt.Errorf("relation %s.%s is to-many and cannot be joined", m.table.Name, name)
		}
		next, err := m.store.Model(rel.RemoteTable)
		if err != nil {
			return nil, err
		}
		m = next
	}
	return m, nil
}
