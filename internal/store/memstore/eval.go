package memstore

import (
	"fmt"
	"strings"

	"gridquery/internal/query"
	"gridquery/internal/sqltype"
	"gridquery/internal/store"
)

// lookup reads a field from a base row, following to-one relations the way a
// LEFT JOIN would: a missing link yields null.
func (c *collection) lookup(row map[string]any, f query.FieldRef) (any, sqltype.Kind, error) {
	m := c.model
	current := row
	for _, name := range f.Relations {
		rel, ok := m.table.Relationship(name)
		if !ok {
			return nil, sqltype.KindString, fmt.Errorf("%w: %s.%s", store.ErrUnknownRelation, m.table.Name, name)
		}
		next, err := m.store.Model(rel.RemoteTable)
		if err != nil {
			return nil, sqltype.KindString, err
		}
		m = next
		if current == nil {
			continue
		}
		linked := m.related(rel, current)
		if len(linked) == 0 {
			current = nil
			continue
		}
		current = linked[0]
	}
	if _, ok := m.table.Column(f.Column); !ok {
		return nil, sqltype.KindString, fmt.Errorf("%w: %s.%s", store.ErrUnknownAttribute, m.table.Name, f.Column)
	}
	kind := m.kindOf(f.Column)
	if current == nil {
		return nil, kind, nil
	}
	return current[f.Column], kind, nil
}

// eval applies SQL three-valued logic collapsed to false: any comparison
// against null fails except IS NULL.
func (c *collection) eval(row map[string]any, p query.Predicate) (bool, error) {
	switch n := p.(type) {
	case query.Group:
		if len(n.Items) == 0 {
			return true, nil
		}
		for _, item := range n.Items {
			ok, err := c.eval(row, item)
			if err != nil {
				return false, err
			}
			if n.Conjunction == query.Or && ok {
				return true, nil
			}
			if n.Conjunction != query.Or && !ok {
				return false, nil
			}
		}
		return n.Conjunction != query.Or, nil

	case query.IsNull:
		v, _, err := c.lookup(row, n.Field)
		if err != nil {
			return false, err
		}
		return (v == nil) != n.Negate, nil

	case query.Compare:
		v, kind, err := c.lookup(row, n.Field)
		if err != nil || v == nil || n.Value == nil {
			return false, err
		}
		cmp := compareValues(v, n.Value, kind)
		switch n.Op {
		case query.Equal:
			return cmp == 0, nil
		case query.NotEqual:
			return cmp != 0, nil
		case query.Less:
			return cmp < 0, nil
		case query.LessOrEqual:
			return cmp <= 0, nil
		case query.Greater:
			return cmp > 0, nil
		case query.GreaterOrEqual:
			return cmp >= 0, nil
		}
		return false, fmt.Errorf("unsupported comparison %q", n.Op)

	case query.Match:
		v, _, err := c.lookup(row, n.Field)
		if err != nil || v == nil {
			return false, err
		}
		text := toText(v)
		var ok bool
		switch n.Anchor {
		case query.Prefix:
			ok = strings.HasPrefix(text, n.Value)
		case query.Suffix:
			ok = strings.HasSuffix(text, n.Value)
		default:
			ok = strings.Contains(text, n.Value)
		}
		return ok != n.Negate, nil

	case query.InSet:
		v, kind, err := c.lookup(row, n.Field)
		if err != nil || v == nil {
			return false, err
		}
		found := false
		for _, candidate := range n.Values {
			if candidate != nil && compareValues(v, candidate, kind) == 0 {
				found = true
				break
			}
		}
		return found != n.Negate, nil
	}
	return false, fmt.Errorf("unsupported predicate %T", p)
}
