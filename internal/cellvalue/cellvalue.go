// Package cellvalue reads dotted attribute paths off records for grid output.
package cellvalue

import (
	"context"
	"fmt"
	"strings"

	"gridquery/internal/rowid"
	"gridquery/internal/store"
)

// DefaultSeparator joins scalar values collected across a to-many relation.
const DefaultSeparator = "\n"

// Read resolves path against source, a store.Record or a []store.Record.
//
// Every segment but the last names a relation; the last names an attribute or
// a relation. Reading through a list collects member values: records and
// record lists merge into one []store.Record, scalars are joined with sep and
// null values are dropped. A null at any step yields nil.
func Read(ctx context.Context, source any, path, sep string) (any, error) {
	if source == nil || path == "" {
		return nil, nil
	}
	name := path
	if i := strings.LastIndex(path, "."); i >= 0 {
		parent, err := Read(ctx, source, path[:i], sep)
		if err != nil {
			return nil, err
		}
		source, name = parent, path[i+1:]
	}

	switch s := source.(type) {
	case nil:
		return nil, nil
	case store.Record:
		return attribute(ctx, s, name)
	case []store.Record:
		return collect(ctx, s, name, sep)
	default:
		return nil, fmt.Errorf("cannot read %q from a %T value", name, source)
	}
}

func attribute(ctx context.Context, r store.Record, name string) (any, error) {
	if v, ok := r.Get(name); ok {
		if b, isBytes := v.([]byte); isBytes {
			return string(b), nil
		}
		return v, nil
	}
	rel, err := r.Relation(ctx, name)
	if err != nil {
		return nil, err
	}
	if rel.ToMany {
		return rel.Many, nil
	}
	if rel.One == nil {
		return nil, nil
	}
	return rel.One, nil
}

func collect(ctx context.Context, members []store.Record, name, sep string) (any, error) {
	var records []store.Record
	var text strings.Builder
	scalars := 0
	for _, member := range members {
		v, err := attribute(ctx, member, name)
		if err != nil {
			return nil, err
		}
		switch val := v.(type) {
		case nil:
		case store.Record:
			records = append(records, val)
		case []store.Record:
			records = append(records, val...)
		default:
			text.WriteString(rowid.Format(val))
			text.WriteString(sep)
			scalars++
		}
	}
	if scalars > 0 {
		out := text.String()
		if sep != "" {
			for strings.HasSuffix(out, sep) {
				out = strings.TrimSuffix(out, sep)
			}
		}
		return out, nil
	}
	if len(records) > 0 {
		return records, nil
	}
	return nil, nil
}
