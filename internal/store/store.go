// Package store defines the record and collection capabilities the grid engine
// runs against. Backends live in the sqlstore and memstore subpackages.
package store

import (
	"context"
	"errors"

	"gridquery/internal/query"
	"gridquery/internal/schema"
)

// ErrUnknownAttribute is returned when a record is asked to set a name it does not declare.
var ErrUnknownAttribute = errors.New("unknown attribute")

// ErrUnknownRelation is returned when a record is asked for a relation it does not declare.
var ErrUnknownRelation = errors.New("unknown relation")

// Record is a single persisted row.
type Record interface {
	// Get returns the value of a declared attribute.
	Get(attr string) (any, bool)
	// Set assigns a declared attribute. Unknown names return ErrUnknownAttribute.
	Set(attr string, value any) error
	// Save validates and persists the record. When attrs is non-empty only those
	// attributes are validated and written. A false result with a nil error means
	// validation failed and Errors describes why.
	Save(ctx context.Context, attrs ...string) (bool, error)
	// Delete removes the record. A false result with a nil error means the store
	// refused the delete and Errors describes why.
	Delete(ctx context.Context) (bool, error)
	Attributes() []string
	// PrimaryKey returns key values in primary key column order.
	PrimaryKey() []any
	Errors() []FieldError
	// Relation loads a named relation.
	Relation(ctx context.Context, name string) (Related, error)
	IsNew() bool
}

// Related is the result of following a relation from a record.
// For to-one relations One may be nil when nothing is linked.
type Related struct {
	ToMany bool
	One    Record
	Many   []Record
}

// Collection is an immutable query over one table. Every method except
// Count and Fetch returns a new collection.
type Collection interface {
	Filter(p query.Predicate) Collection
	Sort(fields ...query.SortField) Collection
	Paginate(w query.Window) Collection
	// JoinRelation makes a dotted relation path available to filters and sorts.
	JoinRelation(path string) Collection
	Count(ctx context.Context) (int64, error)
	Fetch(ctx context.Context) ([]Record, error)
}

// Model is the entry point for one table.
type Model interface {
	Schema() *schema.Schema
	Table() *schema.Table
	Find() Collection
	// FindByKey returns the record with the given primary key values, or nil when absent.
	FindByKey(ctx context.Context, key map[string]any) (Record, error)
	New() Record
	// Transact runs fn atomically. An error from fn undoes every write made through ctx.
	Transact(ctx context.Context, fn func(ctx context.Context) error) error
}

// AttributeMap returns a record's attributes as a map.
func AttributeMap(r Record) map[string]any {
	out := make(map[string]any, len(r.Attributes()))
	for _, name := range r.Attributes() {
		out[name], _ = r.Get(name)
	}
	return out
}
