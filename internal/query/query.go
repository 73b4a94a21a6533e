// Package query defines the immutable predicate, ordering and windowing values
// that the planner produces and that stores translate into their own query form.
package query

import "strings"

// FieldRef names a column reachable from a collection's base table.
// Relations is the chain of relationship names walked from the base table;
// it is empty for columns of the base table itself.
type FieldRef struct {
	Relations []string
	Table     string
	Column    string
}

// JoinPath returns the dotted relation chain, or "" for base-table columns.
func (f FieldRef) JoinPath() string {
	return strings.Join(f.Relations, ".")
}

// String returns the qualified field name, e.g. "posts.title" or "author.name".
func (f FieldRef) String() string {
	if len(f.Relations) > 0 {
		return f.JoinPath() + "." + f.Column
	}
	return f.Table + "." + f.Column
}

// Predicate is a node of a boolean filter tree.
type Predicate interface {
	predicate()
}

// Comparison is a binary comparison operator.
type Comparison string

const (
	Equal          Comparison = "="
	NotEqual       Comparison = "<>"
	Less           Comparison = "<"
	LessOrEqual    Comparison = "<="
	Greater        Comparison = ">"
	GreaterOrEqual Comparison = ">="
)

// Compare matches rows whose field compares to Value.
type Compare struct {
	Field FieldRef
	Op    Comparison
	Value any
}

// Anchor tells where a pattern must appear inside the field value.
type Anchor int

const (
	Contains Anchor = iota
	Prefix
	Suffix
)

// Match matches rows whose field contains Value at the given anchor.
// Value is literal text; stores escape their own wildcard characters.
type Match struct {
	Field  FieldRef
	Value  string
	Anchor Anchor
	Negate bool
}

// IsNull matches rows whose field is null, or not null when Negate is set.
type IsNull struct {
	Field  FieldRef
	Negate bool
}

// InSet matches rows whose field equals one of Values.
type InSet struct {
	Field  FieldRef
	Values []any
	Negate bool
}

// Conjunction joins the items of a Group.
type Conjunction string

const (
	And Conjunction = "AND"
	Or  Conjunction = "OR"
)

// Group combines its items with a single conjunction. An empty group matches everything.
type Group struct {
	Conjunction Conjunction
	Items       []Predicate
}

func (Compare) predicate() {}
func (Match) predicate()   {}
func (IsNull) predicate()  {}
func (InSet) predicate()   {}
func (Group) predicate()   {}

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// SortField orders results by a field.
type SortField struct {
	Field     FieldRef
	Direction Direction
}

// Window is a 0-based offset/limit slice of a result set.
type Window struct {
	Offset int
	Limit  int
}

// Fields returns every field referenced by p in depth-first order.
func Fields(p Predicate) []FieldRef {
	var out []FieldRef
	var walk func(Predicate)
	walk = func(p Predicate) {
		switch n := p.(type) {
		case Compare:
			out = append(out, n.Field)
		case Match:
			out = append(out, n.Field)
		case IsNull:
			out = append(out, n.Field)
		case InSet:
			out = append(out, n.Field)
		case Group:
			for _, item := range n.Items {
				walk(item)
			}
		}
	}
	if p != nil {
		walk(p)
	}
	return out
}
