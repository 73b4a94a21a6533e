package planner

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gridquery/internal/query"
)

// Operator is a jqGrid search operator.
type Operator string

const (
	OpEqual          Operator = "eq"
	OpNotEqual       Operator = "ne"
	OpBeginsWith     Operator = "bw"
	OpNotBeginsWith  Operator = "bn"
	OpEndsWith       Operator = "ew"
	OpNotEndsWith    Operator = "en"
	OpContains       Operator = "cn"
	OpNotContains    Operator = "nc"
	OpIsNull         Operator = "nu"
	OpIsNotNull      Operator = "nn"
	OpIn             Operator = "in"
	OpNotIn          Operator = "ni"
	OpLess           Operator = "lt"
	OpLessOrEqual    Operator = "le"
	OpGreater        Operator = "gt"
	OpGreaterOrEqual Operator = "ge"
)

// Valid reports whether op is one of the sixteen supported operators.
func (op Operator) Valid() bool {
	switch op {
	case OpEqual, OpNotEqual, OpBeginsWith, OpNotBeginsWith, OpEndsWith, OpNotEndsWith,
		OpContains, OpNotContains, OpIsNull, OpIsNotNull, OpIn, OpNotIn,
		OpLess, OpLessOrEqual, OpGreater, OpGreaterOrEqual:
		return true
	default:
		return false
	}
}

// NullToken is the wire spelling of a null value.
const NullToken = "null"

// RuleData is the operand of a rule. Null is set for JSON null and for the null token.
type RuleData struct {
	Value string
	Null  bool
}

// Text returns a non-null operand.
func Text(value string) RuleData {
	return RuleData{Value: value}
}

// UnmarshalJSON accepts strings, numbers, booleans and null.
func (d *RuleData) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*d = RuleData{Null: true}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == NullToken {
			*d = RuleData{Null: true}
			return nil
		}
		*d = RuleData{Value: s}
		return nil
	}
	var scalar any
	if err := json.Unmarshal(data, &scalar); err != nil {
		return err
	}
	switch scalar.(type) {
	case float64, bool:
		*d = RuleData{Value: string(data)}
		return nil
	default:
		return fmt.Errorf("rule data must be a scalar, got %s", data)
	}
}

// Rule is a single search condition.
type Rule struct {
	Field string   `json:"field"`
	Op    Operator `json:"op"`
	Data  RuleData `json:"data"`
}

// Group is a recursive AND/OR filter group as sent in the filters parameter.
type Group struct {
	GroupOp string  `json:"groupOp"`
	Rules   []Rule  `json:"rules"`
	Groups  []Group `json:"groups"`
}

// ParseGroup decodes a JSON filter group.
func ParseGroup(raw string) (Group, error) {
	var g Group
	if err := json.Unmarshal([]byte(raw), &g); err != nil {
		return Group{}, fmt.Errorf("%w: %v", ErrMalformedFilter, err)
	}
	return g, nil
}

// NestedGroupMode controls how child groups combine with their parent.
type NestedGroupMode int

const (
	// FlattenGroups lifts every nested group to the root list. Each lifted
	// group keeps its own operator over its own rules; the lifted groups are
	// joined by the root operator.
	FlattenGroups NestedGroupMode = iota
	// PreserveGroups keeps each child group as a sub-expression with its own operator.
	PreserveGroups
)

// ParseNestedGroupMode maps a config value to a mode. Empty selects FlattenGroups.
func ParseNestedGroupMode(value string) (NestedGroupMode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "flatten":
		return FlattenGroups, nil
	case "preserve":
		return PreserveGroups, nil
	default:
		return FlattenGroups, fmt.Errorf("unknown nested group mode %q", value)
	}
}

// CustomFilter replaces the default predicate for one operator on one field.
type CustomFilter func(rule Rule, field ResolvedField) (query.Predicate, error)

// CustomFilterKey builds the lookup key for a custom filter.
func CustomFilterKey(op Operator, field string) string {
	return string(op) + ":" + field
}

// FilterCompiler turns filter groups into predicate trees.
type FilterCompiler struct {
	Resolver *PathResolver
	Nested   NestedGroupMode
	// Custom is keyed by CustomFilterKey.
	Custom map[string]CustomFilter
}

// Compile validates and compiles g. The result is always a query.Group;
// its items may be empty when g has no rules.
func (c *FilterCompiler) Compile(g Group) (query.Group, error) {
	items, conj, err := c.compileGroup(g)
	if err != nil {
		return query.Group{}, err
	}
	return query.Group{Conjunction: conj, Items: items}, nil
}

func (c *FilterCompiler) compileGroup(g Group) ([]query.Predicate, query.Conjunction, error) {
	conj, err := parseConjunction(g.GroupOp)
	if err != nil {
		return nil, "", err
	}

	var items []query.Predicate
	for _, child := range g.Groups {
		if c.Nested == FlattenGroups {
			if items, err = c.flattenInto(items, child); err != nil {
				return nil, "", err
			}
			continue
		}
		childItems, childConj, err := c.compileGroup(child)
		if err != nil {
			return nil, "", err
		}
		if len(childItems) > 0 {
			items = append(items, query.Group{Conjunction: childConj, Items: childItems})
		}
	}

	rules, err := c.compileRules(g.Rules)
	if err != nil {
		return nil, "", err
	}
	return append(items, rules...), conj, nil
}

// flattenInto appends g's descendants, then g's own rules as one group under
// g's operator. Groups never nest in the output.
func (c *FilterCompiler) flattenInto(items []query.Predicate, g Group) ([]query.Predicate, error) {
	conj, err := parseConjunction(g.GroupOp)
	if err != nil {
		return nil, err
	}
	for _, child := range g.Groups {
		if items, err = c.flattenInto(items, child); err != nil {
			return nil, err
		}
	}
	rules, err := c.compileRules(g.Rules)
	if err != nil {
		return nil, err
	}
	if len(rules) > 0 {
		items = append(items, query.Group{Conjunction: conj, Items: rules})
	}
	return items, nil
}

func (c *FilterCompiler) compileRules(rules []Rule) ([]query.Predicate, error) {
	out := make([]query.Predicate, 0, len(rules))
	for _, rule := range rules {
		p, err := c.compileRule(rule)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func parseConjunction(groupOp string) (query.Conjunction, error) {
	switch groupOp {
	case "AND":
		return query.And, nil
	case "OR":
		return query.Or, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidGroupOp, groupOp)
	}
}

func (c *FilterCompiler) compileRule(rule Rule) (query.Predicate, error) {
	op := rule.Op
	if !op.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperator, op)
	}
	if rule.Data.Null {
		switch op {
		case OpEqual:
			op = OpIsNull
		case OpNotEqual:
			op = OpIsNotNull
		}
	}

	resolved, err := c.Resolver.Resolve(rule.Field)
	if err != nil {
		return nil, err
	}
	if custom, ok := c.Custom[CustomFilterKey(op, rule.Field)]; ok {
		return custom(Rule{Field: rule.Field, Op: op, Data: rule.Data}, resolved)
	}

	field := resolved.Ref
	value := rule.Data.Value
	switch op {
	case OpEqual:
		return query.Compare{Field: field, Op: query.Equal, Value: value}, nil
	case OpNotEqual:
		return query.Compare{Field: field, Op: query.NotEqual, Value: value}, nil
	case OpLess:
		return query.Compare{Field: field, Op: query.Less, Value: value}, nil
	case OpLessOrEqual:
		return query.Compare{Field: field, Op: query.LessOrEqual, Value: value}, nil
	case OpGreater:
		return query.Compare{Field: field, Op: query.Greater, Value: value}, nil
	case OpGreaterOrEqual:
		return query.Compare{Field: field, Op: query.GreaterOrEqual, Value: value}, nil
	case OpBeginsWith, OpNotBeginsWith:
		return query.Match{Field: field, Value: value, Anchor: query.Prefix, Negate: op == OpNotBeginsWith}, nil
	case OpEndsWith, OpNotEndsWith:
		return query.Match{Field: field, Value: value, Anchor: query.Suffix, Negate: op == OpNotEndsWith}, nil
	case OpContains, OpNotContains:
		return query.Match{Field: field, Value: value, Anchor: query.Contains, Negate: op == OpNotContains}, nil
	case OpIsNull, OpIsNotNull:
		return query.IsNull{Field: field, Negate: op == OpIsNotNull}, nil
	default:
		return query.InSet{Field: field, Values: splitList(value), Negate: op == OpNotIn}, nil
	}
}

func splitList(value string) []any {
	parts := strings.Split(value, ",")
	values := make([]any, len(parts))
	for i, part := range parts {
		values[i] = strings.TrimSpace(part)
	}
	return values
}
