package gridaction

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"gridquery/internal/cellvalue"
	"gridquery/internal/gridrequest"
	"gridquery/internal/planner"
	"gridquery/internal/query"
	"gridquery/internal/rowid"
	"gridquery/internal/store"
)

// Envelope is the list response.
type Envelope struct {
	Page    int       `json:"page"`
	Total   int64     `json:"total"`
	Records int64     `json:"records"`
	Rows    []GridRow `json:"rows"`
}

// GridRow is one row of a list response. ID is empty when a key column is null.
type GridRow struct {
	ID   string         `json:"id,omitempty"`
	Cell map[string]any `json:"cell"`
}

// List runs a list request: search (when _search is "true"), sort, page.
// Every field is resolved before the store is queried.
func (a *Action) List(ctx context.Context, p gridrequest.Payload) (env *Envelope, err error) {
	ctx, span := a.startSpan(ctx, "gridaction.list")
	defer func() {
		recordSpanError(span, err)
		span.End()
	}()

	page, err := intParam(p, ParamPage, defaultPage)
	if err != nil {
		return nil, err
	}
	pageSize, err := intParam(p, ParamRows, defaultPageSize)
	if err != nil {
		return nil, err
	}
	if pageSize < 0 {
		return nil, badRequest(fmt.Errorf("%s must not be negative", ParamRows))
	}

	columns := a.columnSet(p)
	resolver := a.resolver()

	coll := a.cfg.Model.Find()
	if a.cfg.Scope != nil {
		coll = a.cfg.Scope(coll)
	}

	var refs []query.FieldRef
	if p.Bool(ParamSearch) {
		predicate, err := a.searchPredicate(p, columns, resolver)
		if err != nil {
			return nil, badRequest(err)
		}
		if len(predicate.Items) > 0 {
			coll = coll.Filter(predicate)
			refs = append(refs, query.Fields(predicate)...)
		}
	}

	sorts, err := planner.CompileSort(p.String(ParamSortIndex), p.String(ParamSortOrder), resolver)
	if err != nil {
		return nil, badRequest(err)
	}
	if len(sorts) > 0 {
		coll = coll.Sort(sorts...)
		for _, s := range sorts {
			refs = append(refs, s.Field)
		}
	}
	for _, path := range planner.JoinPaths(refs...) {
		coll = coll.JoinRelation(path)
	}

	count, err := coll.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count %s: %w", a.cfg.Name, err)
	}
	records, err := coll.Paginate(planner.PageWindow(page, pageSize)).Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", a.cfg.Name, err)
	}

	rows := make([]GridRow, 0, len(records))
	for _, rec := range records {
		cell, err := a.readCells(ctx, rec, columns)
		if err != nil {
			return nil, err
		}
		rows = append(rows, GridRow{ID: rowID(rec), Cell: cell})
	}
	a.cfg.Metrics.RecordRowsReturned(ctx, a.cfg.Name, len(rows))

	return &Envelope{
		Page:    page,
		Total:   planner.TotalPages(count, pageSize),
		Records: count,
		Rows:    rows,
	}, nil
}

// searchPredicate builds the request filter. A non-empty filters parameter
// replaces the filter panel; otherwise every panel value becomes a rule with
// the grid's search operator and a quick-search rule is added when searchField
// is set. All of them are ANDed.
func (a *Action) searchPredicate(p gridrequest.Payload, columns []string, resolver *planner.PathResolver) (query.Group, error) {
	compiler := &planner.FilterCompiler{
		Resolver: resolver,
		Nested:   a.cfg.NestedGroups,
		Custom:   a.cfg.CustomFilters,
	}
	if raw := strings.TrimSpace(p.String(ParamFilters)); raw != "" {
		group, err := planner.ParseGroup(raw)
		if err != nil {
			return query.Group{}, err
		}
		return compiler.Compile(group)
	}

	group := planner.Group{GroupOp: string(query.And)}
	for _, field := range a.panelFields(columns) {
		if !p.Has(field) {
			continue
		}
		value, isText := p[field].(string)
		if isText && value == "" {
			continue
		}
		group.Rules = append(group.Rules, planner.Rule{Field: field, Op: a.cfg.SearchOperator, Data: panelData(a.cfg.SearchOperator, p[field])})
	}
	if field := p.String(ParamSearchField); field != "" {
		group.Rules = append(group.Rules, planner.Rule{
			Field: field,
			Op:    planner.Operator(p.String(ParamSearchOper)),
			Data:  ruleData(p[ParamSearchString]),
		})
	}
	return compiler.Compile(group)
}

// panelFields lists the names the filter panel may send: the column set plus aliases.
func (a *Action) panelFields(columns []string) []string {
	fields := slices.Clone(columns)
	aliases := make([]string, 0, len(a.cfg.Aliases))
	for name := range a.cfg.Aliases {
		if !slices.Contains(fields, name) {
			aliases = append(aliases, name)
		}
	}
	slices.Sort(aliases)
	return append(fields, aliases...)
}

// panelData reads a filter-panel value. The null token only means null for
// eq and ne; pattern and ordering operators match it as the literal text.
func panelData(op planner.Operator, v any) planner.RuleData {
	if op == planner.OpEqual || op == planner.OpNotEqual {
		return ruleData(v)
	}
	if v == nil {
		return planner.Text(gridrequest.NullToken)
	}
	if s, ok := v.(string); ok {
		return planner.Text(s)
	}
	return ruleData(v)
}

func ruleData(v any) planner.RuleData {
	switch val := v.(type) {
	case nil:
		return planner.RuleData{Null: true}
	case string:
		if val == gridrequest.NullToken {
			return planner.RuleData{Null: true}
		}
		return planner.Text(val)
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				parts = append(parts, s)
			}
		}
		return planner.Text(strings.Join(parts, ","))
	default:
		return planner.Text(fmt.Sprint(val))
	}
}

func (a *Action) readCells(ctx context.Context, rec store.Record, columns []string) (map[string]any, error) {
	cell := make(map[string]any, len(columns))
	for _, col := range columns {
		v, err := cellvalue.Read(ctx, rec, col, a.cfg.Separator)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", col, err)
		}
		cell[col] = renderCell(v)
	}
	return cell, nil
}

// renderCell converts values read off records into JSON-friendly values.
func renderCell(v any) any {
	switch val := v.(type) {
	case store.Record:
		return renderAttributes(val)
	case []store.Record:
		out := make([]map[string]any, len(val))
		for i, r := range val {
			out[i] = renderAttributes(r)
		}
		return out
	case time.Time, decimal.Decimal, []byte:
		return rowid.Format(val)
	default:
		return v
	}
}

func renderAttributes(r store.Record) map[string]any {
	attrs := store.AttributeMap(r)
	for name, v := range attrs {
		attrs[name] = renderCell(v)
	}
	return attrs
}

// rowID encodes the primary key of rec. A null key part yields "".
func rowID(rec store.Record) string {
	key := rec.PrimaryKey()
	for _, v := range key {
		if v == nil {
			return ""
		}
	}
	return rowid.Encode(key)
}

func intParam(p gridrequest.Payload, name string, def int) (int, error) {
	raw := strings.TrimSpace(p.String(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequest(fmt.Errorf("%s must be an integer", name))
	}
	return n, nil
}
