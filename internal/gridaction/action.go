// Package gridaction serves the grid wire protocol for one table: list requests
// with search, sort and paging, row edits with one level of relation writes,
// adds, deletes and subgrid lookups.
package gridaction

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"gridquery/internal/cellvalue"
	"gridquery/internal/gridrequest"
	"gridquery/internal/logging"
	"gridquery/internal/observability"
	"gridquery/internal/planner"
	"gridquery/internal/schema"
	"gridquery/internal/store"
)

var (
	// ErrBadRequest marks failures caused by the request itself. Nothing has
	// been written when it is returned.
	ErrBadRequest = errors.New("bad request")
	// ErrInvalidConfiguration is returned by New for grids that cannot be served.
	ErrInvalidConfiguration = errors.New("invalid grid configuration")
)

// Grid actions, as sent in the action parameter.
const (
	ActionRequest = "request"
	ActionEdit    = "edit"
	ActionAdd     = "add"
	ActionDelete  = "del"
)

// Request parameters.
const (
	ParamPage           = "page"
	ParamRows           = "rows"
	ParamSortIndex      = "sidx"
	ParamSortOrder      = "sord"
	ParamSearch         = "_search"
	ParamFilters        = "filters"
	ParamSearchField    = "searchField"
	ParamSearchOper     = "searchOper"
	ParamSearchString   = "searchString"
	ParamID             = "id"
	ParamVisibleColumns = "visibleColumns"

	// EmptyID is the id sent with add requests that carry no preset key.
	EmptyID = "_empty"
)

const (
	defaultPage     = 1
	defaultPageSize = 20
)

// SubgridConfig describes the child rows shown under a parent row.
type SubgridConfig struct {
	Model store.Model
	// ParentColumn is the child column compared with the parent row id.
	ParentColumn string
	// Columns are field paths on the child table. Empty selects every column.
	Columns []string
}

// Config describes one grid.
type Config struct {
	Name  string
	Model store.Model
	// Columns are field paths readable by the grid. Empty selects every column
	// of the table. Primary key columns are always included.
	Columns []string
	// Aliases map client field names to field paths for search and sort.
	Aliases map[string]string
	// CustomFilters are keyed by planner.CustomFilterKey.
	CustomFilters map[string]planner.CustomFilter
	// Scope narrows the base collection before any request filter.
	Scope func(store.Collection) store.Collection
	// SearchOperator is applied to filter-panel values. Defaults to contains.
	SearchOperator planner.Operator
	NestedGroups   planner.NestedGroupMode
	// Separator joins scalars read through to-many relations.
	Separator string
	ReadOnly  bool
	Subgrid   *SubgridConfig
	Logger    *logging.Logger
	Metrics   *observability.GridMetrics
}

// Action serves one grid.
type Action struct {
	cfg     Config
	table   *schema.Table
	columns []string
	keys    []string
	tracer  trace.Tracer
}

// New checks cfg against the model's schema.
func New(cfg Config) (*Action, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("%w: grid name is required", ErrInvalidConfiguration)
	}
	if cfg.Model == nil || cfg.Model.Table() == nil {
		return nil, fmt.Errorf("%w: grid %s has no model", ErrInvalidConfiguration, cfg.Name)
	}
	table := cfg.Model.Table()
	keys := schema.PrimaryKeyNames(table)
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: table %s has no primary key", ErrInvalidConfiguration, table.Name)
	}
	if cfg.SearchOperator == "" {
		cfg.SearchOperator = planner.OpContains
	}
	if !cfg.SearchOperator.Valid() {
		return nil, fmt.Errorf("%w: grid %s: search operator %q", ErrInvalidConfiguration, cfg.Name, cfg.SearchOperator)
	}
	if cfg.Separator == "" {
		cfg.Separator = cellvalue.DefaultSeparator
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.FromContext(context.Background())
	}

	columns := cfg.Columns
	if len(columns) == 0 {
		columns = table.ColumnNames()
	}
	for _, col := range columns {
		if err := checkOutputPath(cfg.Model.Schema(), table, col); err != nil {
			return nil, fmt.Errorf("%w: grid %s: %w", ErrInvalidConfiguration, cfg.Name, err)
		}
	}
	resolver := planner.NewPathResolver(cfg.Model.Schema(), table, nil)
	for name, target := range cfg.Aliases {
		if _, err := resolver.Resolve(target); err != nil {
			return nil, fmt.Errorf("%w: grid %s: alias %s: %w", ErrInvalidConfiguration, cfg.Name, name, err)
		}
	}
	if sub := cfg.Subgrid; sub != nil {
		if err := checkSubgrid(sub); err != nil {
			return nil, fmt.Errorf("%w: grid %s: %w", ErrInvalidConfiguration, cfg.Name, err)
		}
	}

	return &Action{
		cfg:     cfg,
		table:   table,
		columns: withKeys(columns, keys),
		keys:    keys,
		tracer:  otel.Tracer("gridquery/gridaction"),
	}, nil
}

// Name returns the grid name.
func (a *Action) Name() string {
	return a.cfg.Name
}

// Columns returns the full column set: configured columns with the primary key prepended when missing.
func (a *Action) Columns() []string {
	return slices.Clone(a.columns)
}

// Do dispatches a decoded request to the named action. List requests return
// an *Envelope; writes return a WriteResult.
func (a *Action) Do(ctx context.Context, action string, p gridrequest.Payload) (any, error) {
	switch action {
	case ActionRequest:
		return a.List(ctx, p)
	case ActionEdit:
		return a.Edit(ctx, p)
	case ActionAdd:
		return a.Add(ctx, p)
	case ActionDelete:
		return a.Delete(ctx, p)
	default:
		return nil, badRequest(fmt.Errorf("unsupported action %q", action))
	}
}

// columnSet narrows the column set to the visibleColumns parameter when sent.
// Primary key columns are kept regardless.
func (a *Action) columnSet(p gridrequest.Payload) []string {
	visible := p.Strings(ParamVisibleColumns)
	if len(visible) == 0 {
		return a.columns
	}
	out := make([]string, 0, len(visible)+len(a.keys))
	for _, col := range a.columns {
		if slices.Contains(a.keys, col) || slices.Contains(visible, col) {
			out = append(out, col)
		}
	}
	return out
}

func (a *Action) resolver() *planner.PathResolver {
	return planner.NewPathResolver(a.cfg.Model.Schema(), a.table, a.cfg.Aliases)
}

func (a *Action) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return a.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("grid.name", a.cfg.Name),
		attribute.String("db.table", a.table.Name),
	))
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func badRequest(err error) error {
	return fmt.Errorf("%w: %w", ErrBadRequest, err)
}

func withKeys(columns, keys []string) []string {
	var missing []string
	for _, key := range keys {
		if !slices.Contains(columns, key) {
			missing = append(missing, key)
		}
	}
	return append(missing, columns...)
}

// checkOutputPath accepts any relation chain, including to-many hops, that
// ends in a column or a relation name.
func checkOutputPath(s *schema.Schema, base *schema.Table, path string) error {
	segments := strings.Split(path, ".")
	current := base
	for i, name := range segments {
		last := i == len(segments)-1
		if last {
			if _, ok := current.Column(name); ok {
				return nil
			}
		}
		rel, ok := current.Relationship(name)
		if !ok {
			if last {
				return fmt.Errorf("column %q not found on %s", path, current.Name)
			}
			return fmt.Errorf("%w: %q on %s", planner.ErrRelationNotFound, name, current.Name)
		}
		next, ok := s.Table(rel.RemoteTable)
		if !ok {
			return fmt.Errorf("relation %s targets unknown table %s", name, rel.RemoteTable)
		}
		current = next
	}
	return nil
}

func checkSubgrid(sub *SubgridConfig) error {
	if sub.Model == nil || sub.Model.Table() == nil {
		return errors.New("subgrid has no model")
	}
	table := sub.Model.Table()
	if _, ok := table.Column(sub.ParentColumn); !ok {
		return fmt.Errorf("subgrid parent column %q not found on %s", sub.ParentColumn, table.Name)
	}
	for _, col := range sub.Columns {
		if err := checkOutputPath(sub.Model.Schema(), table, col); err != nil {
			return fmt.Errorf("subgrid: %w", err)
		}
	}
	return nil
}
