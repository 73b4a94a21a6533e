package gridaction

import (
	"context"
	"errors"
	"fmt"

	"gridquery/internal/gridrequest"
	"gridquery/internal/query"
	"gridquery/internal/rowid"
)

// SubgridResponse lists the child rows of one parent row.
type SubgridResponse struct {
	Rows []map[string]any `json:"rows"`
}

// Subgrid returns the child rows whose parent column equals the id parameter.
// Rows are not paged.
func (a *Action) Subgrid(ctx context.Context, p gridrequest.Payload) (resp *SubgridResponse, err error) {
	ctx, span := a.startSpan(ctx, "gridaction.subgrid")
	defer func() {
		recordSpanError(span, err)
		span.End()
	}()

	sub := a.cfg.Subgrid
	if sub == nil {
		return nil, badRequest(errors.New("grid has no subgrid"))
	}
	id := p.String(ParamID)
	if id == "" {
		return nil, badRequest(fmt.Errorf("missing %s", ParamID))
	}

	table := sub.Model.Table()
	col, _ := table.Column(sub.ParentColumn)
	parent, err := rowid.Coerce(*col, id)
	if err != nil {
		return nil, badRequest(err)
	}

	records, err := sub.Model.Find().
		Filter(query.Compare{
			Field: query.FieldRef{Table: table.Name, Column: sub.ParentColumn},
			Op:    query.Equal,
			Value: parent,
		}).
		Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("subgrid %s: %w", a.cfg.Name, err)
	}

	columns := sub.Columns
	if len(columns) == 0 {
		columns = table.ColumnNames()
	}
	rows := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		cell, err := a.readCells(ctx, rec, columns)
		if err != nil {
			return nil, err
		}
		rows = append(rows, cell)
	}
	a.cfg.Metrics.RecordRowsReturned(ctx, a.cfg.Name, len(rows))
	return &SubgridResponse{Rows: rows}, nil
}
