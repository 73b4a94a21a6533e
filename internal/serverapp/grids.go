package serverapp

import (
	"fmt"
	"log/slog"

	"gridquery/internal/config"
	"gridquery/internal/dbexec"
	"gridquery/internal/gridaction"
	"gridquery/internal/logging"
	"gridquery/internal/observability"
	"gridquery/internal/planner"
	"gridquery/internal/schema"
	"gridquery/internal/store/sqlstore"
)

// buildGrids turns grid definitions into actions backed by sqlstore models.
// Unknown tables or columns fail here, before the server accepts requests.
func buildGrids(defs []config.GridConfig, exec dbexec.QueryExecutor, s *schema.Schema, logger *logging.Logger, metrics *observability.GridMetrics) (map[string]*gridaction.Action, error) {
	grids := make(map[string]*gridaction.Action, len(defs))
	for _, def := range defs {
		if _, exists := grids[def.Name]; exists {
			return nil, fmt.Errorf("%w: duplicate grid %q", gridaction.ErrInvalidConfiguration, def.Name)
		}

		model, err := sqlstore.NewModel(exec, s, def.Table)
		if err != nil {
			return nil, fmt.Errorf("%w: grid %s: %w", gridaction.ErrInvalidConfiguration, def.Name, err)
		}

		nested, err := planner.ParseNestedGroupMode(def.NestedGroups)
		if err != nil {
			return nil, fmt.Errorf("%w: grid %s: %w", gridaction.ErrInvalidConfiguration, def.Name, err)
		}

		cfg := gridaction.Config{
			Name:           def.Name,
			Model:          model,
			Columns:        def.Columns,
			Aliases:        def.AliasMap(),
			SearchOperator: planner.Operator(def.SearchOperator),
			NestedGroups:   nested,
			Separator:      def.ValueSeparator,
			ReadOnly:       def.ReadOnly,
			Logger:         logger,
			Metrics:        metrics,
		}
		if def.Subgrid != nil {
			subModel, err := sqlstore.NewModel(exec, s, def.Subgrid.Table)
			if err != nil {
				return nil, fmt.Errorf("%w: grid %s subgrid: %w", gridaction.ErrInvalidConfiguration, def.Name, err)
			}
			cfg.Subgrid = &gridaction.SubgridConfig{
				Model:        subModel,
				ParentColumn: def.Subgrid.ParentColumn,
				Columns:      def.Subgrid.Columns,
			}
		}

		action, err := gridaction.New(cfg)
		if err != nil {
			return nil, err
		}
		grids[def.Name] = action

		logger.Info("grid registered",
			slog.String("grid", def.Name),
			slog.String("table", def.Table),
			slog.Int("columns", len(action.Columns())),
			slog.Bool("read_only", def.ReadOnly),
			slog.Bool("subgrid", def.Subgrid != nil),
		)
	}
	return grids, nil
}
