// Package config loads configuration from files, env vars, and flags, and validates it.
package config

import "strings"

// Config holds the application configuration.
type Config struct {
	Database      DatabaseConfig      `mapstructure:"database"`
	Server        ServerConfig        `mapstructure:"server"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Grids         []GridConfig        `mapstructure:"grids"`
}

// GridConfig declares one grid endpoint over a table.
type GridConfig struct {
	// Name is the route segment: /grid/{name}.
	Name  string `mapstructure:"name"`
	Table string `mapstructure:"table"`
	// Columns lists field paths ("title", "author.name"). Empty means all table columns.
	Columns []string `mapstructure:"columns"`
	// UnsafeColumns may be displayed but never filtered or sorted on.
	UnsafeColumns []string `mapstructure:"unsafe_columns"`
	// Aliases map client-visible field names to field paths.
	Aliases        []AliasConfig  `mapstructure:"aliases"`
	SearchOperator string         `mapstructure:"search_operator"`
	NestedGroups   string         `mapstructure:"nested_groups"` // flatten, preserve
	ValueSeparator string         `mapstructure:"value_separator"`
	ReadOnly       bool           `mapstructure:"read_only"`
	Subgrid        *SubgridConfig `mapstructure:"subgrid"`
}

// AliasConfig maps a client field name to a field path.
type AliasConfig struct {
	Name  string `mapstructure:"name"`
	Field string `mapstructure:"field"`
}

// SubgridConfig declares the child rows served at /grid/{name}/subgrid.
type SubgridConfig struct {
	Table        string   `mapstructure:"table"`
	ParentColumn string   `mapstructure:"parent_column"`
	Columns      []string `mapstructure:"columns"`
}

const (
	NestedGroupsFlatten  = "flatten"
	NestedGroupsPreserve = "preserve"
)

// AliasMap returns the aliases keyed by client field name.
func (g GridConfig) AliasMap() map[string]string {
	if len(g.Aliases) == 0 {
		return nil
	}
	aliases := make(map[string]string, len(g.Aliases))
	for _, alias := range g.Aliases {
		aliases[strings.TrimSpace(alias.Name)] = strings.TrimSpace(alias.Field)
	}
	return aliases
}

// PreserveNestedGroups reports whether nested filter groups keep their own operator.
func (g GridConfig) PreserveNestedGroups() bool {
	return strings.EqualFold(strings.TrimSpace(g.NestedGroups), NestedGroupsPreserve)
}
