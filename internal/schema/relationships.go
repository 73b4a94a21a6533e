package schema

import (
	"context"
	"log/slog"
	"strings"

	"github.com/jinzhu/inflection"
)

// BuildRelationships derives named relationships in both directions from foreign keys.
// Many-to-one relationships are named after the FK column without its _id suffix
// (author_id becomes author). One-to-many relationships take the plural of the
// referencing table (comments), prefixed by the FK base name when several
// constraints link the same pair of tables (author_posts, editor_posts).
func BuildRelationships(ctx context.Context, s *Schema) {
	_, span := startSpan(ctx, "schema.build_relationships")
	defer span.End()

	for i := range s.Tables {
		s.Tables[i].Relationships = nil
	}

	fkCount := make(map[string]map[string]int)
	for i := range s.Tables {
		table := &s.Tables[i]
		for _, fk := range ForeignKeyConstraints(table) {
			if fkCount[table.Name] == nil {
				fkCount[table.Name] = make(map[string]int)
			}
			fkCount[table.Name][fk.ReferencedTable]++
		}
	}

	for i := range s.Tables {
		table := &s.Tables[i]
		for _, fk := range ForeignKeyConstraints(table) {
			if len(fk.ColumnNames) == 0 || len(fk.ColumnNames) != len(fk.ReferencedColumns) {
				continue
			}
			if _, ok := s.Table(fk.ReferencedTable); !ok {
				continue
			}
			addRelationship(table, Relationship{
				Name:          manyToOneName(fk),
				IsManyToOne:   true,
				LocalColumns:  append([]string(nil), fk.ColumnNames...),
				RemoteTable:   fk.ReferencedTable,
				RemoteColumns: append([]string(nil), fk.ReferencedColumns...),
			})
		}
	}

	for i := range s.Tables {
		source := &s.Tables[i]
		for _, fk := range ForeignKeyConstraints(source) {
			if len(fk.ColumnNames) == 0 || len(fk.ColumnNames) != len(fk.ReferencedColumns) {
				continue
			}
			target, ok := s.Table(fk.ReferencedTable)
			if !ok {
				continue
			}
			name := inflection.Plural(source.Name)
			if fkCount[source.Name][target.Name] > 1 {
				name = fkBaseName(fk.ColumnNames) + "_" + name
			}
			addRelationship(target, Relationship{
				Name:          name,
				IsOneToMany:   true,
				LocalColumns:  append([]string(nil), fk.ReferencedColumns...),
				RemoteTable:   source.Name,
				RemoteColumns: append([]string(nil), fk.ColumnNames...),
			})
		}
	}
}

func manyToOneName(fk ForeignKeyConstraint) string {
	if len(fk.ColumnNames) == 1 {
		col := strings.ToLower(fk.ColumnNames[0])
		if strings.HasSuffix(col, "_id") && len(col) > len("_id") {
			return fk.ColumnNames[0][:len(col)-len("_id")]
		}
	}
	return inflection.Singular(fk.ReferencedTable)
}

func fkBaseName(columns []string) string {
	base := make([]string, len(columns))
	for i, col := range columns {
		base[i] = strings.TrimSuffix(col, "_id")
	}
	return strings.Join(base, "_")
}

func addRelationship(table *Table, rel Relationship) {
	if _, exists := table.Column(rel.Name); exists {
		rel.Name += "_rel"
	}
	if _, exists := table.Relationship(rel.Name); exists {
		slog.Default().Warn("skipping relationship with duplicate name",
			slog.String("table", table.Name),
			slog.String("relationship", rel.Name),
			slog.String("remote_table", rel.RemoteTable),
		)
		return
	}
	table.Relationships = append(table.Relationships, rel)
}
