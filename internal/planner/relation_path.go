package planner

import (
	"fmt"
	"strings"

	"gridquery/internal/query"
	"gridquery/internal/schema"
)

// ResolvedField is a field path checked against schema metadata.
type ResolvedField struct {
	Ref         query.FieldRef
	Column      schema.Column
	WasRelation bool
}

// PathResolver resolves dotted field paths ("author.profile.bio") relative to a base table.
type PathResolver struct {
	schema  *schema.Schema
	base    *schema.Table
	aliases map[string]string
}

// NewPathResolver creates a resolver for base. Aliases map client field names to field paths.
func NewPathResolver(s *schema.Schema, base *schema.Table, aliases map[string]string) *PathResolver {
	return &PathResolver{schema: s, base: base, aliases: aliases}
}

// Base returns the base table.
func (r *PathResolver) Base() *schema.Table {
	return r.base
}

// Resolve walks field through one-hop relations and checks that the terminal
// attribute is safe on its owning table. Unknown relations, to-many relations
// and unknown or unsafe attributes are errors.
func (r *PathResolver) Resolve(field string) (ResolvedField, error) {
	if target, ok := r.aliases[field]; ok {
		field = target
	}
	if field == "" {
		return ResolvedField{}, fmt.Errorf("%w: empty field name", ErrUnsafeAttribute)
	}

	segments := strings.Split(field, ".")
	relations := segments[:len(segments)-1]
	attribute := segments[len(segments)-1]

	current := r.base
	for i, name := range relations {
		rel, ok := current.Relationship(name)
		if !ok {
			return ResolvedField{}, fmt.Errorf("%w: %q on %s", ErrRelationNotFound, strings.Join(relations[:i+1], "."), current.Name)
		}
		if rel.IsToMany() {
			return ResolvedField{}, fmt.Errorf("%w: %q", ErrToManyPath, strings.Join(relations[:i+1], "."))
		}
		next, ok := r.schema.Table(rel.RemoteTable)
		if !ok {
			return ResolvedField{}, fmt.Errorf("%w: %q targets unknown table %s", ErrRelationNotFound, name, rel.RemoteTable)
		}
		current = next
	}

	col, ok := current.Column(attribute)
	if !ok || col.Unsafe {
		return ResolvedField{}, fmt.Errorf("%w: %q", ErrUnsafeAttribute, field)
	}

	ref := query.FieldRef{Table: current.Name, Column: attribute}
	if len(relations) > 0 {
		ref.Relations = append([]string(nil), relations...)
	}
	return ResolvedField{Ref: ref, Column: *col, WasRelation: len(relations) > 0}, nil
}

// JoinPaths returns the relation paths needed to reach refs, every prefix
// before its extensions, without duplicates.
func JoinPaths(refs ...query.FieldRef) []string {
	var paths []string
	seen := make(map[string]struct{})
	for _, ref := range refs {
		for i := 1; i <= len(ref.Relations); i++ {
			path := strings.Join(ref.Relations[:i], ".")
			if _, ok := seen[path]; ok {
				continue
			}
			seen[path] = struct{}{}
			paths = append(paths, path)
		}
	}
	return paths
}
