package planner

import (
	"regexp"
	"strings"

	"gridquery/internal/query"
)

var sortPieceRe = regexp.MustCompile(`^(.+?)\s+(asc|desc)$`)

// CompileSort turns a jqGrid sidx/sord pair into ordered sort fields.
// sidx may list several comma-separated fields, each optionally suffixed with
// " asc" or " desc"; fields without a suffix take sord. An empty sidx, or a
// sord other than exactly "asc" or "desc", disables sorting. Every field is
// resolved, so unknown or unsafe fields fail the request.
func CompileSort(sidx, sord string, resolver *PathResolver) ([]query.SortField, error) {
	if strings.TrimSpace(sidx) == "" {
		return nil, nil
	}
	fallback := query.Direction(sord)
	if fallback != query.Asc && fallback != query.Desc {
		return nil, nil
	}

	var fields []query.SortField
	for _, piece := range strings.Split(sidx, ",") {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		name, direction := piece, fallback
		if m := sortPieceRe.FindStringSubmatch(piece); m != nil {
			name, direction = strings.TrimSpace(m[1]), query.Direction(m[2])
		}
		resolved, err := resolver.Resolve(name)
		if err != nil {
			return nil, err
		}
		fields = append(fields, query.SortField{Field: resolved.Ref, Direction: direction})
	}
	return fields, nil
}
