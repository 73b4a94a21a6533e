package planner

import (
	"math"

	"gridquery/internal/query"
)

// PageWindow converts a 1-based page number and a page size into an offset window.
// Pages below 1 start at offset 0. Offsets past math.MaxInt saturate, so a huge
// page reads past the end instead of wrapping around to the first rows.
func PageWindow(page, pageSize int) query.Window {
	w := query.Window{Limit: pageSize}
	switch {
	case page <= 1 || pageSize <= 0:
	case page-1 > math.MaxInt/pageSize:
		w.Offset = math.MaxInt
	default:
		w.Offset = (page - 1) * pageSize
	}
	return w
}

// TotalPages returns ceil(count/pageSize), or 0 when pageSize is not positive.
func TotalPages(count int64, pageSize int) int64 {
	if pageSize <= 0 {
		return 0
	}
	size := int64(pageSize)
	return (count + size - 1) / size
}
