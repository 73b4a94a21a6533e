// Package planner compiles grid request parameters into store-neutral query values:
// filter groups into predicate trees, sort specs into ordered fields and page
// numbers into offset windows. Field paths are checked against schema metadata
// before anything reaches a store.
package planner

import "errors"

var (
	// ErrUnknownOperator is returned for filter ops outside the supported set.
	ErrUnknownOperator = errors.New("unknown filter operator")
	// ErrInvalidGroupOp is returned when groupOp is neither AND nor OR.
	ErrInvalidGroupOp = errors.New("invalid groupOp")
	// ErrMalformedFilter is returned when the filters parameter is not a valid filter group.
	ErrMalformedFilter = errors.New("malformed filters")
	// ErrRelationNotFound is returned when a path segment names no relation.
	ErrRelationNotFound = errors.New("relation does not exist")
	// ErrUnsafeAttribute is returned for unknown attributes and attributes excluded from search.
	ErrUnsafeAttribute = errors.New("unsafe attribute")
	// ErrToManyPath is returned when a sort or filter path walks a to-many relation.
	ErrToManyPath = errors.New("to-many relation in path")
)
