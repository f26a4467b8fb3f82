package relationships

import "errors"

var (
	// ErrUnknownRelation is returned when a name is not a relation attribute
	ErrUnknownRelation = errors.New("unknown relation")

	// ErrUnknownTarget is returned when the target type of a relation is not registered
	ErrUnknownTarget = errors.New("unresolved relation target")

	// ErrNoMapper is returned when neither side of a relation can be resolved as mapper
	ErrNoMapper = errors.New("relation has no mapper")

	// ErrMalformedRelation is returned when both sides claim, or both refuse, the mapping
	ErrMalformedRelation = errors.New("malformed relation")
)
