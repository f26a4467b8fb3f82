package schema

import "errors"

var (
	// ErrMissingID is returned when no attribute in the parent chain is flagged as id
	ErrMissingID = errors.New("entity has no id attribute")

	// ErrMultipleIDs is returned when a type declares more than one id attribute
	ErrMultipleIDs = errors.New("entity declares more than one id attribute")

	// ErrMissingRelationMethod is returned in strict mode for relations without a descriptor
	ErrMissingRelationMethod = errors.New("missing relation attributes")

	// ErrUnknownEntity is returned when an entity type is not registered
	ErrUnknownEntity = errors.New("unknown entity type")

	// ErrUnknownAttribute is returned when an attribute is not declared
	ErrUnknownAttribute = errors.New("unknown attribute")

	// ErrRegistrySealed is returned when registering into a built registry
	ErrRegistrySealed = errors.New("registry is sealed")

	// ErrRegistryNotBuilt is returned when derived views are requested before Build
	ErrRegistryNotBuilt = errors.New("registry has not been built")

	// ErrInheritanceCycle is returned when a type is its own ancestor
	ErrInheritanceCycle = errors.New("inheritance cycle detected")
)
