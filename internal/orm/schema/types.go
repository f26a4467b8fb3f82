// Package schema provides the entity metadata model for the ORM.
// It defines entity types, their attributes and relation descriptors, and an
// immutable registry that derives every per-type view once, at build time.
package schema

import (
	"fmt"
	"strings"
)

// DataType represents the declared data type of an attribute
type DataType int

const (
	// Text types
	TypeText DataType = iota
	TypeString
	TypeData

	// Numeric types
	TypeInteger
	TypeFloat
	TypeDate

	// Relation to another entity type
	TypeRelation
)

// String returns the string representation of the data type
func (d DataType) String() string {
	switch d {
	case TypeText:
		return "text"
	case TypeString:
		return "string"
	case TypeData:
		return "data"
	case TypeInteger:
		return "integer"
	case TypeFloat:
		return "float"
	case TypeDate:
		return "date"
	case TypeRelation:
		return "relation"
	default:
		return "unknown"
	}
}

// ParseDataType converts a string to a DataType
func ParseDataType(s string) (DataType, error) {
	switch strings.ToLower(s) {
	case "text":
		return TypeText, nil
	case "string":
		return TypeString, nil
	case "data":
		return TypeData, nil
	case "integer", "int":
		return TypeInteger, nil
	case "float":
		return TypeFloat, nil
	case "date":
		return TypeDate, nil
	case "relation":
		return TypeRelation, nil
	default:
		return 0, fmt.Errorf("unknown data type: %s", s)
	}
}

// IsText returns true if the type is stored as text
func (d DataType) IsText() bool {
	return d == TypeText || d == TypeString || d == TypeData
}

// IsNumeric returns true if the type is stored as a number
func (d DataType) IsNumeric() bool {
	return d == TypeInteger || d == TypeFloat || d == TypeDate
}

// FetchType controls when an attribute is materialized
type FetchType int

const (
	// FetchDefault is eager for plain attributes and lazy for relations
	FetchDefault FetchType = iota
	// FetchEager loads the attribute together with its owner
	FetchEager
	// FetchLazy leaves the attribute unloaded until explicitly requested
	FetchLazy
)

// String returns the string representation of the fetch type
func (f FetchType) String() string {
	switch f {
	case FetchEager:
		return "eager"
	case FetchLazy:
		return "lazy"
	default:
		return "default"
	}
}

// ParseFetchType converts a string to a FetchType
func ParseFetchType(s string) (FetchType, error) {
	switch strings.ToLower(s) {
	case "", "default":
		return FetchDefault, nil
	case "eager":
		return FetchEager, nil
	case "lazy":
		return FetchLazy, nil
	default:
		return 0, fmt.Errorf("unknown fetch type: %s", s)
	}
}

// GeneratorType selects the identifier generation strategy
type GeneratorType int

const (
	// GeneratorTable advances a durable per-entity counter in the generator table
	GeneratorTable GeneratorType = iota
	// GeneratorUnique derives a pseudo-unique value from the current time
	GeneratorUnique
)

// String returns the string representation of the generator type
func (g GeneratorType) String() string {
	switch g {
	case GeneratorTable:
		return "table"
	case GeneratorUnique:
		return "unique"
	default:
		return "unknown"
	}
}

// ParseGeneratorType converts a string to a GeneratorType
func ParseGeneratorType(s string) (GeneratorType, error) {
	switch strings.ToLower(s) {
	case "", "table":
		return GeneratorTable, nil
	case "unique":
		return GeneratorUnique, nil
	default:
		return 0, fmt.Errorf("unknown generator type: %s", s)
	}
}

// RelationKind represents the cardinality of a relation
type RelationKind int

const (
	OneToOne RelationKind = iota
	OneToMany
	ManyToOne
	ManyToMany
)

// String returns the string representation of the relation kind
func (k RelationKind) String() string {
	switch k {
	case OneToOne:
		return "one-to-one"
	case OneToMany:
		return "one-to-many"
	case ManyToOne:
		return "many-to-one"
	case ManyToMany:
		return "many-to-many"
	default:
		return "unknown"
	}
}

// ParseRelationKind converts a string to a RelationKind
func ParseRelationKind(s string) (RelationKind, error) {
	switch strings.ToLower(strings.ReplaceAll(s, "_", "-")) {
	case "one-to-one":
		return OneToOne, nil
	case "one-to-many":
		return OneToMany, nil
	case "many-to-one":
		return ManyToOne, nil
	case "many-to-many":
		return ManyToMany, nil
	default:
		return 0, fmt.Errorf("unknown relation kind: %s", s)
	}
}

// IsToOne returns true when the relation holds a single entity on this side
func (k RelationKind) IsToOne() bool {
	return k == OneToOne || k == ManyToOne
}

// Inverse returns the kind seen from the other side of the relation
func (k RelationKind) Inverse() RelationKind {
	switch k {
	case OneToMany:
		return ManyToOne
	case ManyToOne:
		return OneToMany
	default:
		return k
	}
}

// MapperFlag is an explicit override of the mapping side of a relation
type MapperFlag int

const (
	MapperUnset MapperFlag = iota
	MapperTrue
	MapperFalse
)

// Relation describes a relation attribute
type Relation struct {
	Kind      RelationKind
	Target    string
	MappedBy  string
	IsMapper  MapperFlag
	Reverse   string
	FetchType FetchType

	// many-to-many only
	JoinTable               string
	AttributeColumnName     string
	JoinAttributeColumnName string
}

// IsEmpty returns true for the zero descriptor returned for undeclared relations
func (r *Relation) IsEmpty() bool {
	return r == nil || r.Target == ""
}

// Attribute describes a single declared attribute of an entity type
type Attribute struct {
	Name      string
	Type      DataType
	ID        bool
	Generated bool
	Generator GeneratorType
	Indexed   bool
	Mandatory bool
	FetchType FetchType
	Relation  *Relation

	owner *EntityType
}

// Owner returns the entity type that declared the attribute
func (a *Attribute) Owner() *EntityType {
	return a.owner
}

// IsRelation returns true for relation attributes
func (a *Attribute) IsRelation() bool {
	return a.Type == TypeRelation
}

// Fetch resolves the effective fetch type of the attribute
func (a *Attribute) Fetch() FetchType {
	fetch := a.FetchType
	if a.Relation != nil && a.Relation.FetchType != FetchDefault {
		fetch = a.Relation.FetchType
	}
	if fetch != FetchDefault {
		return fetch
	}
	if a.IsRelation() {
		return FetchLazy
	}
	return FetchEager
}

// reservedNames are never treated as persistent attributes
var reservedNames = map[string]bool{
	"data_state":        true,
	"data_reference":    true,
	"scope":             true,
	"abstract":          true,
	"mapping_options":   true,
	"id_attribute_name": true,
	"_class":            true,
	"_mtime":            true,
}

// IsPersistentName returns false for reserved names and upper-case constants
func IsPersistentName(name string) bool {
	if name == "" || reservedNames[name] {
		return false
	}
	if strings.ToUpper(name) == name && strings.ToLower(name) != name {
		return false
	}
	return true
}

// toSnakeCase converts a string to snake_case
func toSnakeCase(s string) string {
	var result []rune
	runes := []rune(s)

	for i, r := range runes {
		if i > 0 && r >= 'A' && r <= 'Z' {
			prev := runes[i-1]
			if prev >= 'a' && prev <= 'z' {
				result = append(result, '_')
			} else if i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z' {
				result = append(result, '_')
			}
		}
		if r >= 'A' && r <= 'Z' {
			result = append(result, r+('a'-'A'))
		} else {
			result = append(result, r)
		}
	}
	return string(result)
}
