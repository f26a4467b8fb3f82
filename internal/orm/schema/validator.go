package schema

import (
	"fmt"
	"regexp"
	"strings"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidationError represents a schema validation error with context
type ValidationError struct {
	Entity    string
	Attribute string
	Message   string
	Hint      string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	var b strings.Builder

	if e.Entity != "" {
		b.WriteString(e.Entity)
		if e.Attribute != "" {
			b.WriteString(".")
			b.WriteString(e.Attribute)
		}
		b.WriteString(": ")
	}

	b.WriteString(e.Message)

	if e.Hint != "" {
		b.WriteString("\n  hint: ")
		b.WriteString(e.Hint)
	}

	return b.String()
}

// Validator validates entity type declarations
type Validator struct {
	errors []*ValidationError
}

// NewValidator creates a new schema validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateStructural validates a single entity type without cross-type checks
func (v *Validator) ValidateStructural(t *EntityType) error {
	v.errors = v.errors[:0]

	if !identifierPattern.MatchString(t.Name) {
		v.add(t.Name, "", "invalid entity name", "names must be valid SQL identifiers")
	}

	seen := make(map[string]bool)
	for _, attr := range t.Declared {
		if !identifierPattern.MatchString(attr.Name) {
			v.add(t.Name, attr.Name, "invalid attribute name", "")
			continue
		}
		if seen[attr.Name] {
			v.add(t.Name, attr.Name, "duplicate attribute", "")
		}
		seen[attr.Name] = true

		if attr.Relation != nil && !attr.IsRelation() {
			v.add(t.Name, attr.Name, "relation descriptor on a non relation attribute",
				"declare the attribute with the relation data type")
		}
		if attr.ID && attr.IsRelation() {
			v.add(t.Name, attr.Name, "relation attribute cannot be the id", "")
		}
		if attr.Relation != nil && attr.Relation.Kind != ManyToMany &&
			(attr.Relation.JoinTable != "" || attr.Relation.AttributeColumnName != "" || attr.Relation.JoinAttributeColumnName != "") {
			v.add(t.Name, attr.Name, "join table settings on a "+attr.Relation.Kind.String()+" relation", "")
		}
	}

	return v.result()
}

// ValidateRegistry performs the cross-type checks: relation targets and
// mapped-by owners must resolve, declared reverse attributes must be relations
func (v *Validator) ValidateRegistry(types map[string]*EntityType, order []*EntityType) error {
	v.errors = v.errors[:0]

	for _, t := range order {
		if _, err := t.IDName(); err != nil && !t.Abstract {
			v.add(t.Name, "", err.Error(), "flag exactly one attribute as id")
		}

		for _, attr := range t.Declared {
			rel := attr.Relation
			if rel.IsEmpty() {
				continue
			}
			target, ok := types[rel.Target]
			if !ok {
				v.add(t.Name, attr.Name, fmt.Sprintf("relation target %s is not registered", rel.Target), "")
				continue
			}
			if reverse, ok := target.Attribute(rel.Reverse); ok && rel.Reverse != "" && !reverse.IsRelation() {
				v.add(t.Name, attr.Name, fmt.Sprintf("reverse attribute %s.%s is not a relation", target.Name, rel.Reverse), "")
			}
			if rel.MappedBy != "" && rel.MappedBy != t.Name && rel.MappedBy != target.Name {
				if owner, ok := types[rel.MappedBy]; !ok || !(t.IsSubTypeOf(owner) || target.IsSubTypeOf(owner)) {
					v.add(t.Name, attr.Name, fmt.Sprintf("mapped by %s which is not a side of the relation", rel.MappedBy), "")
				}
			}
		}
	}

	return v.result()
}

// Errors returns the errors of the last validation
func (v *Validator) Errors() []*ValidationError {
	return v.errors
}

func (v *Validator) add(entity, attribute, message, hint string) {
	v.errors = append(v.errors, &ValidationError{
		Entity:    entity,
		Attribute: attribute,
		Message:   message,
		Hint:      hint,
	})
}

func (v *Validator) result() error {
	switch len(v.errors) {
	case 0:
		return nil
	case 1:
		return v.errors[0]
	default:
		messages := make([]string, len(v.errors))
		for i, err := range v.errors {
			messages[i] = err.Error()
		}
		return fmt.Errorf("%d validation errors:\n%s", len(v.errors), strings.Join(messages, "\n"))
	}
}
