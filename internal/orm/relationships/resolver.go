// Package relationships resolves the two sides of entity relations: which
// side maps the relation, the reverse attribute, and the join table layout of
// many-to-many relations.
package relationships

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hivesolutions/colony-plugins-sub002/internal/orm/schema"
)

// Resolver answers relation questions over a built registry
type Resolver struct {
	registry *schema.Registry
}

// NewResolver creates a new relation resolver
func NewResolver(registry *schema.Registry) *Resolver {
	return &Resolver{registry: registry}
}

// Registry returns the registry the resolver works on
func (r *Resolver) Registry() *schema.Registry {
	return r.registry
}

// Side is one end of a resolved relation
type Side struct {
	Entity    *schema.EntityType
	Attribute *schema.Attribute
	Relation  *schema.Relation
}

// Relation returns the declared attribute and descriptor of name on t
func (r *Resolver) Relation(t *schema.EntityType, name string) (*schema.Attribute, *schema.Relation, error) {
	attr, ok := t.Attribute(name)
	if !ok || !attr.IsRelation() {
		return nil, nil, fmt.Errorf("%w: %s.%s", ErrUnknownRelation, t.Name, name)
	}
	rel, err := t.RelationAttributes(name, true)
	if err != nil {
		return nil, nil, err
	}
	return attr, rel, nil
}

// Target returns the entity type on the other side of the relation
func (r *Resolver) Target(t *schema.EntityType, name string) (*schema.EntityType, error) {
	_, rel, err := r.Relation(t, name)
	if err != nil {
		return nil, err
	}
	target, ok := r.registry.Get(rel.Target)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s -> %s", ErrUnknownTarget, t.Name, name, rel.Target)
	}
	return target, nil
}

// IsDirect returns true for relations holding a single entity on this side
func (r *Resolver) IsDirect(t *schema.EntityType, name string) (bool, error) {
	_, rel, err := r.Relation(t, name)
	if err != nil {
		return false, err
	}
	return rel.Kind.IsToOne(), nil
}

// Reverse returns the attribute name of the inverse side on the target. It
// defaults to the safe table name of the declaring type, which is ambiguous
// when two relations join the same pair of types.
func (r *Resolver) Reverse(t *schema.EntityType, name string) (string, error) {
	attr, rel, err := r.Relation(t, name)
	if err != nil {
		return "", err
	}
	if rel.Reverse != "" {
		return rel.Reverse, nil
	}
	owner := attr.Owner()
	if owner == nil {
		owner = t
	}
	return owner.SafeTableName(), nil
}

// Sides returns both ends of the relation; the reverse side attribute and
// descriptor are nil when the target does not declare the inverse
func (r *Resolver) Sides(t *schema.EntityType, name string) (Side, Side, error) {
	attr, rel, err := r.Relation(t, name)
	if err != nil {
		return Side{}, Side{}, err
	}
	target, err := r.Target(t, name)
	if err != nil {
		return Side{}, Side{}, err
	}
	reverse, err := r.Reverse(t, name)
	if err != nil {
		return Side{}, Side{}, err
	}

	local := Side{Entity: t, Attribute: attr, Relation: rel}
	remote := Side{Entity: target}
	if reverseAttr, ok := target.Attribute(reverse); ok && reverseAttr.Relation != nil {
		remote.Attribute = reverseAttr
		remote.Relation = reverseAttr.Relation
	}
	return local, remote, nil
}

// Mapper returns the entity type owning the physical representation of the
// relation. An explicit is-mapper flag on either side wins over mapped-by,
// which wins over the cardinality defaults. Resolving from either side of the
// same relation yields the same owner.
func (r *Resolver) Mapper(t *schema.EntityType, name string) (*schema.EntityType, error) {
	local, remote, isLocal, err := r.resolveMapper(t, name)
	if err != nil {
		return nil, err
	}
	if isLocal {
		return local.Entity, nil
	}
	return remote.Entity, nil
}

// IsMapped returns true when t itself is the mapper of the relation. For
// self relations the declaring side is told apart from the inverse one.
func (r *Resolver) IsMapped(t *schema.EntityType, name string) (bool, error) {
	_, _, isLocal, err := r.resolveMapper(t, name)
	if err != nil {
		return false, err
	}
	return isLocal, nil
}

// resolveMapper returns both sides and whether the declaring side is the mapper
func (r *Resolver) resolveMapper(t *schema.EntityType, name string) (Side, Side, bool, error) {
	local, remote, err := r.Sides(t, name)
	if err != nil {
		return Side{}, Side{}, false, err
	}

	if isLocal, ok, err := mapperFromFlags(local, remote); err != nil || ok {
		if err != nil {
			return local, remote, false, fmt.Errorf("%w: %s.%s", err, t.Name, name)
		}
		return local, remote, isLocal, nil
	}

	if isLocal, ok, err := mapperFromMappedBy(local, remote); err != nil || ok {
		if err != nil {
			return local, remote, false, fmt.Errorf("%w: %s.%s", err, t.Name, name)
		}
		return local, remote, isLocal, nil
	}

	switch local.Relation.Kind {
	case schema.ManyToOne:
		return local, remote, true, nil
	case schema.OneToMany:
		return local, remote, false, nil
	default:
		return local, remote, false, fmt.Errorf("%w: %s.%s (%s)", ErrNoMapper, t.Name, name, local.Relation.Kind)
	}
}

// mapperFromFlags resolves the mapper side from is-mapper overrides
func mapperFromFlags(local, remote Side) (bool, bool, error) {
	localFlag := local.Relation.IsMapper
	remoteFlag := schema.MapperUnset
	if remote.Relation != nil {
		remoteFlag = remote.Relation.IsMapper
	}

	switch {
	case localFlag != schema.MapperUnset && remoteFlag != schema.MapperUnset:
		if localFlag == remoteFlag {
			return false, false, ErrMalformedRelation
		}
		return localFlag == schema.MapperTrue, true, nil
	case localFlag != schema.MapperUnset:
		return localFlag == schema.MapperTrue, true, nil
	case remoteFlag != schema.MapperUnset:
		return remoteFlag == schema.MapperFalse, true, nil
	}
	return false, false, nil
}

// mapperFromMappedBy resolves the mapper side from mapped-by declarations
func mapperFromMappedBy(local, remote Side) (bool, bool, error) {
	var candidates []bool
	for _, mappedBy := range []string{local.Relation.MappedBy, remoteMappedBy(remote)} {
		if mappedBy == "" {
			continue
		}
		isLocal, err := sideNamed(mappedBy, local.Entity, remote.Entity)
		if err != nil {
			return false, false, err
		}
		candidates = append(candidates, isLocal)
	}

	switch {
	case len(candidates) == 0:
		return false, false, nil
	case len(candidates) == 2 && candidates[0] != candidates[1]:
		return false, false, ErrMalformedRelation
	default:
		return candidates[0], true, nil
	}
}

func remoteMappedBy(remote Side) string {
	if remote.Relation == nil {
		return ""
	}
	return remote.Relation.MappedBy
}

// sideNamed matches a mapped-by type name against both sides, ancestors
// included, and returns true for the declaring side
func sideNamed(name string, local, remote *schema.EntityType) (bool, error) {
	if local.Name == name {
		return true, nil
	}
	if remote.Name == name {
		return false, nil
	}
	for _, parent := range local.AllParents() {
		if parent.Name == name {
			return true, nil
		}
	}
	for _, parent := range remote.AllParents() {
		if parent.Name == name {
			return false, nil
		}
	}
	return false, fmt.Errorf("%w: mapped by %s", ErrMalformedRelation, name)
}

// RelationUnique returns the canonical identifier of the relation, the same
// from both sides
func (r *Resolver) RelationUnique(t *schema.EntityType, name string) (string, error) {
	reverse, err := r.Reverse(t, name)
	if err != nil {
		return "", err
	}
	parts := []string{name, reverse}
	sort.Strings(parts)
	return strings.Join(parts, "_"), nil
}

// JoinTable returns the join table name of a many-to-many relation
func (r *Resolver) JoinTable(t *schema.EntityType, name string) (string, error) {
	local, remote, err := r.Sides(t, name)
	if err != nil {
		return "", err
	}
	if local.Relation.JoinTable != "" {
		return local.Relation.JoinTable, nil
	}
	if remote.Relation != nil && remote.Relation.JoinTable != "" {
		return remote.Relation.JoinTable, nil
	}
	return r.RelationUnique(t, name)
}

// JoinColumns returns the join table columns holding this side's id and the
// target's id. By default each column is named after the attribute that
// points at the entities it holds.
func (r *Resolver) JoinColumns(t *schema.EntityType, name string) (string, string, error) {
	local, remote, err := r.Sides(t, name)
	if err != nil {
		return "", "", err
	}
	reverse, err := r.Reverse(t, name)
	if err != nil {
		return "", "", err
	}

	own := local.Relation.AttributeColumnName
	other := local.Relation.JoinAttributeColumnName
	if remote.Relation != nil {
		if own == "" {
			own = remote.Relation.JoinAttributeColumnName
		}
		if other == "" {
			other = remote.Relation.AttributeColumnName
		}
	}
	if own == "" {
		own = reverse
	}
	if other == "" {
		other = name
	}
	if own == other {
		return "", "", fmt.Errorf("%w: join columns of %s.%s collide on %s", ErrMalformedRelation, t.Name, name, own)
	}
	return own, other, nil
}
