package query

import (
	"fmt"
	"strings"
)

// Operator represents a filter comparison
type Operator int

const (
	OpEqual Operator = iota
	OpLike
	OpGreaterThan
	OpLessThan
)

// String returns the string representation of the operator
func (o Operator) String() string {
	switch o {
	case OpEqual:
		return "="
	case OpLike:
		return "like"
	case OpGreaterThan:
		return ">"
	case OpLessThan:
		return "<"
	default:
		return "unknown"
	}
}

// ParseOperator converts a filter type name to an operator
func ParseOperator(s string) (Operator, error) {
	switch strings.ToLower(s) {
	case "equals", "=":
		return OpEqual, nil
	case "like":
		return OpLike, nil
	case "greater", ">":
		return OpGreaterThan, nil
	case "lesser", "<":
		return OpLessThan, nil
	default:
		return 0, fmt.Errorf("unknown filter type: %s", s)
	}
}

// Condition is a single filter on a field
type Condition struct {
	Field    string
	Operator Operator
	Value    interface{}
}

// PredicateGroup is a set of conditions of which at least one must hold.
// Groups are combined with AND.
type PredicateGroup struct {
	Conditions []*Condition
}

// NewPredicateGroup creates a group from the given conditions
func NewPredicateGroup(conditions ...*Condition) *PredicateGroup {
	return &PredicateGroup{Conditions: conditions}
}

// AddCondition adds a condition to the group
func (pg *PredicateGroup) AddCondition(cond *Condition) {
	pg.Conditions = append(pg.Conditions, cond)
}

// ToSQL renders the group against the columns of one table. Fields the table
// does not have compare as null and so never match.
func (pg *PredicateGroup) ToSQL(columns map[string]Column) (string, error) {
	if len(pg.Conditions) == 0 {
		return "", nil
	}

	parts := make([]string, 0, len(pg.Conditions))
	for _, cond := range pg.Conditions {
		sql, err := conditionToSQL(cond, columns)
		if err != nil {
			return "", err
		}
		parts = append(parts, sql)
	}

	if len(parts) == 1 {
		return parts[0], nil
	}
	return "(" + strings.Join(parts, " or ") + ")", nil
}

// conditionToSQL renders a condition with its value as an escaped literal
func conditionToSQL(cond *Condition, columns map[string]Column) (string, error) {
	column, ok := columns[cond.Field]
	field := cond.Field
	if !ok {
		field = "null"
	}

	switch cond.Operator {
	case OpLike:
		return field + " like " + Quote("%"+fmt.Sprint(cond.Value)+"%"), nil
	case OpEqual, OpGreaterThan, OpLessThan:
		literal, err := Literal(column.DataType, cond.Value)
		if err != nil {
			return "", fmt.Errorf("filter on %s: %w", cond.Field, err)
		}
		if literal == "null" && cond.Operator == OpEqual {
			return field + " is null", nil
		}
		return field + " " + cond.Operator.String() + " " + literal, nil
	default:
		return "", fmt.Errorf("unsupported operator: %v", cond.Operator)
	}
}
