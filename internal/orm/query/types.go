// Package query builds the SQLite statements of the entity manager: table
// definitions, entity writes, join table rows and polymorphic selects. Values
// are rendered as escaped literals.
package query

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hivesolutions/colony-plugins-sub002/internal/orm/schema"
)

const (
	// SQLText is the storage type of textual data
	SQLText = "text"
	// SQLNumeric is the storage type of numbers and dates
	SQLNumeric = "numeric"

	// DiscriminatorColumn carries the concrete type name in polymorphic selects
	DiscriminatorColumn = "_class"
)

// ErrUnsupportedValue is returned when a value has no literal representation
var ErrUnsupportedValue = errors.New("unsupported value")

// SQLType maps a data type onto its storage type
func SQLType(d schema.DataType) string {
	if d.IsNumeric() {
		return SQLNumeric
	}
	return SQLText
}

// EscapeOptions selects the optional escapes applied on top of quote doubling
type EscapeOptions struct {
	Backslash   bool
	DoubleQuote bool
}

// Escape doubles single quotes
func Escape(s string) string {
	return EscapeOptions{}.Escape(s)
}

// Escape doubles single quotes and applies the selected optional escapes
func (o EscapeOptions) Escape(s string) string {
	if o.Backslash {
		s = strings.ReplaceAll(s, `\`, `\\`)
	}
	if o.DoubleQuote {
		s = strings.ReplaceAll(s, `"`, `\"`)
	}
	return strings.ReplaceAll(s, "'", "''")
}

// Quote returns s as an escaped string literal
func Quote(s string) string {
	return "'" + Escape(s) + "'"
}

// decimalLiteral matches the numeric literals SQLite reads as numbers
var decimalLiteral = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// Literal renders v as a SQL literal for a column of data type d. Dates are
// stored as UTC Unix timestamps.
func Literal(d schema.DataType, v interface{}) (string, error) {
	if v == nil {
		return "null", nil
	}

	switch value := v.(type) {
	case string:
		if d.IsNumeric() && d != schema.TypeDate {
			if decimalLiteral.MatchString(value) {
				return value, nil
			}
		}
		return Quote(value), nil
	case []byte:
		return Quote(string(value)), nil
	case bool:
		if value {
			return "1", nil
		}
		return "0", nil
	case int:
		return strconv.FormatInt(int64(value), 10), nil
	case int8:
		return strconv.FormatInt(int64(value), 10), nil
	case int16:
		return strconv.FormatInt(int64(value), 10), nil
	case int32:
		return strconv.FormatInt(int64(value), 10), nil
	case int64:
		return strconv.FormatInt(value, 10), nil
	case uint:
		return strconv.FormatUint(uint64(value), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(value), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(value), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(value), 10), nil
	case uint64:
		return strconv.FormatUint(value, 10), nil
	case float32:
		return formatFloat(float64(value)), nil
	case float64:
		return formatFloat(value), nil
	case time.Time:
		return strconv.FormatInt(value.UTC().Unix(), 10), nil
	case *time.Time:
		if value == nil {
			return "null", nil
		}
		return strconv.FormatInt(value.UTC().Unix(), 10), nil
	}

	return "", fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
}

func formatFloat(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "null"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// FromStorage converts a value scanned from SQLite back into the in-memory
// representation of data type d
func FromStorage(d schema.DataType, raw interface{}) (interface{}, error) {
	if raw == nil {
		return nil, nil
	}

	switch d {
	case schema.TypeText, schema.TypeString:
		switch v := raw.(type) {
		case string:
			return v, nil
		case []byte:
			return string(v), nil
		default:
			return fmt.Sprint(v), nil
		}

	case schema.TypeData:
		switch v := raw.(type) {
		case []byte:
			return v, nil
		case string:
			return []byte(v), nil
		default:
			return []byte(fmt.Sprint(v)), nil
		}

	case schema.TypeInteger:
		switch v := raw.(type) {
		case int64:
			return v, nil
		case float64:
			return int64(v), nil
		case string:
			return strconv.ParseInt(v, 10, 64)
		case []byte:
			return strconv.ParseInt(string(v), 10, 64)
		}

	case schema.TypeFloat:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case int64:
			return float64(v), nil
		case string:
			return strconv.ParseFloat(v, 64)
		case []byte:
			return strconv.ParseFloat(string(v), 64)
		}

	case schema.TypeDate:
		switch v := raw.(type) {
		case int64:
			return time.Unix(v, 0).UTC(), nil
		case float64:
			sec, frac := math.Modf(v)
			return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
		case time.Time:
			return v.UTC(), nil
		case string:
			sec, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, err
			}
			return time.Unix(int64(sec), 0).UTC(), nil
		}

	default:
		return raw, nil
	}

	return nil, fmt.Errorf("%w: cannot read %T as %s", ErrUnsupportedValue, raw, d)
}
