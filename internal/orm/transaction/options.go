package transaction

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

var (
	// ErrMissingProperty is returned when a required connection property is absent
	ErrMissingProperty = errors.New("missing required connection property")

	// ErrInvalidProperty is returned when a connection property cannot be parsed
	ErrInvalidProperty = errors.New("invalid connection property")
)

const (
	// DriverSQLite3 is the cgo SQLite driver
	DriverSQLite3 = "sqlite3"
	// DriverSQLite is the pure Go SQLite driver
	DriverSQLite = "sqlite"
)

// IsolationLevel is the locking mode used when a transaction begins
type IsolationLevel int

const (
	// Deferred acquires locks on first access (SQLite default)
	Deferred IsolationLevel = iota
	// Immediate acquires the write lock when the transaction begins
	Immediate
	// Exclusive prevents other connections from reading during the transaction
	Exclusive
)

// String returns the string representation of the isolation level
func (l IsolationLevel) String() string {
	switch l {
	case Immediate:
		return "immediate"
	case Exclusive:
		return "exclusive"
	default:
		return "deferred"
	}
}

// ParseIsolationLevel parses an isolation level, case insensitive
func ParseIsolationLevel(s string) (IsolationLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "deferred":
		return Deferred, nil
	case "immediate":
		return Immediate, nil
	case "exclusive":
		return Exclusive, nil
	default:
		return Deferred, fmt.Errorf("%w: isolation_level %q", ErrInvalidProperty, s)
	}
}

// Options are the connection parameters
type Options struct {
	FilePath       string         `mapstructure:"file_path"`
	Autocommit     bool           `mapstructure:"autocommit"`
	IsolationLevel IsolationLevel `mapstructure:"-"`
	Driver         string         `mapstructure:"driver"`
}

// OptionsFromMap builds connection options from a raw parameter map.
// file_path is required; autocommit disables real transactions.
func OptionsFromMap(params map[string]interface{}) (Options, error) {
	var opts Options

	path, ok := params["file_path"].(string)
	if !ok || path == "" {
		return opts, fmt.Errorf("%w: file_path", ErrMissingProperty)
	}
	opts.FilePath = path

	if raw, ok := params["autocommit"]; ok {
		autocommit, err := toBool(raw)
		if err != nil {
			return opts, fmt.Errorf("%w: autocommit: %v", ErrInvalidProperty, err)
		}
		opts.Autocommit = autocommit
	}

	if raw, ok := params["isolation_level"]; ok && raw != nil {
		level, err := ParseIsolationLevel(fmt.Sprint(raw))
		if err != nil {
			return opts, err
		}
		opts.IsolationLevel = level
	}

	if raw, ok := params["driver"].(string); ok && raw != "" {
		opts.Driver = raw
	}

	return opts, opts.Validate()
}

// Validate checks the options before any connection attempt
func (o Options) Validate() error {
	if o.FilePath == "" {
		return fmt.Errorf("%w: file_path", ErrMissingProperty)
	}
	switch o.DriverName() {
	case DriverSQLite3, DriverSQLite:
		return nil
	default:
		return fmt.Errorf("%w: driver %q", ErrInvalidProperty, o.Driver)
	}
}

// DriverName returns the database/sql driver name
func (o Options) DriverName() string {
	if o.Driver == "" {
		return DriverSQLite3
	}
	return o.Driver
}

// DSN returns the data source name, carrying the locking mode of explicit
// transactions
func (o Options) DSN() string {
	if o.Autocommit || o.IsolationLevel == Deferred {
		return o.FilePath
	}

	params := url.Values{}
	params.Set("_txlock", o.IsolationLevel.String())

	separator := "?"
	if strings.Contains(o.FilePath, "?") {
		separator = "&"
	}
	return o.FilePath + separator + params.Encode()
}

func toBool(v interface{}) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		return strconv.ParseBool(b)
	case int:
		return b != 0, nil
	case int64:
		return b != 0, nil
	default:
		return false, fmt.Errorf("unsupported value %v", v)
	}
}
