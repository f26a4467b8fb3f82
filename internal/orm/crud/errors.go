package crud

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"

	"github.com/hivesolutions/colony-plugins-sub002/internal/orm/entity"
)

// Common engine error types
var (
	// ErrNotFound is returned when no entity matches a lookup
	ErrNotFound = errors.New("entity not found")

	// ErrInvalidNextID is returned when the generator counter of a type could
	// not be advanced
	ErrInvalidNextID = errors.New("invalid next id")

	// ErrMissingID is returned when an entity without id is updated, removed
	// or referenced
	ErrMissingID = errors.New("entity has no id")

	// ErrMissingMandatoryValue is returned when a mandatory attribute is unset
	ErrMissingMandatoryValue = entity.ErrMissingMandatoryValue

	// ErrUniqueViolation is returned when a unique constraint is violated
	ErrUniqueViolation = errors.New("unique constraint violation")

	// ErrForeignKeyViolation is returned when a foreign key constraint is violated
	ErrForeignKeyViolation = errors.New("foreign key constraint violation")

	// ErrCheckViolation is returned when a check constraint is violated
	ErrCheckViolation = errors.New("check constraint violation")

	// ErrNotNullViolation is returned when a NOT NULL constraint is violated
	ErrNotNullViolation = errors.New("not null constraint violation")
)

// ConvertDBError translates constraint failures of both SQLite drivers into
// engine errors. The driver error stays in the chain.
func ConvertDBError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var code int
	var cgoErr sqlite3.Error
	var pureErr *sqlite.Error
	switch {
	case errors.As(err, &cgoErr):
		code = int(cgoErr.ExtendedCode)
	case errors.As(err, &pureErr):
		code = pureErr.Code()
	default:
		return err
	}

	switch code {
	case int(sqlite3.ErrConstraintUnique), int(sqlite3.ErrConstraintPrimaryKey),
		sqlitelib.SQLITE_CONSTRAINT_UNIQUE, sqlitelib.SQLITE_CONSTRAINT_PRIMARYKEY:
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	case int(sqlite3.ErrConstraintForeignKey), sqlitelib.SQLITE_CONSTRAINT_FOREIGNKEY:
		return fmt.Errorf("%w: %w", ErrForeignKeyViolation, err)
	case int(sqlite3.ErrConstraintCheck), sqlitelib.SQLITE_CONSTRAINT_CHECK:
		return fmt.Errorf("%w: %w", ErrCheckViolation, err)
	case int(sqlite3.ErrConstraintNotNull), sqlitelib.SQLITE_CONSTRAINT_NOTNULL:
		return fmt.Errorf("%w: %w", ErrNotNullViolation, err)
	}
	return err
}

// IsNotFound returns true if the error is ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUniqueViolation returns true if the error is ErrUniqueViolation
func IsUniqueViolation(err error) bool {
	return errors.Is(err, ErrUniqueViolation)
}

// IsForeignKeyViolation returns true if the error is ErrForeignKeyViolation
func IsForeignKeyViolation(err error) bool {
	return errors.Is(err, ErrForeignKeyViolation)
}

// IsValidationFailed returns true for attribute validation failures
func IsValidationFailed(err error) bool {
	return entity.IsValidationFailed(err)
}
