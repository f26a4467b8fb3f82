package crud

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hivesolutions/colony-plugins-sub002/internal/orm/query"
	"github.com/hivesolutions/colony-plugins-sub002/internal/orm/schema"
	"github.com/hivesolutions/colony-plugins-sub002/internal/orm/transaction"
)

const (
	// GeneratorTable is the table holding the next id of every counter
	GeneratorTable = "generator"

	generatorDefinition = "create table " + GeneratorTable + "(name text, next_id numeric)"
)

// GenerateID produces a new value for the generated attribute attr of t.
// Table strategy counters are named after the type declaring attr, so a
// whole hierarchy shares one sequence.
func (e *Engine) GenerateID(ctx context.Context, t *schema.EntityType, attr *schema.Attribute) (interface{}, error) {
	var (
		next int64
		err  error
	)

	switch attr.Generator {
	case schema.GeneratorUnique:
		next = e.unique.next()
	default:
		name := t.Name
		if owner := attr.Owner(); owner != nil {
			name = owner.Name
		}
		next, err = e.counters.Next(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to generate %s.%s: %w", t.Name, attr.Name, err)
		}
	}

	e.logger.Debug("generated id",
		zap.String("entity", t.Name),
		zap.String("attribute", attr.Name),
		zap.Stringer("generator", attr.Generator),
		zap.Int64("value", next),
	)
	return convertID(attr.Type, next), nil
}

// convertID returns the generated value in the representation of d
func convertID(d schema.DataType, v int64) interface{} {
	switch d {
	case schema.TypeText, schema.TypeString, schema.TypeData:
		return strconv.FormatInt(v, 10)
	case schema.TypeFloat:
		return float64(v)
	default:
		return v
	}
}

// uniqueSource derives strictly increasing ids from the clock
type uniqueSource struct {
	mu   sync.Mutex
	last int64
}

func (u *uniqueSource) next() int64 {
	u.mu.Lock()
	defer u.mu.Unlock()

	now := time.Now().UnixMicro()
	if now <= u.last {
		now = u.last + 1
	}
	u.last = now
	return now
}

// tableCounter keeps counters in the generator table of the database
type tableCounter struct {
	conn *transaction.Connection
}

// Next returns the next value of the counter name. A missing counter starts
// at 1.
func (c *tableCounter) Next(ctx context.Context, name string) (int64, error) {
	var next int64
	err := c.conn.WithTransaction(ctx, func(ctx context.Context) error {
		// 1. Make sure the table exists and hold the write lock
		if err := ensureGeneratorTable(ctx, c.conn); err != nil {
			return err
		}
		if err := lockTable(ctx, c.conn, GeneratorTable, "name"); err != nil {
			return err
		}

		// 2. Read the current value, seeding the counter when absent
		var current sql.NullInt64
		err := c.conn.QueryRow(ctx, "select next_id from "+GeneratorTable+" where name = "+query.Quote(name)).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			next = 1
			_, err := c.conn.Exec(ctx, query.Insert(GeneratorTable, []query.Assignment{
				{Column: "name", Literal: query.Quote(name)},
				{Column: "next_id", Literal: "2"},
			}))
			return err
		}
		if err != nil {
			return err
		}
		if !current.Valid {
			return fmt.Errorf("%w: %s has no value", ErrInvalidNextID, name)
		}

		// 3. Advance the counter
		result, err := c.conn.Exec(ctx, "update "+GeneratorTable+" set next_id = next_id + 1 where name = "+query.Quote(name))
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("%w: %s", ErrInvalidNextID, name)
		}
		next = current.Int64
		return nil
	})
	return next, err
}

// ensureGeneratorTable creates the generator table when missing
func ensureGeneratorTable(ctx context.Context, conn *transaction.Connection) error {
	var name string
	err := conn.QueryRow(ctx, query.TableExists(GeneratorTable)).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		_, err = conn.Exec(ctx, generatorDefinition)
		return err
	}
	return err
}
