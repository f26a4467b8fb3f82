package crud

import (
	"context"
)

// readRows reads every row of a query into memory and closes the result
// set, so the single connection is free again before related entities are
// loaded
func (e *Engine) readRows(ctx context.Context, sql string, width int) ([][]interface{}, error) {
	rows, err := e.conn.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result [][]interface{}
	for rows.Next() {
		row := make([]interface{}, width)
		ptrs := make([]interface{}, width)
		for i := range row {
			ptrs[i] = &row[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// readColumn reads the single column of every row of a query
func (e *Engine) readColumn(ctx context.Context, sql string) ([]interface{}, error) {
	rows, err := e.readRows(ctx, sql, 1)
	if err != nil {
		return nil, err
	}
	values := make([]interface{}, len(rows))
	for i, row := range rows {
		values[i] = row[0]
	}
	return values, nil
}

// text returns a scanned text value as a string
func text(raw interface{}) string {
	switch v := raw.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}
