package backend

import (
	"context"
)

// GatewayError is the structured form of a driver-level failure. It is
// the only error kind the data gateway lets out, so callers can carry
// the driver's message into a response body without inspecting driver
// internals.
type GatewayError struct {
	Message string
}

func (e *GatewayError) Error() string {
	return e.Message
}

// execResult is the affected-row metadata of a write statement.
type execResult struct {
	AffectedRows int64 `json:"affected_rows"`
}

// queryRows runs a statement under the configured timeout and returns
// all rows as generic objects. Byte slices are normalized to strings so
// text columns marshal as JSON strings, not base64.
func (b *Backend) queryRows(ctx context.Context, stmt *statement) ([]map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, b.db.Timeout)
	defer cancel()

	rows, err := b.db.QueryContext(ctx, stmt.sql, stmt.params...)
	if err != nil {
		return nil, &GatewayError{Message: err.Error()}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, &GatewayError{Message: err.Error()}
	}

	result := []map[string]interface{}{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, &GatewayError{Message: err.Error()}
		}
		row := make(map[string]interface{}, len(columns))
		for i, column := range columns {
			row[column] = normalizeValue(values[i])
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &GatewayError{Message: err.Error()}
	}
	return result, nil
}

// execStatement runs a write statement under the configured timeout.
func (b *Backend) execStatement(ctx context.Context, stmt *statement) (*execResult, error) {
	ctx, cancel := context.WithTimeout(ctx, b.db.Timeout)
	defer cancel()

	result, err := b.db.ExecContext(ctx, stmt.sql, stmt.params...)
	if err != nil {
		return nil, &GatewayError{Message: err.Error()}
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, &GatewayError{Message: err.Error()}
	}
	return &execResult{AffectedRows: affected}, nil
}

func normalizeValue(value interface{}) interface{} {
	if bytes, ok := value.([]byte); ok {
		return string(bytes)
	}
	return value
}
