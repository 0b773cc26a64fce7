package persistance

import (
	"context"
	"errors"
	"fmt"
)

// ErrSchemaMismatch is returned when a row value does not fit its column.
var ErrSchemaMismatch = errors.New("row does not match schema")

// Writer submits one batch of rows for a table and reports how many rows
// the store accepted. Connection handling, auth, TLS and retries belong to
// the implementation.
type Writer interface {
	Submit(ctx context.Context, table string, schema []ColumnSchema, rows []Row) (uint32, error)
	Close(ctx context.Context) error
}

// WriteError wraps a transport failure returned while submitting a batch.
type WriteError struct {
	Table string
	Rows  int
	Err   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write %d rows to %s: %v", e.Rows, e.Table, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

func checkRow(schema []ColumnSchema, row Row) error {
	if len(schema) != len(row) {
		return fmt.Errorf("%w: schema has %d columns, row has %d values", ErrSchemaMismatch, len(schema), len(row))
	}
	for i, col := range schema {
		v := row[i]
		if v == nil {
			return fmt.Errorf("%w: column %s has no value", ErrSchemaMismatch, col.Name)
		}
		if v.Type() != col.DataType {
			return fmt.Errorf("%w: column %s is %v, value is %v", ErrSchemaMismatch, col.Name, col.DataType, v.Type())
		}
	}
	return nil
}

// timestampOf returns the designated timestamp of a checked row.
func timestampOf(schema []ColumnSchema, row Row) (int64, error) {
	for i, col := range schema {
		if col.SemanticType != Timestamp {
			continue
		}
		ts, ok := row[i].(TimestampSecondValue)
		if !ok {
			return 0, fmt.Errorf("%w: timestamp column %s is unset", ErrSchemaMismatch, col.Name)
		}
		return int64(ts), nil
	}
	return 0, fmt.Errorf("%w: no timestamp column", ErrSchemaMismatch)
}
