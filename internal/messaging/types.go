package messaging

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ojparkinson/gpx-ingest/internal/persistance"
)

// Batch is the JSON body of one published message. Row values follow the
// column order; unset values are null.
type Batch struct {
	Table   string          `json:"table"`
	Columns []Column        `json:"columns"`
	Rows    [][]interface{} `json:"rows"`
}

type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Role string `json:"role"`
}

func encodeBatch(buf *bytes.Buffer, table string, schema []persistance.ColumnSchema, rows []persistance.Row) error {
	batch := Batch{
		Table:   table,
		Columns: make([]Column, 0, len(schema)),
		Rows:    make([][]interface{}, 0, len(rows)),
	}

	for _, col := range schema {
		batch.Columns = append(batch.Columns, Column{
			Name: col.Name,
			Type: col.DataType.String(),
			Role: col.SemanticType.String(),
		})
	}

	for i, row := range rows {
		if len(row) != len(schema) {
			return fmt.Errorf("row %d: %w", i, persistance.ErrSchemaMismatch)
		}

		values := make([]interface{}, len(row))
		for j, v := range row {
			if v == nil || v.Type() != schema[j].DataType {
				return fmt.Errorf("row %d: %w: column %s", i, persistance.ErrSchemaMismatch, schema[j].Name)
			}
			values[j] = jsonValue(v)
		}
		batch.Rows = append(batch.Rows, values)
	}

	if err := json.NewEncoder(buf).Encode(batch); err != nil {
		return fmt.Errorf("error marshaling batch to JSON: %w", err)
	}
	return nil
}

func jsonValue(v persistance.Value) interface{} {
	switch v := v.(type) {
	case persistance.Null:
		return nil
	case persistance.StringValue:
		return string(v)
	case persistance.Uint32Value:
		return uint32(v)
	case persistance.Uint64Value:
		return uint64(v)
	case persistance.Float64Value:
		return float64(v)
	case persistance.TimestampSecondValue:
		return int64(v)
	default:
		return nil
	}
}
