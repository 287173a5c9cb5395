package translate

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"doctrine/internal/doctrine/models"
)

// ColumnType is the declared type of one analytic-table column.
type ColumnType string

const (
	TypeString    ColumnType = "STRING"
	TypeInteger   ColumnType = "INTEGER"
	TypeFloat     ColumnType = "FLOAT"
	TypeBool      ColumnType = "BOOL"
	TypeTimestamp ColumnType = "TIMESTAMP"
	TypeJSON      ColumnType = "JSON"
)

// ColumnarColumn declares one column of the analytic table.
type ColumnarColumn struct {
	Name string
	Type ColumnType
}

// ColumnarSchema declares the analytic table a batch is loaded into. Data
// fields must match a declared column by name and type; provenance columns
// are implicit and always present.
type ColumnarSchema struct {
	Table   string
	Columns []ColumnarColumn
}

// ColumnarRow is one analytic-table row: implicit provenance columns plus
// the schema-matched data fields.
type ColumnarRow map[string]any

// ColumnarTranslator targets columnar/analytic sinks. It is batch-oriented:
// a partially-invalid batch degrades gracefully, translating the valid subset
// and reporting per-record errors positionally aligned with the input.
type ColumnarTranslator struct {
	schema  ColumnarSchema
	columns map[string]ColumnType
}

// NewColumnarTranslator builds a translator for the declared schema.
func NewColumnarTranslator(schema ColumnarSchema) (*ColumnarTranslator, error) {
	if schema.Table == "" {
		return nil, errors.New("columnar translator requires a target table")
	}
	if len(schema.Columns) == 0 {
		return nil, errors.New("columnar translator requires a declared schema")
	}
	columns := make(map[string]ColumnType, len(schema.Columns))
	for _, col := range schema.Columns {
		if col.Name == "" {
			return nil, errors.New("columnar schema columns must be named")
		}
		switch col.Type {
		case TypeString, TypeInteger, TypeFloat, TypeBool, TypeTimestamp, TypeJSON:
		default:
			return nil, fmt.Errorf("column %q has unknown type %q", col.Name, col.Type)
		}
		columns[col.Name] = col.Type
	}
	return &ColumnarTranslator{schema: schema, columns: columns}, nil
}

// Schema returns the declared analytic-table schema.
func (t *ColumnarTranslator) Schema() ColumnarSchema { return t.schema }

// TranslateBatch translates records in input order, single-threaded so the
// error list stays positionally aligned. Valid rows are returned for
// dispatch; invalid records are reported, not silently dropped.
func (t *ColumnarTranslator) TranslateBatch(recs []*models.CanonicalRecord) ([]ColumnarRow, []models.BatchError) {
	rows := make([]ColumnarRow, 0, len(recs))
	var errs []models.BatchError
	for i, rec := range recs {
		row, err := t.translateOne(rec)
		if err != nil {
			errs = append(errs, models.BatchError{Index: i, Err: err})
			continue
		}
		rows = append(rows, row)
	}
	return rows, errs
}

// Translate adapts a single record to the shared Translator contract by
// running it as a batch of one.
func (t *ColumnarTranslator) Translate(rec *models.CanonicalRecord) (SinkShape, error) {
	row, err := t.translateOne(rec)
	if err != nil {
		return nil, err
	}
	return row, nil
}

func (t *ColumnarTranslator) translateOne(rec *models.CanonicalRecord) (ColumnarRow, error) {
	if rec == nil {
		return nil, errors.New("nil record")
	}

	row := ColumnarRow{
		ColRecordID:      rec.RecordID,
		ColSourceID:      rec.SourceID,
		ColProcessID:     rec.ProcessID,
		ColBlueprintID:   rec.BlueprintID,
		ColSchemaVersion: rec.SchemaVersion,
		ColCreatedAt:     rec.CreatedAt,
		ColStampedAt:     rec.StampedAt,
	}

	for name, value := range rec.Data {
		colType, declared := t.columns[name]
		if !declared {
			return nil, fmt.Errorf("field %q is not declared in schema for table %q", name, t.schema.Table)
		}
		if field, found := findMissingValue(value, name); found {
			return nil, fmt.Errorf("unresolved field %q: columnar columns cannot distinguish missing from null", field)
		}
		coerced, err := coerceColumn(value, colType)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		row[name] = coerced
	}

	// Declared columns absent from data load as explicit nulls.
	for name := range t.columns {
		if _, present := row[name]; !present {
			row[name] = nil
		}
	}

	return row, nil
}

// coerceColumn checks a data value against the declared column type. Numeric
// widening (int into FLOAT) is allowed; everything else must match exactly.
func coerceColumn(value any, colType ColumnType) (any, error) {
	if value == nil {
		return nil, nil
	}

	switch colType {
	case TypeString:
		if s, ok := value.(string); ok {
			return s, nil
		}
	case TypeInteger:
		switch v := value.(type) {
		case int:
			return int64(v), nil
		case int32:
			return int64(v), nil
		case int64:
			return v, nil
		case float64:
			if v == float64(int64(v)) {
				return int64(v), nil
			}
		}
	case TypeFloat:
		switch v := value.(type) {
		case float32:
			return float64(v), nil
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		}
	case TypeBool:
		if b, ok := value.(bool); ok {
			return b, nil
		}
	case TypeTimestamp:
		switch v := value.(type) {
		case time.Time:
			return v, nil
		case string:
			ts, err := time.Parse(time.RFC3339, v)
			if err == nil {
				return ts, nil
			}
		}
	case TypeJSON:
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("value is not JSON-serializable: %w", err)
		}
		return json.RawMessage(encoded), nil
	default:
		return nil, fmt.Errorf("unknown column type %q", colType)
	}

	return nil, fmt.Errorf("value of type %T does not match declared column type %s", value, colType)
}
