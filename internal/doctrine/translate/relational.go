package translate

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"doctrine/internal/doctrine/models"
)

// RelationalShape is a flat column/value list suitable for a parameterized
// insert or upsert. Columns and Values are positionally aligned. Nested data
// is serialized into a JSON-typed column rather than flattened into separate
// columns.
type RelationalShape struct {
	Table        string
	Columns      []string
	Values       []any
	ConflictKeys []string
}

// Upsert reports whether the shape carries upsert semantics.
func (s RelationalShape) Upsert() bool { return len(s.ConflictKeys) > 0 }

// RelationalTranslator targets relational sinks. Unresolved-field sentinels
// are a hard error here: typed columns cannot represent an ambiguous
// missing-vs-null distinction safely.
type RelationalTranslator struct {
	table        string
	conflictKeys []string
}

// RelationalOption configures a RelationalTranslator.
type RelationalOption func(*RelationalTranslator)

// WithUpsert enables upsert semantics. Conflict keys are mandatory for
// upserts; the relational sink needs them for its ON CONFLICT clause.
func WithUpsert(conflictKeys ...string) RelationalOption {
	return func(t *RelationalTranslator) {
		t.conflictKeys = conflictKeys
	}
}

// NewRelationalTranslator builds a translator targeting the given table.
func NewRelationalTranslator(table string, opts ...RelationalOption) (*RelationalTranslator, error) {
	if table == "" {
		return nil, errors.New("relational translator requires a target table")
	}
	t := &RelationalTranslator{table: table}
	for _, opt := range opts {
		opt(t)
	}
	if t.conflictKeys != nil && len(t.conflictKeys) == 0 {
		return nil, errors.New("upsert semantics require at least one conflict key")
	}
	return t, nil
}

func (t *RelationalTranslator) Translate(rec *models.CanonicalRecord) (SinkShape, error) {
	if field, found := findMissing(rec.Data, ""); found {
		return nil, fmt.Errorf("relational translation rejects unresolved field %q: typed columns cannot distinguish missing from null", field)
	}

	payload, err := marshalData(rec.Data)
	if err != nil {
		return nil, fmt.Errorf("serialize data column: %w", err)
	}

	return RelationalShape{
		Table: t.table,
		Columns: []string{
			ColRecordID, ColSourceID, ColProcessID, ColBlueprintID,
			ColSchemaVersion, ColCreatedAt, ColStampedAt, ColData,
		},
		Values: []any{
			rec.RecordID, rec.SourceID, rec.ProcessID, rec.BlueprintID,
			rec.SchemaVersion, rec.CreatedAt, rec.StampedAt, payload,
		},
		ConflictKeys: t.conflictKeys,
	}, nil
}

// marshalData encodes the data mapping deterministically (encoding/json
// sorts map keys), which keeps translation a pure function of the record.
func marshalData(data map[string]any) ([]byte, error) {
	if data == nil {
		data = map[string]any{}
	}
	return json.Marshal(data)
}

// findMissing walks data depth-first and returns the path of the first
// unresolved-field sentinel. Keys are visited in sorted order so the reported
// field is deterministic.
func findMissing(data map[string]any, prefix string) (string, bool) {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if field, found := findMissingValue(data[k], path); found {
			return field, true
		}
	}
	return "", false
}

func findMissingValue(value any, path string) (string, bool) {
	switch v := value.(type) {
	case map[string]any:
		return findMissing(v, path)
	case []any:
		for i, nested := range v {
			if field, found := findMissingValue(nested, fmt.Sprintf("%s[%d]", path, i)); found {
				return field, true
			}
		}
	default:
		if models.IsMissing(value) {
			return path, true
		}
	}
	return "", false
}
