package translate

import (
	"doctrine/internal/doctrine/models"
)

// DocumentShape is the wire shape for document-oriented sinks: provenance
// fields flattened alongside the data payload, nested structure preserved.
type DocumentShape map[string]any

// DocumentTranslator targets document stores. Unresolved-field sentinels in
// data are coerced to explicit nulls rather than rejected; document stores
// cannot store an undefined marker but represent null natively.
type DocumentTranslator struct{}

func NewDocumentTranslator() *DocumentTranslator {
	return &DocumentTranslator{}
}

func (t *DocumentTranslator) Translate(rec *models.CanonicalRecord) (SinkShape, error) {
	doc := DocumentShape{
		ColRecordID:      rec.RecordID,
		ColSourceID:      rec.SourceID,
		ColProcessID:     rec.ProcessID,
		ColBlueprintID:   rec.BlueprintID,
		ColSchemaVersion: rec.SchemaVersion,
		ColCreatedAt:     rec.CreatedAt,
		ColStampedAt:     rec.StampedAt,
	}
	for name, value := range rec.Data {
		doc[name] = coerceMissing(value)
	}
	return doc, nil
}

// coerceMissing replaces unresolved-field sentinels with explicit nulls at
// every nesting level, copying containers so the canonical record is never
// mutated.
func coerceMissing(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, nested := range v {
			out[k] = coerceMissing(nested)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, nested := range v {
			out[i] = coerceMissing(nested)
		}
		return out
	default:
		if models.IsMissing(value) {
			return nil
		}
		return value
	}
}
