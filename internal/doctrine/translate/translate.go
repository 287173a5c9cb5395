// Package translate reshapes validated canonical records into the wire
// shapes the three sink families expect. Translators are stateless and pure:
// the same canonical record always produces the same sink shape, which keeps
// retries idempotent. They never re-validate; input is assumed to have passed
// contract validation.
package translate

import (
	"doctrine/internal/doctrine/models"
)

// SinkShape is a backend-specific wire shape produced by a translator.
type SinkShape any

// Translator reshapes one canonical record for a specific sink family.
type Translator interface {
	Translate(rec *models.CanonicalRecord) (SinkShape, error)
}

// Column names shared by the relational and columnar shapes.
const (
	ColRecordID      = "record_id"
	ColSourceID      = "source_id"
	ColProcessID     = "process_id"
	ColBlueprintID   = "blueprint_id"
	ColSchemaVersion = "schema_version"
	ColCreatedAt     = "created_at"
	ColStampedAt     = "stamped_at"
	ColData          = "data"
)
