// Package contract decides whether a candidate record conforms to the
// canonical payload contract and stamps conforming records with provenance.
package contract

import (
	"errors"

	"doctrine/internal/doctrine/models"
)

// Contract is the pluggable rule set the validator enforces. It is supplied
// at construction, not hard-coded, so deployments can pin their own versions
// and field policies.
type Contract struct {
	// RecognizedVersions lists the schemaVersion strings the validator
	// accepts. Unknown versions are a validation failure, not a silent pass.
	RecognizedVersions []string

	// RequiredFields are the top-level fields every candidate record must
	// carry. Empty means the canonical five.
	RequiredFields []string

	// ForbiddenDataFields are field names banned from the data mapping
	// (secrets, raw credentials, and similar).
	ForbiddenDataFields []string
}

// DefaultRequiredFields is the canonical payload's required field list.
func DefaultRequiredFields() []string {
	return []string{
		models.FieldSourceID,
		models.FieldProcessID,
		models.FieldBlueprintID,
		models.FieldSchemaVersion,
		models.FieldData,
	}
}

func (c Contract) validate() error {
	if len(c.RecognizedVersions) == 0 {
		return errors.New("contract requires at least one recognized schema version")
	}
	for _, v := range c.RecognizedVersions {
		if v == "" {
			return errors.New("contract schema versions must be non-empty")
		}
	}
	return nil
}
