package contract

import (
	"context"
	"fmt"
	"reflect"

	"github.com/google/uuid"

	"doctrine/internal/doctrine/models"
	"doctrine/pkg/requestcontext"
)

// Validator checks candidate records against a Contract. It is pure over its
// inputs plus the configured contract; recording violations is the engine's
// job, never the validator's.
type Validator struct {
	contract  Contract
	versions  map[string]struct{}
	required  []string
	forbidden map[string]struct{}
}

// New constructs a validator for the given contract.
func New(contract Contract) (*Validator, error) {
	if err := contract.validate(); err != nil {
		return nil, err
	}

	required := contract.RequiredFields
	if len(required) == 0 {
		required = DefaultRequiredFields()
	}

	v := &Validator{
		contract:  contract,
		versions:  make(map[string]struct{}, len(contract.RecognizedVersions)),
		required:  required,
		forbidden: make(map[string]struct{}, len(contract.ForbiddenDataFields)),
	}
	for _, ver := range contract.RecognizedVersions {
		v.versions[ver] = struct{}{}
	}
	for _, f := range contract.ForbiddenDataFields {
		v.forbidden[f] = struct{}{}
	}
	return v, nil
}

// Validate checks record against the contract and, on success, returns the
// stamped canonical record. On failure it returns a ContractViolation
// enumerating every missing and invalid field found in one pass.
//
// The unresolved-field sentinel (models.Missing) passes validation here;
// whether it is coerced to null or rejected is decided per sink translator.
func (v *Validator) Validate(ctx context.Context, record map[string]any, toolID string) (*models.CanonicalRecord, error) {
	violation := &models.ContractViolation{Tool: toolID}

	if record == nil {
		violation.Reason = "record is nil"
		return nil, violation
	}

	for _, field := range v.required {
		val, ok := record[field]
		if !ok || val == nil {
			violation.MissingFields = append(violation.MissingFields, field)
			continue
		}
		if s, isStr := val.(string); isStr && s == "" {
			violation.MissingFields = append(violation.MissingFields, field)
		}
	}

	for _, field := range []string{models.FieldSourceID, models.FieldProcessID, models.FieldBlueprintID, models.FieldSchemaVersion} {
		if val, ok := record[field]; ok && val != nil {
			if _, isStr := val.(string); !isStr {
				violation.InvalidFields = append(violation.InvalidFields,
					fmt.Sprintf("%s: must be a string", field))
			}
		}
	}

	sourceID, _ := record[models.FieldSourceID].(string)
	processID, _ := record[models.FieldProcessID].(string)
	blueprintID, _ := record[models.FieldBlueprintID].(string)

	version, versionPresent := record[models.FieldSchemaVersion].(string)
	if versionPresent && version != "" {
		if _, recognized := v.versions[version]; !recognized {
			violation.InvalidFields = append(violation.InvalidFields,
				fmt.Sprintf("%s: unrecognized version %q", models.FieldSchemaVersion, version))
		}
	}

	var data map[string]any
	if raw, ok := record[models.FieldData]; ok && raw != nil {
		data, ok = raw.(map[string]any)
		if !ok {
			violation.InvalidFields = append(violation.InvalidFields,
				fmt.Sprintf("%s: must be a field-to-value mapping", models.FieldData))
		} else {
			v.checkData(data, violation)
		}
	}

	if len(violation.MissingFields) > 0 || len(violation.InvalidFields) > 0 {
		return nil, violation
	}

	now := requestcontext.Now(ctx)
	return &models.CanonicalRecord{
		RecordID:      uuid.NewString(),
		SourceID:      sourceID,
		ProcessID:     processID,
		BlueprintID:   blueprintID,
		SchemaVersion: version,
		Data:          data,
		CreatedAt:     now,
		StampedAt:     now,
	}, nil
}

// checkData rejects forbidden field names and values the contract cannot
// serialize: functions, channels, and circular references. Values are
// rejected, never silently coerced.
func (v *Validator) checkData(data map[string]any, violation *models.ContractViolation) {
	for name := range v.forbidden {
		if _, present := data[name]; present {
			violation.InvalidFields = append(violation.InvalidFields,
				fmt.Sprintf("%s.%s: field is forbidden by contract", models.FieldData, name))
		}
	}

	seen := make(map[uintptr]struct{})
	for name, value := range data {
		path := models.FieldData + "." + name
		if reason := checkValue(value, seen); reason != "" {
			violation.InvalidFields = append(violation.InvalidFields,
				fmt.Sprintf("%s: %s", path, reason))
		}
	}
}

// checkValue walks a data value looking for unserializable leaves and cycles.
// Returns a reason string on the first defect, "" when clean.
func checkValue(value any, seen map[uintptr]struct{}) string {
	if value == nil || models.IsMissing(value) {
		return ""
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return fmt.Sprintf("value of kind %s is not serializable", rv.Kind())
	case reflect.Map:
		ptr := rv.Pointer()
		if _, cyclic := seen[ptr]; cyclic {
			return "circular reference detected"
		}
		seen[ptr] = struct{}{}
		defer delete(seen, ptr)
		iter := rv.MapRange()
		for iter.Next() {
			if reason := checkValue(iter.Value().Interface(), seen); reason != "" {
				return reason
			}
		}
	case reflect.Slice:
		ptr := rv.Pointer()
		if _, cyclic := seen[ptr]; cyclic {
			return "circular reference detected"
		}
		seen[ptr] = struct{}{}
		defer delete(seen, ptr)
		for i := 0; i < rv.Len(); i++ {
			if reason := checkValue(rv.Index(i).Interface(), seen); reason != "" {
				return reason
			}
		}
	case reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if reason := checkValue(rv.Index(i).Interface(), seen); reason != "" {
				return reason
			}
		}
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return ""
		}
		return checkValue(rv.Elem().Interface(), seen)
	}
	return ""
}
