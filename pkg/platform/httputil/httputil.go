// Package httputil maps domain errors onto HTTP responses and centralizes
// JSON encoding/decoding for handlers.
package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "doctrine/pkg/domain-errors"
)

var statusByCode = map[dErrors.Code]int{
	dErrors.CodeInvalidInput:      http.StatusBadRequest,
	dErrors.CodeBadRequest:        http.StatusBadRequest,
	dErrors.CodeUnauthorized:      http.StatusUnauthorized,
	dErrors.CodeForbidden:         http.StatusForbidden,
	dErrors.CodeNotFound:          http.StatusNotFound,
	dErrors.CodeConflict:          http.StatusConflict,
	dErrors.CodeInternal:          http.StatusInternalServerError,
	dErrors.CodeContractViolation: http.StatusUnprocessableEntity,
	dErrors.CodeToolBlacklisted:   http.StatusForbidden,
	dErrors.CodeSystemLocked:      http.StatusServiceUnavailable,
	dErrors.CodeRecoveryDenied:    http.StatusUnauthorized,
	dErrors.CodeSinkDispatch:      http.StatusBadGateway,
}

// WriteError renders err as a JSON error response. Internal errors omit the
// description so infrastructure details never leak to callers.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}

	body := map[string]string{"error": string(code)}
	if code != dErrors.CodeInternal {
		body["error_description"] = err.Error()
	}

	WriteJSON(w, status, body)
}

// WriteJSON renders v with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// DecodeJSON decodes the request body into T, rejecting unknown fields.
func DecodeJSON[T any](r *http.Request) (T, error) {
	var v T
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&v); err != nil {
		return v, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid request body")
	}
	return v, nil
}
