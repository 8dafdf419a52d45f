package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"llmhub/internal/apperr"
	"llmhub/internal/schema"
)

const maxBodyBytes = 4 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err in the detail envelope. Errors without a code are
// reported as INTERNAL_ERROR.
func writeError(w http.ResponseWriter, err error) {
	e, ok := apperr.As(err)
	if !ok {
		e = apperr.New(apperr.CodeInternal, err.Error(), nil)
	}
	writeJSON(w, apperr.HTTPStatus(e.Code), schema.ErrorResponse{Detail: schema.ErrorDetail{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}})
}

func writeErrorCode(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, schema.ErrorResponse{Detail: schema.ErrorDetail{Code: code, Message: message}})
}

// decodeJSON reads one JSON object. An empty body leaves v untouched when
// allowEmpty is set.
func decodeJSON(r *http.Request, v any, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return nil
		}
		return apperr.InvalidRequest(fmt.Sprintf("invalid JSON body: %v", err))
	}
	return nil
}
