package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Error codes returned in the "code" field of error bodies.
const (
	codeBadRequest       = "BAD_REQUEST"
	codeNotFound         = "NOT_FOUND"
	codeVersionConflict  = "VERSION_CONFLICT"
	codeInternal         = "INTERNAL"
	codeTemplateMismatch = "TEMPLATE_MISMATCH"
	codeBodyTooLarge     = "BODY_TOO_LARGE"
)

// maxBodyBytes caps every request body. The largest legitimate body is a
// paragraph answer.
const maxBodyBytes = 64 << 10

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: message, Code: code})
}

// decodeBody decodes the JSON request body into v. On failure it writes the
// error response and returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, codeBodyTooLarge,
			fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		return false
	}
	writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body")
	return false
}
