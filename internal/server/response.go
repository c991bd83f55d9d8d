package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/wuhu-dev/wuhu/internal/wuhuerr"
)

// errorBody is the wire shape spec.md §6 mandates for every error
// response: `{error: {kind, message}}`.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeAppError maps err's wuhuerr.Kind onto an HTTP status (falling
// back to 500 for untagged errors) and writes the `{error:{kind,
// message}}` body.
func writeAppError(w http.ResponseWriter, err error) {
	kind, ok := wuhuerr.KindOf(err)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: errorDetail{Kind: "internal", Message: err.Error()}})
		return
	}
	writeJSON(w, statusForKind(kind), errorBody{Error: errorDetail{Kind: string(kind), Message: err.Error()}})
}

func statusForKind(kind wuhuerr.Kind) int {
	switch kind {
	case wuhuerr.ConfigInvalid:
		return http.StatusBadRequest
	case wuhuerr.Tool, wuhuerr.Cancelled:
		return http.StatusOK
	case wuhuerr.Provider:
		return http.StatusBadGateway
	case wuhuerr.Transport:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: errorDetail{Kind: "invalid_request", Message: message}})
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusNotFound, errorBody{Error: errorDetail{Kind: "not_found", Message: message}})
}

// decodeJSON reads and unmarshals r's body into v, writing a
// bad-request response and returning false on failure so the caller
// can return immediately.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil {
		writeBadRequest(w, "missing request body")
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeBadRequest(w, "malformed JSON body: "+err.Error())
		return false
	}
	return true
}

// decodeJSONOptional decodes r's body into v if one was sent, and is
// a silent no-op otherwise — for endpoints like stop whose body is
// entirely optional fields.
func decodeJSONOptional(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if err == io.EOF {
		return nil
	}
	return err
}
