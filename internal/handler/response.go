package handler

import (
	"encoding/json"
	"net/http"
)

// writeJSON encodes v as the body of a successful response. Error responses
// go through internal/httperr instead, which is the single source for spec
// §7's {error, message, request_id, details?} shape.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
