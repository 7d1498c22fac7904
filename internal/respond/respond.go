// Package respond holds the relay's JSON response helpers.
package respond

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// ErrorResponse is the wire shape for every relay error: a short error string
// plus an optional upstream detail.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// WriteError writes the standard {error, detail?} error body.
func WriteError(w http.ResponseWriter, statusCode int, errMsg, detail string) {
	WriteJSON(w, statusCode, ErrorResponse{Error: errMsg, Detail: detail})
}
