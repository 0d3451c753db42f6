// Package respond writes the service's JSON responses.
package respond

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// CacheSourceHeader reports which cache tier (or a fresh pipeline run) produced a body.
const CacheSourceHeader = "X-Cache-Source"

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	body, err := json.Marshal(data)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
		http.Error(w, `{"error":"Internal Server Error","code":500}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(append(body, '\n'))
}

// WriteError writes a standardized error response
func WriteError(w http.ResponseWriter, statusCode int, message string) {
	WriteJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Code:    statusCode,
		Message: message,
	})
}

// WriteBadRequest writes a 400 Bad Request response
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message)
}

// WriteNotFound writes a 404 Not Found response
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message)
}

// WriteMethodNotAllowed writes a 405 with the allowed methods and a usage hint.
func WriteMethodNotAllowed(w http.ResponseWriter, allow, usage string) {
	w.Header().Set("Allow", allow)
	WriteError(w, http.StatusMethodNotAllowed, usage)
}

// WriteInternalError writes a 500 Internal Server Error response
func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, message)
}
