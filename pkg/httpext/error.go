package httpext

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// ErrorResponse represents a standardised JSON error response. Message is the
// human readable reason clients show to the user.
type ErrorResponse struct {
	Error            string `json:"error"`
	Message          string `json:"message"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// JsonError writes a JSON error response with the specified status code
func JsonError(w http.ResponseWriter, message string, code int) {
	JsonErrorWithDetails(w, code, ErrorResponse{
		Error:   errorCode(code),
		Message: message,
	})
}

// JsonErrorWithDetails writes a detailed JSON error response
func JsonErrorWithDetails(w http.ResponseWriter, code int, resp ErrorResponse) {
	if resp.Error == "" {
		resp.Error = errorCode(code)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Str("component", "HANDLER").Err(err).Msg("Failed to encode error response")
	}
}

// JsonResponse writes v as a JSON body with the specified status code
func JsonResponse(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Str("component", "HANDLER").Err(err).Msg("Failed to encode response")
	}
}

// errorCode turns a status into a snake_case code, e.g. 429 -> "too_many_requests".
func errorCode(code int) string {
	text := http.StatusText(code)
	if text == "" {
		return "error"
	}
	return strings.ReplaceAll(strings.ToLower(text), " ", "_")
}
