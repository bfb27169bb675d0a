package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
)

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode json response")
	}
}

// writeOAuthError writes the RFC 6749 error shape used by the flow endpoints
func writeOAuthError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, map[string]string{
		"error":             code,
		"error_description": description,
	})
}

// writeProxyError writes the {error, message} shape used by the forwarder
func writeProxyError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error":   code,
		"message": message,
	})
}

// wwwAuthenticate builds the Bearer challenge for 401/403 responses from
// the resource path, pointing clients at the protected-resource metadata
// (RFC 9728).
func wwwAuthenticate(code, description, metadataURL string) string {
	return fmt.Sprintf("Bearer error=%q, error_description=%q, resource_metadata=%q",
		code, description, metadataURL)
}
