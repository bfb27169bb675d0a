package httpapi

import (
	"net/http"
	"time"
)

// defaultClientRedirectURIs are the redirect URIs preregistered for the
// recognized editor client.
var defaultClientRedirectURIs = []string{
	"vscode://vscode.git/authorize",
	"http://127.0.0.1:33418/callback",
	"http://localhost:33418/callback",
}

// Register handles POST /register, the dynamic client registration stub
// (RFC 7591). The proxy recognizes exactly one client identity and returns
// its preconfigured record regardless of the request body.
func (s *Server) Register(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusCreated, map[string]any{
		"client_id":                  s.Cfg.VSCodeClientID,
		"client_id_issued_at":        time.Now().Unix(),
		"client_name":                "vaultgate proxy client",
		"token_endpoint_auth_method": "none",
		"grant_types":                []string{"authorization_code", "refresh_token"},
		"response_types":             []string{"code"},
		"redirect_uris":              defaultClientRedirectURIs,
	})
}
