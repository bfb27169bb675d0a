package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ProtectedResourceMetadata serves the RFC 9728 protected resource
// metadata for a tenant's forwarded surface.
func (s *Server) ProtectedResourceMetadata(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant")
	t, ok := s.Tenants.Lookup(tenantID)
	if !ok {
		writeProxyError(w, http.StatusNotFound, "not_found", "unknown tenant")
		return
	}

	resource := s.Cfg.ProxyBaseURL + "/" + t.ID
	if rest := chi.URLParam(r, "*"); rest != "" {
		resource += "/" + rest
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"resource":              resource,
		"authorization_servers": []string{s.Cfg.ProxyBaseURL + "/" + t.ID},
		"resource_name":         t.Name,
	})
}

// AuthorizationServerMetadata serves the RFC 8414 authorization server
// metadata the proxy presents to clients on behalf of a tenant.
func (s *Server) AuthorizationServerMetadata(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant")
	t, ok := s.Tenants.Lookup(tenantID)
	if !ok {
		writeProxyError(w, http.StatusNotFound, "not_found", "unknown tenant")
		return
	}

	base := s.Cfg.ProxyBaseURL
	scopes := append([]string{"openid", "profile"}, t.ExternalScopes...)

	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                                base + "/" + t.ID,
		"authorization_endpoint":                base + "/authorize/" + t.ID,
		"token_endpoint":                        base + "/token",
		"jwks_uri":                              t.JWKSURL,
		"registration_endpoint":                 base + "/register",
		"scopes_supported":                      scopes,
		"response_types_supported":              []string{"code"},
		"response_modes_supported":              []string{"query"},
		"grant_types_supported":                 []string{"authorization_code"},
		"token_endpoint_auth_methods_supported": []string{"none", "client_secret_basic", "client_secret_post"},
		"code_challenge_methods_supported":      []string{"S256"},
		"protected_resources":                   []string{base + "/" + t.ID},
	})
}
