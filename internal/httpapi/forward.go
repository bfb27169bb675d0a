package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/vaultgate/vaultgate/internal/vault"
)

// responseHeaderAllowlist is the fixed set of backend response headers
// relayed to the client.
var responseHeaderAllowlist = []string{
	"Content-Type",
	"Cache-Control",
	"Etag",
	"Last-Modified",
}

// Forward handles ANY /{tenant}/{rest...}: it validates the inbound
// bearer, swaps it for the vaulted downstream credential, and relays the
// request to the tenant backend.
func (s *Server) Forward(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant")
	rest := chi.URLParam(r, "*")

	t, ok := s.Tenants.Lookup(tenantID)
	if !ok {
		writeProxyError(w, http.StatusNotFound, "not_found", "unknown tenant")
		return
	}

	metadataURL := s.Cfg.ProxyBaseURL + "/.well-known/oauth-protected-resource/" + t.ID

	bearer, denial := s.Auth.Authorize(r.Context(), t, r.Header.Get("Authorization"), r.Method)
	if denial != nil {
		w.Header().Set("WWW-Authenticate", wwwAuthenticate(denial.Code, denial.Message, metadataURL))
		writeProxyError(w, denial.Status, denial.Code, denial.Message)
		return
	}

	outboundAuth := ""
	if t.VaultConnection != "" {
		downstream, err := s.Vault.Exchange(r.Context(), bearer, t)
		switch {
		case err == nil:
			outboundAuth = "Bearer " + downstream
		case errors.Is(err, vault.ErrLinkingRequired):
			w.Header().Set("WWW-Authenticate", wwwAuthenticate("invalid_token", "Account linking required", metadataURL))
			writeProxyError(w, http.StatusUnauthorized, "linking_required", "Account linking required")
			return
		default:
			log.Warn().Err(err).Str("tenant", t.ID).Msg("request-time vault exchange failed")
			writeProxyError(w, http.StatusForbidden, "access_denied", "failed to obtain downstream credential")
			return
		}
	}

	outReq, err := s.buildBackendRequest(r, t.BackendURL, rest, outboundAuth)
	if err != nil {
		writeProxyError(w, http.StatusInternalServerError, "internal_error", "failed to build backend request")
		return
	}

	resp, err := s.ForwardClient.Do(outReq)
	if err != nil {
		status, code := classifyForwardError(err)
		log.Warn().Err(err).Str("tenant", t.ID).Int("status", status).Msg("backend request failed")
		writeProxyError(w, status, code, "backend request failed")
		return
	}
	defer resp.Body.Close()

	for _, h := range responseHeaderAllowlist {
		if v := resp.Header.Get(h); v != "" {
			w.Header().Set(h, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		log.Debug().Err(err).Msg("backend response relay interrupted")
	}
}

// buildBackendRequest maps the inbound request onto the backend: same
// method, the wildcard remainder as the path, query forwarded verbatim,
// body only for POST/PUT/PATCH. The inbound Authorization and Host headers
// never cross.
func (s *Server) buildBackendRequest(r *http.Request, backendURL, rest, outboundAuth string) (*http.Request, error) {
	target := strings.TrimRight(backendURL, "/")
	if rest != "" {
		target += "/" + rest
	}
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	if _, err := url.Parse(target); err != nil {
		return nil, err
	}

	var body io.Reader
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		body = r.Body
	}

	outReq, err := http.NewRequestWithContext(r.Context(), r.Method, target, body)
	if err != nil {
		return nil, err
	}

	if ct := r.Header.Get("Content-Type"); ct != "" {
		outReq.Header.Set("Content-Type", ct)
	}
	if accept := r.Header.Get("Accept"); accept != "" {
		outReq.Header.Set("Accept", accept)
	}
	if outboundAuth != "" {
		outReq.Header.Set("Authorization", outboundAuth)
	}
	return outReq, nil
}

// classifyForwardError maps transport failures: refused connections are
// 502, timeouts and cancellations 504, anything else 500.
func classifyForwardError(err error) (int, string) {
	var ne interface{ Timeout() bool }
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return http.StatusBadGateway, "bad_gateway"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout, "gateway_timeout"
	case errors.As(err, &ne) && ne.Timeout():
		return http.StatusGatewayTimeout, "gateway_timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
