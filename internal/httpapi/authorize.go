package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// oidcScopes is the scope set for the initial login leg at the IdP.
var oidcScopes = []string{"openid", "profile"}

// Authorize handles GET /authorize/{tenant}: it captures the client's
// request, mints the outbound state and nonce, and redirects the browser to
// the upstream IdP.
func (s *Server) Authorize(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant")
	t, ok := s.Tenants.Lookup(tenantID)
	if !ok {
		writeOAuthError(w, http.StatusNotFound, "invalid_request", "unknown tenant")
		return
	}

	q := r.URL.Query()
	inbound := InboundAuthorizeContext{
		TenantID:            t.ID,
		State:               q.Get("state"),
		ClientID:            q.Get("client_id"),
		RedirectURI:         q.Get("redirect_uri"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
		Raw:                 q,
	}
	if inbound.RedirectURI == "" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "redirect_uri is required")
		return
	}

	outboundState := randomToken()
	outboundNonce := randomToken()

	// The entry written here carries no tokens; the callback adds the
	// staged agent token only if linking turns out to be required.
	s.Stores.OIDC.Put(outboundState, &OIDCOutbound{
		TenantID: t.ID,
		Inbound:  inbound,
	})

	authCfg := &oauth2.Config{
		ClientID:    s.Cfg.VSCodeClientID,
		RedirectURL: s.Cfg.CallbackURL(),
		Scopes:      oidcScopes,
		Endpoint: oauth2.Endpoint{
			AuthURL: s.Cfg.AuthorizeEndpoint(),
		},
	}
	authURL := authCfg.AuthCodeURL(outboundState, oauth2.SetAuthURLParam("nonce", outboundNonce))

	log.Debug().
		Str("tenant", t.ID).
		Str("client_id", inbound.ClientID).
		Str("outbound_state", outboundState[:8]).
		Msg("redirecting to IdP")

	http.Redirect(w, r, authURL, http.StatusFound)
}
