package httpapi

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vaultgate/vaultgate/internal/oauthx"
	"github.com/vaultgate/vaultgate/internal/tenant"
	"github.com/vaultgate/vaultgate/internal/vault"
)

// Callback handles GET /callback, the IdP redirect. It runs the exchange
// chain (code -> ID token -> ID-JAG -> agent token), then asks the vault
// for the downstream credential, branching into the linking flow when the
// user has no connected account.
func (s *Server) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	state := q.Get("state")

	if errCode := q.Get("error"); errCode != "" {
		// IdP refused; drop whatever flow state exists for this state
		if state != "" {
			s.Stores.OIDC.Delete(state)
		}
		writeOAuthError(w, http.StatusBadRequest, errCode, q.Get("error_description"))
		return
	}

	entry, ok := s.Stores.OIDC.Get(state)
	if !ok {
		writeOAuthError(w, http.StatusBadRequest, "invalid_state", "unknown or expired state")
		return
	}

	// The tenant must still resolve at every later step
	t, ok := s.Tenants.Lookup(entry.TenantID)
	if !ok {
		s.Stores.OIDC.Delete(state)
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "tenant no longer configured")
		return
	}

	idToken, err := s.IdP.CompleteOIDCLogin(ctx, s.Cfg.TokenEndpoint(), q.Get("code"),
		s.Cfg.CallbackURL(), oidcScopes, s.Cfg.VSCodeClientID, s.Cfg.VSCodeClientSecret)
	if err != nil {
		s.failFlow(w, state, "", err, "OIDC login exchange failed")
		return
	}

	idJAG, err := s.IdP.IDTokenToIDJAG(ctx, s.Cfg.TokenEndpoint(), t, idToken,
		s.Cfg.AgentClientID, s.Cfg.AgentPrivateKeyPath, s.Cfg.AgentKeyID)
	if err != nil {
		s.failFlow(w, state, "", err, "ID-JAG exchange failed")
		return
	}

	agentTok, err := s.IdP.IDJAGToAccessToken(ctx, t, idJAG,
		s.Cfg.AgentClientID, s.Cfg.AgentPrivateKeyPath, s.Cfg.AgentKeyID)
	if err != nil {
		s.failFlow(w, state, "", err, "agent token exchange failed")
		return
	}

	staged := &StagedAgentToken{
		AccessToken: agentTok.AccessToken,
		Scope:       agentTok.Scope,
		ExpiresIn:   agentTok.ExpiresIn,
		IDToken:     idToken,
	}

	_, err = s.Vault.Exchange(ctx, agentTok.AccessToken, t)
	switch {
	case err == nil:
		// Credential on file: finish the flow now
		s.Stores.OIDC.Delete(state)
		s.issueReturnCode(w, r, entry, staged)

	case errors.Is(err, vault.ErrLinkingRequired):
		s.beginLinking(w, r, state, entry, t, staged)

	default:
		s.Stores.OIDC.Delete(state)
		log.Warn().Err(err).Str("tenant", t.ID).Msg("vault exchange failed")
		writeOAuthError(w, http.StatusForbidden, "access_denied", "token vault rejected the exchange")
	}
}

// beginLinking starts the connected-accounts flow: it stages the agent
// token on the OIDC entry, records the link session, and only then
// redirects the browser to the vault's link URL. The writes must be
// visible before the redirect is issued.
func (s *Server) beginLinking(w http.ResponseWriter, r *http.Request, state string, entry *OIDCOutbound, t tenant.Config, staged *StagedAgentToken) {
	ls, err := s.Vault.BeginLink(r.Context(), staged.AccessToken, t, s.Cfg.LinkCallbackURL())
	if err != nil {
		s.Stores.OIDC.Delete(state)
		log.Warn().Err(err).Str("tenant", t.ID).Msg("failed to start account linking")
		writeOAuthError(w, http.StatusForbidden, "access_denied", "failed to start account linking")
		return
	}

	if !s.Stores.OIDC.Update(state, func(e *OIDCOutbound) *OIDCOutbound {
		e.Staged = staged
		return e
	}) {
		// Entry expired between the callback and now
		writeOAuthError(w, http.StatusBadRequest, "invalid_state", "flow expired")
		return
	}

	s.Stores.Links.Put(ls.State, &LinkSession{
		LinkState:   ls.State,
		OIDCState:   state,
		AuthSession: ls.AuthSession,
		UserToken:   staged.AccessToken,
		CreatedAt:   time.Now(),
	})

	log.Debug().
		Str("tenant", t.ID).
		Str("link_state", ls.State[:8]).
		Msg("redirecting to account linking")

	http.Redirect(w, r, ls.LinkURL, http.StatusFound)
}

// issueReturnCode mints the single-use code and sends the browser back to
// the client with the original state echoed byte-for-byte.
func (s *Server) issueReturnCode(w http.ResponseWriter, r *http.Request, entry *OIDCOutbound, staged *StagedAgentToken) {
	code := randomToken()
	s.Stores.Codes.Put(code, &ReturnCode{
		Code:          code,
		AccessToken:   staged.AccessToken,
		Scope:         staged.Scope,
		ExpiresIn:     staged.ExpiresIn,
		IDToken:       staged.IDToken,
		OriginalState: entry.Inbound.State,
		TenantID:      entry.TenantID,
		Original:      entry.Inbound.Raw,
	})

	redirect, err := url.Parse(entry.Inbound.RedirectURI)
	if err != nil {
		s.Stores.Codes.Delete(code)
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "invalid redirect_uri")
		return
	}
	params := redirect.Query()
	params.Set("code", code)
	params.Set("state", entry.Inbound.State)
	redirect.RawQuery = params.Encode()

	log.Debug().Str("tenant", entry.TenantID).Msg("flow complete, returning code to client")
	http.Redirect(w, r, redirect.String(), http.StatusFound)
}

// failFlow evicts the flow's correlation entries and maps an exchange-chain
// error onto a response: the upstream's own status when a response was
// received, 502 when nothing answered, 500 for local failures.
func (s *Server) failFlow(w http.ResponseWriter, oidcState, linkState string, err error, msg string) {
	if oidcState != "" {
		s.Stores.OIDC.Delete(oidcState)
	}
	if linkState != "" {
		s.Stores.Links.Delete(linkState)
	}

	var ue *oauthx.UpstreamError
	if errors.As(err, &ue) {
		if ue.Status == 0 {
			log.Error().Err(err).Msg(msg)
			writeOAuthError(w, http.StatusBadGateway, "temporarily_unavailable", msg)
			return
		}
		log.Warn().Err(err).Int("upstream_status", ue.Status).Msg(msg)
		status := ue.Status
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		code := ue.Code
		if code == "" {
			code = "server_error"
		}
		writeOAuthError(w, status, code, msg)
		return
	}

	log.Error().Err(err).Msg(msg)
	writeOAuthError(w, http.StatusInternalServerError, "server_error", "internal error")
}
