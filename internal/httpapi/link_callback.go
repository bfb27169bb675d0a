package httpapi

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

// ConnectedAccountCallback handles GET /connected_account_callback, the
// return leg of the vault's linking flow. It completes the link, retrieves
// the staged agent token, and finishes the original authorization.
func (s *Server) ConnectedAccountCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	state := q.Get("state")
	connectCode := q.Get("connect_code")

	// Link sessions are consumed on arrival, success or not
	ls, ok := s.Stores.Links.Take(state)
	if !ok {
		writeOAuthError(w, http.StatusBadRequest, "invalid_state", "unknown or expired link state")
		return
	}

	if connectCode == "" {
		s.Stores.OIDC.Delete(ls.OIDCState)
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "connect_code is required")
		return
	}

	err := s.Vault.CompleteLink(r.Context(), ls.AuthSession, connectCode, s.Cfg.LinkCallbackURL(), ls.UserToken)
	if err != nil {
		s.failFlow(w, ls.OIDCState, "", err, "failed to complete account linking")
		return
	}

	entry, ok := s.Stores.OIDC.Take(ls.OIDCState)
	if !ok {
		writeOAuthError(w, http.StatusBadRequest, "invalid_state", "originating flow expired")
		return
	}
	if entry.Staged == nil {
		log.Error().Str("tenant", entry.TenantID).Msg("link completed but no staged agent token")
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	log.Debug().Str("tenant", entry.TenantID).Msg("account linked")
	s.issueReturnCode(w, r, entry, entry.Staged)
}
