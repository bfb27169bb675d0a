package httpapi

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// tokenRequest is the /token request body, accepted as form or JSON.
type tokenRequest struct {
	GrantType    string `json:"grant_type"`
	Code         string `json:"code"`
	ClientID     string `json:"client_id"`
	CodeVerifier string `json:"code_verifier"`
	RedirectURI  string `json:"redirect_uri"`
}

// Token handles POST /token: it consumes the single-use return code,
// verifies PKCE and the client binding, and returns the agent access token.
func (s *Server) Token(w http.ResponseWriter, r *http.Request) {
	req, ok := parseTokenRequest(w, r)
	if !ok {
		return
	}

	if req.GrantType != "authorization_code" {
		writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type", "only authorization_code is supported")
		return
	}
	if req.Code == "" || req.ClientID == "" || req.CodeVerifier == "" || req.RedirectURI == "" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "code, client_id, code_verifier and redirect_uri are required")
		return
	}

	// Single atomic read-and-delete: a code can never be redeemed twice
	rc, ok := s.Stores.Codes.Take(req.Code)
	if !ok {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "unknown, expired or already used code")
		return
	}

	if err := verifyPKCE(rc.Original.Get("code_challenge"), rc.Original.Get("code_challenge_method"), req.CodeVerifier); err != nil {
		log.Warn().Str("tenant", rc.TenantID).Msg("PKCE verification failed")
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", err.Error())
		return
	}

	if req.ClientID != rc.Original.Get("client_id") {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "client_id does not match the authorization request")
		return
	}

	resp := map[string]any{
		"access_token": rc.AccessToken,
		"token_type":   "Bearer",
	}
	if rc.Scope != "" {
		resp["scope"] = rc.Scope
	}
	if rc.ExpiresIn > 0 {
		resp["expires_in"] = rc.ExpiresIn
	}
	if rc.IDToken != "" {
		resp["id_token"] = rc.IDToken
	}

	// RFC 6749 §5.1: token responses must not be cached
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")

	log.Debug().Str("tenant", rc.TenantID).Msg("return code redeemed")
	writeJSON(w, http.StatusOK, resp)
}

// parseTokenRequest accepts form-urlencoded or JSON bodies.
func parseTokenRequest(w http.ResponseWriter, r *http.Request) (tokenRequest, bool) {
	var req tokenRequest

	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
			return req, false
		}
		return req, true
	}

	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed form body")
		return req, false
	}
	req.GrantType = r.PostForm.Get("grant_type")
	req.Code = r.PostForm.Get("code")
	req.ClientID = r.PostForm.Get("client_id")
	req.CodeVerifier = r.PostForm.Get("code_verifier")
	req.RedirectURI = r.PostForm.Get("redirect_uri")
	return req, true
}

// pkceError carries the invalid_grant descriptions for PKCE failures.
type pkceError string

func (e pkceError) Error() string { return string(e) }

// verifyPKCE enforces S256: the original request must have carried a
// code_challenge, and base64url(sha256(verifier)) must equal it.
func verifyPKCE(challenge, method, verifier string) error {
	if challenge == "" {
		return pkceError("authorization request did not include a code_challenge")
	}
	if method != "" && method != "S256" {
		return pkceError("only the S256 code_challenge_method is supported")
	}

	sum := sha256.Sum256([]byte(verifier))
	derived := base64.RawURLEncoding.EncodeToString(sum[:])
	if subtle.ConstantTimeCompare([]byte(derived), []byte(challenge)) != 1 {
		return pkceError("code_verifier does not match code_challenge")
	}
	return nil
}
