package httpapi

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vaultgate/vaultgate/internal/auth"
	"github.com/vaultgate/vaultgate/internal/config"
	"github.com/vaultgate/vaultgate/internal/idp"
	"github.com/vaultgate/vaultgate/internal/tenant"
	"github.com/vaultgate/vaultgate/internal/vault"
)

const (
	testAgentToken = "agent-token-1"
	testIDToken    = "idt-123"
	testIDJAG      = "id-jag-1"
	testDownstream = "downstream-1"
	testKid        = "test-key-1"
)

// env is the fake world a flow test runs in: an IdP, a vault, and a
// backend, plus a fully wired Server.
type env struct {
	t       *testing.T
	srv     *Server
	handler http.Handler

	idpSrv   *httptest.Server
	vaultSrv *httptest.Server

	key *rsa.PrivateKey

	// needsLinking makes the vault's federated exchange report a missing
	// connected account until linking completes.
	needsLinking bool
	linked       bool

	// vaultDeny makes the federated exchange fail outright
	vaultDeny bool

	// lastConnectState captures the state the vault saw at link start
	lastConnectState string

	// completeCalled counts complete-link calls
	completeCalled int
}

// newEnv builds the fake environment. The tenant issuer and JWKS URL point
// into the fake IdP.
func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{t: t}

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	e.key = key

	keyPath := filepath.Join(t.TempDir(), "agent.pem")
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(block), 0o600); err != nil {
		t.Fatalf("failed to write key: %v", err)
	}

	e.idpSrv = httptest.NewServer(http.HandlerFunc(e.idpHandler))
	t.Cleanup(e.idpSrv.Close)
	e.vaultSrv = httptest.NewServer(http.HandlerFunc(e.vaultHandler))
	t.Cleanup(e.vaultSrv.Close)

	issuer := e.idpSrv.URL + "/oauth2/aus123"
	tenants := tenant.FromConfigs([]tenant.Config{
		{
			ID:              "github",
			Name:            "GitHub",
			BackendURL:      "http://backend.invalid",
			Issuer:          issuer,
			JWKSURL:         issuer + "/v1/keys",
			VaultConnection: "github",
			ExternalScopes:  []string{"repo"},
		},
		{
			ID:         "plain",
			Name:       "No Vault",
			BackendURL: "http://backend.invalid",
			Issuer:     issuer,
			JWKSURL:    issuer + "/v1/keys",
		},
	})

	cfg := &config.Config{
		Port:                "0",
		ProxyBaseURL:        "http://proxy.example",
		OktaBaseURL:         e.idpSrv.URL,
		Auth0BaseURL:        e.vaultSrv.URL,
		CTEClientID:         "cte-id",
		CTEClientSecret:     "cte-secret",
		VaultClientID:       "vault-id",
		VaultClientSecret:   "vault-secret",
		VaultAudience:       "https://vault.example/api",
		VaultScope:          "read:vault",
		VSCodeClientID:      "vscode-client",
		VSCodeClientSecret:  "shh",
		AgentClientID:       "agent-client",
		AgentPrivateKeyPath: keyPath,
		AgentKeyID:          "agent-kid",
	}

	e.srv = &Server{
		Cfg:     cfg,
		Tenants: tenants,
		Stores:  NewStores(),
		Auth:    &auth.Authorizer{Keys: auth.NewKeyCache()},
		IdP:     idp.NewClient(),
		Vault: vault.NewClient(cfg.Auth0BaseURL, cfg.CTEClientID, cfg.CTEClientSecret,
			cfg.VaultClientID, cfg.VaultClientSecret, cfg.VaultAudience, cfg.VaultScope),
		ForwardClient: &http.Client{Timeout: 5 * time.Second},
	}
	e.handler = e.srv.Routes()
	return e
}

// idpHandler fakes the IdP: OIDC login and ID-JAG exchanges on the org
// token endpoint, the jwt-bearer grant on the tenant authorization server,
// and the tenant JWKS.
func (e *env) idpHandler(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/oauth2/v1/token":
		r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		switch r.PostForm.Get("grant_type") {
		case "authorization_code":
			json.NewEncoder(w).Encode(map[string]any{
				"access_token": "login-at",
				"token_type":   "Bearer",
				"id_token":     testIDToken,
			})
		case "urn:ietf:params:oauth:grant-type:token-exchange":
			if got := r.PostForm.Get("subject_token"); got != testIDToken {
				e.t.Errorf("id-jag subject_token = %q", got)
			}
			json.NewEncoder(w).Encode(map[string]any{
				"access_token":      testIDJAG,
				"issued_token_type": "urn:ietf:params:oauth:token-type:id-jag",
				"token_type":        "N_A",
			})
		default:
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "unsupported_grant_type"})
		}

	case "/oauth2/aus123/v1/token":
		r.ParseForm()
		if got := r.PostForm.Get("assertion"); got != testIDJAG {
			e.t.Errorf("jwt-bearer assertion = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": testAgentToken,
			"token_type":   "Bearer",
			"scope":        "repo",
			"expires_in":   3600,
		})

	case "/oauth2/aus123/v1/keys":
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kid": testKid,
				"kty": "RSA",
				"use": "sig",
				"n":   base64.RawURLEncoding.EncodeToString(e.key.PublicKey.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(e.key.PublicKey.E)).Bytes()),
			}},
		})

	default:
		http.NotFound(w, r)
	}
}

// vaultHandler fakes the token vault.
func (e *env) vaultHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/oauth/token":
		if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
			// Custom token exchange -> vault-scoped token
			json.NewEncoder(w).Encode(map[string]any{"access_token": "vault-scoped-1", "token_type": "Bearer"})
			return
		}
		// Federated-connection exchange
		if e.vaultDeny {
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(map[string]string{
				"error":             "invalid_request",
				"error_description": "exchange rejected",
			})
			return
		}
		if e.needsLinking && !e.linked {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{
				"error":             "federated_connection_refresh_token_not_found",
				"error_description": "no connected account",
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"access_token": testDownstream})

	case "/me/v1/connected-accounts/connect":
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		e.lastConnectState, _ = body["state"].(string)
		json.NewEncoder(w).Encode(map[string]any{
			"auth_session":   "sess-1",
			"connect_uri":    "https://vault.example/connect",
			"connect_params": map[string]string{"ticket": "T1"},
		})

	case "/me/v1/connected-accounts/complete":
		e.completeCalled++
		e.linked = true
		json.NewEncoder(w).Encode(map[string]string{"connection": "github"})

	default:
		http.NotFound(w, r)
	}
}

// do runs a request through the router and returns the recorder.
func (e *env) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

// pkcePair returns a verifier and its S256 challenge.
func pkcePair() (string, string) {
	verifier := "test-verifier-0123456789-0123456789-0123456789"
	sum := sha256.Sum256([]byte(verifier))
	return verifier, base64.RawURLEncoding.EncodeToString(sum[:])
}

// startAuthorize runs /authorize/{tenant} for a standard client request and
// returns the outbound state parsed from the IdP redirect.
func (e *env) startAuthorize(tenantID, clientState, challenge string) string {
	e.t.Helper()
	target := "/authorize/" + tenantID +
		"?response_type=code&client_id=client-1&state=" + url.QueryEscape(clientState) +
		"&redirect_uri=" + url.QueryEscape("http://client.example/cb") +
		"&code_challenge=" + url.QueryEscape(challenge) +
		"&code_challenge_method=S256"
	rec := e.do(httptest.NewRequest(http.MethodGet, target, nil))
	if rec.Code != http.StatusFound {
		e.t.Fatalf("authorize: expected 302, got %d: %s", rec.Code, rec.Body.String())
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		e.t.Fatalf("authorize: bad Location: %v", err)
	}
	return loc.Query().Get("state")
}

// signInboundToken mints a bearer token the inbound authorizer accepts for
// the fake tenant.
func (e *env) signInboundToken(claims jwt.MapClaims) string {
	e.t.Helper()
	if claims == nil {
		claims = jwt.MapClaims{}
	}
	if _, ok := claims["iss"]; !ok {
		claims["iss"] = e.idpSrv.URL + "/oauth2/aus123"
	}
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = time.Now().Add(time.Hour).Unix()
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = testKid
	s, err := tok.SignedString(e.key)
	if err != nil {
		e.t.Fatalf("failed to sign inbound token: %v", err)
	}
	return s
}

// setBackend repoints both tenants at a live backend URL.
func (e *env) setBackend(backendURL string) {
	issuer := e.idpSrv.URL + "/oauth2/aus123"
	e.srv.Tenants = tenant.FromConfigs([]tenant.Config{
		{
			ID:              "github",
			Name:            "GitHub",
			BackendURL:      backendURL,
			Issuer:          issuer,
			JWKSURL:         issuer + "/v1/keys",
			VaultConnection: "github",
			ExternalScopes:  []string{"repo"},
		},
		{
			ID:         "plain",
			Name:       "No Vault",
			BackendURL: backendURL,
			Issuer:     issuer,
			JWKSURL:    issuer + "/v1/keys",
		},
	})
}
