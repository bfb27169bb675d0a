// Package vault talks to the token vault: it exchanges agent access tokens
// for the user's federated downstream credentials and drives the
// connected-accounts linking flow when no credential is on file.
package vault

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vaultgate/vaultgate/internal/oauthx"
	"github.com/vaultgate/vaultgate/internal/tenant"
)

const (
	// grantTypeFederatedConnection is the vault's federated-connection
	// token exchange grant
	grantTypeFederatedConnection = "urn:auth0:params:oauth:grant-type:token-exchange:federated-connection-access-token"

	// tokenTypeFederatedConnection is the requested token type for
	// federated downstream credentials
	tokenTypeFederatedConnection = "http://auth0.com/oauth/token-type/federated-connection-access-token"

	// subjectTokenTypeAgent is the caller-specific subject token type the
	// vault's custom token exchange action recognizes
	subjectTokenTypeAgent = "urn:vaultgate:params:oauth:token-type:agent-access-token"

	// errLinkingRequired is the vault error code meaning the user has no
	// connected account for the requested connection
	errLinkingRequired = "federated_connection_refresh_token_not_found"

	// meScopes are requested when minting tokens for the connected-accounts API
	meScopes = "create:me:connected_accounts read:me:connected_accounts delete:me:connected_accounts"

	// vaultTimeout bounds every vault HTTP call
	vaultTimeout = 15 * time.Second

	maxResponseBodySize = 1 << 20
)

// LinkStart is the result of initiating a connected-accounts link: the URL
// to send the user's browser to, the vault's session handle, and the fresh
// state that keys the link session.
type LinkStart struct {
	LinkURL     string
	AuthSession string
	State       string
}

// Client is the token vault client.
type Client struct {
	// BaseURL of the vault, e.g. https://acme.us.auth0.com
	BaseURL string

	// CTEClientID / CTEClientSecret authenticate the custom token exchange
	// that turns agent tokens into vault-scoped tokens.
	CTEClientID     string
	CTEClientSecret string

	// VaultClientID / VaultClientSecret authenticate the
	// federated-connection exchange.
	VaultClientID     string
	VaultClientSecret string

	// Audience / Scope requested when minting vault-scoped tokens for the
	// federated-connection exchange.
	Audience string
	Scope    string

	// newState mints link states; tests may override.
	newState func() (string, error)

	httpClient *http.Client
}

// NewClient creates a vault client with the standard timeout.
func NewClient(baseURL, cteClientID, cteClientSecret, vaultClientID, vaultClientSecret, audience, scope string) *Client {
	return &Client{
		BaseURL:           strings.TrimRight(baseURL, "/"),
		CTEClientID:       cteClientID,
		CTEClientSecret:   cteClientSecret,
		VaultClientID:     vaultClientID,
		VaultClientSecret: vaultClientSecret,
		Audience:          audience,
		Scope:             scope,
		httpClient:        &http.Client{Timeout: vaultTimeout},
	}
}

// Exchange swaps an agent access token for the user's federated downstream
// access token on the tenant's connection. ErrLinkingRequired is returned
// when the vault holds no connected account for the user.
func (c *Client) Exchange(ctx context.Context, agentToken string, t tenant.Config) (string, error) {
	vaultToken, err := c.vaultScopedToken(ctx, agentToken, c.Audience, c.Scope)
	if err != nil {
		return "", err
	}

	body := map[string]string{
		"grant_type":           grantTypeFederatedConnection,
		"subject_token_type":   oauthx.TokenTypeAccessToken,
		"requested_token_type": tokenTypeFederatedConnection,
		"subject_token":        vaultToken,
		"connection":           t.VaultConnection,
		"client_id":            c.VaultClientID,
		"client_secret":        c.VaultClientSecret,
	}

	var resp struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.postJSON(ctx, "/oauth/token", "", body, &resp); err != nil {
		var ue *oauthx.UpstreamError
		if asUpstream(err, &ue) && ue.Status == http.StatusUnauthorized && ue.Code == errLinkingRequired {
			return "", ErrLinkingRequired
		}
		return "", err
	}
	if resp.AccessToken == "" {
		return "", &oauthx.UpstreamError{Status: 200, Description: "federated exchange response missing access_token"}
	}
	return resp.AccessToken, nil
}

// BeginLink starts a connected-accounts linking session for the tenant's
// connection. The caller persists the returned state before redirecting.
func (c *Client) BeginLink(ctx context.Context, agentToken string, t tenant.Config, redirectURI string) (*LinkStart, error) {
	meToken, err := c.vaultScopedToken(ctx, agentToken, c.meAudience(), meScopes)
	if err != nil {
		return nil, err
	}

	state, err := c.mintState()
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"connection":   t.VaultConnection,
		"redirect_uri": redirectURI,
		"state":        state,
		"scopes":       RewriteScopes(t.ExternalScopes),
	}

	var resp struct {
		AuthSession   string `json:"auth_session"`
		ConnectURI    string `json:"connect_uri"`
		ConnectParams struct {
			Ticket string `json:"ticket"`
		} `json:"connect_params"`
	}
	if err := c.postJSON(ctx, "/me/v1/connected-accounts/connect", meToken, body, &resp); err != nil {
		return nil, err
	}
	if resp.AuthSession == "" || resp.ConnectURI == "" || resp.ConnectParams.Ticket == "" {
		return nil, &oauthx.UpstreamError{Status: 200, Description: "connect response missing auth_session, connect_uri or ticket"}
	}

	log.Debug().Str("connection", t.VaultConnection).Msg("started connected-account link")
	return &LinkStart{
		LinkURL:     resp.ConnectURI + "?ticket=" + url.QueryEscape(resp.ConnectParams.Ticket),
		AuthSession: resp.AuthSession,
		State:       state,
	}, nil
}

// CompleteLink finishes a linking session with the code returned by the
// link provider. userToken is the agent access token staged when the link
// began; it is exchanged again here for the connected-accounts API token
// the completion call requires.
func (c *Client) CompleteLink(ctx context.Context, authSession, connectCode, redirectURI, userToken string) error {
	meToken, err := c.vaultScopedToken(ctx, userToken, c.meAudience(), meScopes)
	if err != nil {
		return err
	}

	body := map[string]string{
		"auth_session": authSession,
		"connect_code": connectCode,
		"redirect_uri": redirectURI,
	}

	var resp struct {
		Connection string `json:"connection"`
	}
	return c.postJSON(ctx, "/me/v1/connected-accounts/complete", meToken, body, &resp)
}

// vaultScopedToken performs the custom token exchange at the vault's
// authorization server, turning an agent token into a vault-scoped token
// for the given audience and scope.
func (c *Client) vaultScopedToken(ctx context.Context, agentToken, audience, scope string) (string, error) {
	form := url.Values{
		"grant_type":         {oauthx.GrantTypeTokenExchange},
		"subject_token_type": {subjectTokenTypeAgent},
		"subject_token":      {agentToken},
		"client_id":          {c.CTEClientID},
		"client_secret":      {c.CTEClientSecret},
		"audience":           {audience},
	}
	if scope != "" {
		form.Set("scope", strings.Join(RewriteScopes(strings.Fields(scope)), " "))
	}

	resp, err := oauthx.PostForm(ctx, c.httpClient, c.BaseURL+"/oauth/token", form)
	if err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", &oauthx.UpstreamError{Status: 200, Description: "custom token exchange response missing access_token"}
	}
	return resp.AccessToken, nil
}

// RewriteScopes applies the vault compatibility shim: callers may request a
// "refresh_token" placeholder scope, which the vault only understands as
// "offline_access". The substitution happens here, just before the wire.
func RewriteScopes(scopes []string) []string {
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		if s == "refresh_token" {
			s = "offline_access"
		}
		out = append(out, s)
	}
	return out
}

// meAudience is the audience of the connected-accounts API.
func (c *Client) meAudience() string {
	return c.BaseURL + "/me/"
}

// postJSON sends a JSON body to the vault and decodes the JSON response.
// bearer, when non-empty, is sent as the Authorization header.
func (c *Client) postJSON(ctx context.Context, path, bearer string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode vault request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build vault request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &oauthx.UpstreamError{Status: 0, Description: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return &oauthx.UpstreamError{Status: resp.StatusCode, Description: "failed to read vault response"}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return oauthx.DecodeError(resp.StatusCode, raw)
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return &oauthx.UpstreamError{Status: resp.StatusCode, Description: "invalid JSON in vault response"}
		}
	}
	return nil
}

func (c *Client) mintState() (string, error) {
	if c.newState != nil {
		return c.newState()
	}
	return randomState()
}
