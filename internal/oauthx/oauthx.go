// Package oauthx holds the OAuth wire plumbing shared by the IdP and vault
// clients: the RFC 8693 grant/token-type identifiers, form-encoded token
// endpoint calls, and upstream error decoding.
package oauthx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	// GrantTypeTokenExchange is the OAuth 2.0 Token Exchange grant type (RFC 8693)
	GrantTypeTokenExchange = "urn:ietf:params:oauth:grant-type:token-exchange"

	// GrantTypeJWTBearer is the JWT authorization grant type (RFC 7523)
	GrantTypeJWTBearer = "urn:ietf:params:oauth:grant-type:jwt-bearer"

	// TokenTypeAccessToken identifies an OAuth 2.0 access token
	TokenTypeAccessToken = "urn:ietf:params:oauth:token-type:access_token"

	// TokenTypeIDToken identifies an OIDC ID token
	TokenTypeIDToken = "urn:ietf:params:oauth:token-type:id_token"

	// TokenTypeIDJAG identifies an identity-assertion JWT authorization grant
	TokenTypeIDJAG = "urn:ietf:params:oauth:token-type:id-jag"

	// ClientAssertionTypeJWTBearer is the private-key JWT client
	// authentication assertion type (RFC 7523)
	ClientAssertionTypeJWTBearer = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

	// maxResponseBodySize bounds token endpoint response reads (1 MB)
	maxResponseBodySize = 1 << 20
)

// UpstreamError is a failed call to an external token endpoint. Status is 0
// when no HTTP response was received (connection failure); otherwise it
// carries the upstream status along with the decoded OAuth error fields.
type UpstreamError struct {
	Status      int
	Code        string
	Description string
}

func (e *UpstreamError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("upstream unreachable: %s", e.Description)
	}
	if e.Code != "" {
		return fmt.Sprintf("upstream error %q (status %d): %s", e.Code, e.Status, e.Description)
	}
	return fmt.Sprintf("upstream error (status %d): %s", e.Status, e.Description)
}

// TokenResponse is the common shape of OAuth token endpoint responses.
// Unknown fields are ignored so upstream additions do not break the flow.
type TokenResponse struct {
	AccessToken     string `json:"access_token"`
	IssuedTokenType string `json:"issued_token_type"`
	TokenType       string `json:"token_type"`
	ExpiresIn       int    `json:"expires_in"`
	Scope           string `json:"scope"`
	IDToken         string `json:"id_token"`
}

// PostForm sends an application/x-www-form-urlencoded request to a token
// endpoint and decodes the JSON response. Non-2xx responses are returned as
// *UpstreamError with the upstream's OAuth error fields when present.
func PostForm(ctx context.Context, client *http.Client, endpoint string, form url.Values) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, &UpstreamError{Status: 0, Description: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, &UpstreamError{Status: resp.StatusCode, Description: "failed to read response body"}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, DecodeError(resp.StatusCode, body)
	}

	var tr TokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, &UpstreamError{Status: resp.StatusCode, Description: "invalid JSON in token response"}
	}
	return &tr, nil
}

// DecodeError builds an UpstreamError from an error response body,
// tolerating bodies that are not the RFC 6749 error shape.
func DecodeError(status int, body []byte) *UpstreamError {
	var oe struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &oe); err != nil || oe.Error == "" {
		desc := strings.TrimSpace(string(body))
		if len(desc) > 200 {
			desc = desc[:200]
		}
		return &UpstreamError{Status: status, Description: desc}
	}
	return &UpstreamError{Status: status, Code: oe.Error, Description: oe.ErrorDescription}
}
