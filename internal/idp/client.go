// Package idp talks to the upstream identity provider: the interactive
// OIDC login, the RFC 8693 exchange of an ID token for an ID-JAG, and the
// jwt-bearer exchange of the ID-JAG for an agent access token at the
// tenant's authorization server.
package idp

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/vaultgate/vaultgate/internal/oauthx"
	"github.com/vaultgate/vaultgate/internal/tenant"
)

// exchangeTimeout bounds every IdP token endpoint call.
const exchangeTimeout = 15 * time.Second

// AgentToken is the access token minted for the agent at the tenant's
// authorization server.
type AgentToken struct {
	AccessToken string
	Scope       string
	ExpiresIn   int
}

// Client performs the IdP exchange chain.
type Client struct {
	httpClient *http.Client
}

// NewClient creates an IdP client with the standard timeout.
func NewClient() *Client {
	return &Client{httpClient: &http.Client{Timeout: exchangeTimeout}}
}

// CompleteOIDCLogin redeems an authorization code at the IdP token endpoint
// and returns the ID token. The client secret travels in the request body.
func (c *Client) CompleteOIDCLogin(ctx context.Context, tokenEndpoint, code, redirectURI string, scopes []string, clientID, clientSecret string) (string, error) {
	cfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			TokenURL:  tokenEndpoint,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return "", asUpstreamError(err)
	}

	idToken, _ := tok.Extra("id_token").(string)
	if idToken == "" {
		return "", &oauthx.UpstreamError{Status: 200, Description: "token response missing id_token"}
	}
	return idToken, nil
}

// IDTokenToIDJAG exchanges an ID token for an identity-assertion JWT
// authorization grant (RFC 8693), authenticating with a private-key JWT.
func (c *Client) IDTokenToIDJAG(ctx context.Context, tokenEndpoint string, t tenant.Config, idToken, agentClientID, agentKeyPath, agentKid string) (string, error) {
	assertion, err := BuildClientAssertion(agentClientID, tokenEndpoint, agentKeyPath, agentKid)
	if err != nil {
		return "", err
	}

	form := url.Values{
		"grant_type":            {oauthx.GrantTypeTokenExchange},
		"requested_token_type":  {oauthx.TokenTypeIDJAG},
		"audience":              {t.Issuer},
		"scope":                 {strings.Join(t.ExternalScopes, " ")},
		"subject_token_type":    {oauthx.TokenTypeIDToken},
		"subject_token":         {idToken},
		"client_assertion_type": {oauthx.ClientAssertionTypeJWTBearer},
		"client_assertion":      {assertion},
	}

	resp, err := oauthx.PostForm(ctx, c.httpClient, tokenEndpoint, form)
	if err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", &oauthx.UpstreamError{Status: 200, Description: "token-exchange response missing access_token"}
	}

	log.Debug().Str("tenant", t.ID).Str("issued_token_type", resp.IssuedTokenType).Msg("obtained ID-JAG")
	return resp.AccessToken, nil
}

// IDJAGToAccessToken redeems an ID-JAG at the tenant's authorization server
// for an agent access token using the jwt-bearer grant.
func (c *Client) IDJAGToAccessToken(ctx context.Context, t tenant.Config, idJAG, agentClientID, agentKeyPath, agentKid string) (*AgentToken, error) {
	tokenEndpoint := strings.TrimRight(t.Issuer, "/") + "/v1/token"

	assertion, err := BuildClientAssertion(agentClientID, tokenEndpoint, agentKeyPath, agentKid)
	if err != nil {
		return nil, err
	}

	form := url.Values{
		"grant_type":            {oauthx.GrantTypeJWTBearer},
		"assertion":             {idJAG},
		"client_assertion_type": {oauthx.ClientAssertionTypeJWTBearer},
		"client_assertion":      {assertion},
	}

	resp, err := oauthx.PostForm(ctx, c.httpClient, tokenEndpoint, form)
	if err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, &oauthx.UpstreamError{Status: 200, Description: "jwt-bearer response missing access_token"}
	}

	log.Debug().Str("tenant", t.ID).Str("scope", resp.Scope).Msg("obtained agent access token")
	return &AgentToken{
		AccessToken: resp.AccessToken,
		Scope:       resp.Scope,
		ExpiresIn:   resp.ExpiresIn,
	}, nil
}

// asUpstreamError converts x/oauth2 errors into the shared upstream shape.
func asUpstreamError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		return oauthx.DecodeError(re.Response.StatusCode, re.Body)
	}
	return &oauthx.UpstreamError{Status: 0, Description: err.Error()}
}
