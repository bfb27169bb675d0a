package httpapi

import (
	"crypto/rand"
	"encoding/base64"
	"net/url"
	"time"

	"github.com/vaultgate/vaultgate/internal/cache"
)

const (
	// flowTTL is how long correlation entries live across redirect hops
	flowTTL = 15 * time.Minute
)

// InboundAuthorizeContext captures the client's /authorize request so it
// can be replayed when the flow returns to the client.
type InboundAuthorizeContext struct {
	TenantID            string
	State               string
	ClientID            string
	RedirectURI         string
	CodeChallenge       string
	CodeChallengeMethod string
	// Raw is the full inbound query, kept for rebinding at /token.
	Raw url.Values
}

// StagedAgentToken is the agent access token obtained after the IdP
// exchange chain, parked while a linking flow is in progress.
type StagedAgentToken struct {
	AccessToken string
	Scope       string
	ExpiresIn   int
	IDToken     string
}

// OIDCOutbound correlates the upstream IdP redirect back to the inbound
// flow. Written at /authorize with no tokens; the staged token is added in
// place only when linking is required.
type OIDCOutbound struct {
	TenantID string
	Inbound  InboundAuthorizeContext
	Staged   *StagedAgentToken
}

// LinkSession correlates the connected-accounts callback to the flow that
// started the link.
type LinkSession struct {
	LinkState   string
	OIDCState   string
	AuthSession string
	UserToken   string
	CreatedAt   time.Time
}

// ReturnCode is the single-use authorization code handed back to the
// client, carrying the agent token and the original request parameters.
type ReturnCode struct {
	Code        string
	AccessToken string
	Scope       string
	ExpiresIn   int
	IDToken     string
	// OriginalState is the client's inbound state, echoed on redirect.
	OriginalState string
	TenantID      string
	// Original is the inbound /authorize query; /token rebinds client_id
	// and code_challenge against it.
	Original url.Values
}

// Stores bundles the correlation families. All flow entries share the
// 15-minute TTL; the JWKS key family lives inside auth.KeyCache.
type Stores struct {
	OIDC  *cache.Store[*OIDCOutbound]
	Links *cache.Store[*LinkSession]
	Codes *cache.Store[*ReturnCode]
}

// NewStores creates the correlation stores with the standard flow TTL.
func NewStores() *Stores {
	return NewStoresWithTTL(flowTTL)
}

// NewStoresWithTTL creates correlation stores with a caller-chosen TTL.
// Tests use short TTLs to exercise expiry.
func NewStoresWithTTL(ttl time.Duration) *Stores {
	return &Stores{
		OIDC:  cache.New[*OIDCOutbound](ttl),
		Links: cache.New[*LinkSession](ttl),
		Codes: cache.New[*ReturnCode](ttl),
	}
}

// randomToken returns 32 CSPRNG bytes as unpadded base64url, the shape of
// every correlation key the proxy mints.
func randomToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failure means the process cannot do anything safely
		panic("crypto/rand unavailable: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
