package auth

import (
	"context"
	"regexp"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/vaultgate/vaultgate/internal/tenant"
)

var bearerRe = regexp.MustCompile(`(?i)^bearer\s+(\S+)$`)

// Denial describes a rejected inbound request: the HTTP status to return
// plus the OAuth error code and description for the WWW-Authenticate header.
type Denial struct {
	Status  int
	Code    string
	Message string
}

// ScopePolicy decides whether the token's scopes permit the HTTP method.
// A nil policy is permissive.
type ScopePolicy func(scopes []string, method string) error

// Authorizer validates inbound bearer JWTs against a tenant's issuer and
// JWKS. Audience enforcement is optional; scope enforcement is a hook that
// defaults to open.
type Authorizer struct {
	Keys *KeyCache

	// Audience, when non-empty, must appear in the token's aud claim.
	Audience string
	// AllowAudiencePrefix additionally accepts aud values that Audience is
	// a prefix of. Kept behind this switch for clients that send
	// resource-specific audiences; off by default.
	AllowAudiencePrefix bool

	// Scopes, when set, is consulted with the token's scope list and the
	// request method.
	Scopes ScopePolicy
}

// Authorize validates the Authorization header of an inbound request for
// the given tenant. On success it returns the raw bearer token.
func (a *Authorizer) Authorize(ctx context.Context, t tenant.Config, authHeader, method string) (string, *Denial) {
	m := bearerRe.FindStringSubmatch(strings.TrimSpace(authHeader))
	if m == nil {
		return "", &Denial{Status: 401, Code: "invalid_token", Message: "missing or malformed Authorization header"}
	}
	raw := m[1]

	// Decode header and claims without verification to pick the key
	parser := jwt.NewParser()
	unverified, _, err := parser.ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return "", &Denial{Status: 401, Code: "invalid_token", Message: "malformed token"}
	}

	kid, _ := unverified.Header["kid"].(string)
	if kid == "" {
		return "", &Denial{Status: 401, Code: "invalid_token", Message: "token missing kid"}
	}

	iss, _ := unverified.Claims.(jwt.MapClaims)["iss"].(string)
	if iss != t.Issuer {
		log.Warn().Str("tenant", t.ID).Str("iss", iss).Msg("inbound token issuer mismatch")
		return "", &Denial{Status: 403, Code: "invalid_token", Message: "issuer not allowed for this tenant"}
	}

	key, err := a.Keys.SigningKey(ctx, t.JWKSURL, kid)
	if err != nil {
		log.Warn().Err(err).Str("tenant", t.ID).Msg("failed to resolve signing key")
		return "", &Denial{Status: 401, Code: "invalid_token", Message: "unable to verify token"}
	}

	claims := jwt.MapClaims{}
	verified, err := jwt.ParseWithClaims(raw, claims, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return key, nil
	}, jwt.WithValidMethods([]string{"RS256"}), jwt.WithExpirationRequired())
	if err != nil || !verified.Valid {
		log.Warn().Err(err).Str("tenant", t.ID).Msg("inbound token verification failed")
		return "", &Denial{Status: 401, Code: "invalid_token", Message: "token verification failed"}
	}

	if a.Audience != "" {
		auds, err := claims.GetAudience()
		if err != nil || !a.audienceAllowed(auds) {
			return "", &Denial{Status: 403, Code: "invalid_token", Message: "token audience not accepted"}
		}
	}

	if a.Scopes != nil {
		if err := a.Scopes(scopeList(claims), method); err != nil {
			return "", &Denial{Status: 403, Code: "insufficient_scope", Message: err.Error()}
		}
	}

	return raw, nil
}

func (a *Authorizer) audienceAllowed(auds jwt.ClaimStrings) bool {
	for _, aud := range auds {
		if aud == a.Audience {
			return true
		}
		if a.AllowAudiencePrefix && strings.HasPrefix(aud, a.Audience) {
			return true
		}
	}
	return false
}

func scopeList(claims jwt.MapClaims) []string {
	s, _ := claims["scope"].(string)
	if s == "" {
		return nil
	}
	return strings.Fields(s)
}
