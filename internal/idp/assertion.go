package idp

import (
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// assertionLifetime is the validity window of a client assertion (RFC 7523).
const assertionLifetime = 5 * time.Minute

// BuildClientAssertion signs a private-key JWT for client authentication at
// a token endpoint: iss = sub = clientID, aud = the endpoint, five-minute
// lifetime, random jti, kid in the header.
func BuildClientAssertion(clientID, tokenEndpoint, privateKeyPath, kid string) (string, error) {
	pem, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return "", fmt.Errorf("failed to read agent private key: %w", err)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pem)
	if err != nil {
		return "", fmt.Errorf("failed to parse agent private key: %w", err)
	}

	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss": clientID,
		"sub": clientID,
		"aud": tokenEndpoint,
		"iat": now.Unix(),
		"exp": now.Add(assertionLifetime).Unix(),
		"jti": uuid.NewString(),
	})
	tok.Header["kid"] = kid

	signed, err := tok.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign client assertion: %w", err)
	}
	return signed, nil
}
