package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vaultgate/vaultgate/internal/cache"
)

const (
	// jwksFetchTimeout bounds the JWKS document fetch
	jwksFetchTimeout = 5 * time.Second

	// jwksEntryTTL is how long a cached signing key stays valid
	jwksEntryTTL = time.Hour
)

// KeyCache fetches and caches RSA signing keys by (jwks_url, kid). Entries
// expire after an hour; expiry is lazy on the next read.
type KeyCache struct {
	keys       *cache.Store[*rsa.PublicKey]
	httpClient *http.Client
}

// NewKeyCache creates a key cache with the standard fetch timeout.
func NewKeyCache() *KeyCache {
	return &KeyCache{
		keys:       cache.New[*rsa.PublicKey](jwksEntryTTL),
		httpClient: &http.Client{Timeout: jwksFetchTimeout},
	}
}

// SigningKey returns the RSA public key identified by kid at jwksURL,
// fetching the JWKS document on a cache miss.
func (c *KeyCache) SigningKey(ctx context.Context, jwksURL, kid string) (*rsa.PublicKey, error) {
	cacheKey := jwksURL + "#" + kid
	if key, ok := c.keys.Get(cacheKey); ok {
		return key, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyFetch, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: JWKS request returned status %d", ErrKeyFetch, resp.StatusCode)
	}

	var jwks struct {
		Keys []struct {
			Kid string `json:"kid"`
			Kty string `json:"kty"`
			Use string `json:"use"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, fmt.Errorf("%w: invalid JWKS document: %v", ErrKeyFetch, err)
	}

	// Cache every usable key in the document, not just the requested one
	for _, k := range jwks.Keys {
		if k.Kty != "RSA" || (k.Use != "" && k.Use != "sig") {
			continue
		}
		pub, err := parseRSAPublicKey(k.N, k.E)
		if err != nil {
			log.Warn().Err(err).Str("kid", k.Kid).Msg("failed to parse JWKS key")
			continue
		}
		c.keys.Put(jwksURL+"#"+k.Kid, pub)
	}

	if key, ok := c.keys.Get(cacheKey); ok {
		return key, nil
	}
	return nil, fmt.Errorf("%w: kid %q not in JWKS at %s", ErrKeyNotFound, kid, jwksURL)
}

// parseRSAPublicKey builds an RSA public key from base64url n and e values.
func parseRSAPublicKey(nStr, eStr string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(nStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	e := 0
	for _, b := range eBytes {
		e = e<<8 + int(b)
	}

	return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: e}, nil
}
