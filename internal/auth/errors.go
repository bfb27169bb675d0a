package auth

import "errors"

var (
	// ErrKeyFetch indicates the JWKS document could not be retrieved
	ErrKeyFetch = errors.New("failed to fetch signing key")

	// ErrKeyNotFound indicates the JWKS document has no entry for the kid
	ErrKeyNotFound = errors.New("signing key not found")
)
