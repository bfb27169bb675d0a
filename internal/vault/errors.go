package vault

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/vaultgate/vaultgate/internal/oauthx"
)

// ErrLinkingRequired means the vault holds no federated credential for the
// user on the requested connection; the caller must run the
// connected-accounts linking flow first.
var ErrLinkingRequired = errors.New("account linking required")

// asUpstream unwraps err into an *oauthx.UpstreamError if it is one.
func asUpstream(err error, target **oauthx.UpstreamError) bool {
	return errors.As(err, target)
}

// randomState returns 32 random bytes, base64url without padding.
func randomState() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate link state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
