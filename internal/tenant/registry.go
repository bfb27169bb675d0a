package tenant

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
)

// Config describes a single tenant: where its users authenticate, where
// inbound tokens are verified, which vault connection holds the downstream
// credential, and where requests are forwarded.
type Config struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	BackendURL      string   `json:"backend_url"`
	Issuer          string   `json:"issuer"`
	JWKSURL         string   `json:"jwks_url"`
	VaultConnection string   `json:"vault_connection"`
	ExternalScopes  []string `json:"external_scopes"`
}

// Registry is a read-only tenant lookup table loaded once at startup.
type Registry struct {
	tenants map[string]Config
}

// Load reads a JSON array of tenant records from path.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tenant config: %w", err)
	}

	var tenants []Config
	if err := json.Unmarshal(data, &tenants); err != nil {
		return nil, fmt.Errorf("failed to parse tenant config: %w", err)
	}

	r := &Registry{tenants: make(map[string]Config, len(tenants))}
	for _, t := range tenants {
		if t.ID == "" {
			return nil, fmt.Errorf("tenant record missing id in %s", path)
		}
		r.tenants[t.ID] = t
	}

	log.Info().Int("tenants", len(r.tenants)).Str("path", path).Msg("tenant registry loaded")
	return r, nil
}

// FromConfigs builds a registry from in-memory records. Used by tests and
// by callers that already hold the parsed list.
func FromConfigs(tenants []Config) *Registry {
	r := &Registry{tenants: make(map[string]Config, len(tenants))}
	for _, t := range tenants {
		r.tenants[t.ID] = t
	}
	return r
}

// Lookup returns the tenant record for id, if one exists.
func (r *Registry) Lookup(id string) (Config, bool) {
	t, ok := r.tenants[id]
	return t, ok
}

// Count returns the number of registered tenants.
func (r *Registry) Count() int {
	return len(r.tenants)
}
