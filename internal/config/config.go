package config

// Config holds all process configuration for the proxy.
type Config struct {
	// Port the HTTP server listens on.
	Port string
	// ProxyBaseURL is the externally visible base URL of this proxy. All
	// redirect URIs and metadata documents are built from it.
	ProxyBaseURL string

	// OktaBaseURL is the upstream identity provider, e.g. https://acme.okta.com.
	OktaBaseURL string

	// Auth0BaseURL is the token vault, e.g. https://acme.us.auth0.com.
	Auth0BaseURL string
	// CTEClientID / CTEClientSecret authenticate the custom-token-exchange
	// client that swaps agent tokens for vault-scoped tokens.
	CTEClientID     string
	CTEClientSecret string
	// VaultClientID / VaultClientSecret authenticate the federated-connection
	// exchange at the vault.
	VaultClientID     string
	VaultClientSecret string
	// VaultAudience / VaultScope are requested when minting vault-scoped tokens.
	VaultAudience string
	VaultScope    string

	// VSCodeClientID / VSCodeClientSecret are the proxy's own client at the
	// upstream IdP, used for the interactive OIDC login leg.
	VSCodeClientID     string
	VSCodeClientSecret string

	// AgentClientID identifies the agent at the IdP for the token-exchange
	// and jwt-bearer legs; AgentPrivateKeyPath/AgentKeyID sign its
	// private-key JWT client assertions.
	AgentClientID       string
	AgentPrivateKeyPath string
	AgentKeyID          string

	// TenantConfigPath is the JSON file holding the tenant list.
	TenantConfigPath string

	// ExpectedAudience, when set, is enforced against inbound bearer tokens.
	// AllowAudiencePrefix additionally accepts audiences that the expected
	// value is a prefix of; off by default.
	ExpectedAudience    string
	AllowAudiencePrefix bool
}

// Validate checks that everything the flows depend on is present.
func (c *Config) Validate() error {
	if c.ProxyBaseURL == "" {
		return ErrMissingProxyBaseURL
	}
	if c.OktaBaseURL == "" {
		return ErrMissingOktaDomain
	}
	if c.Auth0BaseURL == "" {
		return ErrMissingAuth0Domain
	}
	if c.VSCodeClientID == "" {
		return ErrMissingClientCredentials
	}
	if c.AgentClientID == "" || c.AgentPrivateKeyPath == "" || c.AgentKeyID == "" {
		return ErrMissingAgentIdentity
	}
	return nil
}

// AuthorizeEndpoint returns the upstream IdP authorization endpoint.
func (c *Config) AuthorizeEndpoint() string {
	return c.OktaBaseURL + "/oauth2/v1/authorize"
}

// TokenEndpoint returns the upstream IdP token endpoint used for the OIDC
// login and the ID-JAG exchange.
func (c *Config) TokenEndpoint() string {
	return c.OktaBaseURL + "/oauth2/v1/token"
}

// CallbackURL returns the proxy's IdP redirect URI.
func (c *Config) CallbackURL() string {
	return c.ProxyBaseURL + "/callback"
}

// LinkCallbackURL returns the proxy's connected-accounts redirect URI.
func (c *Config) LinkCallbackURL() string {
	return c.ProxyBaseURL + "/connected_account_callback"
}
