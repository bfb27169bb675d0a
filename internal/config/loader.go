package config

import (
	"os"
	"strings"
)

const (
	defaultPort             = "5000"
	defaultTenantConfigPath = "tenants.json"
)

// Load builds a Config from environment variables. Validation is deferred
// so callers can apply overrides first.
func Load() *Config {
	cfg := &Config{
		Port:             env("PORT", defaultPort),
		TenantConfigPath: env("CONFIG_PATH", defaultTenantConfigPath),

		CTEClientID:     os.Getenv("AUTH0_CTE_CLIENT_ID"),
		CTEClientSecret: os.Getenv("AUTH0_CTE_CLIENT_SECRET"),

		VaultClientID:     os.Getenv("AUTH0_VAULT_CLIENT_ID"),
		VaultClientSecret: os.Getenv("AUTH0_VAULT_CLIENT_SECRET"),
		VaultAudience:     os.Getenv("AUTH0_VAULT_AUDIENCE"),
		VaultScope:        os.Getenv("AUTH0_VAULT_SCOPE"),

		VSCodeClientID:     os.Getenv("VSCODE_CLIENT"),
		VSCodeClientSecret: os.Getenv("VSCODE_SECRET"),

		AgentClientID:       os.Getenv("AGENT_CLIENT_ID"),
		AgentPrivateKeyPath: os.Getenv("AGENT_PRIVATE_KEY_PATH"),
		AgentKeyID:          os.Getenv("AGENT_PRIVATE_KEY_ID"),

		ExpectedAudience: os.Getenv("VAULTGATE_EXPECTED_AUDIENCE"),
	}

	cfg.ProxyBaseURL = strings.TrimRight(env("PROXY_BASE_URL", "http://localhost:"+cfg.Port), "/")
	cfg.OktaBaseURL = baseURL(os.Getenv("OKTA_DOMAIN"))
	cfg.Auth0BaseURL = baseURL(os.Getenv("AUTH0_DOMAIN"))

	if v := os.Getenv("VAULTGATE_AUD_PREFIX_MATCH"); v == "true" || v == "1" {
		cfg.AllowAudiencePrefix = true
	}

	return cfg
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// baseURL normalizes a bare domain into an https base URL. Values that
// already carry a scheme pass through, which lets tests point at httptest
// servers.
func baseURL(domain string) string {
	if domain == "" {
		return ""
	}
	if strings.HasPrefix(domain, "http://") || strings.HasPrefix(domain, "https://") {
		return strings.TrimRight(domain, "/")
	}
	return "https://" + strings.TrimRight(domain, "/")
}
