package config

import "errors"

var (
	// ErrMissingProxyBaseURL indicates PROXY_BASE_URL is not configured
	ErrMissingProxyBaseURL = errors.New("PROXY_BASE_URL is required")

	// ErrMissingOktaDomain indicates the upstream IdP domain is not configured
	ErrMissingOktaDomain = errors.New("OKTA_DOMAIN is required")

	// ErrMissingAuth0Domain indicates the token vault domain is not configured
	ErrMissingAuth0Domain = errors.New("AUTH0_DOMAIN is required")

	// ErrMissingClientCredentials indicates the proxy's IdP client is not configured
	ErrMissingClientCredentials = errors.New("VSCODE_CLIENT is required")

	// ErrMissingAgentIdentity indicates the agent signing identity is incomplete
	ErrMissingAgentIdentity = errors.New("AGENT_CLIENT_ID, AGENT_PRIVATE_KEY_PATH and AGENT_PRIVATE_KEY_ID are required")
)
