package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/vaultgate/vaultgate/internal/auth"
	"github.com/vaultgate/vaultgate/internal/config"
	"github.com/vaultgate/vaultgate/internal/idp"
	"github.com/vaultgate/vaultgate/internal/tenant"
	"github.com/vaultgate/vaultgate/internal/vault"
)

// forwardTimeout bounds backend calls made by the forwarder
const forwardTimeout = 30 * time.Second

// Server holds dependencies for all HTTP handlers.
type Server struct {
	Cfg     *config.Config
	Tenants *tenant.Registry
	Stores  *Stores
	Auth    *auth.Authorizer
	IdP     *idp.Client
	Vault   *vault.Client

	// ForwardClient performs backend requests; defaults to a 30-second
	// timeout client.
	ForwardClient *http.Client
}

// NewServer wires a Server with default clients.
func NewServer(cfg *config.Config, tenants *tenant.Registry) *Server {
	return &Server{
		Cfg:     cfg,
		Tenants: tenants,
		Stores:  NewStores(),
		Auth: &auth.Authorizer{
			Keys:                auth.NewKeyCache(),
			Audience:            cfg.ExpectedAudience,
			AllowAudiencePrefix: cfg.AllowAudiencePrefix,
		},
		IdP: idp.NewClient(),
		Vault: vault.NewClient(cfg.Auth0BaseURL, cfg.CTEClientID, cfg.CTEClientSecret,
			cfg.VaultClientID, cfg.VaultClientSecret, cfg.VaultAudience, cfg.VaultScope),
		ForwardClient: &http.Client{Timeout: forwardTimeout},
	}
}

// Routes creates the HTTP router with the full proxy surface.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check (unauthenticated)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Discovery documents
	r.Get("/.well-known/oauth-protected-resource/{tenant}", s.ProtectedResourceMetadata)
	r.Get("/.well-known/oauth-protected-resource/{tenant}/*", s.ProtectedResourceMetadata)
	r.Get("/.well-known/oauth-authorization-server/{tenant}", s.AuthorizationServerMetadata)
	r.Get("/.well-known/oauth-authorization-server/{tenant}/*", s.AuthorizationServerMetadata)

	// Client registration stub
	r.Post("/register", s.Register)

	// Browser-driven flow
	r.Get("/authorize/{tenant}", s.Authorize)
	r.Get("/callback", s.Callback)
	r.Get("/connected_account_callback", s.ConnectedAccountCallback)
	r.Post("/token", s.Token)

	// Everything else is forwarded to the tenant backend
	r.Handle("/{tenant}", http.HandlerFunc(s.Forward))
	r.Handle("/{tenant}/*", http.HandlerFunc(s.Forward))

	log.Info().Msg("HTTP routes registered")
	return r
}
