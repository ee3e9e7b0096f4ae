package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"kvconsole/internal/audit"
	"kvconsole/internal/config"
	"kvconsole/internal/console"
	"kvconsole/internal/constants"
	"kvconsole/internal/dashboard"
	"kvconsole/internal/registry"
	"kvconsole/internal/security"
	"kvconsole/internal/vault"
)

// Deps are the components the HTTP surface drives.
type Deps struct {
	Service   *console.Service
	Registry  *registry.Registry
	History   *audit.Log
	Dashboard *dashboard.Dashboard
	// Vault is closed by Cleanup once the sessions are gone. Optional.
	Vault vault.SecretStore
	// Monitor is optional. When set, Run sweeps sessions until shutdown.
	Monitor *registry.Monitor
}

type Server struct {
	cfg       *config.Config
	svc       *console.Service
	reg       *registry.Registry
	history   *audit.Log
	dashboard *dashboard.Dashboard
	secrets   vault.SecretStore
	monitor   *registry.Monitor
	vaultOnce sync.Once

	proxies     *security.ProxyTrust
	connLimiter *security.RateLimiter
	brute       *security.BruteForceProtector
	streams     *security.ConnectionLimiter

	router chi.Router
	log    zerolog.Logger
	UseTLS bool
}

func New(cfg *config.Config, deps Deps, log zerolog.Logger) *Server {
	s := &Server{
		cfg:         cfg,
		svc:         deps.Service,
		reg:         deps.Registry,
		history:     deps.History,
		dashboard:   deps.Dashboard,
		secrets:     deps.Vault,
		monitor:     deps.Monitor,
		proxies:     security.NewProxyTrust(cfg.TrustedProxies),
		connLimiter: security.NewRateLimiter(cfg.ConnectRatePerMinute),
		brute:       security.NewBruteForceProtector(constants.MaxConnectFailures, constants.ConnectBlockDuration),
		streams:     security.NewConnectionLimiter(constants.MaxStreamClientsPerIP),
		log:         log.With().Str("component", "server").Logger(),
	}
	s.setupRoutes()
	return s
}

// Handler returns the routed handler with the full middleware stack.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully and releases
// every session.
func (s *Server) Run(ctx context.Context) error {
	s.UseTLS = s.tlsAvailable()

	var handler http.Handler = s.router
	if !s.UseTLS {
		handler = h2c.NewHandler(handler, &http2.Server{})
	}

	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           handler,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	monitorCtx, stopMonitor := context.WithCancel(ctx)
	defer stopMonitor()
	if s.monitor != nil {
		go s.monitor.Run(monitorCtx)
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.UseTLS {
			err = srv.ListenAndServeTLS(s.cfg.CertFile, s.cfg.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	s.log.Info().
		Str("addr", s.cfg.ListenAddr).
		Bool("tls", s.UseTLS).
		Msg("kvconsole server starting (HTTP/2 enabled)")

	var serveErr error
	select {
	case <-ctx.Done():
		s.log.Info().Msg("shutting down server")
	case serveErr = <-errCh:
		s.log.Error().Err(serveErr).Msg("server stopped unexpectedly")
	}
	stopMonitor()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Warn().Err(err).Msg("server forced to shutdown")
	}
	s.Cleanup(shutdownCtx)
	s.log.Info().Msg("server stopped")
	return serveErr
}

// Cleanup closes every session and the credential vault, then the audit log
// and its stream clients. It is safe to call more than once.
func (s *Server) Cleanup(ctx context.Context) {
	if err := s.reg.Shutdown(ctx); err != nil {
		s.log.Warn().Err(err).Msg("closing sessions")
	}
	if s.secrets != nil {
		s.vaultOnce.Do(func() {
			if err := s.secrets.Close(); err != nil {
				s.log.Warn().Err(err).Msg("closing credential vault")
			}
		})
	}
	if err := s.history.Close(); err != nil {
		s.log.Warn().Err(err).Msg("closing audit log")
	}
}

func (s *Server) tlsAvailable() bool {
	if !s.cfg.EnableTLS {
		return false
	}
	if _, err := os.Stat(s.cfg.CertFile); err == nil {
		if _, err := os.Stat(s.cfg.KeyFile); err == nil {
			return true
		}
	}
	s.log.Warn().
		Str("cert_file", s.cfg.CertFile).
		Str("key_file", s.cfg.KeyFile).
		Msg("KVCONSOLE_ENABLE_TLS is true but certs not found, serving plain HTTP")
	return false
}
