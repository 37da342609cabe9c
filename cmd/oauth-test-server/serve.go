package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	oauth "github.com/giantswarm/oauth-test-server"
	"github.com/giantswarm/oauth-test-server/credentials"
	"github.com/giantswarm/oauth-test-server/instrumentation"
	"github.com/giantswarm/oauth-test-server/internal/config"
	"github.com/giantswarm/oauth-test-server/server"
)

const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 15 * time.Second
	writeTimeout      = 15 * time.Second
	idleTimeout       = 60 * time.Second
	shutdownTimeout   = 10 * time.Second
)

func newServeCmd(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the OAuth2 test server",
		Long: `Run the OAuth2 test server. Settings come from flags, OAUTH_* environment
variables (PORT and HOST are also honoured), .env files and an optional YAML file.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), load)
		},
	}
}

func runServe(parent context.Context, load func() (*config.Config, error)) error {
	cfg, err := load()
	if err != nil {
		return err
	}

	logger, err := newLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	creds := credentials.Defaults()
	if cfg.Credentials != "" {
		if creds, err = credentials.LoadFile(cfg.Credentials); err != nil {
			return err
		}
	}

	store, closeStore, err := openStore(ctx, cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Backend, err)
	}
	defer closeStore()

	srv, err := server.New(store, creds, &server.Config{
		Issuer:               cfg.Issuer,
		AuthorizationCodeTTL: cfg.AuthorizationCodeTTL,
		AccessTokenTTL:       cfg.AccessTokenTTL,
		RefreshTokenTTL:      cfg.RefreshTokenTTL,
		ClockSkewGracePeriod: cfg.ClockSkewGracePeriod,
		ListenHost:           cfg.Host,
		TrustProxy:           cfg.TrustProxy,
		TrustedProxyCount:    cfg.TrustedProxyCount,
		RateLimit:            cfg.RateLimit,
		RateLimitBurst:       cfg.RateLimitBurst,
		EnableAuditLogging:   cfg.AuditLog,
	}, logger)
	if err != nil {
		return err
	}

	var inst *instrumentation.Instrumentation
	if cfg.Metrics.Enabled {
		inst, err = instrumentation.New(instrumentation.Config{
			Enabled:         true,
			ServiceVersion:  version,
			MetricsExporter: cfg.Metrics.Exporter,
			OTLPEndpoint:    cfg.Metrics.OTLPEndpoint,
			OTLPInsecure:    cfg.Metrics.OTLPInsecure,
			LogClientIPs:    cfg.Metrics.LogClientIPs,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize instrumentation: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := inst.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Instrumentation shutdown error", "error", err)
			}
		}()

		// before NewHandler, which picks up the tracer
		srv.SetInstrumentation(inst)
		store.SetInstrumentation(inst)
		if srv.Auditor != nil {
			srv.Auditor.SetInstrumentation(inst)
		}
	}

	router := oauth.NewHandler(srv, logger).Routes()
	var metricsHandler http.Handler
	if inst != nil {
		metricsHandler = inst.MetricsHandler()
	}
	if metricsHandler != nil {
		router.Handle(oauth.PathMetrics, metricsHandler)
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()
	logStartup(logger, cfg, creds, metricsHandler != nil)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}

	logger.Info("Server stopped")
	return nil
}

func logStartup(logger *slog.Logger, cfg *config.Config, creds *credentials.Store, metrics bool) {
	logger.Info("OAuth test server starting",
		"addr", cfg.ListenAddr(),
		"issuer", cfg.Issuer,
		"storage", cfg.Storage.Backend,
		"version", version)

	logger.Info("Endpoints",
		"authorize", cfg.Issuer+oauth.PathAuthorize,
		"token", cfg.Issuer+oauth.PathToken,
		"userinfo", cfg.Issuer+oauth.PathUserInfo,
		"discovery", cfg.Issuer+oauth.PathAuthServerConfig)
	if metrics {
		logger.Info("Prometheus metrics endpoint enabled", "url", cfg.Issuer+oauth.PathMetrics)
	}

	for _, c := range creds.Clients() {
		logger.Info("Test client", "client_id", c.ID, "redirect_uris", strings.Join(c.RedirectURIs, ","))
	}
	for _, u := range creds.Users() {
		logger.Info("Test user", "username", u.Username, "email", u.Email)
	}
}
