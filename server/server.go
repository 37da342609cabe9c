package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/giantswarm/oauth-test-server/credentials"
	"github.com/giantswarm/oauth-test-server/instrumentation"
	"github.com/giantswarm/oauth-test-server/internal/util"
	"github.com/giantswarm/oauth-test-server/security"
	"github.com/giantswarm/oauth-test-server/storage"
)

// tokenIDLogLength is the number of characters of a token included in logs
const tokenIDLogLength = 8

// Server implements the token lifecycle: authorization requests, logins,
// the authorization_code and refresh_token grants, userinfo, introspection
// and revocation.
//
// Every lifecycle operation runs under a single mutex, so no caller can
// observe a partially applied grant.
type Server struct {
	tokenStore  storage.TokenStore
	credentials *credentials.Store

	Auditor     *security.Auditor
	RateLimiter *security.RateLimiter // IP-based rate limiter for login and token requests
	Logger      *slog.Logger
	Config      *Config

	Instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer
	metrics         *instrumentation.Metrics

	mu  sync.Mutex
	now func() time.Time
}

// New creates a new OAuth server
func New(
	tokenStore storage.TokenStore,
	creds *credentials.Store,
	config *Config,
	logger *slog.Logger,
) (*Server, error) {
	if tokenStore == nil {
		return nil, fmt.Errorf("token store is required")
	}
	if creds == nil {
		return nil, fmt.Errorf("credential store is required")
	}
	if config == nil {
		config = &Config{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	config = applySecureDefaults(config, logger)

	srv := &Server{
		tokenStore:  tokenStore,
		credentials: creds,
		Logger:      logger,
		Config:      config,
		tracer:      noop.NewTracerProvider().Tracer(""),
		now:         time.Now,
	}

	if config.RateLimit > 0 {
		srv.RateLimiter = security.NewRateLimiter(config.RateLimit, config.RateLimitBurst, logger)
	}
	if config.EnableAuditLogging {
		srv.Auditor = security.NewAuditor(logger, true)
	}

	return srv, nil
}

// SetAuditor sets the security auditor
func (s *Server) SetAuditor(aud *security.Auditor) {
	s.Auditor = aud
}

// SetRateLimiter sets the IP-based rate limiter. Nil disables rate limiting.
func (s *Server) SetRateLimiter(rl *security.RateLimiter) {
	s.RateLimiter = rl
}

// SetInstrumentation enables tracing and metrics for server operations
func (s *Server) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.Instrumentation = inst
	if inst == nil {
		return
	}
	s.tracer = inst.Tracer("server")
	s.metrics = inst.Metrics()
}

// SetClock replaces the time source used for expiry and rate limiting. Tests pass a mock clock.
func (s *Server) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	if s.RateLimiter != nil {
		s.RateLimiter.SetClock(now)
	}
}

// Credentials returns the credential store the server authenticates against
func (s *Server) Credentials() *credentials.Store {
	return s.credentials
}

// TokenStore returns the underlying token store
func (s *Server) TokenStore() storage.TokenStore {
	return s.tokenStore
}

// log returns the server logger tagged with the request id carried by ctx
func (s *Server) log(ctx context.Context) *slog.Logger {
	return security.LoggerWithRequestID(ctx, s.Logger)
}

// expired reports whether rec is past its expiry at now, allowing for the grace period
func (s *Server) expired(rec *storage.Record, now time.Time) bool {
	return security.IsExpiredAt(rec.ExpiresAt, now, s.Config.GracePeriod())
}

// lookup fetches a record, translating a miss into (nil, nil)
func (s *Server) lookup(ctx context.Context, kind storage.Kind, key string) (*storage.Record, error) {
	if key == "" {
		return nil, nil
	}
	rec, err := s.tokenStore.Get(ctx, kind, key)
	if storage.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// discard deletes a record found expired on read. Failures are logged, not returned,
// because the caller is already reporting the expiry.
func (s *Server) discard(ctx context.Context, kind storage.Kind, key string) {
	if err := s.tokenStore.Delete(ctx, kind, key); err != nil {
		s.log(ctx).Warn("Failed to delete expired record",
			"kind", kind,
			"key_prefix", util.SafeTruncate(key, tokenIDLogLength),
			"error", err)
	}
}

// storageError logs a backend failure and converts it to server_error
func (s *Server) storageError(ctx context.Context, op string, err error) error {
	s.log(ctx).Error("Storage operation failed", "operation", op, "error", err)
	return ErrServerError("Storage failure")
}

// AllowRequest applies the IP rate limiter, logging and counting rejections.
// Identifiers idle past security.DefaultIdleTimeout are dropped on the way in.
func (s *Server) AllowRequest(ctx context.Context, clientIP, endpoint string) bool {
	if s.RateLimiter == nil {
		return true
	}
	s.RateLimiter.Cleanup(security.DefaultIdleTimeout)
	if s.RateLimiter.Allow(clientIP) {
		return true
	}

	s.log(ctx).Warn("Rate limit exceeded", "ip", clientIP, "endpoint", endpoint)
	s.Auditor.LogRateLimitExceeded(clientIP, endpoint)
	if s.metrics != nil {
		s.metrics.RecordRateLimitExceeded(ctx, endpoint)
	}
	return false
}
