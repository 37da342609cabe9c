package server

import (
	"log/slog"
	"time"

	"github.com/giantswarm/oauth-test-server/internal/util"
)

// Config holds OAuth server configuration
type Config struct {
	// Issuer is the server's base URL, used in discovery documents (e.g., http://localhost:3000)
	Issuer string

	// AuthorizationCodeTTL is how long authorization codes are valid (seconds)
	AuthorizationCodeTTL int64 // default: 600 (10 minutes)

	// AccessTokenTTL is how long access tokens are valid (seconds)
	AccessTokenTTL int64 // default: 3600 (1 hour)

	// RefreshTokenTTL is how long refresh tokens are valid (seconds)
	RefreshTokenTTL int64 // default: 86400 (24 hours)

	// ClockSkewGracePeriod extends every expiry check (seconds).
	// Default 0 keeps expiry exact.
	ClockSkewGracePeriod int64

	// ListenHost is the interface the HTTP server binds to. It is only used to
	// warn when fixture credentials are reachable from other machines.
	ListenHost string

	// TrustProxy honours X-Forwarded-For and X-Real-IP when deriving client IPs
	TrustProxy bool

	// TrustedProxyCount is the number of proxies in front of the server (default: 1)
	TrustedProxyCount int

	// RateLimit is the sustained number of login and token requests per second
	// allowed from one client IP. Zero disables rate limiting.
	RateLimit float64

	// RateLimitBurst is the number of requests allowed in a burst (default: 20)
	RateLimitBurst int

	// EnableAuditLogging enables the security audit log
	EnableAuditLogging bool
}

// AuthorizationCodeLifetime returns AuthorizationCodeTTL as a duration
func (c *Config) AuthorizationCodeLifetime() time.Duration {
	return time.Duration(c.AuthorizationCodeTTL) * time.Second
}

// AccessTokenLifetime returns AccessTokenTTL as a duration
func (c *Config) AccessTokenLifetime() time.Duration {
	return time.Duration(c.AccessTokenTTL) * time.Second
}

// RefreshTokenLifetime returns RefreshTokenTTL as a duration
func (c *Config) RefreshTokenLifetime() time.Duration {
	return time.Duration(c.RefreshTokenTTL) * time.Second
}

// GracePeriod returns ClockSkewGracePeriod as a duration
func (c *Config) GracePeriod() time.Duration {
	return time.Duration(c.ClockSkewGracePeriod) * time.Second
}

// applySecureDefaults fills in unset values and logs warnings for risky settings
func applySecureDefaults(config *Config, logger *slog.Logger) *Config {
	applyTimeDefaults(config)
	logSecurityWarnings(config, logger)
	return config
}

// applyTimeDefaults sets default values for time-based and limit configuration
func applyTimeDefaults(config *Config) {
	if config.AuthorizationCodeTTL <= 0 {
		config.AuthorizationCodeTTL = 600 // 10 minutes
	}
	if config.AccessTokenTTL <= 0 {
		config.AccessTokenTTL = 3600 // 1 hour
	}
	if config.RefreshTokenTTL <= 0 {
		config.RefreshTokenTTL = 86400 // 24 hours
	}
	if config.ClockSkewGracePeriod < 0 {
		config.ClockSkewGracePeriod = 0
	}
	if config.TrustedProxyCount <= 0 {
		config.TrustedProxyCount = 1
	}
	if config.RateLimit > 0 && config.RateLimitBurst <= 0 {
		config.RateLimitBurst = 20
	}
}

// logSecurityWarnings logs warnings for settings that matter even on a test server
func logSecurityWarnings(config *Config, logger *slog.Logger) {
	if exposure := util.ClassifyListenHost(config.ListenHost); exposure != util.ExposureLoopback {
		logger.Warn("⚠️  SECURITY WARNING: Server is reachable beyond localhost",
			"host", config.ListenHost,
			"exposure", exposure.String(),
			"risk", "Fixture client secrets and user passwords are public",
			"recommendation", "Bind to localhost unless other machines need to reach the server")
	}
	if config.TrustProxy {
		logger.Warn("⚠️  SECURITY NOTICE: Trusting proxy headers",
			"risk", "IP spoofing if proxy is not properly configured",
			"recommendation", "Only enable behind trusted reverse proxies",
			"config", "TrustedProxyCount should match your proxy chain length")
	}
	if config.ClockSkewGracePeriod > 0 {
		logger.Info("Clock skew grace period enabled; tokens remain valid past their expiry",
			"grace_seconds", config.ClockSkewGracePeriod)
	}
}
