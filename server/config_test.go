package server

import (
	"testing"
	"time"
)

func TestApplyTimeDefaults(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   Config
	}{
		{
			name:   "zero values",
			config: Config{},
			want:   Config{AuthorizationCodeTTL: 600, AccessTokenTTL: 3600, RefreshTokenTTL: 86400, TrustedProxyCount: 1},
		},
		{
			name:   "explicit values kept",
			config: Config{AuthorizationCodeTTL: 30, AccessTokenTTL: 60, RefreshTokenTTL: 120, TrustedProxyCount: 2},
			want:   Config{AuthorizationCodeTTL: 30, AccessTokenTTL: 60, RefreshTokenTTL: 120, TrustedProxyCount: 2},
		},
		{
			name:   "negative values replaced",
			config: Config{AuthorizationCodeTTL: -1, ClockSkewGracePeriod: -5},
			want:   Config{AuthorizationCodeTTL: 600, AccessTokenTTL: 3600, RefreshTokenTTL: 86400, TrustedProxyCount: 1},
		},
		{
			name:   "rate limit burst default",
			config: Config{RateLimit: 5},
			want:   Config{AuthorizationCodeTTL: 600, AccessTokenTTL: 3600, RefreshTokenTTL: 86400, TrustedProxyCount: 1, RateLimit: 5, RateLimitBurst: 20},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.config
			applyTimeDefaults(&cfg)
			if cfg != tt.want {
				t.Errorf("applyTimeDefaults() = %+v, want %+v", cfg, tt.want)
			}
		})
	}
}

func TestConfigDurations(t *testing.T) {
	cfg := Config{AuthorizationCodeTTL: 600, AccessTokenTTL: 3600, RefreshTokenTTL: 86400, ClockSkewGracePeriod: 5}

	if cfg.AuthorizationCodeLifetime() != 10*time.Minute {
		t.Errorf("AuthorizationCodeLifetime() = %v", cfg.AuthorizationCodeLifetime())
	}
	if cfg.AccessTokenLifetime() != time.Hour {
		t.Errorf("AccessTokenLifetime() = %v", cfg.AccessTokenLifetime())
	}
	if cfg.RefreshTokenLifetime() != 24*time.Hour {
		t.Errorf("RefreshTokenLifetime() = %v", cfg.RefreshTokenLifetime())
	}
	if cfg.GracePeriod() != 5*time.Second {
		t.Errorf("GracePeriod() = %v", cfg.GracePeriod())
	}
}
