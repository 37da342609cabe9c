package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"slices"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/giantswarm/oauth-test-server/instrumentation"
)

// EnvPrefix is prepended to every environment variable name
const EnvPrefix = "OAUTH"

// Storage backends
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendValkey = "valkey"
	BackendRedis  = "redis"
)

// Backends lists the supported storage backends
var Backends = []string{BackendMemory, BackendFile, BackendValkey, BackendRedis}

// Log formats
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Config is the complete server configuration
type Config struct {
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
	Issuer string `mapstructure:"issuer"` // default: http://host:port

	LogLevel  string `mapstructure:"log-level"`
	LogFormat string `mapstructure:"log-format"`

	// Credentials is a YAML fixtures file; empty means the built-in clients and users
	Credentials string `mapstructure:"credentials"`

	AuthorizationCodeTTL int64 `mapstructure:"authorization-code-ttl"`
	AccessTokenTTL       int64 `mapstructure:"access-token-ttl"`
	RefreshTokenTTL      int64 `mapstructure:"refresh-token-ttl"`
	ClockSkewGracePeriod int64 `mapstructure:"clock-skew-grace-period"`

	TrustProxy        bool    `mapstructure:"trust-proxy"`
	TrustedProxyCount int     `mapstructure:"trusted-proxy-count"`
	RateLimit         float64 `mapstructure:"rate-limit"`
	RateLimitBurst    int     `mapstructure:"rate-limit-burst"`
	AuditLog          bool    `mapstructure:"audit-log"`

	Storage StorageConfig `mapstructure:"storage"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// StorageConfig selects and configures the token store
type StorageConfig struct {
	Backend string       `mapstructure:"backend"`
	File    FileConfig   `mapstructure:"file"`
	Valkey  ValkeyConfig `mapstructure:"valkey"`
	Redis   RedisConfig  `mapstructure:"redis"`
}

// FileConfig configures the JSON snapshot store
type FileConfig struct {
	Path string `mapstructure:"path"`
}

// ValkeyConfig configures the Valkey store
type ValkeyConfig struct {
	Address   string `mapstructure:"address"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key-prefix"`
	TLS       bool   `mapstructure:"tls"`
}

// RedisConfig configures the Redis store. Several addresses select cluster
// mode; a master name selects Sentinel.
type RedisConfig struct {
	Addrs      []string `mapstructure:"addrs"`
	MasterName string   `mapstructure:"master-name"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	DB         int      `mapstructure:"db"`
	KeyPrefix  string   `mapstructure:"key-prefix"`
}

// MetricsConfig controls the OpenTelemetry instrumentation. The prometheus
// exporter serves /metrics; the otlp exporter pushes metrics and spans to a collector.
type MetricsConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Exporter     string `mapstructure:"exporter"`
	OTLPEndpoint string `mapstructure:"otlp-endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp-insecure"`
	LogClientIPs bool   `mapstructure:"log-client-ips"`
}

// SetDefaults registers every key with its default. Keys must be known to viper
// for AutomaticEnv to resolve nested settings such as OAUTH_STORAGE_BACKEND.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("host", "localhost")
	v.SetDefault("port", 3000)
	v.SetDefault("issuer", "")
	v.SetDefault("log-level", "info")
	v.SetDefault("log-format", LogFormatText)
	v.SetDefault("credentials", "")

	v.SetDefault("authorization-code-ttl", 600)
	v.SetDefault("access-token-ttl", 3600)
	v.SetDefault("refresh-token-ttl", 86400)
	v.SetDefault("clock-skew-grace-period", 0)

	v.SetDefault("trust-proxy", false)
	v.SetDefault("trusted-proxy-count", 1)
	v.SetDefault("rate-limit", 0)
	v.SetDefault("rate-limit-burst", 20)
	v.SetDefault("audit-log", true)

	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("storage.file.path", "storage/tokens.json")
	v.SetDefault("storage.valkey.address", "localhost:6379")
	v.SetDefault("storage.valkey.password", "")
	v.SetDefault("storage.valkey.db", 0)
	v.SetDefault("storage.valkey.key-prefix", "oauth-test:")
	v.SetDefault("storage.valkey.tls", false)
	v.SetDefault("storage.redis.addrs", []string{"localhost:6379"})
	v.SetDefault("storage.redis.master-name", "")
	v.SetDefault("storage.redis.username", "")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.key-prefix", "oauth-test:")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.exporter", instrumentation.ExporterPrometheus)
	v.SetDefault("metrics.otlp-endpoint", "")
	v.SetDefault("metrics.otlp-insecure", false)
	v.SetDefault("metrics.log-client-ips", false)
}

// Load reads the configuration into a Config. configFile may be empty.
// envFiles are loaded with godotenv before the environment is consulted;
// when none are given, ".env" is loaded if it exists. Variables already set
// in the process environment win over .env files.
func Load(v *viper.Viper, configFile string, envFiles ...string) (*Config, error) {
	if err := loadEnvFiles(envFiles); err != nil {
		return nil, err
	}

	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("port", EnvPrefix+"_PORT", "PORT"); err != nil {
		return nil, fmt.Errorf("failed to bind port: %w", err)
	}
	if err := v.BindEnv("host", EnvPrefix+"_HOST", "HOST"); err != nil {
		return nil, fmt.Errorf("failed to bind host: %w", err)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	if cfg.Issuer == "" {
		cfg.Issuer = "http://" + net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	}
	cfg.Issuer = strings.TrimSuffix(cfg.Issuer, "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadEnvFiles(files []string) error {
	if len(files) == 0 {
		err := godotenv.Load()
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load .env: %w", err)
		}
		return nil
	}

	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("failed to load env files: %w", err)
	}
	return nil
}

// Validate reports every invalid setting at once
func (c *Config) Validate() error {
	var errs []error

	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d is out of range", c.Port))
	}
	if c.LogFormat != LogFormatText && c.LogFormat != LogFormatJSON {
		errs = append(errs, fmt.Errorf("log-format must be %q or %q, got %q", LogFormatText, LogFormatJSON, c.LogFormat))
	}
	if !slices.Contains(Backends, c.Storage.Backend) {
		errs = append(errs, fmt.Errorf("storage.backend must be one of %s, got %q", strings.Join(Backends, ", "), c.Storage.Backend))
	}
	if c.Storage.Backend == BackendFile && c.Storage.File.Path == "" {
		errs = append(errs, errors.New("storage.file.path is required for the file backend"))
	}
	if c.Storage.Backend == BackendRedis && len(c.Storage.Redis.Addrs) == 0 {
		errs = append(errs, errors.New("storage.redis.addrs is required for the redis backend"))
	}
	if c.Metrics.Enabled {
		switch c.Metrics.Exporter {
		case instrumentation.ExporterPrometheus:
		case instrumentation.ExporterOTLP:
			if c.Metrics.OTLPEndpoint == "" {
				errs = append(errs, errors.New("metrics.otlp-endpoint is required for the otlp exporter"))
			}
		default:
			errs = append(errs, fmt.Errorf("metrics.exporter must be %q or %q, got %q",
				instrumentation.ExporterPrometheus, instrumentation.ExporterOTLP, c.Metrics.Exporter))
		}
	}
	if c.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("rate-limit must not be negative, got %v", c.RateLimit))
	}

	return errors.Join(errs...)
}

// ListenAddr returns host:port for the HTTP listener
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
