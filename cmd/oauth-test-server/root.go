package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/giantswarm/oauth-test-server/internal/config"
)

// serverFlags maps command line flags onto configuration keys
var serverFlags = []struct {
	name string
	key  string
}{
	{"host", "host"},
	{"port", "port"},
	{"issuer", "issuer"},
	{"log-level", "log-level"},
	{"log-format", "log-format"},
	{"credentials", "credentials"},
	{"storage", "storage.backend"},
	{"storage-file", "storage.file.path"},
	{"metrics", "metrics.enabled"},
	{"metrics-exporter", "metrics.exporter"},
	{"otlp-endpoint", "metrics.otlp-endpoint"},
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var (
		configFile string
		envFiles   []string
	)

	load := func() (*config.Config, error) {
		return config.Load(v, configFile, envFiles...)
	}

	cmd := &cobra.Command{
		Use:   "oauth-test-server",
		Short: "Minimal OAuth2 authorization server for local development and testing",
		Long: `oauth-test-server issues authorization codes, access tokens and refresh tokens
for a fixed set of test clients and users. Without a subcommand it runs the server.`,
		Version:       version,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), load)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "Path to a YAML configuration file")
	pf.StringSliceVar(&envFiles, "env-file", nil, "Environment files to load (default: .env if present)")

	addServerFlags(pf)
	if err := bindServerFlags(v, pf); err != nil {
		panic(err)
	}

	cmd.AddCommand(newServeCmd(load), newClientCmd())
	return cmd
}

// addServerFlags registers the server flags. Their defaults match config.SetDefaults.
func addServerFlags(fs *pflag.FlagSet) {
	fs.String("host", "localhost", "Host to listen on")
	fs.Int("port", 3000, "Port to listen on")
	fs.String("issuer", "", "Issuer URL advertised in discovery (default: http://host:port)")
	fs.String("log-level", "info", "Log level: debug, info, warn or error")
	fs.String("log-format", config.LogFormatText, "Log format: text or json")
	fs.String("credentials", "", "YAML file with clients and users (default: built-in fixtures)")
	fs.String("storage", config.BackendMemory, "Token storage backend: memory, file, valkey or redis")
	fs.String("storage-file", "storage/tokens.json", "Snapshot path for the file backend")
	fs.Bool("metrics", false, "Enable OpenTelemetry instrumentation")
	fs.String("metrics-exporter", "prometheus", "Metrics exporter: prometheus (serves /metrics) or otlp")
	fs.String("otlp-endpoint", "", "OTLP/HTTP collector host:port for the otlp exporter")
}

// bindServerFlags lets flags that were set override every other configuration source
func bindServerFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for _, f := range serverFlags {
		if err := v.BindPFlag(f.key, fs.Lookup(f.name)); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", f.name, err)
		}
	}
	return nil
}
