package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/giantswarm/oauth-test-server/internal/democlient"
)

func newClientCmd() *cobra.Command {
	var (
		listen   string
		discover bool
		cfg      democlient.Config
	)

	cmd := &cobra.Command{
		Use:   "client",
		Short: "Run an example OAuth2 client against the test server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			// log flags are inherited from the root command
			format, _ := cmd.Flags().GetString("log-format")
			level, _ := cmd.Flags().GetString("log-level")
			logger, err := newLogger(os.Stderr, level, format)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			client := democlient.New(cfg, logger)
			if discover {
				if err := client.Discover(ctx); err != nil {
					return err
				}
			}

			httpServer := &http.Server{
				Addr:              listen,
				Handler:           client.Routes(),
				ReadHeaderTimeout: readHeaderTimeout,
			}

			errCh := make(chan error, 1)
			go func() {
				errCh <- httpServer.ListenAndServe()
			}()
			logger.Info("Example client running", "url", "http://"+listen, "server", cfg.ServerURL)

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return fmt.Errorf("client server error: %w", err)
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		},
	}

	f := cmd.Flags()
	f.StringVar(&listen, "listen", democlient.DefaultListenAddr, "Address the example client listens on")
	f.StringVar(&cfg.ServerURL, "server", "http://localhost:3000", "Base URL of the OAuth2 test server")
	f.StringVar(&cfg.ClientID, "client-id", "test-client", "Client ID")
	f.StringVar(&cfg.ClientSecret, "client-secret", "test-secret", "Client secret")
	f.StringVar(&cfg.RedirectURL, "redirect-url", "http://"+democlient.DefaultListenAddr+"/callback", "Registered redirect URL")
	f.BoolVar(&discover, "discover", false, "Read the endpoints from the server's discovery document")
	f.StringSliceVar(&cfg.Scopes, "scope", []string{"openid", "profile", "email"}, "Scopes to request")
	return cmd
}
