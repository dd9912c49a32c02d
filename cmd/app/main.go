package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/atvirokodosprendimai/dlzbrowser/internal/app"
	"github.com/atvirokodosprendimai/dlzbrowser/internal/common"
)

func main() {
	defaults := app.DefaultConfig()

	cmd := &cli.Command{
		Name:  "dlzbrowser",
		Usage: "Browse files in data landing zone containers",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Sources: cli.EnvVars("DLZ_CONFIG"),
				Usage:   "Optional TOML config file; explicitly set flags override it",
			},
			&cli.StringFlag{
				Name:    "addr",
				Value:   defaults.Addr,
				Sources: cli.EnvVars("DLZ_ADDR"),
				Usage:   "HTTP listen address",
			},
			&cli.StringFlag{
				Name:    "secrets-file",
				Value:   defaults.SecretsFile,
				Sources: cli.EnvVars("DLZ_SECRETS_FILE"),
				Usage:   "JSON or YAML file mapping sandbox names to client credentials",
			},
			&cli.StringFlag{
				Name:    "session-db",
				Sources: cli.EnvVars("DLZ_SESSION_DB"),
				Usage:   "SQLite file for sessions (empty keeps them in memory)",
			},
			&cli.DurationFlag{
				Name:    "session-ttl",
				Value:   time.Duration(defaults.SessionTTL),
				Sources: cli.EnvVars("DLZ_SESSION_TTL"),
				Usage:   "Idle time after which a session and its cached credentials are dropped",
			},
			&cli.DurationFlag{
				Name:    "janitor-interval",
				Value:   time.Duration(defaults.JanitorInterval),
				Sources: cli.EnvVars("DLZ_JANITOR_INTERVAL"),
				Usage:   "How often idle sessions are purged",
			},
			&cli.StringFlag{
				Name:    "identity-url",
				Value:   defaults.IdentityURL,
				Sources: cli.EnvVars("DLZ_IDENTITY_URL"),
				Usage:   "Identity service token endpoint",
			},
			&cli.StringFlag{
				Name:    "platform-url",
				Value:   defaults.PlatformURL,
				Sources: cli.EnvVars("DLZ_PLATFORM_URL"),
				Usage:   "Platform API base URL",
			},
			&cli.StringFlag{
				Name:    "ims-scope",
				Value:   defaults.IMSScope,
				Sources: cli.EnvVars("DLZ_IMS_SCOPE"),
				Usage:   "Scope requested with the client credentials grant",
			},
			&cli.StringFlag{
				Name:    "storage-endpoint",
				Value:   defaults.StorageEndpoint,
				Sources: cli.EnvVars("DLZ_STORAGE_ENDPOINT"),
				Usage:   "Blob service endpoint template; {account} is replaced by the storage account",
			},
			&cli.StringFlag{
				Name:    "proxy-url",
				Sources: cli.EnvVars("DLZ_PROXY_URL"),
				Usage:   "Proxy used by sessions started with vpn=true",
			},
			&cli.DurationFlag{
				Name:    "token-lifetime",
				Value:   time.Duration(defaults.TokenLifetime),
				Sources: cli.EnvVars("DLZ_TOKEN_LIFETIME"),
				Usage:   "How long a bearer token is reused",
			},
			&cli.IntFlag{
				Name:    "rate-limit",
				Value:   defaults.RateLimit,
				Sources: cli.EnvVars("DLZ_RATE_LIMIT"),
				Usage:   "Platform API requests per second across all sessions (0 disables)",
			},
			&cli.DurationFlag{
				Name:    "http-timeout",
				Value:   time.Duration(defaults.HTTPTimeout),
				Sources: cli.EnvVars("DLZ_HTTP_TIMEOUT"),
				Usage:   "Timeout for each outbound HTTP request",
			},
			&cli.StringSliceFlag{
				Name:    "cors-origins",
				Sources: cli.EnvVars("DLZ_CORS_ORIGINS"),
				Usage:   "Origins allowed to call the API from a browser",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   defaults.LogLevel,
				Sources: cli.EnvVars("DLZ_LOG_LEVEL"),
				Usage:   "debug, info, warn or error",
			},
			&cli.BoolFlag{
				Name:    "refresh-on-unauthorized",
				Sources: cli.EnvVars("DLZ_REFRESH_ON_UNAUTHORIZED"),
				Usage:   "Drop cached credentials and retry once when storage or the platform denies access",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			logger := common.NewLogger(cfg.LogLevel)

			server, closer, err := app.NewServer(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("create server: %w", err)
			}
			defer func() {
				if closeErr := closer.Close(); closeErr != nil {
					logger.Error().Err(closeErr).Msg("close resources")
				}
			}()

			errCh := make(chan error, 1)
			go func() {
				logger.Info().Str("addr", cfg.Addr).Msg("listening")
				errCh <- server.ListenAndServe()
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			select {
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			case sig := <-sigCh:
				logger.Info().Str("signal", sig.String()).Msg("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			}
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		common.NewLogger("error").Fatal().Err(err).Msg("dlzbrowser stopped")
	}
}

// loadConfig layers defaults, the optional TOML file and explicitly set flags.
func loadConfig(c *cli.Command) (app.Config, error) {
	cfg := app.DefaultConfig()
	if path := c.String("config"); path != "" {
		if err := app.LoadConfigFile(path, &cfg); err != nil {
			return app.Config{}, err
		}
	}

	setString := func(name string, dst *string) {
		if c.IsSet(name) {
			*dst = c.String(name)
		}
	}
	setDuration := func(name string, dst *app.Duration) {
		if c.IsSet(name) {
			*dst = app.Duration(c.Duration(name))
		}
	}

	setString("addr", &cfg.Addr)
	setString("secrets-file", &cfg.SecretsFile)
	setString("session-db", &cfg.SessionDB)
	setDuration("session-ttl", &cfg.SessionTTL)
	setDuration("janitor-interval", &cfg.JanitorInterval)
	setString("identity-url", &cfg.IdentityURL)
	setString("platform-url", &cfg.PlatformURL)
	setString("ims-scope", &cfg.IMSScope)
	setString("storage-endpoint", &cfg.StorageEndpoint)
	setString("proxy-url", &cfg.ProxyURL)
	setDuration("token-lifetime", &cfg.TokenLifetime)
	setDuration("http-timeout", &cfg.HTTPTimeout)
	setString("log-level", &cfg.LogLevel)
	if c.IsSet("rate-limit") {
		cfg.RateLimit = c.Int("rate-limit")
	}
	if c.IsSet("cors-origins") {
		cfg.CORSOrigins = c.StringSlice("cors-origins")
	}
	if c.IsSet("refresh-on-unauthorized") {
		cfg.RefreshOnUnauthorized = c.Bool("refresh-on-unauthorized")
	}
	return cfg, nil
}
