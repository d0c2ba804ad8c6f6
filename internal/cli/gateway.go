package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/soyeahso/consultant/internal/config"
	"github.com/soyeahso/consultant/internal/gateway"
	"github.com/soyeahso/consultant/internal/logging"
	"github.com/soyeahso/consultant/internal/plugin"
	"github.com/spf13/cobra"
)

func newGatewayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Manage the consultant gateway server",
	}

	cmd.AddCommand(newGatewayRunCmd())
	cmd.AddCommand(newGatewayTokenCmd())
	return cmd
}

func newGatewayRunCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the gateway server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}

			if port != 0 {
				cfg.Gateway.Port = port
			}
			if bind != "" {
				cfg.Gateway.Bind = bind
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			// The server logs with the configured style and file.
			level := cfg.Logging.Level
			if logLevel != "" {
				level = logLevel
			}
			srvLog, closer, err := logging.Open(logging.Options{
				Level: level,
				Style: cfg.Logging.ConsoleStyle,
				File:  cfg.Logging.File,
			})
			if err != nil {
				return err
			}
			defer closer.Close()
			log = srvLog

			// Load raw config for RPC access
			raw, err := config.LoadRaw(paths.Config)
			if err != nil {
				raw = make(map[string]any)
			}

			rt, err := openRuntime(cfg)
			if err != nil {
				return err
			}
			defer rt.Close()
			log.Info().Str("driver", cfg.Store.Driver).Msg("session store open")

			opts := []gateway.ServerOption{
				gateway.WithConfigRaw(raw),
				gateway.WithHooks(rt.hooks),
			}
			if cfg.Backend.ChatURL != "" {
				opts = append(opts,
					gateway.WithStore(rt.backend.Store, rt.backend.Keys),
					gateway.WithConsumer(rt.consumer),
				)
			} else {
				log.Warn().Msg("backend.chatUrl is not set, chat methods will be unavailable")
			}

			if cfg.Store.RetentionDays > 0 {
				retention := newRetention(rt, cfg.Store.RetentionDays)
				if err := retention.Start(cfg.Store.PruneSchedule); err != nil {
					return err
				}
				defer retention.Stop()
			}

			srv := gateway.New(cfg, log, opts...)

			// Block until SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			plugins := plugin.NewRegistry(rt.hooks, log)
			if err := plugins.Register(plugin.NewActivity()); err != nil {
				return err
			}
			if err := plugins.InitAll(ctx); err != nil {
				return fmt.Errorf("initializing plugins: %w", err)
			}
			defer plugins.CloseAll()

			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (auto, lan, loopback, custom)")

	return cmd
}

func newGatewayTokenCmd() *cobra.Command {
	var (
		user   string
		access bool
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token for the gateway's jwt auth mode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}
			secret := cfg.Gateway.Auth.JWTSecret
			if secret == "" {
				return fmt.Errorf("gateway.auth.jwtSecret is not set")
			}
			token, err := gateway.IssueAccessToken(secret, user, access, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", defaultUser(), "token subject (user id)")
	cmd.Flags().BoolVar(&access, "access", true, "grant chat access")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime (0 for no expiry)")
	return cmd
}
