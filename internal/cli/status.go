package cli

import (
	"fmt"
	"os"

	"github.com/soyeahso/consultant/internal/config"
	"github.com/soyeahso/consultant/internal/version"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show consultant status and configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Consultant %s (commit %s)\n\n", version.Version, version.Commit)

			// Show paths
			fmt.Fprintf(out, "Config:  %s\n", paths.Config)
			fmt.Fprintf(out, "Data:    %s\n", paths.Data)
			fmt.Fprintf(out, "Logs:    %s\n", paths.Logs)
			fmt.Fprintln(out)

			if _, err := os.Stat(paths.Config); os.IsNotExist(err) {
				fmt.Fprintln(out, "Config:  not found (using defaults)")
			}
			cfg, err := config.Load(paths.Config)
			if err != nil {
				fmt.Fprintf(out, "Config:  error loading: %v\n", err)
				return nil
			}

			// Backend
			if cfg.Backend.ChatURL != "" {
				fmt.Fprintf(out, "Backend: %s apiKey=%s accessToken=%s\n",
					cfg.Backend.ChatURL, setOrNot(cfg.Backend.APIKey), setOrNot(cfg.Backend.AccessToken))
			} else {
				fmt.Fprintln(out, "Backend: (chatUrl not configured)")
			}

			// Engine
			tz := cfg.Engine.Timezone
			if tz == "" {
				tz = "local"
			}
			fmt.Fprintf(out, "Engine:  surface=%s starter=%v persist=%v archive=%d tz=%s\n",
				cfg.Engine.Surface, cfg.Engine.ProactiveStarter, cfg.Engine.Persist(), cfg.Engine.ArchiveLimit, tz)

			// Store
			where := cfg.Store.Path
			switch {
			case cfg.Store.Driver == "memory":
				where = "(in memory)"
			case cfg.Store.Driver == "postgres":
				where = "(dsn " + setOrNot(cfg.Store.DSN) + ")"
			case where == "":
				where = paths.Database
			}
			fmt.Fprintf(out, "Store:   driver=%s %s", cfg.Store.Driver, where)
			if cfg.Store.RetentionDays > 0 {
				fmt.Fprintf(out, " retention=%dd schedule=%q", cfg.Store.RetentionDays, cfg.Store.PruneSchedule)
			}
			fmt.Fprintln(out)

			// Gateway
			fmt.Fprintf(out, "Gateway: port=%d bind=%s auth=%s\n",
				cfg.Gateway.Port, cfg.Gateway.Bind, cfg.Gateway.Auth.Mode)

			// Validation
			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(out, "  - %s: %s\n", issue.Path, issue.Message)
				}
			}

			return nil
		},
	}

	return cmd
}

func setOrNot(s string) string {
	if s == "" {
		return "unset"
	}
	return "set"
}
