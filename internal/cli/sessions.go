package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/soyeahso/consultant/internal/domain"
	"github.com/soyeahso/consultant/internal/hooks"
	"github.com/soyeahso/consultant/internal/session"
	"github.com/soyeahso/consultant/internal/store"
	"github.com/spf13/cobra"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Browse, search and prune stored sessions",
	}

	cmd.AddCommand(newSessionsListCmd())
	cmd.AddCommand(newSessionsSearchCmd())
	cmd.AddCommand(newSessionsPruneCmd())
	return cmd
}

func newSessionsListCmd() *cobra.Command {
	var (
		user  string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archived sessions grouped by day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			rt, err := openRuntime(cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			if limit <= 0 {
				limit = cfg.Engine.ArchiveLimit
			}
			mgr := session.NewManager(rt.backend.Store, rt.backend.Keys, log, session.Options{
				ArchiveLimit: limit,
				Location:     rt.location,
			})
			groups, err := mgr.ListArchive(cmd.Context(), user)
			if err != nil {
				return err
			}
			writeArchive(cmd.OutOrStdout(), groups)
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", defaultUser(), "session owner")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum sessions (default engine.archiveLimit)")
	return cmd
}

func writeArchive(w io.Writer, groups []session.ArchiveGroup) {
	if len(groups) == 0 {
		fmt.Fprintln(w, "(no sessions)")
		return
	}
	for _, g := range groups {
		fmt.Fprintln(w, g.Day)
		for _, s := range g.Sessions {
			fmt.Fprintf(w, "  %s  %s  %s\n", s.ID, s.LastActivity().Format("15:04"), titleOf(s))
		}
	}
}

func titleOf(s domain.Session) string {
	if s.Title == "" {
		return "(untitled)"
	}
	return s.Title
}

func newSessionsSearchCmd() *cobra.Command {
	var (
		user  string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search archived messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			rt, err := openRuntime(cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			hits, err := rt.backend.Store.SearchMessages(cmd.Context(), user, args[0], limit)
			if err != nil {
				return err
			}
			writeHits(cmd.OutOrStdout(), hits)
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", defaultUser(), "session owner")
	cmd.Flags().IntVar(&limit, "limit", store.DefaultSearchLimit, "maximum results")
	return cmd
}

func writeHits(w io.Writer, hits []domain.SearchHit) {
	if len(hits) == 0 {
		fmt.Fprintln(w, "(no matches)")
		return
	}
	for _, h := range hits {
		preview := []rune(h.Message.Content)
		if len(preview) > 100 {
			preview = append(preview[:100], '…')
		}
		fmt.Fprintf(w, "%s  %s  [%s] %s\n", h.Session.ID, titleOf(h.Session), h.Message.Role, string(preview))
	}
}

func newSessionsPruneCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete sessions idle longer than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if days <= 0 {
				days = cfg.Store.RetentionDays
			}
			if days <= 0 {
				return fmt.Errorf("no retention window: set store.retentionDays or pass --days")
			}
			rt, err := openRuntime(cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			n, err := prune(cmd.Context(), rt, days)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d session(s) idle for more than %d day(s)\n", n, days)
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "retention window in days (default store.retentionDays)")
	return cmd
}

func newRetention(rt *runtime, days int) *store.Retention {
	r := store.NewRetention(rt.backend.Store, days, log)
	r.OnPrune(func(n int) {
		rt.hooks.Emit(context.Background(), hooks.EventSessionsPruned, "", map[string]any{"sessions": n})
	})
	return r
}

func prune(ctx context.Context, rt *runtime, days int) (int, error) {
	return newRetention(rt, days).RunOnce(ctx)
}
