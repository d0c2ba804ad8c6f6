package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/soyeahso/consultant/internal/chat"
	"github.com/soyeahso/consultant/internal/domain"
	"github.com/soyeahso/consultant/internal/stream"
	"github.com/spf13/cobra"
)

func newChatCmd() *cobra.Command {
	var (
		surface   string
		sessionID string
		user      string
		newChat   bool
		starter   bool
		streamOut bool
		expand    bool
	)

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Talk to the consultant, or print the current conversation",
		Long: "Sends a message on the chosen surface's active session and prints the reply. " +
			"Without a message the conversation so far is printed; with --starter the consultant opens the conversation.",
		RunE: func(cmd *cobra.Command, args []string) error {
			message := strings.Join(args, " ")
			if surface != domain.SurfaceWidget && surface != domain.SurfacePage {
				return fmt.Errorf("unknown surface %q (widget, page)", surface)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			rt, err := openRuntime(cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			eng := chat.New(chat.Identity{UserID: user, HasAccess: true},
				rt.backend.Store, rt.backend.Keys, rt.consumer, rt.hooks, log,
				chat.Options{
					Surface:          surface,
					ForcedSessionID:  sessionID,
					ProactiveStarter: cfg.Engine.ProactiveStarter,
					PersistTurns:     cfg.Engine.Persist(),
					Endpoint:         rt.endpoint(),
					ArchiveLimit:     cfg.Engine.ArchiveLimit,
					Location:         rt.location,
				})
			p := &printer{w: cmd.OutOrStdout(), stream: streamOut, expand: expand}
			eng.Subscribe(p.handle)

			h, err := eng.Mount(ctx)
			if err != nil {
				return err
			}
			if newChat {
				if h, err = eng.NewChat(ctx); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "[session %s]\n", h.SessionID)

			switch {
			case message != "":
				err = eng.Send(ctx, message, "")
			case starter:
				err = eng.Starter(ctx)
			default:
				writeHistory(cmd.OutOrStdout(), eng, expand)
				return nil
			}
			return turnError(err)
		},
	}

	cmd.Flags().StringVar(&surface, "surface", domain.SurfaceWidget, "chat surface (widget, page)")
	cmd.Flags().StringVar(&sessionID, "session", "", "continue this session instead of the surface's active one")
	cmd.Flags().StringVar(&user, "user", defaultUser(), "session owner")
	cmd.Flags().BoolVar(&newChat, "new", false, "start a new session first")
	cmd.Flags().BoolVar(&starter, "starter", false, "let the consultant open the conversation")
	cmd.Flags().BoolVar(&streamOut, "stream", false, "print the reply as it arrives")
	cmd.Flags().BoolVar(&expand, "expand", false, "print long paragraphs in full")

	return cmd
}

// turnError turns backend refusals into actionable messages.
func turnError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, stream.ErrAccessDenied):
		return fmt.Errorf("the consultant requires an active membership: %w", err)
	case errors.Is(err, stream.ErrReauthRequired):
		return fmt.Errorf("sign in again and update backend.accessToken: %w", err)
	default:
		return err
	}
}

// printer writes engine events for a terminal.
type printer struct {
	w      io.Writer
	stream bool
	expand bool

	// shown is the prefix of the streaming message already printed.
	shown string
}

func (p *printer) handle(ev chat.Event) {
	switch ev.Type {
	case chat.EventDelta:
		if !p.stream {
			return
		}
		if strings.HasPrefix(ev.Content, p.shown) {
			fmt.Fprint(p.w, ev.Content[len(p.shown):])
		} else {
			fmt.Fprint(p.w, "\n"+ev.Content)
		}
		p.shown = ev.Content
	case chat.EventDone:
		if p.stream {
			if p.shown != "" {
				fmt.Fprintln(p.w)
			}
			p.shown = ""
			return
		}
		writeBlocks(p.w, ev.Blocks, p.expand)
	}
}

func writeHistory(w io.Writer, eng *chat.Engine, expand bool) {
	msgs := eng.Messages()
	if len(msgs) == 0 {
		fmt.Fprintln(w, "(no messages yet)")
		return
	}
	for i, m := range msgs {
		if i > 0 {
			fmt.Fprintln(w)
		}
		switch m.Role {
		case domain.RoleUser:
			fmt.Fprintf(w, "you> %s\n", m.Content)
		case domain.RoleAssistant:
			fmt.Fprintln(w, "consultant>")
			blocks, _ := eng.Blocks(m.ID)
			writeBlocks(w, blocks, expand)
		}
	}
}
