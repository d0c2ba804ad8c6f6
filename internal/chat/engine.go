// Package chat wires session management, the startup decision, response
// streaming and content parsing into one engine per chat surface.
package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/soyeahso/consultant/internal/domain"
	"github.com/soyeahso/consultant/internal/hooks"
	"github.com/soyeahso/consultant/internal/logging"
	"github.com/soyeahso/consultant/internal/render"
	"github.com/soyeahso/consultant/internal/session"
	"github.com/soyeahso/consultant/internal/startup"
	"github.com/soyeahso/consultant/internal/stream"
)

// TitleLength is how many characters of the first user turn become the
// title of an untitled session.
const TitleLength = 60

var (
	ErrNotHydrated  = errors.New("session is not ready")
	ErrEmptyMessage = errors.New("message is empty")
	ErrBusy         = errors.New("a response is already streaming")
)

// Identity is the signed-in user as seen by the engine. HasAccess comes from
// an external entitlement check.
type Identity struct {
	UserID    string
	HasAccess bool
}

// Store is the persistence the engine writes turns to.
type Store interface {
	session.Store
	GetSession(ctx context.Context, id string) (*domain.Session, error)
	SetTitle(ctx context.Context, sessionID, title string) error
	AppendMessage(ctx context.Context, msg domain.Message) error
	SearchMessages(ctx context.Context, ownerID, query string, limit int) ([]domain.SearchHit, error)
}

// Consumer streams one assistant response.
type Consumer interface {
	Consume(ctx context.Context, req *http.Request, target string, active func() string, onDelta func(text string)) (stream.Result, error)
}

// Options configure an Engine.
type Options struct {
	Surface string
	// ForcedSessionID, when set, is the session Mount lands on.
	ForcedSessionID string
	// InitialMessage is sent automatically on an empty conversation.
	InitialMessage   string
	ProactiveStarter bool
	PersistTurns     bool
	Endpoint         stream.Endpoint
	ArchiveLimit     int
	Location         *time.Location
}

// Engine drives one chat surface for one user.
type Engine struct {
	id       Identity
	opts     Options
	store    Store
	sessions *session.Manager
	consumer Consumer
	hooks    *hooks.Manager
	log      *logging.Logger

	triggered atomic.Bool
	streaming atomic.Bool

	mu         sync.Mutex
	expanded   map[string]map[int]bool
	subscriber func(Event)
}

// New creates an engine. hooks may be nil.
func New(id Identity, st Store, keys session.KeyStore, consumer Consumer, hm *hooks.Manager, log *logging.Logger, opts Options) *Engine {
	if opts.Surface == "" {
		opts.Surface = domain.SurfaceWidget
	}
	return &Engine{
		id:    id,
		opts:  opts,
		store: st,
		sessions: session.NewManager(st, keys, log.With("surface", opts.Surface), session.Options{
			ArchiveLimit: opts.ArchiveLimit,
			Location:     opts.Location,
		}),
		consumer: consumer,
		hooks:    hm,
		log:      log.Sub("chat").With("surface", opts.Surface),
		expanded: make(map[string]map[int]bool),
	}
}

// Subscribe sets the callback receiving engine events. Events are delivered
// synchronously from whichever goroutine caused them.
func (e *Engine) Subscribe(fn func(Event)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subscriber = fn
}

func (e *Engine) emit(ev Event) {
	e.mu.Lock()
	fn := e.subscriber
	e.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

// Key returns the surface key this engine's session mapping uses.
func (e *Engine) Key() domain.SurfaceKey {
	return domain.SurfaceKey{Surface: e.opts.Surface, OwnerID: e.id.UserID}
}

// Identity returns the user the engine acts for.
func (e *Engine) Identity() Identity { return e.id }

// Active returns the active session id.
func (e *Engine) Active() string { return e.sessions.Active() }

// State returns the session hydration state.
func (e *Engine) State() session.State { return e.sessions.State() }

// Messages returns the in-memory conversation.
func (e *Engine) Messages() []domain.Message { return e.sessions.Messages() }

// Triggered reports whether the automatic opening exchange has fired.
func (e *Engine) Triggered() bool { return e.triggered.Load() }

// Streaming reports whether an assistant response is in flight.
func (e *Engine) Streaming() bool { return e.streaming.Load() }

// Mount resolves and hydrates the surface's session.
func (e *Engine) Mount(ctx context.Context) (session.Handle, error) {
	h, err := e.sessions.ResolveActiveSession(ctx, e.Key(), e.opts.ForcedSessionID)
	if err != nil {
		e.emitError(h.SessionID, err)
		return h, err
	}
	if h.Created {
		e.hooks.Emit(ctx, hooks.EventSessionCreated, h.SessionID, map[string]any{"surface": e.opts.Surface})
	}
	e.emitMessages()
	return h, nil
}

// Autostart evaluates the startup decision against live state and acts on
// it at most once per engine.
func (e *Engine) Autostart(ctx context.Context) (startup.Decision, error) {
	in := startup.Inputs{
		HasAccess:               e.id.HasAccess,
		HasUser:                 e.id.UserID != "",
		HasSession:              e.sessions.State() == session.Hydrated && e.sessions.Active() != "",
		MessageCount:            len(e.sessions.Messages()),
		HasInitialMessage:       strings.TrimSpace(e.opts.InitialMessage) != "",
		ProactiveStarterEnabled: e.opts.ProactiveStarter,
		AlreadyTriggered:        e.triggered.Load(),
	}

	d := startup.Resolve(in)
	if d == startup.None {
		return d, nil
	}
	// Mark before the request so a concurrent evaluation cannot fire twice.
	if !e.triggered.CompareAndSwap(false, true) {
		return startup.None, nil
	}

	e.log.Info().Str("decision", d.String()).Msg("autostart")
	switch d {
	case startup.SendInitialMessage:
		return d, e.Send(ctx, e.opts.InitialMessage, "")
	default:
		return d, e.Starter(ctx)
	}
}

// Send appends a user turn and streams the assistant's reply.
func (e *Engine) Send(ctx context.Context, text, imageRef string) error {
	text = strings.TrimSpace(text)
	if text == "" && imageRef == "" {
		return ErrEmptyMessage
	}
	return e.exchange(ctx, &domain.Message{
		Role:     domain.RoleUser,
		Content:  text,
		ImageRef: imageRef,
	})
}

// Starter asks the assistant to open the conversation without user input.
func (e *Engine) Starter(ctx context.Context) error {
	return e.exchange(ctx, nil)
}

func (e *Engine) exchange(ctx context.Context, user *domain.Message) error {
	target := e.sessions.Active()
	if target == "" || e.sessions.State() != session.Hydrated {
		return ErrNotHydrated
	}
	if !e.streaming.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer e.streaming.Store(false)

	log := e.log.With("session", target)
	starter := user == nil

	if user != nil {
		firstTurn := !hasUserTurn(e.sessions.Messages())
		user.ID = uuid.New().String()
		user.SessionID = target
		user.CreatedAt = time.Now()
		if !e.sessions.Append(target, *user) {
			return ErrNotHydrated
		}
		e.emitMessages()
		e.persistUser(ctx, *user, firstTurn, log)
	}

	req, err := stream.NewRequest(ctx, e.opts.Endpoint, stream.ChatRequest{
		Messages:  stream.TurnsFrom(e.sessions.Messages()),
		SessionID: target,
		Starter:   starter,
	})
	if err != nil {
		e.emitError(target, err)
		return err
	}

	e.hooks.Emit(ctx, hooks.EventTurnSending, target, map[string]any{"starter": starter})

	var shell domain.Message
	onDelta := func(text string) {
		if shell.ID == "" {
			next := domain.Message{ID: uuid.New().String(), SessionID: target, Role: domain.RoleAssistant, CreatedAt: time.Now()}
			if !e.sessions.Append(target, next) {
				return
			}
			shell = next
		}
		shellID := shell.ID
		if !e.sessions.ReplaceContent(target, shellID, text) {
			return
		}
		blocks, _ := e.Blocks(shellID)
		e.emit(Event{Type: EventDelta, SessionID: target, MessageID: shellID, Content: text, Blocks: blocks})
	}

	res, err := e.consumer.Consume(ctx, req, target, e.sessions.Active, onDelta)
	if err != nil {
		return e.failTurn(ctx, target, err, log)
	}

	if res.Stale {
		log.Info().Int("chars", utf8.RuneCountInString(res.Text)).Msg("response arrived for an inactive session, discarded")
		return nil
	}

	// Every delta reached the target, but the surface may have moved on
	// since the last one. The reply still belongs to target.
	active := e.sessions.Active() == target
	if shell.ID != "" {
		shell.Content = res.Text
		if e.opts.PersistTurns {
			if err := e.store.AppendMessage(ctx, shell); err != nil {
				log.Warn().Err(err).Msg("failed to persist assistant turn")
			}
		}
		if active {
			e.emit(Event{Type: EventDone, SessionID: target, MessageID: shell.ID, Content: shell.Content, Blocks: e.blocksFor(shell)})
		}
	} else if active {
		e.emit(Event{Type: EventDone, SessionID: target})
	}

	e.hooks.Emit(ctx, hooks.EventTurnCompleted, target, map[string]any{
		"starter": starter,
		"chars":   utf8.RuneCountInString(res.Text),
		"frames":  res.Frames,
		"dropped": res.Dropped,
	})
	log.Debug().Int("frames", res.Frames).Int("dropped", res.Dropped).Msg("turn completed")
	return nil
}

func (e *Engine) persistUser(ctx context.Context, msg domain.Message, firstTurn bool, log *logging.Logger) {
	if !e.opts.PersistTurns {
		return
	}
	if err := e.store.AppendMessage(ctx, msg); err != nil {
		log.Warn().Err(err).Msg("failed to persist user turn")
		return
	}
	if !firstTurn || msg.Content == "" {
		return
	}
	sess, err := e.store.GetSession(ctx, msg.SessionID)
	if err != nil || sess.Title != "" {
		return
	}
	if err := e.store.SetTitle(ctx, msg.SessionID, Title(msg.Content)); err != nil {
		log.Warn().Err(err).Msg("failed to title session")
	}
}

func (e *Engine) failTurn(ctx context.Context, target string, err error, log *logging.Logger) error {
	switch {
	case errors.Is(err, stream.ErrAccessDenied):
		log.Info().Msg("chat access denied")
		e.hooks.Emit(ctx, hooks.EventAccessDenied, target, nil)
		e.emit(Event{Type: EventAccessDenied, SessionID: target, Error: err.Error()})
	case errors.Is(err, stream.ErrReauthRequired):
		log.Info().Msg("re-authentication required")
		e.hooks.Emit(ctx, hooks.EventReauthRequired, target, nil)
		e.emit(Event{Type: EventReauthRequired, SessionID: target, Error: err.Error()})
	default:
		log.Error().Err(err).Msg("chat turn failed")
		e.hooks.Emit(ctx, hooks.EventTurnFailed, target, map[string]any{"error": err.Error()})
		e.emitError(target, err)
	}
	return err
}

// NewChat starts a fresh session on this surface. A response still streaming
// for the previous session stops being applied.
func (e *Engine) NewChat(ctx context.Context) (session.Handle, error) {
	h, err := e.sessions.StartNewSession(ctx, e.Key())
	if err != nil {
		e.emitError(e.sessions.Active(), err)
		return h, err
	}
	e.resetExpanded()
	e.hooks.Emit(ctx, hooks.EventSessionCreated, h.SessionID, map[string]any{"surface": e.opts.Surface})
	e.emitMessages()
	return h, nil
}

// Select switches to an archived session.
func (e *Engine) Select(ctx context.Context, sessionID string) (session.Handle, error) {
	if sessionID == "" {
		return session.Handle{}, fmt.Errorf("session id is required")
	}
	h, err := e.sessions.Select(ctx, e.Key(), sessionID)
	if err != nil {
		e.emitError(sessionID, err)
		return h, err
	}
	e.resetExpanded()
	e.hooks.Emit(ctx, hooks.EventSessionSelected, sessionID, nil)
	e.emitMessages()
	return h, nil
}

// Reload retries loading the active session after a transient failure.
func (e *Engine) Reload(ctx context.Context) ([]domain.Message, error) {
	msgs, err := e.sessions.Reload(ctx)
	if err != nil {
		return msgs, err
	}
	e.emitMessages()
	return msgs, nil
}

// Archive lists the user's sessions grouped by day.
func (e *Engine) Archive(ctx context.Context) ([]session.ArchiveGroup, error) {
	return e.sessions.ListArchive(ctx, e.id.UserID)
}

// Search finds the user's archived messages.
func (e *Engine) Search(ctx context.Context, query string, limit int) ([]domain.SearchHit, error) {
	return e.store.SearchMessages(ctx, e.id.UserID, query, limit)
}

// Blocks parses a message with its current expansion flags.
func (e *Engine) Blocks(messageID string) ([]domain.Block, bool) {
	msg, ok := e.sessions.Message(messageID)
	if !ok {
		return nil, false
	}
	return e.blocksFor(msg), true
}

func (e *Engine) blocksFor(msg domain.Message) []domain.Block {
	e.mu.Lock()
	flags := render.Flags(e.expanded[msg.ID])
	e.mu.Unlock()
	return render.Parse(msg.Content, flags)
}

// SetExpanded records whether the truncatable block at index of a message is
// shown in full, and returns the re-parsed blocks.
func (e *Engine) SetExpanded(messageID string, index int, expanded bool) ([]domain.Block, bool) {
	e.mu.Lock()
	flags := e.expanded[messageID]
	if flags == nil {
		flags = make(map[int]bool)
		e.expanded[messageID] = flags
	}
	flags[index] = expanded
	e.mu.Unlock()
	return e.Blocks(messageID)
}

// resetExpanded forgets expansion flags of messages no longer displayed.
func (e *Engine) resetExpanded() {
	e.mu.Lock()
	clear(e.expanded)
	e.mu.Unlock()
}

func (e *Engine) emitMessages() {
	e.emit(Event{Type: EventMessages, SessionID: e.sessions.Active(), Messages: e.sessions.Messages()})
}

func (e *Engine) emitError(sessionID string, err error) {
	e.emit(Event{Type: EventError, SessionID: sessionID, Error: err.Error()})
}

// Title derives a session title from the first user turn.
func Title(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= TitleLength {
		return text
	}
	return strings.TrimSpace(string([]rune(text)[:TitleLength]))
}

func hasUserTurn(msgs []domain.Message) bool {
	for _, m := range msgs {
		if m.Role == domain.RoleUser {
			return true
		}
	}
	return false
}
