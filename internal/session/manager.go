// Package session owns conversation identity for a chat surface: which
// session is active, its hydration state and its in-memory message list.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/soyeahso/consultant/internal/domain"
	"github.com/soyeahso/consultant/internal/logging"
)

// DefaultArchiveLimit caps how many sessions ListArchive fetches.
const DefaultArchiveLimit = 50

// State is the hydration state of a Manager.
type State int

const (
	Uninitialized State = iota
	Hydrating
	Hydrated
)

func (s State) String() string {
	switch s {
	case Hydrating:
		return "hydrating"
	case Hydrated:
		return "hydrated"
	default:
		return "uninitialized"
	}
}

// Handle describes the session a surface ended up on.
type Handle struct {
	SessionID string
	// Created is set when the session was allocated by this call.
	Created  bool
	Messages []domain.Message
}

// ArchiveGroup holds the sessions whose last activity falls on Day.
type ArchiveGroup struct {
	Day      string           `json:"day"`
	Sessions []domain.Session `json:"sessions"`
}

// Options tune a Manager.
type Options struct {
	ArchiveLimit int
	// Location decides calendar days for archive grouping. Defaults to time.Local.
	Location *time.Location
}

// Manager tracks the active session of one chat surface.
type Manager struct {
	store Store
	keys  KeyStore
	log   *logging.Logger
	opts  Options

	mu       sync.RWMutex
	state    State
	activeID string
	messages []domain.Message
}

// NewManager creates a manager backed by store and keys.
func NewManager(store Store, keys KeyStore, log *logging.Logger, opts Options) *Manager {
	if opts.ArchiveLimit <= 0 {
		opts.ArchiveLimit = DefaultArchiveLimit
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Manager{
		store: store,
		keys:  keys,
		log:   log.Sub("session"),
		opts:  opts,
	}
}

// ResolveActiveSession finds the session for key. A non-empty forcedID wins
// over any mapped id and is written into the mapping; otherwise the mapped id
// is reused, or a new untitled session is created and mapped. A forcedID
// owned by someone other than key.OwnerID yields ErrNotFound and changes
// nothing.
func (m *Manager) ResolveActiveSession(ctx context.Context, key domain.SurfaceKey, forcedID string) (Handle, error) {
	keyStr := key.String()

	if forcedID != "" {
		if err := m.checkOwner(ctx, key.OwnerID, forcedID); err != nil {
			return Handle{}, err
		}
		if err := m.keys.Set(ctx, keyStr, forcedID); err != nil {
			m.log.Warn().Err(err).Str("key", keyStr).Msg("failed to store forced session id")
		}
		return m.activate(ctx, forcedID)
	}

	id, ok, err := m.keys.Get(ctx, keyStr)
	if err != nil {
		return Handle{}, &ReadError{Err: fmt.Errorf("looking up key %s: %w", keyStr, err)}
	}
	if ok && id != "" {
		return m.activate(ctx, id)
	}

	return m.create(ctx, key)
}

func (m *Manager) checkOwner(ctx context.Context, ownerID, sessionID string) error {
	sess, err := m.store.GetSession(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return err
	}
	if err != nil {
		return &ReadError{SessionID: sessionID, Err: err}
	}
	if sess.OwnerID != ownerID {
		m.log.Warn().Str("session", sessionID).Str("owner", ownerID).Msg("rejected session of another owner")
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	return nil
}

// Select switches the surface to an existing (archived) session.
func (m *Manager) Select(ctx context.Context, key domain.SurfaceKey, sessionID string) (Handle, error) {
	return m.ResolveActiveSession(ctx, key, sessionID)
}

// StartNewSession unconditionally creates a session for key and makes it
// active with an empty message list. On failure the previous session stays
// active.
func (m *Manager) StartNewSession(ctx context.Context, key domain.SurfaceKey) (Handle, error) {
	return m.create(ctx, key)
}

func (m *Manager) create(ctx context.Context, key domain.SurfaceKey) (Handle, error) {
	m.mu.Lock()
	prev := m.state
	m.state = Hydrating
	m.mu.Unlock()

	sess, err := m.store.CreateSession(ctx, key.OwnerID, "")
	if err != nil {
		m.mu.Lock()
		m.state = prev
		m.mu.Unlock()
		return Handle{}, fmt.Errorf("%w: %w", ErrCreateSession, err)
	}

	if err := m.keys.Set(ctx, key.String(), sess.ID); err != nil {
		m.log.Warn().Err(err).Str("key", key.String()).Msg("failed to store session key")
	}

	m.mu.Lock()
	m.activeID = sess.ID
	m.messages = nil
	m.state = Hydrated
	m.mu.Unlock()

	m.log.Info().Str("session", sess.ID).Str("key", key.String()).Msg("session created")
	return Handle{SessionID: sess.ID, Created: true}, nil
}

// activate makes id the active session and loads its messages. The switch
// happens before the load so in-flight responses for the previous session
// go stale immediately.
func (m *Manager) activate(ctx context.Context, id string) (Handle, error) {
	m.mu.Lock()
	if m.activeID != id || m.state == Uninitialized {
		m.activeID = id
		m.state = Hydrating
	}
	m.mu.Unlock()

	msgs, err := m.LoadMessages(ctx, id)
	return Handle{SessionID: id, Messages: msgs}, err
}

// LoadMessages fetches the messages of sessionID in creation order. When the
// read fails the previous in-memory messages are returned unchanged together
// with a *ReadError; the manager stays Hydrating until a load succeeds.
func (m *Manager) LoadMessages(ctx context.Context, sessionID string) ([]domain.Message, error) {
	msgs, err := m.store.ListMessages(ctx, sessionID)
	if err != nil {
		m.log.Warn().Err(err).Str("session", sessionID).Msg("failed to load messages")
		return m.Messages(), &ReadError{SessionID: sessionID, Err: err}
	}

	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].CreatedAt.Before(msgs[j].CreatedAt) })

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activeID != sessionID {
		// Another session became active while this one was loading.
		return cloneMessages(msgs), nil
	}
	m.messages = msgs
	m.state = Hydrated
	return cloneMessages(msgs), nil
}

// Reload retries loading the active session.
func (m *Manager) Reload(ctx context.Context) ([]domain.Message, error) {
	id := m.Active()
	if id == "" {
		return nil, nil
	}
	return m.LoadMessages(ctx, id)
}

// ListArchive returns up to the configured limit of ownerID's sessions,
// newest activity first, grouped by local calendar day.
func (m *Manager) ListArchive(ctx context.Context, ownerID string) ([]ArchiveGroup, error) {
	sessions, err := m.store.ListSessions(ctx, ownerID, m.opts.ArchiveLimit)
	if err != nil {
		return nil, &ReadError{Err: fmt.Errorf("listing sessions: %w", err)}
	}
	return GroupByDay(sessions, m.opts.Location), nil
}

// GroupByDay sorts sessions by last activity, newest first, and groups them
// by calendar day in loc.
func GroupByDay(sessions []domain.Session, loc *time.Location) []ArchiveGroup {
	sorted := make([]domain.Session, len(sessions))
	copy(sorted, sessions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].LastActivity().After(sorted[j].LastActivity())
	})

	var groups []ArchiveGroup
	for _, s := range sorted {
		day := s.LastActivity().In(loc).Format(time.DateOnly)
		if n := len(groups); n > 0 && groups[n-1].Day == day {
			groups[n-1].Sessions = append(groups[n-1].Sessions, s)
			continue
		}
		groups = append(groups, ArchiveGroup{Day: day, Sessions: []domain.Session{s}})
	}
	return groups
}

// Active returns the active session id, or "" before the first resolve.
func (m *Manager) Active() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeID
}

// State returns the current hydration state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Messages returns a copy of the in-memory message list.
func (m *Manager) Messages() []domain.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneMessages(m.messages)
}

// Message returns the in-memory message with the given id.
func (m *Manager) Message(id string) (domain.Message, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, msg := range m.messages {
		if msg.ID == id {
			return msg, true
		}
	}
	return domain.Message{}, false
}

// Append adds msg to the list if target is still the active session.
func (m *Manager) Append(target string, msg domain.Message) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activeID != target || m.state != Hydrated {
		return false
	}
	m.messages = append(m.messages, msg)
	return true
}

// ReplaceContent sets the content of message id if target is still active.
func (m *Manager) ReplaceContent(target, id, content string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activeID != target {
		return false
	}
	for i := len(m.messages) - 1; i >= 0; i-- {
		if m.messages[i].ID == id {
			m.messages[i].Content = content
			return true
		}
	}
	return false
}

func cloneMessages(msgs []domain.Message) []domain.Message {
	if msgs == nil {
		return nil
	}
	out := make([]domain.Message, len(msgs))
	copy(out, msgs)
	return out
}
