package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/consultant/internal/domain"
)

// MemoryStore is an in-memory Store. Its Keys share the same lock so Prune
// can drop dangling mappings.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session  // id → session
	messages map[string][]domain.Message // session id → messages
	keys     map[string]string           // key → session id
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*domain.Session),
		messages: make(map[string][]domain.Message),
		keys:     make(map[string]string),
	}
}

func (s *MemoryStore) CreateSession(_ context.Context, ownerID, title string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	sess := &domain.Session{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.sessions[sess.ID] = sess
	cp := *sess
	return &cp, nil
}

func (s *MemoryStore) GetSession(_ context.Context, id string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	cp := *sess
	return &cp, nil
}

func (s *MemoryStore) ListSessions(_ context.Context, ownerID string, limit int) ([]domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Session
	for _, sess := range s.sessions {
		if sess.OwnerID == ownerID {
			out = append(out, *sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) SetTitle(_ context.Context, sessionID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	sess.Title = title
	return nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, msg domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[msg.SessionID]
	if !ok {
		return fmt.Errorf("session %s: %w", msg.SessionID, ErrNotFound)
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	s.messages[msg.SessionID] = append(s.messages[msg.SessionID], msg)
	sess.UpdatedAt = msg.CreatedAt
	return nil
}

func (s *MemoryStore) ListMessages(_ context.Context, sessionID string) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]domain.Message{}, s.messages[sessionID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// SearchMessages matches every whitespace-separated term case-insensitively.
func (s *MemoryStore) SearchMessages(_ context.Context, ownerID, query string, limit int) ([]domain.SearchHit, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []domain.SearchHit
	for id, msgs := range s.messages {
		sess := s.sessions[id]
		if sess == nil || sess.OwnerID != ownerID {
			continue
		}
		for _, m := range msgs {
			if containsAll(strings.ToLower(m.Content), terms) {
				hits = append(hits, domain.SearchHit{Session: *sess, Message: m})
			}
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Message.CreatedAt.After(hits[j].Message.CreatedAt) })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *MemoryStore) Prune(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, sess := range s.sessions {
		if sess.LastActivity().Before(before) {
			delete(s.sessions, id)
			delete(s.messages, id)
			n++
		}
	}
	for key, id := range s.keys {
		if _, ok := s.sessions[id]; !ok {
			delete(s.keys, key)
		}
	}
	return n, nil
}

// Keys returns the key mapping backed by this store.
func (s *MemoryStore) Keys() *MemoryKeys {
	return &MemoryKeys{store: s}
}

// MemoryKeys is the KeyStore view of a MemoryStore.
type MemoryKeys struct {
	store *MemoryStore
}

func (k *MemoryKeys) Get(_ context.Context, key string) (string, bool, error) {
	k.store.mu.RLock()
	defer k.store.mu.RUnlock()
	id, ok := k.store.keys[key]
	return id, ok, nil
}

func (k *MemoryKeys) Set(_ context.Context, key, sessionID string) error {
	k.store.mu.Lock()
	defer k.store.mu.Unlock()
	k.store.keys[key] = sessionID
	return nil
}

func containsAll(s string, terms []string) bool {
	for _, t := range terms {
		if !strings.Contains(s, t) {
			return false
		}
	}
	return true
}
