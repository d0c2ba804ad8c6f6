package session

import (
	"context"
	"sync"

	"github.com/soyeahso/consultant/internal/domain"
)

// KeyStore maps a surface key to at most one session id. Set replaces any
// previous value for the key.
type KeyStore interface {
	Get(ctx context.Context, key string) (sessionID string, ok bool, err error)
	Set(ctx context.Context, key, sessionID string) error
}

// Store is the persistence the manager needs. Failures are reported as
// errors, never as empty results.
type Store interface {
	CreateSession(ctx context.Context, ownerID, title string) (*domain.Session, error)
	GetSession(ctx context.Context, id string) (*domain.Session, error)
	ListMessages(ctx context.Context, sessionID string) ([]domain.Message, error)
	ListSessions(ctx context.Context, ownerID string, limit int) ([]domain.Session, error)
}

// MemoryKeys is a process-local KeyStore.
type MemoryKeys struct {
	mu sync.RWMutex
	m  map[string]string
}

// NewMemoryKeys creates an empty in-memory key store.
func NewMemoryKeys() *MemoryKeys {
	return &MemoryKeys{m: make(map[string]string)}
}

func (k *MemoryKeys) Get(_ context.Context, key string) (string, bool, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	id, ok := k.m[key]
	return id, ok, nil
}

func (k *MemoryKeys) Set(_ context.Context, key, sessionID string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.m[key] = sessionID
	return nil
}
