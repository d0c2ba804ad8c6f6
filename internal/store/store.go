package store

import (
	"context"
	"time"

	"github.com/soyeahso/consultant/internal/domain"
	"github.com/soyeahso/consultant/internal/logging"
	"github.com/soyeahso/consultant/internal/session"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = session.ErrNotFound

// DefaultSearchLimit applies when SearchMessages gets a limit of 0.
const DefaultSearchLimit = 20

// timeLayout is fixed-width so stored timestamps sort as text.
const timeLayout = "2006-01-02 15:04:05.000000"

// Store is the session and message persistence used by the chat engine,
// the CLI and the gateway.
type Store interface {
	session.Store
	GetSession(ctx context.Context, id string) (*domain.Session, error)
	SetTitle(ctx context.Context, sessionID, title string) error
	AppendMessage(ctx context.Context, msg domain.Message) error
	SearchMessages(ctx context.Context, ownerID, query string, limit int) ([]domain.SearchHit, error)
	// Prune deletes sessions idle since before, their messages and any key
	// mapping left pointing at a missing session. It returns the number of
	// sessions removed.
	Prune(ctx context.Context, before time.Time) (int, error)
}

// Backend bundles a Store with the KeyStore sharing its database.
type Backend struct {
	Store Store
	Keys  session.KeyStore
	close func() error
}

// Close releases the underlying database, if any.
func (b *Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// OpenBackend opens the configured driver. path is used by sqlite, dsn by
// postgres; memory ignores both.
func OpenBackend(driver, path, dsn string, log *logging.Logger) (*Backend, error) {
	if driver == DriverMemory {
		m := NewMemoryStore()
		return &Backend{Store: m, Keys: m.Keys()}, nil
	}

	target := dsn
	if driver == DriverSQLite || driver == "" {
		target = path
	}
	db, err := Open(driver, target, log)
	if err != nil {
		return nil, err
	}
	return &Backend{
		Store: NewSessionStore(db),
		Keys:  NewKeyStore(db),
		close: db.Close,
	}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.ParseInLocation(timeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}
	}
	return t
}
