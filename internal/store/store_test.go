package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/soyeahso/consultant/internal/domain"
	"github.com/soyeahso/consultant/internal/logging"
	"github.com/soyeahso/consultant/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	log := logging.New(nil, "silent")
	db, err := Open(DriverSQLite, ":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

type backend struct {
	store Store
	keys  session.KeyStore
}

// backends returns every Store implementation that runs without external
// services.
func backends(t *testing.T) map[string]backend {
	db := testDB(t)
	mem := NewMemoryStore()
	return map[string]backend{
		"sqlite": {NewSessionStore(db), NewKeyStore(db)},
		"memory": {mem, mem.Keys()},
	}
}

var ctx = context.Background()

// --- DB/Migration tests ---

func TestOpen_InMemory(t *testing.T) {
	db := testDB(t)
	assert.NotNil(t, db.SQL())
	assert.Equal(t, DriverSQLite, db.Driver())
}

func TestOpen_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "consultant.db")
	db, err := Open(DriverSQLite, path, logging.New(nil, "silent"))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open("oracle", "x", logging.New(nil, "silent"))
	assert.ErrorContains(t, err, "unsupported store driver")
}

func TestOpen_PostgresRequiresDSN(t *testing.T) {
	_, err := Open(DriverPostgres, "", logging.New(nil, "silent"))
	assert.ErrorContains(t, err, "requires a dsn")
}

func TestMigrations_Applied(t *testing.T) {
	db := testDB(t)

	var count int
	require.NoError(t, db.sql.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, len(sqliteMigrations), count)
}

func TestMigrations_Idempotent(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.migrate())

	var count int
	require.NoError(t, db.sql.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, len(sqliteMigrations), count)
}

func TestSchema_TablesExist(t *testing.T) {
	db := testDB(t)

	for _, table := range []string{"sessions", "messages", "session_keys", "messages_fts"} {
		var name string
		err := db.sql.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestRebind(t *testing.T) {
	sqlite := &DB{dialect: sqliteDialect}
	pg := &DB{dialect: postgresDialect}

	q := "SELECT * FROM t WHERE a = ? AND b = ? LIMIT ?"
	assert.Equal(t, q, sqlite.rebind(q))
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2 LIMIT $3", pg.rebind(q))
}

func TestRedactDSN(t *testing.T) {
	assert.Equal(t, "postgres://app:***@db:5432/chat", redactDSN("postgres://app:secret@db:5432/chat"))
	assert.Equal(t, "postgres://db/chat", redactDSN("postgres://db/chat"))
	assert.Equal(t, "postgres", redactDSN("host=db password=secret"))
}

func TestFTSQuery(t *testing.T) {
	assert.Equal(t, `"oud" "price"`, ftsQuery("  oud price "))
	assert.Equal(t, `"say""hi"""`, ftsQuery(`say"hi"`))
	assert.Equal(t, `"a*"`, ftsQuery("a*"))
	assert.Equal(t, `"oud"`, ftsQuery("oud ( )"))
	assert.Equal(t, "", ftsQuery("*"))
}

// --- Store behavior, shared by every implementation ---

func TestStore_CreateAndGet(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			sess, err := b.store.CreateSession(ctx, "u1", "")
			require.NoError(t, err)
			assert.NotEmpty(t, sess.ID)
			assert.Equal(t, "u1", sess.OwnerID)

			got, err := b.store.GetSession(ctx, sess.ID)
			require.NoError(t, err)
			assert.Equal(t, sess.ID, got.ID)
			assert.Equal(t, "", got.Title)
			assert.WithinDuration(t, sess.CreatedAt, got.CreatedAt, time.Millisecond)

			_, err = b.store.GetSession(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_AppendAndListMessagesInOrder(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			sess, err := b.store.CreateSession(ctx, "u1", "")
			require.NoError(t, err)

			base := time.Now().Add(-time.Minute)
			require.NoError(t, b.store.AppendMessage(ctx, domain.Message{
				ID: "m2", SessionID: sess.ID, Role: domain.RoleAssistant, Content: "second", CreatedAt: base.Add(time.Second),
			}))
			require.NoError(t, b.store.AppendMessage(ctx, domain.Message{
				ID: "m1", SessionID: sess.ID, Role: domain.RoleUser, Content: "first", ImageRef: "img/a.png", CreatedAt: base,
			}))

			msgs, err := b.store.ListMessages(ctx, sess.ID)
			require.NoError(t, err)
			require.Len(t, msgs, 2)
			assert.Equal(t, "m1", msgs[0].ID)
			assert.Equal(t, domain.RoleUser, msgs[0].Role)
			assert.Equal(t, "img/a.png", msgs[0].ImageRef)
			assert.Equal(t, "m2", msgs[1].ID)
		})
	}
}

func TestStore_AppendGeneratesIDAndTouchesSession(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			sess, err := b.store.CreateSession(ctx, "u1", "")
			require.NoError(t, err)

			later := time.Now().Add(time.Hour)
			require.NoError(t, b.store.AppendMessage(ctx, domain.Message{
				SessionID: sess.ID, Role: domain.RoleUser, Content: "hi", CreatedAt: later,
			}))

			msgs, err := b.store.ListMessages(ctx, sess.ID)
			require.NoError(t, err)
			require.Len(t, msgs, 1)
			assert.NotEmpty(t, msgs[0].ID)

			got, err := b.store.GetSession(ctx, sess.ID)
			require.NoError(t, err)
			assert.WithinDuration(t, later, got.UpdatedAt, time.Millisecond)
		})
	}
}

func TestStore_AppendToMissingSession(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			err := b.store.AppendMessage(ctx, domain.Message{SessionID: "missing", Role: domain.RoleUser, Content: "x"})
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_ListMessagesEmpty(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			msgs, err := b.store.ListMessages(ctx, "nothing")
			require.NoError(t, err)
			assert.Empty(t, msgs)
		})
	}
}

func TestStore_ListSessionsNewestFirstWithLimit(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			var ids []string
			for i := 0; i < 3; i++ {
				sess, err := b.store.CreateSession(ctx, "u1", "")
				require.NoError(t, err)
				ids = append(ids, sess.ID)
			}
			_, err := b.store.CreateSession(ctx, "u2", "")
			require.NoError(t, err)

			// Touch the first session so it becomes the most recent.
			require.NoError(t, b.store.AppendMessage(ctx, domain.Message{
				SessionID: ids[0], Role: domain.RoleUser, Content: "bump", CreatedAt: time.Now().Add(time.Hour),
			}))

			list, err := b.store.ListSessions(ctx, "u1", 2)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, ids[0], list[0].ID)

			all, err := b.store.ListSessions(ctx, "u1", 10)
			require.NoError(t, err)
			assert.Len(t, all, 3)
		})
	}
}

func TestStore_SetTitle(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			sess, err := b.store.CreateSession(ctx, "u1", "")
			require.NoError(t, err)

			require.NoError(t, b.store.SetTitle(ctx, sess.ID, "Pricing my oud line"))
			got, err := b.store.GetSession(ctx, sess.ID)
			require.NoError(t, err)
			assert.Equal(t, "Pricing my oud line", got.Title)

			assert.ErrorIs(t, b.store.SetTitle(ctx, "missing", "x"), ErrNotFound)
		})
	}
}

func TestStore_SearchMessages(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			mine, err := b.store.CreateSession(ctx, "u1", "Fragrances")
			require.NoError(t, err)
			theirs, err := b.store.CreateSession(ctx, "u2", "")
			require.NoError(t, err)

			require.NoError(t, b.store.AppendMessage(ctx, domain.Message{SessionID: mine.ID, Role: domain.RoleUser, Content: "How should I price my oud perfume?"}))
			require.NoError(t, b.store.AppendMessage(ctx, domain.Message{SessionID: mine.ID, Role: domain.RoleAssistant, Content: "Start with your costs."}))
			require.NoError(t, b.store.AppendMessage(ctx, domain.Message{SessionID: theirs.ID, Role: domain.RoleUser, Content: "oud perfume for me too"}))

			hits, err := b.store.SearchMessages(ctx, "u1", "oud perfume", 0)
			require.NoError(t, err)
			require.Len(t, hits, 1)
			assert.Equal(t, mine.ID, hits[0].Session.ID)
			assert.Equal(t, "Fragrances", hits[0].Session.Title)
			assert.Contains(t, hits[0].Message.Content, "oud")

			hits, err = b.store.SearchMessages(ctx, "u1", "   ", 0)
			require.NoError(t, err)
			assert.Empty(t, hits)

			// FTS syntax in user input is treated as plain text.
			_, err = b.store.SearchMessages(ctx, "u1", `oud" OR (`, 0)
			assert.NoError(t, err)
		})
	}
}

func TestStore_Prune(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			old, err := b.store.CreateSession(ctx, "u1", "")
			require.NoError(t, err)
			require.NoError(t, b.store.AppendMessage(ctx, domain.Message{
				SessionID: old.ID, Role: domain.RoleUser, Content: "ancient", CreatedAt: time.Now().Add(-48 * time.Hour),
			}))
			fresh, err := b.store.CreateSession(ctx, "u1", "")
			require.NoError(t, err)

			require.NoError(t, b.keys.Set(ctx, "u1:widget", old.ID))
			require.NoError(t, b.keys.Set(ctx, "u1:page", fresh.ID))

			n, err := b.store.Prune(ctx, time.Now().Add(-24*time.Hour))
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			_, err = b.store.GetSession(ctx, old.ID)
			assert.ErrorIs(t, err, ErrNotFound)
			msgs, err := b.store.ListMessages(ctx, old.ID)
			require.NoError(t, err)
			assert.Empty(t, msgs)

			_, ok, err := b.keys.Get(ctx, "u1:widget")
			require.NoError(t, err)
			assert.False(t, ok, "dangling key removed")
			id, ok, err := b.keys.Get(ctx, "u1:page")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, fresh.ID, id)

			hits, err := b.store.SearchMessages(ctx, "u1", "ancient", 0)
			require.NoError(t, err)
			assert.Empty(t, hits)
		})
	}
}

func TestKeys_SetReplaces(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := b.keys.Get(ctx, "u1:widget")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, b.keys.Set(ctx, "u1:widget", "a"))
			require.NoError(t, b.keys.Set(ctx, "u1:widget", "b"))

			id, ok, err := b.keys.Get(ctx, "u1:widget")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "b", id)
		})
	}
}

func TestSessionManagerOverSQLite(t *testing.T) {
	db := testDB(t)
	m := session.NewManager(NewSessionStore(db), NewKeyStore(db), logging.New(nil, "silent"), session.Options{})
	key := domain.SurfaceKey{Surface: domain.SurfaceWidget, OwnerID: "u1"}

	h, err := m.ResolveActiveSession(ctx, key, "")
	require.NoError(t, err)
	require.True(t, h.Created)

	again := session.NewManager(NewSessionStore(db), NewKeyStore(db), logging.New(nil, "silent"), session.Options{})
	h2, err := again.ResolveActiveSession(ctx, key, "")
	require.NoError(t, err)
	assert.False(t, h2.Created)
	assert.Equal(t, h.SessionID, h2.SessionID)
}

func TestOpenBackend(t *testing.T) {
	log := logging.New(nil, "silent")

	mem, err := OpenBackend(DriverMemory, "", "", log)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, mem.Store)
	assert.NoError(t, mem.Close())

	lite, err := OpenBackend(DriverSQLite, filepath.Join(t.TempDir(), "c.db"), "", log)
	require.NoError(t, err)
	assert.IsType(t, &SessionStore{}, lite.Store)
	assert.IsType(t, &KeyStore{}, lite.Keys)
	assert.NoError(t, lite.Close())
}

func TestPostgres(t *testing.T) {
	dsn := os.Getenv("CONSULTANT_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("CONSULTANT_TEST_PG_DSN not set")
	}
	db, err := Open(DriverPostgres, dsn, logging.New(nil, "silent"))
	require.NoError(t, err)
	defer db.Close()

	st := NewSessionStore(db)
	sess, err := st.CreateSession(ctx, "pg-user", "")
	require.NoError(t, err)
	require.NoError(t, st.AppendMessage(ctx, domain.Message{SessionID: sess.ID, Role: domain.RoleUser, Content: "100% oud_blend"}))

	hits, err := st.SearchMessages(ctx, "pg-user", "100%", 0)
	require.NoError(t, err)
	assert.NotEmpty(t, hits)

	_, err = st.Prune(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
}
