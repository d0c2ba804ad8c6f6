package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/soyeahso/consultant/internal/domain"
)

// SessionStore implements Store on top of a DB.
type SessionStore struct {
	db *DB
}

// NewSessionStore creates a session store using the given database.
func NewSessionStore(db *DB) *SessionStore {
	return &SessionStore{db: db}
}

// CreateSession inserts a new session owned by ownerID.
func (s *SessionStore) CreateSession(ctx context.Context, ownerID, title string) (*domain.Session, error) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	sess := domain.Session{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.sql.ExecContext(ctx, s.db.rebind(
		`INSERT INTO sessions (id, owner_id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`),
		sess.ID, sess.OwnerID, sess.Title, formatTime(now), formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting session: %w", err)
	}
	return &sess, nil
}

// GetSession returns a session by id, or ErrNotFound.
func (s *SessionStore) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	row := s.db.sql.QueryRowContext(ctx, s.db.rebind(
		`SELECT id, owner_id, title, created_at, updated_at FROM sessions WHERE id = ?`), id)

	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading session %s: %w", id, err)
	}
	return &sess, nil
}

// ListSessions returns up to limit of ownerID's sessions, most recently
// updated first.
func (s *SessionStore) ListSessions(ctx context.Context, ownerID string, limit int) ([]domain.Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.sql.QueryContext(ctx, s.db.rebind(
		`SELECT id, owner_id, title, created_at, updated_at
		 FROM sessions WHERE owner_id = ?
		 ORDER BY updated_at DESC LIMIT ?`), ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// SetTitle renames a session.
func (s *SessionStore) SetTitle(ctx context.Context, sessionID, title string) error {
	res, err := s.db.sql.ExecContext(ctx, s.db.rebind(
		`UPDATE sessions SET title = ? WHERE id = ?`), title, sessionID)
	if err != nil {
		return fmt.Errorf("updating title: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	return nil
}

// AppendMessage stores msg and bumps its session's updated_at. A missing id
// or timestamp is filled in.
func (s *SessionStore) AppendMessage(ctx context.Context, msg domain.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	ts := formatTime(msg.CreatedAt)

	tx, err := s.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, s.db.rebind(
		`UPDATE sessions SET updated_at = ? WHERE id = ?`), ts, msg.SessionID)
	if err != nil {
		return fmt.Errorf("touching session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s: %w", msg.SessionID, ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, s.db.rebind(
		`INSERT INTO messages (id, session_id, role, content, image_ref, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`),
		msg.ID, msg.SessionID, string(msg.Role), msg.Content, msg.ImageRef, ts,
	); err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	return tx.Commit()
}

// ListMessages returns a session's messages in creation order.
func (s *SessionStore) ListMessages(ctx context.Context, sessionID string) ([]domain.Message, error) {
	rows, err := s.db.sql.QueryContext(ctx, s.db.rebind(
		`SELECT id, session_id, role, content, image_ref, created_at
		 FROM messages WHERE session_id = ?
		 ORDER BY created_at, seq`), sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	msgs := []domain.Message{}
	for rows.Next() {
		var m domain.Message
		var role, createdAt string
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &m.ImageRef, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.Role = domain.Role(role)
		m.CreatedAt = parseTime(createdAt)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// SearchMessages finds ownerID's messages matching query. SQLite ranks by
// full-text relevance; Postgres matches substrings, newest first.
func (s *SessionStore) SearchMessages(ctx context.Context, ownerID, query string, limit int) ([]domain.SearchHit, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	const cols = `m.id, m.session_id, m.role, m.content, m.image_ref, m.created_at,
		s.id, s.owner_id, s.title, s.created_at, s.updated_at`

	var (
		rows *sql.Rows
		err  error
	)
	if s.db.dialect.name == DriverSQLite {
		match := ftsQuery(query)
		if match == "" {
			return nil, nil
		}
		rows, err = s.db.sql.QueryContext(ctx,
			`SELECT `+cols+`
			 FROM messages_fts
			 JOIN messages m ON m.seq = messages_fts.rowid
			 JOIN sessions s ON s.id = m.session_id
			 WHERE messages_fts MATCH ? AND s.owner_id = ?
			 ORDER BY rank
			 LIMIT ?`,
			match, ownerID, limit)
	} else {
		rows, err = s.db.sql.QueryContext(ctx, s.db.rebind(
			`SELECT `+cols+`
			 FROM messages m
			 JOIN sessions s ON s.id = m.session_id
			 WHERE m.content ILIKE ? AND s.owner_id = ?
			 ORDER BY m.created_at DESC
			 LIMIT ?`),
			"%"+likeEscaper.Replace(query)+"%", ownerID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("searching messages: %w", err)
	}
	defer rows.Close()

	var hits []domain.SearchHit
	for rows.Next() {
		var h domain.SearchHit
		var role, msgCreated, sessCreated, sessUpdated string
		if err := rows.Scan(
			&h.Message.ID, &h.Message.SessionID, &role, &h.Message.Content, &h.Message.ImageRef, &msgCreated,
			&h.Session.ID, &h.Session.OwnerID, &h.Session.Title, &sessCreated, &sessUpdated,
		); err != nil {
			return nil, fmt.Errorf("scanning search hit: %w", err)
		}
		h.Message.Role = domain.Role(role)
		h.Message.CreatedAt = parseTime(msgCreated)
		h.Session.CreatedAt = parseTime(sessCreated)
		h.Session.UpdatedAt = parseTime(sessUpdated)
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// Prune deletes sessions whose last activity is before the cutoff.
func (s *SessionStore) Prune(ctx context.Context, before time.Time) (int, error) {
	cutoff := formatTime(before)

	tx, err := s.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin prune: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.db.rebind(
		`DELETE FROM messages WHERE session_id IN (SELECT id FROM sessions WHERE updated_at < ?)`), cutoff); err != nil {
		return 0, fmt.Errorf("pruning messages: %w", err)
	}

	res, err := tx.ExecContext(ctx, s.db.rebind(`DELETE FROM sessions WHERE updated_at < ?`), cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning sessions: %w", err)
	}
	n, _ := res.RowsAffected()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM session_keys WHERE session_id NOT IN (SELECT id FROM sessions)`); err != nil {
		return 0, fmt.Errorf("pruning session keys: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit prune: %w", err)
	}
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(r rowScanner) (domain.Session, error) {
	var sess domain.Session
	var createdAt, updatedAt string
	if err := r.Scan(&sess.ID, &sess.OwnerID, &sess.Title, &createdAt, &updatedAt); err != nil {
		return sess, err
	}
	sess.CreatedAt = parseTime(createdAt)
	sess.UpdatedAt = parseTime(updatedAt)
	return sess, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ftsQuery quotes every term so user input never reaches FTS5 as syntax.
// Terms without a letter or digit are dropped.
func ftsQuery(q string) string {
	var terms []string
	for _, t := range strings.Fields(q) {
		if strings.IndexFunc(t, isWordRune) < 0 {
			continue
		}
		terms = append(terms, `"`+strings.ReplaceAll(t, `"`, `""`)+`"`)
	}
	return strings.Join(terms, " ")
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
