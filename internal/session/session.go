// Package session provides a SQLite-backed store for query sessions. A
// session tracks which file the user is currently asking about and the recent
// question/answer exchanges that are replayed into the model's context window
// on follow-up queries. Sessions survive restarts.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // register "sqlite" driver
)

// MaxExchanges is how many question/answer pairs are retained per session.
// Older exchanges are pruned on append so context injection stays bounded.
const MaxExchanges = 5

// ErrNotFound is returned when a session ID does not exist.
var ErrNotFound = errors.New("session: not found")

// Role identifies the author of a session message.
type Role string

const (
	// RoleUser is a question from the user.
	RoleUser Role = "user"
	// RoleAssistant is an answer produced by the model.
	RoleAssistant Role = "assistant"
)

// Message is a single turn in a session.
type Message struct {
	// Role is the author of the message.
	Role Role
	// Content is the text of the message.
	Content string
	// CreatedAt is when the message was persisted.
	CreatedAt time.Time
}

// Store persists and retrieves query sessions. Implementations must be safe
// for concurrent use.
type Store interface {
	// Create starts a new session and returns its ID.
	Create(ctx context.Context) (string, error)
	// Ensure creates the session with the given ID if it does not exist.
	// Lets clients supply their own session identifiers.
	Ensure(ctx context.Context, id string) error
	// SetCurrentFile records which file the session is querying.
	SetCurrentFile(ctx context.Context, id, path string) error
	// CurrentFile returns the session's current file, empty when none is set.
	CurrentFile(ctx context.Context, id string) (string, error)
	// AppendExchange persists one question/answer pair, pruning history
	// beyond MaxExchanges.
	AppendExchange(ctx context.Context, id, question, answer string) error
	// Recent returns the session's retained messages, oldest-first, so they
	// can be prepended to the model message slice directly.
	Recent(ctx context.Context, id string) ([]Message, error)
	// Delete removes the session and its messages.
	Delete(ctx context.Context, id string) error
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a Store backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default path for the session database.
// It resolves to ~/.visiq/sessions.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("session: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".visiq")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("session: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "sessions.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("session: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS sessions (
    id           TEXT    PRIMARY KEY,
    current_file TEXT    NOT NULL DEFAULT '',
    created_at   INTEGER NOT NULL,  -- Unix timestamp (seconds)
    updated_at   INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT    NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    role       TEXT    NOT NULL CHECK(role IN ('user','assistant')),
    content    TEXT    NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_session_created
    ON messages (session_id, created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("session: migrate: %w", err)
	}
	return nil
}

// Create starts a new session with a generated UUID.
func (s *SQLiteStore) Create(ctx context.Context) (string, error) {
	id := uuid.NewString()
	now := time.Now().Unix()
	const q = `INSERT INTO sessions (id, created_at, updated_at) VALUES (?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, id, now, now); err != nil {
		return "", fmt.Errorf("session: create: %w", err)
	}
	return id, nil
}

// Ensure creates the session with the given ID if it does not already exist.
func (s *SQLiteStore) Ensure(ctx context.Context, id string) error {
	now := time.Now().Unix()
	const q = `INSERT INTO sessions (id, created_at, updated_at) VALUES (?, ?, ?)
               ON CONFLICT(id) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, q, id, now, now); err != nil {
		return fmt.Errorf("session: ensure: %w", err)
	}
	return nil
}

// SetCurrentFile records which file the session is querying.
func (s *SQLiteStore) SetCurrentFile(ctx context.Context, id, path string) error {
	const q = `UPDATE sessions SET current_file = ?, updated_at = ? WHERE id = ?`
	res, err := s.db.ExecContext(ctx, q, path, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("session: set current file: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// CurrentFile returns the session's current file, empty when none is set.
func (s *SQLiteStore) CurrentFile(ctx context.Context, id string) (string, error) {
	const q = `SELECT current_file FROM sessions WHERE id = ?`
	var path string
	err := s.db.QueryRowContext(ctx, q, id).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return "", fmt.Errorf("session: current file: %w", err)
	}
	return path, nil
}

// AppendExchange persists one question/answer pair and prunes messages beyond
// the last MaxExchanges pairs.
func (s *SQLiteStore) AppendExchange(ctx context.Context, id, question, answer string) error {
	now := time.Now().Unix()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("session: append: begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE sessions SET updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return fmt.Errorf("session: append: touch: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	const ins = `INSERT INTO messages (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, ins, id, string(RoleUser), question, now); err != nil {
		return fmt.Errorf("session: append question: %w", err)
	}
	if _, err := tx.ExecContext(ctx, ins, id, string(RoleAssistant), answer, now); err != nil {
		return fmt.Errorf("session: append answer: %w", err)
	}

	// Keep only the newest MaxExchanges pairs.
	const prune = `
DELETE FROM messages WHERE session_id = ? AND id NOT IN (
    SELECT id FROM messages WHERE session_id = ?
    ORDER BY created_at DESC, id DESC LIMIT ?
)`
	if _, err := tx.ExecContext(ctx, prune, id, id, MaxExchanges*2); err != nil {
		return fmt.Errorf("session: prune: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("session: append: commit: %w", err)
	}
	return nil
}

// Recent returns the session's retained messages, oldest-first.
func (s *SQLiteStore) Recent(ctx context.Context, id string) ([]Message, error) {
	const q = `
SELECT role, content, created_at FROM messages
WHERE session_id = ?
ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("session: recent: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		var ts int64
		var role string
		if err := rows.Scan(&role, &m.Content, &ts); err != nil {
			return nil, fmt.Errorf("session: recent scan: %w", err)
		}
		m.Role = Role(role)
		m.CreatedAt = time.Unix(ts, 0)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("session: recent rows: %w", err)
	}
	return msgs, nil
}

// Delete removes the session and its messages. Deleting a session that does
// not exist returns ErrNotFound.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("session: delete: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("session: delete messages: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("session: delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("session: delete: commit: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("session: close: %w", err)
	}
	return nil
}
