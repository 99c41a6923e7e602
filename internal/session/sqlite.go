package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/h1v3-io/leadflow/pkg/protocol"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) a SQLite database and runs migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("session store: open: %w", err)
	}
	// A single connection serializes writers; field updates run in
	// transactions that would otherwise race for the write lock.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("session store: %s: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id         TEXT PRIMARY KEY,
			stage      TEXT NOT NULL DEFAULT 'ask_name',
			status     TEXT NOT NULL DEFAULT 'in_progress',
			fields     TEXT NOT NULL DEFAULT '{}',
			event_link TEXT NOT NULL DEFAULT '',
			card_id    TEXT NOT NULL DEFAULT '',
			card_url   TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS session_messages (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			id         TEXT NOT NULL UNIQUE,
			session_id TEXT NOT NULL REFERENCES sessions(id),
			role       TEXT NOT NULL,
			content    TEXT NOT NULL,
			timestamp  TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_messages_session ON session_messages(session_id, timestamp, seq);
		CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status, stage);
	`)
	if err != nil {
		return fmt.Errorf("session store: migrate: %w", err)
	}
	return nil
}

func (s *SQLiteStore) stamp() string {
	return s.now().UTC().Format(timeLayout)
}

func (s *SQLiteStore) Ensure(ctx context.Context, id string) (*protocol.Session, error) {
	now := s.stamp()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, stage, status, fields, created_at, updated_at)
		VALUES (?, ?, ?, '{}', ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, string(protocol.StageAskName), protocol.StatusInProgress, now, now)
	if err != nil {
		return nil, fmt.Errorf("session store: ensure: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*protocol.Session, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx, selectSession+" WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session %q: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("session store: get: %w", err)
	}
	return sess, nil
}

func (s *SQLiteStore) UpdateFields(ctx context.Context, id string, fn func(*protocol.Fields) error) (*protocol.Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("session store: begin: %w", err)
	}
	defer tx.Rollback()

	sess, err := scanSession(tx.QueryRowContext(ctx, selectSession+" WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session %q: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("session store: update fields: %w", err)
	}

	if err := fn(&sess.Fields); err != nil {
		return nil, err
	}

	data, err := json.Marshal(sess.Fields)
	if err != nil {
		return nil, fmt.Errorf("session store: marshal fields: %w", err)
	}
	now := s.stamp()
	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET fields = ?, updated_at = ? WHERE id = ?`, string(data), now, id); err != nil {
		return nil, fmt.Errorf("session store: update fields: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("session store: commit: %w", err)
	}
	sess.UpdatedAt, _ = time.Parse(timeLayout, now)
	return sess, nil
}

func (s *SQLiteStore) SetStage(ctx context.Context, id string, stage protocol.Stage) error {
	return s.update(ctx, "set stage", `UPDATE sessions SET stage = ?, updated_at = ? WHERE id = ?`, id, string(stage))
}

func (s *SQLiteStore) SetStatus(ctx context.Context, id, status string) error {
	return s.update(ctx, "set status", `UPDATE sessions SET status = ?, updated_at = ? WHERE id = ?`, id, status)
}

func (s *SQLiteStore) SetEventLink(ctx context.Context, id, link string) error {
	return s.update(ctx, "set event link", `UPDATE sessions SET event_link = ?, updated_at = ? WHERE id = ?`, id, link)
}

func (s *SQLiteStore) SetCard(ctx context.Context, id, cardID, cardURL string) error {
	return s.update(ctx, "set card", `UPDATE sessions SET card_id = ?, card_url = ?, updated_at = ? WHERE id = ?`, id, cardID, cardURL)
}

// update runs a single-row UPDATE whose trailing placeholders are
// updated_at and id.
func (s *SQLiteStore) update(ctx context.Context, op, query, id string, values ...any) error {
	args := append(values, s.stamp(), id)
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("session store: %s: %w", op, err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("session %q: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, msg protocol.Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO session_messages (id, session_id, role, content, timestamp) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, msg.Role, msg.Content, msg.Timestamp.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("session store: append message: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Messages(ctx context.Context, id string) ([]protocol.Message, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, role, content, timestamp FROM session_messages WHERE session_id = ? ORDER BY timestamp, seq`, id)
	if err != nil {
		return nil, fmt.Errorf("session store: messages: %w", err)
	}
	defer rows.Close()

	var msgs []protocol.Message
	for rows.Next() {
		m := protocol.Message{SessionID: id}
		var ts string
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &ts); err != nil {
			return nil, fmt.Errorf("session store: scan message: %w", err)
		}
		m.Timestamp, _ = time.Parse(timeLayout, ts)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]*protocol.Session, error) {
	query := selectSession + " WHERE 1=1"
	var args []any

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}
	if filter.Stage != "" {
		query += " AND stage = ?"
		args = append(args, string(filter.Stage))
	}
	query += " ORDER BY updated_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("session store: list: %w", err)
	}
	defer rows.Close()

	var out []*protocol.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("session store: list scan: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection (for testing or direct access).
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// --- helpers ---

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const selectSession = `SELECT id, stage, status, fields, event_link, card_id, card_url, created_at, updated_at FROM sessions`

type scannable interface {
	Scan(dest ...any) error
}

func scanSession(row scannable) (*protocol.Session, error) {
	var sess protocol.Session
	var stage, fields, createdAt, updatedAt string

	err := row.Scan(&sess.ID, &stage, &sess.Status, &fields, &sess.EventLink, &sess.CardID, &sess.CardURL, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	sess.Stage = protocol.ParseStage(stage)
	// Unreadable fields restart collection; the next update rewrites them.
	if err := json.Unmarshal([]byte(fields), &sess.Fields); err != nil {
		slog.Warn("session fields unreadable, starting empty", "session_id", sess.ID, "error", err)
		sess.Fields = protocol.Fields{}
	}
	sess.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	sess.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	return &sess, nil
}
