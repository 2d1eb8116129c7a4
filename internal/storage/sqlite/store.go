// Package sqlite stores session snapshots in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/capitalize-ai/meeting-assistant/internal/model"
	"github.com/capitalize-ai/meeting-assistant/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id                TEXT PRIMARY KEY,
    user_id           TEXT NOT NULL,
    current_mode      TEXT NOT NULL,
    current_step      TEXT NOT NULL,
    meeting_data      BLOB NOT NULL,
    compression_level INTEGER NOT NULL DEFAULT 0,
    state             BLOB NOT NULL,
    messages          BLOB,
    created_at        INTEGER NOT NULL,
    updated_at        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS sessions_user_updated ON sessions (user_id, updated_at DESC);
`

// Store is a storage.Store backed by SQLite.
type Store struct {
	sqlDB *sql.DB
}

var _ storage.Store = (*Store)(nil)

// Open opens the database at path and creates the schema. ":memory:" opens
// a private in-memory database.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := "file::memory:?_pragma=busy_timeout(5000)"
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection keeps an in-memory database alive and serializes writers.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

func (s *Store) Save(ctx context.Context, st model.PersistedState) error {
	if strings.TrimSpace(st.ID) == "" {
		return fmt.Errorf("session id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO sessions (
		    id, user_id, current_mode, current_step, meeting_data, compression_level, state, messages, created_at, updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		    user_id = excluded.user_id,
		    current_mode = excluded.current_mode,
		    current_step = excluded.current_step,
		    meeting_data = excluded.meeting_data,
		    compression_level = excluded.compression_level,
		    state = excluded.state,
		    messages = excluded.messages,
		    updated_at = excluded.updated_at`,
		st.ID,
		st.UserID,
		string(st.CurrentMode),
		string(st.CurrentStep),
		[]byte(st.MeetingData),
		st.CompressionLevel,
		[]byte(st.State),
		[]byte(st.Messages),
		timeToUnixMillis(st.CreatedAt),
		timeToUnixMillis(st.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

const selectColumns = `SELECT id, user_id, current_mode, current_step, meeting_data, compression_level, state, messages, created_at, updated_at FROM sessions`

type scanner interface {
	Scan(dest ...any) error
}

func scanState(row scanner) (model.PersistedState, error) {
	var (
		st                 model.PersistedState
		mode, step         string
		meeting, state     []byte
		messages           []byte
		created, updatedAt int64
	)
	if err := row.Scan(&st.ID, &st.UserID, &mode, &step, &meeting, &st.CompressionLevel, &state, &messages, &created, &updatedAt); err != nil {
		return model.PersistedState{}, err
	}
	st.CurrentMode = model.Mode(mode)
	st.CurrentStep = model.Step(step)
	st.MeetingData = meeting
	st.State = state
	st.Messages = messages
	st.CreatedAt = unixMillisToTime(created)
	st.UpdatedAt = unixMillisToTime(updatedAt)
	return st, nil
}

func (s *Store) Load(ctx context.Context, id string) (model.PersistedState, error) {
	st, err := scanState(s.sqlDB.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.PersistedState{}, storage.ErrNotFound
	}
	if err != nil {
		return model.PersistedState{}, fmt.Errorf("load session: %w", err)
	}
	return st, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) ListByUser(ctx context.Context, userID string) ([]model.PersistedState, error) {
	rows, err := s.sqlDB.QueryContext(ctx, selectColumns+` WHERE user_id = ? ORDER BY updated_at DESC, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []model.PersistedState
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out, nil
}

func timeToUnixMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixMilli()
}

func unixMillisToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
