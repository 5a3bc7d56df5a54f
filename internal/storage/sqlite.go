// Package storage persists conversation sessions in SQLite.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/Epistemic-Technology/production-breakdown/internal/breakdown"
	"github.com/Epistemic-Technology/production-breakdown/models"
)

// SQLiteSessionStore keeps conversation histories keyed by session id
type SQLiteSessionStore struct {
	db *sql.DB
}

// NewSQLiteSessionStore opens or creates the session database at dbPath
func NewSQLiteSessionStore(dbPath string) (*SQLiteSessionStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteSessionStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteSessionStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		history TEXT NOT NULL,
		turns INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveSession stores a new history and returns its id
func (s *SQLiteSessionStore) SaveSession(ctx context.Context, history models.ConversationHistory) (string, error) {
	data, err := json.Marshal(history)
	if err != nil {
		return "", fmt.Errorf("failed to marshal history: %w", err)
	}

	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, history, turns)
		VALUES (?, ?, ?)
	`, id, string(data), len(history))
	if err != nil {
		return "", fmt.Errorf("failed to insert session: %w", err)
	}
	return id, nil
}

// LoadSession returns breakdown.ErrSessionNotFound for unknown ids
func (s *SQLiteSessionStore) LoadSession(ctx context.Context, id string) (models.ConversationHistory, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `
		SELECT history FROM sessions WHERE id = ?
	`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", breakdown.ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	var history models.ConversationHistory
	if err := json.Unmarshal([]byte(data), &history); err != nil {
		return nil, fmt.Errorf("failed to unmarshal history: %w", err)
	}
	return history, nil
}

// UpdateSession replaces the stored history of an existing session
func (s *SQLiteSessionStore) UpdateSession(ctx context.Context, id string, history models.ConversationHistory) error {
	data, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET history = ?, turns = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, string(data), len(history), id)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", breakdown.ErrSessionNotFound, id)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteSessionStore) Close() error {
	return s.db.Close()
}
