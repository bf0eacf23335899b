package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Role values for messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message status values. These are wire-visible and must not change.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

// Node types for file-tree entries.
const (
	TypeFile   = "file"
	TypeFolder = "folder"
)

// DefaultConversationTitle is the sentinel a conversation carries until the
// first assistant turn generates a real one.
const DefaultConversationTitle = "untitled conversation"

// Store is the sqlite-backed persistence layer for projects, conversations,
// messages, the virtual file tree, and workflow jobs.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates (if needed) and opens the database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("store path must be set")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("prepare store dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	owner_id TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	title TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_project ON conversations(project_id)`,
		`CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	conversation_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_project_status ON messages(project_id, status)`,
		`CREATE TABLE IF NOT EXISTS files (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	parent_id TEXT,
	name TEXT NOT NULL,
	type TEXT NOT NULL,
	content TEXT NOT NULL DEFAULT '',
	storage_id TEXT,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_files_project_parent ON files(project_id, parent_id)`,
		`CREATE TABLE IF NOT EXISTS blobs (
	id TEXT PRIMARY KEY,
	data BLOB NOT NULL,
	created_at TIMESTAMP NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	message_id TEXT NOT NULL,
	project_id TEXT NOT NULL,
	conversation_id TEXT NOT NULL,
	payload TEXT NOT NULL,
	state TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_message ON jobs(message_id)`,
		`CREATE TABLE IF NOT EXISTS job_steps (
	job_id TEXT NOT NULL,
	name TEXT NOT NULL,
	result TEXT NOT NULL,
	completed_at TIMESTAMP NOT NULL,
	PRIMARY KEY (job_id, name)
)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(context.Background(), stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// withTx runs fn inside a transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func touchProjectTx(tx *sql.Tx, projectID string, now time.Time) error {
	res, err := tx.Exec(`UPDATE projects SET updated_at = ? WHERE id = ?`, now, projectID)
	if err != nil {
		return fmt.Errorf("touch project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}
	return nil
}
