// Package transcript archives completed generation turns in a local
// sqlite database so past work survives the backend's history retention.
package transcript

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"codemother/schema"
	_ "modernc.org/sqlite"
)

// Turn is one archived prompt/reply pair.
type Turn struct {
	ID             int64
	AppID          schema.AppID
	UserMessage    string
	AssistantReply string
	CreatedAt      time.Time
}

// Store is the sqlite-backed transcript archive.
type Store struct {
	db *sql.DB
}

// Open creates or opens the archive under dir.
func Open(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("transcript directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", filepath.Join(dir, "transcript.db"))
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	ddl := `CREATE TABLE IF NOT EXISTS turns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		app_id TEXT NOT NULL,
		user_message TEXT NOT NULL,
		assistant_reply TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_turns_app ON turns(app_id, id);`
	if _, err := db.Exec(ddl); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Append records one completed turn.
func (s *Store) Append(appID schema.AppID, userMessage, assistantReply string) error {
	_, err := s.db.Exec(
		"INSERT INTO turns(app_id, user_message, assistant_reply, created_at) VALUES(?, ?, ?, ?)",
		string(appID), userMessage, assistantReply, time.Now().Unix(),
	)
	return err
}

// Recent returns up to limit turns for an app, newest first.
func (s *Store) Recent(appID schema.AppID, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		"SELECT id, app_id, user_message, assistant_reply, created_at FROM turns WHERE app_id = ? ORDER BY id DESC LIMIT ?",
		string(appID), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var turns []Turn
	for rows.Next() {
		var turn Turn
		var appID string
		var created int64
		if err := rows.Scan(&turn.ID, &appID, &turn.UserMessage, &turn.AssistantReply, &created); err != nil {
			return nil, err
		}
		turn.AppID = schema.AppID(appID)
		turn.CreatedAt = time.Unix(created, 0)
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
