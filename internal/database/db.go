// internal/database/db.go
package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"
)

// Archive is the durable store for checkpoint summaries and their
// portable bundles. Bundles are zstd-compressed at rest so a long session
// of snapshots stays cheap to keep around.
type Archive struct {
	db      *sql.DB
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// CheckpointRecord is one archived checkpoint summary
type CheckpointRecord struct {
	ID              string            `json:"id"`
	SessionID       string            `json:"session_id"`
	ToolExecutionID string            `json:"tool_execution_id"`
	CreatedAt       time.Time         `json:"created_at"`
	RepoCount       int               `json:"repo_count"`
	HostCommits     map[string]string `json:"host_commits"`
	ShadowCommits   map[string]string `json:"shadow_commits"`
}

// Open creates or opens the archive database at the given path
func Open(path string) (*Archive, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}

	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, err
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		db.Close()
		return nil, err
	}

	a := &Archive{db: db, encoder: encoder, decoder: decoder}
	if err := a.init(); err != nil {
		db.Close()
		return nil, err
	}

	return a, nil
}

// init creates the database schema
func (a *Archive) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS checkpoints (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		tool_execution_id TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		repo_count INTEGER NOT NULL,
		host_commits TEXT NOT NULL,
		shadow_commits TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS bundles (
		checkpoint_id TEXT NOT NULL,
		repo_path TEXT NOT NULL,
		data BLOB NOT NULL,
		PRIMARY KEY (checkpoint_id, repo_path),
		FOREIGN KEY (checkpoint_id) REFERENCES checkpoints(id)
	);

	CREATE INDEX IF NOT EXISTS idx_checkpoints_session ON checkpoints(session_id);
	`

	_, err := a.db.Exec(schema)
	return err
}

// Close closes the database connection
func (a *Archive) Close() error {
	a.encoder.Close()
	return a.db.Close()
}

// SaveCheckpoint stores a checkpoint summary
func (a *Archive) SaveCheckpoint(rec *CheckpointRecord) error {
	hostJSON, err := json.Marshal(rec.HostCommits)
	if err != nil {
		return fmt.Errorf("marshal host commits: %w", err)
	}
	shadowJSON, err := json.Marshal(rec.ShadowCommits)
	if err != nil {
		return fmt.Errorf("marshal shadow commits: %w", err)
	}

	_, err = a.db.Exec(`
		INSERT OR REPLACE INTO checkpoints
		(id, session_id, tool_execution_id, created_at, repo_count, host_commits, shadow_commits)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SessionID, rec.ToolExecutionID, rec.CreatedAt,
		rec.RepoCount, string(hostJSON), string(shadowJSON))
	return err
}

// GetCheckpoint loads one checkpoint summary by id
func (a *Archive) GetCheckpoint(id string) (*CheckpointRecord, error) {
	row := a.db.QueryRow(`
		SELECT id, session_id, tool_execution_id, created_at, repo_count, host_commits, shadow_commits
		FROM checkpoints WHERE id = ?`, id)

	return scanCheckpoint(row)
}

// ListCheckpoints returns a session's archived checkpoints oldest first
func (a *Archive) ListCheckpoints(sessionID string) ([]CheckpointRecord, error) {
	rows, err := a.db.Query(`
		SELECT id, session_id, tool_execution_id, created_at, repo_count, host_commits, shadow_commits
		FROM checkpoints WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []CheckpointRecord
	for rows.Next() {
		rec, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// scanner covers both sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(s scanner) (*CheckpointRecord, error) {
	var rec CheckpointRecord
	var hostJSON, shadowJSON string

	err := s.Scan(&rec.ID, &rec.SessionID, &rec.ToolExecutionID,
		&rec.CreatedAt, &rec.RepoCount, &hostJSON, &shadowJSON)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(hostJSON), &rec.HostCommits); err != nil {
		return nil, fmt.Errorf("unmarshal host commits: %w", err)
	}
	if err := json.Unmarshal([]byte(shadowJSON), &rec.ShadowCommits); err != nil {
		return nil, fmt.Errorf("unmarshal shadow commits: %w", err)
	}

	return &rec, nil
}

// SaveBundle stores a repository's bundle for a checkpoint, compressed
func (a *Archive) SaveBundle(checkpointID, repoPath string, data []byte) error {
	compressed := a.encoder.EncodeAll(data, nil)
	_, err := a.db.Exec(`
		INSERT OR REPLACE INTO bundles (checkpoint_id, repo_path, data)
		VALUES (?, ?, ?)`,
		checkpointID, repoPath, compressed)
	return err
}

// GetBundle loads and decompresses a repository's bundle
func (a *Archive) GetBundle(checkpointID, repoPath string) ([]byte, error) {
	var compressed []byte
	err := a.db.QueryRow(`
		SELECT data FROM bundles WHERE checkpoint_id = ? AND repo_path = ?`,
		checkpointID, repoPath).Scan(&compressed)
	if err != nil {
		return nil, err
	}

	return a.decoder.DecodeAll(compressed, nil)
}
