package artifacts

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLStore persists artifacts in a sqlite database so they survive daemon
// restarts. Per-conversation ordering is the insertion order (rowid).
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore opens (and migrates) the artifact database at path.
func NewSQLStore(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("artifacts: open db: %w", err)
	}
	// Conversation processing is serialized; a single connection keeps
	// sqlite happy under the occasional cross-conversation overlap.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS artifacts (
			id           TEXT PRIMARY KEY,
			conversation TEXT NOT NULL,
			type         TEXT NOT NULL,
			created_at   TEXT NOT NULL,
			data         TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_artifacts_conv_type
			ON artifacts (conversation, type);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("artifacts: migrate: %w", err)
	}

	return &SQLStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Add appends an artifact, assigning an id and timestamp if unset.
func (s *SQLStore) Add(a *Artifact) error {
	if a.ID == "" {
		a.ID = GenerateID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}

	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("artifacts: marshal: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO artifacts (id, conversation, type, created_at, data) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.Conversation, string(a.Type), a.CreatedAt.Format(time.RFC3339Nano), string(data),
	)
	if err != nil {
		return fmt.Errorf("artifacts: insert: %w", err)
	}
	return nil
}

// ByID looks up a single artifact within a conversation.
func (s *SQLStore) ByID(conversation, id string) (*Artifact, error) {
	row := s.db.QueryRow(
		`SELECT data FROM artifacts WHERE conversation = ? AND id = ?`,
		conversation, id,
	)
	return scanArtifact(row)
}

// ByType returns all artifacts of the given type, oldest first.
func (s *SQLStore) ByType(conversation string, t Type) ([]*Artifact, error) {
	rows, err := s.db.Query(
		`SELECT data FROM artifacts WHERE conversation = ? AND type = ? ORDER BY rowid`,
		conversation, string(t),
	)
	if err != nil {
		return nil, fmt.Errorf("artifacts: query: %w", err)
	}
	defer rows.Close()

	var out []*Artifact
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("artifacts: scan: %w", err)
		}
		var a Artifact
		if err := json.Unmarshal([]byte(data), &a); err != nil {
			return nil, fmt.Errorf("artifacts: unmarshal: %w", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// MostRecentOfTypes returns the newest artifact whose type is in types.
// This is the lookup behind "_from_artifact" intents.
func (s *SQLStore) MostRecentOfTypes(conversation string, types ...Type) (*Artifact, error) {
	if len(types) == 0 {
		return nil, ErrNotFound
	}

	placeholders := strings.Repeat("?,", len(types))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(types)+1)
	args = append(args, conversation)
	for _, t := range types {
		args = append(args, string(t))
	}

	row := s.db.QueryRow(
		`SELECT data FROM artifacts WHERE conversation = ? AND type IN (`+placeholders+`)
		 ORDER BY rowid DESC LIMIT 1`,
		args...,
	)
	return scanArtifact(row)
}

// Remove deletes an artifact. Only called after a successful revert.
func (s *SQLStore) Remove(conversation, id string) error {
	res, err := s.db.Exec(
		`DELETE FROM artifacts WHERE conversation = ? AND id = ?`,
		conversation, id,
	)
	if err != nil {
		return fmt.Errorf("artifacts: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("artifacts: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func scanArtifact(row *sql.Row) (*Artifact, error) {
	var data string
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("artifacts: scan: %w", err)
	}
	var a Artifact
	if err := json.Unmarshal([]byte(data), &a); err != nil {
		return nil, fmt.Errorf("artifacts: unmarshal: %w", err)
	}
	return &a, nil
}

var _ Store = (*SQLStore)(nil)
