// Package search maintains a full-text index over the vault, backed by
// an FTS5 virtual table.
package search

import (
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/curator-ai/curator/internal/artifacts"
	"github.com/curator-ai/curator/internal/vault"
)

// Index is a full-text index over vault notes.
type Index struct {
	db *sql.DB
}

// Open opens or creates the search index at path. Use ":memory:" for tests.
func Open(path string) (*Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("search: open index: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS notes_fts USING fts5(
			path UNINDEXED,
			title,
			body,
			tags,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("search: init fts: %w", err)
	}
	return &Index{db: db}, nil
}

func (ix *Index) Close() error { return ix.db.Close() }

// Upsert indexes a single note, replacing any previous entry for the path.
func (ix *Index) Upsert(note *vault.Note) error {
	tx, err := ix.db.Begin()
	if err != nil {
		return fmt.Errorf("search: begin: %w", err)
	}
	defer tx.Rollback()

	_, _ = tx.Exec(`DELETE FROM notes_fts WHERE path = ?`, note.Path)
	_, err = tx.Exec(`INSERT INTO notes_fts (path, title, body, tags) VALUES (?, ?, ?, ?)`,
		note.Path, noteTitle(note), note.Body, strings.Join(noteTags(note), " "))
	if err != nil {
		return fmt.Errorf("search: upsert %s: %w", note.Path, err)
	}
	return tx.Commit()
}

// Remove drops a note from the index.
func (ix *Index) Remove(path string) error {
	if _, err := ix.db.Exec(`DELETE FROM notes_fts WHERE path = ?`, path); err != nil {
		return fmt.Errorf("search: remove %s: %w", path, err)
	}
	return nil
}

// Search performs a ranked full-text search and returns hits with snippets.
func (ix *Index) Search(query string, limit int) ([]artifacts.SearchHit, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := ix.db.Query(`
		SELECT path,
		       title,
		       snippet(notes_fts, 2, '**', '**', '...', 64),
		       rank
		FROM notes_fts
		WHERE notes_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search: query: %w", err)
	}
	defer rows.Close()

	var out []artifacts.SearchHit
	for rows.Next() {
		var h artifacts.SearchHit
		var rank float64
		if err := rows.Scan(&h.Path, &h.Title, &h.Snippet, &rank); err != nil {
			return nil, err
		}
		// FTS5 rank is negative; flip it so higher means better.
		h.Score = -rank
		out = append(out, h)
	}
	return out, rows.Err()
}

// SearchExact searches for a literal phrase, bypassing FTS query syntax.
func (ix *Index) SearchExact(phrase string, limit int) ([]artifacts.SearchHit, error) {
	quoted := `"` + strings.ReplaceAll(phrase, `"`, `""`) + `"`
	return ix.Search(quoted, limit)
}

// Rebuild drops and re-indexes every note in the vault.
func (ix *Index) Rebuild(v *vault.Vault) error {
	paths, err := v.List()
	if err != nil {
		return fmt.Errorf("search: rebuild: %w", err)
	}
	if _, err := ix.db.Exec(`DELETE FROM notes_fts`); err != nil {
		return fmt.Errorf("search: rebuild: clear: %w", err)
	}
	for _, p := range paths {
		note, err := v.Read(p)
		if err != nil {
			slog.Warn("search: skip unreadable note", "path", p, "error", err)
			continue
		}
		if err := ix.Upsert(note); err != nil {
			return err
		}
	}
	slog.Info("search: index rebuilt", "notes", len(paths))
	return nil
}

func noteTitle(note *vault.Note) string {
	if t, ok := note.Frontmatter["title"].(string); ok && t != "" {
		return t
	}
	base := filepath.Base(note.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func noteTags(note *vault.Note) []string {
	raw, ok := note.Frontmatter["tags"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []any:
		var tags []string
		for _, t := range v {
			if s, ok := t.(string); ok {
				tags = append(tags, s)
			}
		}
		return tags
	case string:
		return strings.Fields(v)
	default:
		return nil
	}
}
