// Package artifacts provides the per-conversation append-only record of
// typed operation outputs, consumable by later intents.
package artifacts

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no artifact matches a lookup.
var ErrNotFound = errors.New("artifact not found")

// Type identifies an artifact variant.
type Type string

const (
	TypeSearchResults      Type = "SEARCH_RESULTS"
	TypeCreatedNotes       Type = "CREATED_NOTES"
	TypeDeletedFiles       Type = "DELETED_FILES"
	TypeCopiedNotes        Type = "COPIED_NOTES"
	TypeFrontmatterResults Type = "UPDATE_FRONTMATTER_RESULTS"
	TypeTodoList           Type = "TODO_LIST"
	TypeContentRead        Type = "CONTENT_READ"
)

// SearchHit is one ranked search result.
type SearchHit struct {
	Path    string  `json:"path"`
	Title   string  `json:"title,omitempty"`
	Snippet string  `json:"snippet,omitempty"`
	Score   float64 `json:"score,omitempty"`
}

// DeletedFile records a soft-deleted note, sufficient for restore.
type DeletedFile struct {
	Path string `json:"path"`
}

// CopiedNote records a source/destination pair.
type CopiedNote struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
}

// FrontmatterChange records one note's frontmatter before and after an
// update, sufficient for revert.
type FrontmatterChange struct {
	Path     string         `json:"path"`
	Original map[string]any `json:"original"`
	Updated  map[string]any `json:"updated"`
}

// ReadContent records content read from a note.
type ReadContent struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Artifact is a tagged union keyed by Type. Exactly the fields of the active
// variant are populated; artifacts are immutable once added.
type Artifact struct {
	ID           string    `json:"id"`
	Conversation string    `json:"conversation"`
	Type         Type      `json:"type"`
	CreatedAt    time.Time `json:"created_at"`

	SearchResults      []SearchHit         `json:"search_results,omitempty"`
	CreatedNotes       []string            `json:"created_notes,omitempty"`
	DeletedFiles       []DeletedFile       `json:"deleted_files,omitempty"`
	CopiedNotes        []CopiedNote        `json:"copied_notes,omitempty"`
	FrontmatterChanges []FrontmatterChange `json:"frontmatter_changes,omitempty"`
	Read               *ReadContent        `json:"read,omitempty"`
}

// Paths returns the note paths the artifact refers to, regardless of variant.
func (a *Artifact) Paths() []string {
	switch a.Type {
	case TypeSearchResults:
		paths := make([]string, len(a.SearchResults))
		for i, r := range a.SearchResults {
			paths[i] = r.Path
		}
		return paths
	case TypeCreatedNotes:
		return a.CreatedNotes
	case TypeDeletedFiles:
		paths := make([]string, len(a.DeletedFiles))
		for i, f := range a.DeletedFiles {
			paths[i] = f.Path
		}
		return paths
	case TypeCopiedNotes:
		paths := make([]string, len(a.CopiedNotes))
		for i, c := range a.CopiedNotes {
			paths[i] = c.Destination
		}
		return paths
	case TypeFrontmatterResults:
		paths := make([]string, len(a.FrontmatterChanges))
		for i, c := range a.FrontmatterChanges {
			paths[i] = c.Path
		}
		return paths
	case TypeContentRead:
		if a.Read != nil {
			return []string{a.Read.Path}
		}
	}
	return nil
}

// GenerateID creates a unique artifact identifier.
func GenerateID() string {
	u := uuid.New().String()
	return "art_" + strings.ReplaceAll(u[:8], "-", "")
}

// Store is the artifact persistence interface.
type Store interface {
	Add(a *Artifact) error
	ByID(conversation, id string) (*Artifact, error)
	ByType(conversation string, t Type) ([]*Artifact, error)
	MostRecentOfTypes(conversation string, types ...Type) (*Artifact, error)
	Remove(conversation, id string) error
}
