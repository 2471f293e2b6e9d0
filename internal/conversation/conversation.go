// Package conversation provides per-conversation persistence: message
// history and the typed property table backing the pipeline state machines.
package conversation

import (
	"encoding/json"
	"time"
)

// Status represents the lifecycle state of a conversation.
type Status string

const (
	StatusActive Status = "active"
	StatusClosed Status = "closed"
)

// Message is a single turn in a conversation, serializable to JSONL.
type Message struct {
	ID      string    `json:"id"`
	Role    string    `json:"role"`
	Content string    `json:"content"`
	Command string    `json:"command,omitempty"`
	Ts      time.Time `json:"ts"`
}

// Meta holds conversation metadata. Properties is the typed per-conversation
// state table: state machines (model fallback, to-do) store their records
// here and the map is the source of truth, not whatever frontmatter or UI
// representation it is later mirrored to.
type Meta struct {
	Title        string                     `json:"title"`
	CreatedAt    time.Time                  `json:"created_at"`
	UpdatedAt    time.Time                  `json:"updated_at"`
	Status       Status                     `json:"status"`
	Language     string                     `json:"language,omitempty"`
	MessageCount int                        `json:"message_count"`
	Properties   map[string]json.RawMessage `json:"properties,omitempty"`
}

// Store defines the persistence interface for conversations.
type Store interface {
	Ensure(title string) (*Meta, error)
	Get(title string) (*Meta, error)
	List() ([]*Meta, error)
	Close(title string) error

	AppendMessage(title, content, role, command string) (string, error)
	History(title string) ([]Message, error)

	SetProperty(title, key string, value any) error
	GetProperty(title, key string, out any) (bool, error)
	DeleteProperty(title, key string) error
}
