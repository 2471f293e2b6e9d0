package conversation

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/curator-ai/curator/internal/events"
	"github.com/curator-ai/curator/internal/storage/dirstore"
)

var unsafePathRe = regexp.MustCompile(`[^a-zA-Z0-9 _.-]+`)

// slug converts a conversation title to a file-system safe directory name.
func slug(title string) string {
	s := unsafePathRe.ReplaceAllString(title, "_")
	s = strings.TrimSpace(s)
	if s == "" {
		s = "untitled"
	}
	return s
}

func generateMessageID() string {
	u := uuid.New().String()
	return "msg_" + strings.ReplaceAll(u[:8], "-", "")
}

// FileStore persists conversations as directories with meta.json +
// messages.jsonl.
type FileStore struct {
	ds  *dirstore.DirStore
	bus *events.Bus
}

// NewFileStore creates a FileStore rooted at baseDir. bus may be nil.
func NewFileStore(baseDir string, bus *events.Bus) *FileStore {
	return &FileStore{
		ds:  dirstore.NewDirStore(baseDir, "conversation"),
		bus: bus,
	}
}

// Ensure returns the conversation's metadata, creating it if missing.
func (fs *FileStore) Ensure(title string) (*Meta, error) {
	fs.ds.Lock()
	defer fs.ds.Unlock()

	if m, err := fs.readMeta(title); err == nil {
		return m, nil
	}
	return fs.create(title)
}

// create writes a fresh Meta. Caller holds the lock.
func (fs *FileStore) create(title string) (*Meta, error) {
	now := time.Now()
	m := &Meta{
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
		Status:    StatusActive,
	}
	if err := fs.ds.EnsureDir(slug(title)); err != nil {
		return nil, err
	}
	if err := fs.writeMeta(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Get reads conversation metadata by title.
func (fs *FileStore) Get(title string) (*Meta, error) {
	fs.ds.RLock()
	defer fs.ds.RUnlock()

	return fs.readMeta(title)
}

// List returns all conversations sorted by UpdatedAt descending.
func (fs *FileStore) List() ([]*Meta, error) {
	fs.ds.RLock()
	defer fs.ds.RUnlock()

	ids, err := fs.ds.ListDirs()
	if err != nil {
		return nil, err
	}

	var metas []*Meta
	for _, id := range ids {
		var m Meta
		if err := fs.ds.ReadMeta(id, &m); err != nil {
			continue // skip corrupted conversations
		}
		metas = append(metas, &m)
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].UpdatedAt.After(metas[j].UpdatedAt)
	})

	return metas, nil
}

// Close marks a conversation as closed.
func (fs *FileStore) Close(title string) error {
	fs.ds.Lock()
	defer fs.ds.Unlock()

	m, err := fs.readMeta(title)
	if err != nil {
		return err
	}

	m.Status = StatusClosed
	m.UpdatedAt = time.Now()
	if err := fs.writeMeta(m); err != nil {
		return err
	}

	if fs.bus != nil {
		fs.bus.Publish(events.NewTypedEventForConversation(events.SourceRouter,
			events.ConversationClosedPayload{Title: title}, title))
	}
	return nil
}

// AppendMessage appends a message to the conversation's JSONL file, creating
// the conversation if needed. Returns the generated message id.
func (fs *FileStore) AppendMessage(title, content, role, command string) (string, error) {
	fs.ds.Lock()
	defer fs.ds.Unlock()

	m, err := fs.readMeta(title)
	if err != nil {
		m, err = fs.create(title)
		if err != nil {
			return "", err
		}
	}

	msg := Message{
		ID:      generateMessageID(),
		Role:    role,
		Content: content,
		Command: command,
		Ts:      time.Now(),
	}
	if err := fs.ds.AppendJSONL(slug(title), "messages.jsonl", msg); err != nil {
		return "", err
	}

	m.MessageCount++
	m.UpdatedAt = time.Now()
	if err := fs.writeMeta(m); err != nil {
		return "", err
	}

	if fs.bus != nil {
		fs.bus.Publish(events.NewTypedEventForConversation(events.SourceRouter,
			events.ConversationMessagePayload{Role: role, Content: content, Command: command}, title))
	}

	return msg.ID, nil
}

// History reads all messages of a conversation.
func (fs *FileStore) History(title string) ([]Message, error) {
	fs.ds.RLock()
	defer fs.ds.RUnlock()

	return dirstore.LoadJSONL[Message](fs.ds, slug(title), "messages.jsonl")
}

// SetProperty stores a typed record in the conversation's property table.
func (fs *FileStore) SetProperty(title, key string, value any) error {
	fs.ds.Lock()
	defer fs.ds.Unlock()

	m, err := fs.readMeta(title)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal property %s: %w", key, err)
	}
	if m.Properties == nil {
		m.Properties = make(map[string]json.RawMessage)
	}
	m.Properties[key] = raw
	m.UpdatedAt = time.Now()
	return fs.writeMeta(m)
}

// GetProperty decodes a typed record from the property table into out.
// Returns false if the key is absent.
func (fs *FileStore) GetProperty(title, key string, out any) (bool, error) {
	fs.ds.RLock()
	defer fs.ds.RUnlock()

	m, err := fs.readMeta(title)
	if err != nil {
		return false, err
	}
	raw, ok := m.Properties[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("unmarshal property %s: %w", key, err)
	}
	return true, nil
}

// DeleteProperty removes a record from the property table.
func (fs *FileStore) DeleteProperty(title, key string) error {
	fs.ds.Lock()
	defer fs.ds.Unlock()

	m, err := fs.readMeta(title)
	if err != nil {
		return err
	}
	if _, ok := m.Properties[key]; !ok {
		return nil
	}
	delete(m.Properties, key)
	m.UpdatedAt = time.Now()
	return fs.writeMeta(m)
}

func (fs *FileStore) writeMeta(m *Meta) error {
	return fs.ds.WriteMeta(slug(m.Title), m)
}

func (fs *FileStore) readMeta(title string) (*Meta, error) {
	var m Meta
	if err := fs.ds.ReadMeta(slug(title), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

var _ Store = (*FileStore)(nil)
