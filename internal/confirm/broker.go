// Package confirm implements the confirmation broker: the suspend point
// where a handler asks the user to approve a pending side effect before it
// is committed.
package confirm

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/curator-ai/curator/internal/events"
	"github.com/curator-ai/curator/internal/intents"
)

// Action is the serializable continuation bound to a confirmation: the
// handler to re-enter plus the plan it computed before suspending. Handlers
// are dispatched through the router's resumption table, never through
// opaque closures, so the value survives marshalling.
type Action struct {
	Handler               string          `json:"handler"`
	Plan                  json.RawMessage `json:"plan"`
	DropRemainingOnReject bool            `json:"drop_remaining_on_reject,omitempty"`
}

// Pending is a suspended operation awaiting a yes/no response. Remaining
// carries the rest of the conversation's intent queue so a confirmation
// resumes exactly where the router halted.
type Pending struct {
	ID           string           `json:"id"`
	Type         string           `json:"type"`
	Conversation string           `json:"conversation"`
	Message      string           `json:"message"`
	Action       Action           `json:"action"`
	Remaining    []intents.Intent `json:"remaining,omitempty"`
	Lang         string           `json:"lang,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

// Broker maps generated confirmation ids to pending operations. Pending
// entries live only in memory: a daemon restart drops them (accepted
// limitation; the queue can be replayed by re-sending the utterance).
type Broker struct {
	mu      sync.Mutex
	pending map[string]*Pending
	bus     *events.Bus
}

// NewBroker creates a confirmation broker. bus may be nil.
func NewBroker(bus *events.Bus) *Broker {
	return &Broker{
		pending: make(map[string]*Pending),
		bus:     bus,
	}
}

// Request registers a pending confirmation and returns its generated id
// (`type_timestamp`).
func (b *Broker) Request(p *Pending) string {
	if p.ID == "" {
		p.ID = fmt.Sprintf("%s_%d", p.Type, time.Now().UnixMilli())
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	b.mu.Lock()
	b.pending[p.ID] = p
	b.mu.Unlock()

	if b.bus != nil {
		b.bus.Publish(events.NewTypedEventForConversation(events.SourceBroker,
			events.ConfirmationRequestedPayload{ID: p.ID, Type: p.Type, Message: p.Message},
			p.Conversation))
	}
	return p.ID
}

// Take looks up and deletes a pending confirmation atomically. A missing id
// returns ok=false: the likely cause is a duplicate or stale UI event, so
// callers treat it as a silent no-op, not an error.
func (b *Broker) Take(id string) (*Pending, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.pending[id]
	if ok {
		delete(b.pending, id)
	}
	return p, ok
}

// Resolved publishes the outcome of a taken confirmation.
func (b *Broker) Resolved(p *Pending, confirmed, expired bool) {
	if b.bus == nil {
		return
	}
	b.bus.Publish(events.NewTypedEventForConversation(events.SourceBroker,
		events.ConfirmationResolvedPayload{ID: p.ID, Confirmed: confirmed, Expired: expired},
		p.Conversation))
}

// ForConversation returns the pending confirmations of one conversation.
// Within a conversation at most one is pending at a time because the router
// halts the queue, but the map holds entries across many conversations.
func (b *Broker) ForConversation(title string) []*Pending {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []*Pending
	for _, p := range b.pending {
		if p.Conversation == title {
			out = append(out, p)
		}
	}
	return out
}

// Latest returns the most recently created pending confirmation for a
// conversation, used by the free-text confirm handler.
func (b *Broker) Latest(title string) (*Pending, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var latest *Pending
	for _, p := range b.pending {
		if p.Conversation != title {
			continue
		}
		if latest == nil || p.CreatedAt.After(latest.CreatedAt) {
			latest = p
		}
	}
	return latest, latest != nil
}

// Expire removes every pending entry older than maxAge and returns them.
func (b *Broker) Expire(maxAge time.Duration) []*Pending {
	cutoff := time.Now().Add(-maxAge)

	b.mu.Lock()
	var expired []*Pending
	for id, p := range b.pending {
		if p.CreatedAt.Before(cutoff) {
			expired = append(expired, p)
			delete(b.pending, id)
		}
	}
	b.mu.Unlock()

	for _, p := range expired {
		b.Resolved(p, false, true)
	}
	return expired
}

// Len returns the number of pending confirmations across all conversations.
func (b *Broker) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
