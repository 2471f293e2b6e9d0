package storage

import (
	"log/slog"
	"sync"

	"github.com/curator-ai/curator/internal/conversation"
	"github.com/curator-ai/curator/internal/events"
)

// usageProperty is the key in the conversation property table holding
// accumulated token counts.
const usageProperty = "model_usage"

// ModelUsage accumulates token counts for one model within a conversation.
type ModelUsage struct {
	Calls            int `json:"calls"`
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// UsageRecord is the per-conversation token ledger.
type UsageRecord struct {
	Calls       int                   `json:"calls"`
	TotalTokens int                   `json:"total_tokens"`
	ByModel     map[string]ModelUsage `json:"by_model"`
}

// UsageTracker subscribes to model usage events and accumulates token counts
// in the conversation's property table.
type UsageTracker struct {
	mu          sync.Mutex
	store       conversation.Store
	unsubscribe func()
}

// NewUsageTracker creates a UsageTracker listening on the bus.
func NewUsageTracker(bus *events.Bus, store conversation.Store) *UsageTracker {
	ut := &UsageTracker{store: store}
	ut.unsubscribe = bus.Subscribe(ut.handleEvent, events.EventModelUsage)
	return ut
}

// Close unsubscribes the tracker from the event bus.
func (ut *UsageTracker) Close() {
	if ut.unsubscribe != nil {
		ut.unsubscribe()
	}
}

func (ut *UsageTracker) handleEvent(e events.Event) {
	if e.Conversation == "" {
		return
	}
	usage, ok := events.ExtractPayload[events.ModelUsagePayload](e)
	if !ok || usage.Model == "" {
		return
	}

	ut.mu.Lock()
	defer ut.mu.Unlock()

	var rec UsageRecord
	if _, err := ut.store.GetProperty(e.Conversation, usageProperty, &rec); err != nil {
		slog.Warn("read usage record", "conversation", e.Conversation, "error", err)
		return
	}
	if rec.ByModel == nil {
		rec.ByModel = make(map[string]ModelUsage)
	}

	m := rec.ByModel[usage.Model]
	m.Calls++
	m.PromptTokens += usage.PromptTokens
	m.CompletionTokens += usage.CompletionTokens
	m.TotalTokens += usage.TotalTokens
	rec.ByModel[usage.Model] = m

	rec.Calls++
	rec.TotalTokens += usage.TotalTokens

	if err := ut.store.SetProperty(e.Conversation, usageProperty, rec); err != nil {
		slog.Warn("write usage record", "conversation", e.Conversation, "error", err)
	}
}

// Usage returns the accumulated token ledger for a conversation.
func (ut *UsageTracker) Usage(title string) (UsageRecord, bool) {
	ut.mu.Lock()
	defer ut.mu.Unlock()

	var rec UsageRecord
	found, err := ut.store.GetProperty(title, usageProperty, &rec)
	if err != nil || !found {
		return UsageRecord{}, false
	}
	return rec, true
}
