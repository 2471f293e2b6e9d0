package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/curator-ai/curator/internal/conversation"
	"github.com/curator-ai/curator/internal/events"
	"github.com/curator-ai/curator/internal/storage"
)

func usageRequest(title string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/conversations/"+url.PathEscape(title)+"/usage", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("title", title)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestHandleUsage(t *testing.T) {
	store := conversation.NewFileStore(t.TempDir(), nil)
	store.Ensure("conv")

	bus := events.NewBus(16)
	defer bus.Close()

	tracker := storage.NewUsageTracker(bus, store)
	defer tracker.Close()

	s := NewServer(bus, store, nil, tracker, "127.0.0.1", 0)

	bus.Publish(events.NewTypedEventForConversation(events.SourceHandler,
		events.ModelUsagePayload{
			Model:            "main",
			PromptTokens:     10,
			CompletionTokens: 5,
			TotalTokens:      15,
		}, "conv"))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := tracker.Usage("conv"); ok {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	rec := httptest.NewRecorder()
	s.handleUsage(rec, usageRequest("conv"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var got storage.UsageRecord
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Calls != 1 || got.TotalTokens != 15 {
		t.Errorf("record = %+v", got)
	}
	if got.ByModel["main"].PromptTokens != 10 {
		t.Errorf("by model = %+v", got.ByModel)
	}
}

func TestHandleUsageUnknownConversation(t *testing.T) {
	store := conversation.NewFileStore(t.TempDir(), nil)

	bus := events.NewBus(16)
	defer bus.Close()

	tracker := storage.NewUsageTracker(bus, store)
	defer tracker.Close()

	s := NewServer(bus, store, nil, tracker, "127.0.0.1", 0)

	rec := httptest.NewRecorder()
	s.handleUsage(rec, usageRequest("never created"))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
}
