package router

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/curator-ai/curator/internal/abort"
	"github.com/curator-ai/curator/internal/artifacts"
	"github.com/curator-ai/curator/internal/confirm"
	"github.com/curator-ai/curator/internal/conversation"
	"github.com/curator-ai/curator/internal/fallback"
	"github.com/curator-ai/curator/internal/intents"
)

// scriptedHandler runs an injected function under a fixed name.
type scriptedHandler struct {
	name string
	fn   func(context.Context, Params) (Result, error)
}

func (h *scriptedHandler) Name() string { return h.name }

func (h *scriptedHandler) Handle(ctx context.Context, p Params) (Result, error) {
	return h.fn(ctx, p)
}

// scriptedResumer adds a resumption path on top of scriptedHandler.
type scriptedResumer struct {
	scriptedHandler
	resume func(context.Context, *confirm.Pending, bool) (Result, error)
}

func (h *scriptedResumer) Resume(ctx context.Context, p *confirm.Pending, confirmed bool) (Result, error) {
	return h.resume(ctx, p, confirmed)
}

type testEnv struct {
	router *Router
	store  conversation.Store
	broker *confirm.Broker
	fb     *fallback.Service
}

func newTestEnv(t *testing.T, fallbackChain []string) *testEnv {
	t.Helper()

	dir := t.TempDir()
	store := conversation.NewFileStore(filepath.Join(dir, "conversations"), nil)
	if _, err := store.Ensure("conv"); err != nil {
		t.Fatalf("Ensure: %v", err)
	}

	arts, err := artifacts.NewSQLStore(filepath.Join(dir, "artifacts.db"))
	if err != nil {
		t.Fatalf("NewSQLStore: %v", err)
	}
	t.Cleanup(func() { arts.Close() })

	broker := confirm.NewBroker(nil)
	fb := fallback.NewService(len(fallbackChain) > 0, fallbackChain, store, nil)

	rt := New(Config{
		Conversations: store,
		Artifacts:     arts,
		Broker:        broker,
		Fallback:      fb,
		Aborts:        abort.NewRegistry(nil),
		DefaultModel:  "main",
	})
	return &testEnv{router: rt, store: store, broker: broker, fb: fb}
}

func confidentRequest(queue ...intents.Intent) Request {
	return Request{Title: "conv", Intents: queue, Confidence: 0.95}
}

func TestLowConfidenceHaltsWithoutSideEffects(t *testing.T) {
	env := newTestEnv(t, nil)

	invoked := false
	env.router.Register(&scriptedHandler{name: "search", fn: func(ctx context.Context, p Params) (Result, error) {
		invoked = true
		return Result{Status: StatusSuccess}, nil
	}})

	queue := []intents.Intent{{Type: "search", Query: "q"}}
	out, err := env.router.ProcessIntents(context.Background(), Request{
		Title:       "conv",
		Intents:     queue,
		Confidence:  0.5,
		Explanation: "I think you want to search",
	})
	if err != nil {
		t.Fatalf("ProcessIntents: %v", err)
	}
	if out.Status != StatusLowConfidence {
		t.Fatalf("status = %s", out.Status)
	}
	if invoked {
		t.Error("handler ran despite low confidence")
	}
	if len(out.Intents) != 1 {
		t.Errorf("intents not echoed: %+v", out.Intents)
	}
	if out.Explanation != "I think you want to search" {
		t.Errorf("explanation = %q", out.Explanation)
	}
	// Nothing was written to the conversation.
	if msgs, _ := env.store.History("conv"); len(msgs) != 0 {
		t.Errorf("history = %+v", msgs)
	}
}

func TestConfirmedResubmissionExecutes(t *testing.T) {
	env := newTestEnv(t, nil)

	invoked := false
	env.router.Register(&scriptedHandler{name: "search", fn: func(ctx context.Context, p Params) (Result, error) {
		invoked = true
		return Result{Status: StatusSuccess, Message: "done"}, nil
	}})

	out, err := env.router.ProcessIntents(context.Background(), Request{
		Title:                     "conv",
		Intents:                   []intents.Intent{{Type: "search", Query: "q"}},
		Confidence:                0.5,
		IntentExtractionConfirmed: true,
	})
	if err != nil {
		t.Fatalf("ProcessIntents: %v", err)
	}
	if out.Status != StatusSuccess || !invoked {
		t.Errorf("status = %s, invoked = %v", out.Status, invoked)
	}
}

func TestSequentialExecutionOrder(t *testing.T) {
	env := newTestEnv(t, nil)

	var order []string
	record := func(name string) *scriptedHandler {
		return &scriptedHandler{name: name, fn: func(ctx context.Context, p Params) (Result, error) {
			order = append(order, name+":"+p.Intent.Query)
			return Result{Status: StatusSuccess, Message: name + " ok"}, nil
		}}
	}
	env.router.Register(record("search"))
	env.router.Register(record("read"))

	out, err := env.router.ProcessIntents(context.Background(), confidentRequest(
		intents.Intent{Type: "search", Query: "a"},
		intents.Intent{Type: "read", Query: "b"},
	))
	if err != nil {
		t.Fatalf("ProcessIntents: %v", err)
	}
	if out.Status != StatusSuccess {
		t.Fatalf("status = %s", out.Status)
	}
	want := []string{"search:a", "read:b"}
	if len(order) != 2 || order[0] != want[0] || order[1] != want[1] {
		t.Errorf("order = %v", order)
	}
	if len(out.Messages) != 2 {
		t.Errorf("messages = %v", out.Messages)
	}
}

func TestUnknownCommandAbandonsQueue(t *testing.T) {
	env := newTestEnv(t, nil)

	invoked := false
	env.router.Register(&scriptedHandler{name: "search", fn: func(ctx context.Context, p Params) (Result, error) {
		invoked = true
		return Result{Status: StatusSuccess}, nil
	}})

	out, err := env.router.ProcessIntents(context.Background(), confidentRequest(
		intents.Intent{Type: "frobnicate", Query: "x"},
		intents.Intent{Type: "search", Query: "never runs"},
	))
	if err != nil {
		t.Fatalf("ProcessIntents: %v", err)
	}
	if out.Status != StatusError {
		t.Errorf("status = %s", out.Status)
	}
	if invoked {
		t.Error("later intent ran after unknown command")
	}
	if len(out.Messages) != 1 || !strings.Contains(out.Messages[0], `"frobnicate"`) {
		t.Errorf("messages = %v", out.Messages)
	}
}

func TestHandlerErrorHaltsQueue(t *testing.T) {
	env := newTestEnv(t, nil)

	env.router.Register(&scriptedHandler{name: "search", fn: func(ctx context.Context, p Params) (Result, error) {
		return Result{}, errors.New("index unavailable")
	}})
	invoked := false
	env.router.Register(&scriptedHandler{name: "read", fn: func(ctx context.Context, p Params) (Result, error) {
		invoked = true
		return Result{Status: StatusSuccess}, nil
	}})

	out, err := env.router.ProcessIntents(context.Background(), confidentRequest(
		intents.Intent{Type: "search", Query: "x"},
		intents.Intent{Type: "read", Query: "y"},
	))
	if err != nil {
		t.Fatalf("ProcessIntents: %v", err)
	}
	if out.Status != StatusError {
		t.Errorf("status = %s", out.Status)
	}
	if invoked {
		t.Error("queue continued past a failed intent")
	}
	if !strings.Contains(out.Messages[0], "The search command failed") {
		t.Errorf("messages = %v", out.Messages)
	}
}

func TestConfirmationFlowConfirmed(t *testing.T) {
	env := newTestEnv(t, nil)

	committed := false
	env.router.Register(&scriptedResumer{
		scriptedHandler: scriptedHandler{name: "create", fn: func(ctx context.Context, p Params) (Result, error) {
			return Result{
				Status:  StatusNeedsConfirmation,
				Message: "Create the note?",
				Action:  &confirm.Action{Handler: "create", Plan: []byte(`{"path":"x.md"}`)},
			}, nil
		}},
		resume: func(ctx context.Context, p *confirm.Pending, confirmed bool) (Result, error) {
			if confirmed {
				committed = true
				return Result{Status: StatusSuccess, Message: "Created."}, nil
			}
			return Result{Status: StatusSuccess, Message: "Not created."}, nil
		},
	})
	ranAfter := false
	env.router.Register(&scriptedHandler{name: "read", fn: func(ctx context.Context, p Params) (Result, error) {
		ranAfter = true
		return Result{Status: StatusSuccess}, nil
	}})

	out, err := env.router.ProcessIntents(context.Background(), confidentRequest(
		intents.Intent{Type: "create", Query: "note"},
		intents.Intent{Type: "read", Query: "it"},
	))
	if err != nil {
		t.Fatalf("ProcessIntents: %v", err)
	}
	if out.Status != StatusNeedsConfirmation || out.ConfirmationID == "" {
		t.Fatalf("outcome = %+v", out)
	}
	if committed {
		t.Fatal("side effect before confirmation")
	}
	if ranAfter {
		t.Fatal("queue continued past suspension")
	}

	res, err := env.router.RespondToConfirmation(context.Background(), out.ConfirmationID, true)
	if err != nil {
		t.Fatalf("RespondToConfirmation: %v", err)
	}
	if res.Status != StatusSuccess {
		t.Errorf("status = %s", res.Status)
	}
	if !committed {
		t.Error("confirmed action not committed")
	}
	if !ranAfter {
		t.Error("remaining queue not resumed after confirmation")
	}
}

func TestConfirmationRejectDropsRemaining(t *testing.T) {
	env := newTestEnv(t, nil)

	committed := false
	env.router.Register(&scriptedResumer{
		scriptedHandler: scriptedHandler{name: "create", fn: func(ctx context.Context, p Params) (Result, error) {
			return Result{
				Status:  StatusNeedsConfirmation,
				Message: "Create?",
				Action:  &confirm.Action{Handler: "create", DropRemainingOnReject: true},
			}, nil
		}},
		resume: func(ctx context.Context, p *confirm.Pending, confirmed bool) (Result, error) {
			committed = confirmed
			return Result{Status: StatusSuccess, Message: "noted"}, nil
		},
	})
	ranAfter := false
	env.router.Register(&scriptedHandler{name: "generate", fn: func(ctx context.Context, p Params) (Result, error) {
		ranAfter = true
		return Result{Status: StatusSuccess}, nil
	}})

	out, _ := env.router.ProcessIntents(context.Background(), confidentRequest(
		intents.Intent{Type: "create", Query: "note"},
		intents.Intent{Type: "generate", Query: "about it"},
	))

	if _, err := env.router.RespondToConfirmation(context.Background(), out.ConfirmationID, false); err != nil {
		t.Fatalf("RespondToConfirmation: %v", err)
	}
	if committed {
		t.Error("rejected action committed")
	}
	if ranAfter {
		t.Error("dependent intent ran after rejection")
	}
}

func TestConfirmationRejectKeepsIndependentRemaining(t *testing.T) {
	env := newTestEnv(t, nil)

	env.router.Register(&scriptedResumer{
		scriptedHandler: scriptedHandler{name: "delete", fn: func(ctx context.Context, p Params) (Result, error) {
			return Result{
				Status:  StatusNeedsConfirmation,
				Message: "Delete?",
				Action:  &confirm.Action{Handler: "delete"},
			}, nil
		}},
		resume: func(ctx context.Context, p *confirm.Pending, confirmed bool) (Result, error) {
			return Result{Status: StatusSuccess, Message: "skipped"}, nil
		},
	})
	ranAfter := false
	env.router.Register(&scriptedHandler{name: "search", fn: func(ctx context.Context, p Params) (Result, error) {
		ranAfter = true
		return Result{Status: StatusSuccess}, nil
	}})

	out, _ := env.router.ProcessIntents(context.Background(), confidentRequest(
		intents.Intent{Type: "delete", Query: "old notes"},
		intents.Intent{Type: "search", Query: "unrelated"},
	))

	if _, err := env.router.RespondToConfirmation(context.Background(), out.ConfirmationID, false); err != nil {
		t.Fatalf("RespondToConfirmation: %v", err)
	}
	if !ranAfter {
		t.Error("independent remaining intent dropped on rejection")
	}
}

func TestStaleConfirmationIsSilentNoOp(t *testing.T) {
	env := newTestEnv(t, nil)

	out, err := env.router.RespondToConfirmation(context.Background(), "create_12345", true)
	if err != nil {
		t.Fatalf("RespondToConfirmation: %v", err)
	}
	if out.Status != StatusSuccess || len(out.Messages) != 0 {
		t.Errorf("outcome = %+v", out)
	}
}

func TestDuplicateConfirmationResponse(t *testing.T) {
	env := newTestEnv(t, nil)

	resumes := 0
	env.router.Register(&scriptedResumer{
		scriptedHandler: scriptedHandler{name: "create", fn: func(ctx context.Context, p Params) (Result, error) {
			return Result{Status: StatusNeedsConfirmation, Message: "?", Action: &confirm.Action{Handler: "create"}}, nil
		}},
		resume: func(ctx context.Context, p *confirm.Pending, confirmed bool) (Result, error) {
			resumes++
			return Result{Status: StatusSuccess}, nil
		},
	})

	out, _ := env.router.ProcessIntents(context.Background(), confidentRequest(
		intents.Intent{Type: "create", Query: "x"}))

	env.router.RespondToConfirmation(context.Background(), out.ConfirmationID, true)
	env.router.RespondToConfirmation(context.Background(), out.ConfirmationID, true)

	if resumes != 1 {
		t.Errorf("resumes = %d, want 1", resumes)
	}
}

func TestFallbackRetriesModelFailure(t *testing.T) {
	env := newTestEnv(t, []string{"backup"})

	calls := 0
	env.router.Register(&scriptedHandler{name: "generate", fn: func(ctx context.Context, p Params) (Result, error) {
		calls++
		if calls == 1 {
			return Result{}, &ModelCallError{Model: "main", Err: errors.New("429 rate limited")}
		}
		return Result{Status: StatusSuccess, Message: "generated"}, nil
	}})

	out, err := env.router.ProcessIntents(context.Background(), confidentRequest(
		intents.Intent{Type: "generate", Query: "write"}))
	if err != nil {
		t.Fatalf("ProcessIntents: %v", err)
	}
	if out.Status != StatusSuccess {
		t.Errorf("status = %s, messages = %v", out.Status, out.Messages)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}

	state, ok, _ := env.fb.State("conv")
	if !ok {
		t.Fatal("no fallback state")
	}
	if len(state.AttemptedModels) != 2 || state.AttemptedModels[1] != "backup" {
		t.Errorf("attempted = %v", state.AttemptedModels)
	}
}

func TestFallbackExhaustedSurfacesError(t *testing.T) {
	env := newTestEnv(t, []string{"backup"})

	env.router.Register(&scriptedHandler{name: "generate", fn: func(ctx context.Context, p Params) (Result, error) {
		return Result{}, &ModelCallError{Model: "any", Err: errors.New("boom")}
	}})

	out, err := env.router.ProcessIntents(context.Background(), confidentRequest(
		intents.Intent{Type: "generate", Query: "write"}))
	if err != nil {
		t.Fatalf("ProcessIntents: %v", err)
	}
	if out.Status != StatusError {
		t.Errorf("status = %s", out.Status)
	}
	if !strings.Contains(out.Messages[0], "no fallbacks remain") {
		t.Errorf("messages = %v", out.Messages)
	}
}

func TestNonModelErrorDoesNotTriggerFallback(t *testing.T) {
	env := newTestEnv(t, []string{"backup"})

	calls := 0
	env.router.Register(&scriptedHandler{name: "search", fn: func(ctx context.Context, p Params) (Result, error) {
		calls++
		return Result{}, errors.New("disk full")
	}})

	env.router.ProcessIntents(context.Background(), confidentRequest(
		intents.Intent{Type: "search", Query: "x"}))

	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry for non-model errors)", calls)
	}
}

func TestExpandSplicesIntoQueue(t *testing.T) {
	env := newTestEnv(t, nil)

	var order []string
	env.router.Register(&scriptedHandler{name: "weekly", fn: func(ctx context.Context, p Params) (Result, error) {
		order = append(order, "weekly")
		return Result{
			Status: StatusSuccess,
			Expand: []intents.Intent{
				{Type: "search", Query: "s1"},
				{Type: "search", Query: "s2"},
			},
		}, nil
	}})
	env.router.Register(&scriptedHandler{name: "search", fn: func(ctx context.Context, p Params) (Result, error) {
		order = append(order, "search:"+p.Intent.Query)
		return Result{Status: StatusSuccess}, nil
	}})
	env.router.Register(&scriptedHandler{name: "read", fn: func(ctx context.Context, p Params) (Result, error) {
		order = append(order, "read")
		return Result{Status: StatusSuccess}, nil
	}})

	_, err := env.router.ProcessIntents(context.Background(), confidentRequest(
		intents.Intent{Type: "weekly", Query: "go"},
		intents.Intent{Type: "read", Query: "after"},
	))
	if err != nil {
		t.Fatalf("ProcessIntents: %v", err)
	}

	want := []string{"weekly", "search:s1", "search:s2", "read"}
	if len(order) != len(want) {
		t.Fatalf("order = %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestConsumedNextSkipsFollowingIntent(t *testing.T) {
	env := newTestEnv(t, nil)

	var order []string
	env.router.Register(&scriptedHandler{name: "create", fn: func(ctx context.Context, p Params) (Result, error) {
		order = append(order, "create")
		if p.NextIntent == nil || p.NextIntent.Type != "generate" {
			t.Errorf("NextIntent = %+v", p.NextIntent)
		}
		return Result{Status: StatusSuccess, ConsumedNext: true}, nil
	}})
	env.router.Register(&scriptedHandler{name: "generate", fn: func(ctx context.Context, p Params) (Result, error) {
		order = append(order, "generate")
		return Result{Status: StatusSuccess}, nil
	}})
	env.router.Register(&scriptedHandler{name: "read", fn: func(ctx context.Context, p Params) (Result, error) {
		order = append(order, "read")
		return Result{Status: StatusSuccess}, nil
	}})

	_, err := env.router.ProcessIntents(context.Background(), confidentRequest(
		intents.Intent{Type: "create", Query: "x"},
		intents.Intent{Type: "generate", Query: "y"},
		intents.Intent{Type: "read", Query: "z"},
	))
	if err != nil {
		t.Fatalf("ProcessIntents: %v", err)
	}

	want := []string{"create", "read"}
	if len(order) != 2 || order[0] != want[0] || order[1] != want[1] {
		t.Errorf("order = %v", order)
	}
}

func TestResolutionResolvesPendingInline(t *testing.T) {
	env := newTestEnv(t, nil)

	committed := false
	env.router.Register(&scriptedResumer{
		scriptedHandler: scriptedHandler{name: "create", fn: func(ctx context.Context, p Params) (Result, error) {
			return Result{Status: StatusNeedsConfirmation, Message: "?", Action: &confirm.Action{Handler: "create"}}, nil
		}},
		resume: func(ctx context.Context, p *confirm.Pending, confirmed bool) (Result, error) {
			committed = confirmed
			return Result{Status: StatusSuccess, Message: "Created."}, nil
		},
	})
	env.router.Register(&scriptedHandler{name: "confirm", fn: func(ctx context.Context, p Params) (Result, error) {
		pending, ok := env.broker.Latest(p.Conversation)
		if !ok {
			return Result{Status: StatusSuccess, Message: "nothing pending"}, nil
		}
		return Result{Status: StatusSuccess, Resolution: &Resolution{ID: pending.ID, Confirmed: true}}, nil
	}})

	env.router.ProcessIntents(context.Background(), confidentRequest(
		intents.Intent{Type: "create", Query: "x"}))

	// The free-text "yes" arrives as a fresh confirm intent.
	out, err := env.router.ProcessIntents(context.Background(), confidentRequest(
		intents.Intent{Type: "confirm", Query: "yes"}))
	if err != nil {
		t.Fatalf("ProcessIntents: %v", err)
	}
	if out.Status != StatusSuccess {
		t.Errorf("status = %s", out.Status)
	}
	if !committed {
		t.Error("resolution did not resume the pending action")
	}
}

func TestEmptyQueueAppendsExplanation(t *testing.T) {
	env := newTestEnv(t, nil)

	out, err := env.router.ProcessIntents(context.Background(), Request{
		Title:       "conv",
		Confidence:  0.95,
		Explanation: "Just chatting, nothing to do.",
	})
	if err != nil {
		t.Fatalf("ProcessIntents: %v", err)
	}
	if out.Status != StatusSuccess {
		t.Errorf("status = %s", out.Status)
	}
	if len(out.Messages) != 1 || out.Messages[0] != "Just chatting, nothing to do." {
		t.Errorf("messages = %v", out.Messages)
	}
}

func TestModelCallErrorUnwrap(t *testing.T) {
	inner := errors.New("401 unauthorized")
	err := &ModelCallError{Model: "main", Err: inner}

	if !errors.Is(err, inner) {
		t.Error("Unwrap does not expose the cause")
	}
	if !strings.Contains(err.Error(), "main") {
		t.Errorf("Error() = %q", err.Error())
	}
}
