package fallback

import (
	"errors"
	"testing"

	"github.com/curator-ai/curator/internal/conversation"
)

func newTestService(t *testing.T, enabled bool, chain []string) (*Service, conversation.Store) {
	t.Helper()
	store := conversation.NewFileStore(t.TempDir(), nil)
	if _, err := store.Ensure("conv"); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	return NewService(enabled, chain, store, nil), store
}

func TestInitializeStateIdempotent(t *testing.T) {
	s, _ := newTestService(t, true, []string{"backup"})

	if err := s.InitializeState("conv", "main"); err != nil {
		t.Fatalf("InitializeState: %v", err)
	}
	// A second call with state present must not reset progress.
	if _, err := s.SwitchToNextModel("conv"); err != nil {
		t.Fatalf("SwitchToNextModel: %v", err)
	}
	if err := s.InitializeState("conv", "main"); err != nil {
		t.Fatalf("second InitializeState: %v", err)
	}

	state, ok, err := s.State("conv")
	if err != nil || !ok {
		t.Fatalf("State: ok=%v err=%v", ok, err)
	}
	if len(state.AttemptedModels) != 2 {
		t.Errorf("attempted = %v, want [main backup]", state.AttemptedModels)
	}
}

func TestAttemptedModelsMonotonic(t *testing.T) {
	s, _ := newTestService(t, true, []string{"b", "c"})

	s.InitializeState("conv", "a")

	var seen [][]string
	snapshot := func() {
		st, _, _ := s.State("conv")
		cp := make([]string, len(st.AttemptedModels))
		copy(cp, st.AttemptedModels)
		seen = append(seen, cp)
	}

	snapshot()
	s.SwitchToNextModel("conv")
	snapshot()
	s.SwitchToNextModel("conv")
	snapshot()

	for i := 1; i < len(seen); i++ {
		if len(seen[i]) != len(seen[i-1])+1 {
			t.Fatalf("attempted models did not grow by one: %v -> %v", seen[i-1], seen[i])
		}
		for j := range seen[i-1] {
			if seen[i][j] != seen[i-1][j] {
				t.Fatalf("attempted models prefix changed: %v -> %v", seen[i-1], seen[i])
			}
		}
	}
}

func TestSwitchWalksChainSkippingAttempted(t *testing.T) {
	s, _ := newTestService(t, true, []string{"a", "b", "c"})

	// Original model also appears in the chain; it must be skipped.
	s.InitializeState("conv", "b")

	next, err := s.SwitchToNextModel("conv")
	if err != nil {
		t.Fatalf("SwitchToNextModel: %v", err)
	}
	if next != "a" {
		t.Errorf("next = %q, want a", next)
	}

	next, err = s.SwitchToNextModel("conv")
	if err != nil {
		t.Fatalf("SwitchToNextModel: %v", err)
	}
	if next != "c" {
		t.Errorf("next = %q, want c", next)
	}

	if _, err := s.SwitchToNextModel("conv"); !errors.Is(err, ErrExhausted) {
		t.Errorf("exhausted chain: %v", err)
	}
}

func TestCurrentModel(t *testing.T) {
	s, _ := newTestService(t, true, []string{"backup"})

	if got := s.CurrentModel("conv", "main"); got != "main" {
		t.Errorf("before init = %q", got)
	}

	s.InitializeState("conv", "main")
	s.SwitchToNextModel("conv")

	if got := s.CurrentModel("conv", "main"); got != "backup" {
		t.Errorf("after switch = %q", got)
	}
}

func TestHasMoreFallbacks(t *testing.T) {
	s, _ := newTestService(t, true, []string{"backup"})

	s.InitializeState("conv", "main")
	if !s.HasMoreFallbacks("conv") {
		t.Error("expected a fallback before switching")
	}

	s.SwitchToNextModel("conv")
	if s.HasMoreFallbacks("conv") {
		t.Error("expected no fallback after exhausting the chain")
	}
}

func TestRecordError(t *testing.T) {
	s, _ := newTestService(t, true, []string{"backup"})

	s.InitializeState("conv", "main")
	if err := s.RecordError("conv", "main", errors.New("429 rate limited")); err != nil {
		t.Fatalf("RecordError: %v", err)
	}

	state, _, _ := s.State("conv")
	if len(state.Errors) != 1 || state.Errors[0].Model != "main" {
		t.Errorf("errors = %+v", state.Errors)
	}
}

func TestDisabledServiceIsNoOp(t *testing.T) {
	s, _ := newTestService(t, false, []string{"backup"})

	if s.Enabled() {
		t.Error("Enabled = true")
	}
	if err := s.InitializeState("conv", "main"); err != nil {
		t.Fatalf("InitializeState: %v", err)
	}
	if got := s.CurrentModel("conv", "main"); got != "main" {
		t.Errorf("CurrentModel = %q", got)
	}
	if s.HasMoreFallbacks("conv") {
		t.Error("HasMoreFallbacks = true")
	}
	if _, err := s.SwitchToNextModel("conv"); !errors.Is(err, ErrExhausted) {
		t.Errorf("SwitchToNextModel: %v", err)
	}
}

func TestReset(t *testing.T) {
	s, _ := newTestService(t, true, []string{"backup"})

	s.InitializeState("conv", "main")
	if err := s.Reset("conv"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	_, ok, err := s.State("conv")
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if ok {
		t.Error("state still present after reset")
	}
}
