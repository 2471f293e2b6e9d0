// Package fallback implements the per-conversation model failover state
// machine. State is a typed record in the conversation property table and is
// mirrored into whatever metadata surface the UI reads.
package fallback

import (
	"errors"
	"fmt"

	"github.com/curator-ai/curator/internal/conversation"
	"github.com/curator-ai/curator/internal/events"
)

const propertyKey = "model_fallback"

// ErrExhausted is returned when every chain entry has been attempted.
var ErrExhausted = errors.New("fallback chain exhausted")

// ModelError records one failed attempt.
type ModelError struct {
	Model string `json:"model"`
	Error string `json:"error"`
}

// State tracks failover progress for one conversation. AttemptedModels only
// grows; there is no transition back to a previously attempted model.
type State struct {
	OriginalModel   string       `json:"original_model"`
	AttemptedModels []string     `json:"attempted_models"`
	Errors          []ModelError `json:"errors,omitempty"`
}

// Service drives the fallback state machine. A disabled service short-circuits
// every method to a no-op/false.
type Service struct {
	enabled bool
	chain   []string
	store   conversation.Store
	bus     *events.Bus
}

// NewService creates a fallback service over the configured chain.
func NewService(enabled bool, chain []string, store conversation.Store, bus *events.Bus) *Service {
	return &Service{enabled: enabled, chain: chain, store: store, bus: bus}
}

// Enabled reports whether failover is configured on.
func (s *Service) Enabled() bool { return s.enabled }

// InitializeState records the original model for a conversation. Calling it
// again with state already present is a no-op.
func (s *Service) InitializeState(title, originalModel string) error {
	if !s.enabled {
		return nil
	}

	var existing State
	ok, err := s.store.GetProperty(title, propertyKey, &existing)
	if err != nil {
		return fmt.Errorf("fallback: read state: %w", err)
	}
	if ok {
		return nil
	}

	state := State{
		OriginalModel:   originalModel,
		AttemptedModels: []string{originalModel},
	}
	return s.store.SetProperty(title, propertyKey, state)
}

// CurrentModel returns the model execution should use: the last attempted
// entry, or the original model if no state exists yet.
func (s *Service) CurrentModel(title, originalModel string) string {
	if !s.enabled {
		return originalModel
	}

	var state State
	ok, err := s.store.GetProperty(title, propertyKey, &state)
	if err != nil || !ok || len(state.AttemptedModels) == 0 {
		return originalModel
	}
	return state.AttemptedModels[len(state.AttemptedModels)-1]
}

// RecordError attaches a failure to the currently attempted model.
func (s *Service) RecordError(title, model string, cause error) error {
	if !s.enabled {
		return nil
	}

	var state State
	ok, err := s.store.GetProperty(title, propertyKey, &state)
	if err != nil {
		return fmt.Errorf("fallback: read state: %w", err)
	}
	if !ok {
		return nil
	}

	state.Errors = append(state.Errors, ModelError{Model: model, Error: cause.Error()})
	return s.store.SetProperty(title, propertyKey, state)
}

// HasMoreFallbacks reports whether an untried chain entry remains.
func (s *Service) HasMoreFallbacks(title string) bool {
	if !s.enabled {
		return false
	}

	var state State
	ok, err := s.store.GetProperty(title, propertyKey, &state)
	if err != nil || !ok {
		return len(s.chain) > 0
	}
	return s.nextUntried(state) != ""
}

// SwitchToNextModel appends the first chain entry not yet attempted and
// persists the state. Returns the model to use next.
func (s *Service) SwitchToNextModel(title string) (string, error) {
	if !s.enabled {
		return "", ErrExhausted
	}

	var state State
	ok, err := s.store.GetProperty(title, propertyKey, &state)
	if err != nil {
		return "", fmt.Errorf("fallback: read state: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("fallback: state not initialized for %q", title)
	}

	next := s.nextUntried(state)
	if next == "" {
		return "", ErrExhausted
	}

	from := ""
	if len(state.AttemptedModels) > 0 {
		from = state.AttemptedModels[len(state.AttemptedModels)-1]
	}

	state.AttemptedModels = append(state.AttemptedModels, next)
	if err := s.store.SetProperty(title, propertyKey, state); err != nil {
		return "", err
	}

	if s.bus != nil {
		s.bus.Publish(events.NewTypedEventForConversation(events.SourceRouter,
			events.FallbackSwitchedPayload{FromModel: from, ToModel: next}, title))
	}
	return next, nil
}

// State returns the persisted record, if any.
func (s *Service) State(title string) (*State, bool, error) {
	var state State
	ok, err := s.store.GetProperty(title, propertyKey, &state)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return &state, true, nil
}

// Reset clears the fallback record, e.g. on an explicit reload request.
func (s *Service) Reset(title string) error {
	if !s.enabled {
		return nil
	}
	return s.store.DeleteProperty(title, propertyKey)
}

// nextUntried returns the first chain entry absent from AttemptedModels.
func (s *Service) nextUntried(state State) string {
	attempted := make(map[string]bool, len(state.AttemptedModels))
	for _, m := range state.AttemptedModels {
		attempted[m] = true
	}
	for _, m := range s.chain {
		if !attempted[m] {
			return m
		}
	}
	return ""
}
