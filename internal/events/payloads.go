package events

import (
	"encoding/json"
	"time"
)

// EventPayload is the interface all typed payloads implement.
type EventPayload interface {
	EventType() EventType
}

// ConversationMessagePayload is a message appended to a conversation.
type ConversationMessagePayload struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Command string `json:"command,omitempty"`
}

func (ConversationMessagePayload) EventType() EventType { return EventConversationMessage }

// ConversationClosedPayload marks a conversation as closed.
type ConversationClosedPayload struct {
	Title string `json:"title"`
}

func (ConversationClosedPayload) EventType() EventType { return EventConversationClosed }

// IntentExtractedPayload reports the result of intent extraction.
type IntentExtractedPayload struct {
	Types       []string `json:"types"`
	Confidence  float64  `json:"confidence"`
	Explanation string   `json:"explanation,omitempty"`
	FromCache   bool     `json:"from_cache,omitempty"`
}

func (IntentExtractedPayload) EventType() EventType { return EventIntentExtracted }

// IntentStartedPayload marks the start of a single intent's execution.
type IntentStartedPayload struct {
	Type  string `json:"type"`
	Query string `json:"query,omitempty"`
}

func (IntentStartedPayload) EventType() EventType { return EventIntentStarted }

// IntentCompletedPayload reports the terminal status of one intent.
type IntentCompletedPayload struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (IntentCompletedPayload) EventType() EventType { return EventIntentCompleted }

// ConfirmationRequestedPayload announces a suspended operation awaiting yes/no.
type ConfirmationRequestedPayload struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (ConfirmationRequestedPayload) EventType() EventType { return EventConfirmationRequested }

// ConfirmationResolvedPayload reports the outcome of a pending confirmation.
type ConfirmationResolvedPayload struct {
	ID        string `json:"id"`
	Confirmed bool   `json:"confirmed"`
	Expired   bool   `json:"expired,omitempty"`
}

func (ConfirmationResolvedPayload) EventType() EventType { return EventConfirmationResolved }

// FallbackSwitchedPayload reports an automatic model switch.
type FallbackSwitchedPayload struct {
	FromModel string `json:"from_model"`
	ToModel   string `json:"to_model"`
	Error     string `json:"error,omitempty"`
}

func (FallbackSwitchedPayload) EventType() EventType { return EventFallbackSwitched }

// ModelUsagePayload reports token usage of a single model call.
type ModelUsagePayload struct {
	Model            string `json:"model"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
}

func (ModelUsagePayload) EventType() EventType { return EventModelUsage }

// TodoUpdatedPayload reports a to-do list state change.
type TodoUpdatedPayload struct {
	CurrentStep int `json:"current_step"`
	TotalSteps  int `json:"total_steps"`
}

func (TodoUpdatedPayload) EventType() EventType { return EventTodoUpdated }

// OperationAbortedPayload reports a cancelled named operation.
type OperationAbortedPayload struct {
	Operation string `json:"operation"`
}

func (OperationAbortedPayload) EventType() EventType { return EventOperationAborted }

// NewTypedEvent builds an Event from a typed payload.
func NewTypedEvent(source EventSource, payload EventPayload) Event {
	return Event{
		ID:        generateEventID(),
		Type:      payload.EventType(),
		Timestamp: time.Now(),
		Source:    source,
		Payload:   toMap(payload),
	}
}

// NewTypedEventForConversation builds a conversation-scoped Event.
func NewTypedEventForConversation(source EventSource, payload EventPayload, conversation string) Event {
	e := NewTypedEvent(source, payload)
	e.Conversation = conversation
	return e
}

func toMap(v any) map[string]any {
	var result map[string]any
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

// ExtractPayload decodes an event's payload into a typed struct.
func ExtractPayload[T EventPayload](e Event) (T, bool) {
	var result T
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return result, false
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, false
	}
	return result, true
}
