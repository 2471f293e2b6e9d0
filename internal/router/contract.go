package router

import (
	"context"
	"fmt"

	"github.com/curator-ai/curator/internal/confirm"
	"github.com/curator-ai/curator/internal/intents"
)

// Status is a handler outcome. No other states are permitted.
type Status string

const (
	StatusSuccess           Status = "SUCCESS"
	StatusNeedsConfirmation Status = "NEEDS_CONFIRMATION"
	StatusLowConfidence     Status = "LOW_CONFIDENCE"
	StatusError             Status = "ERROR"
)

// Params is the invocation context handed to a handler.
type Params struct {
	Conversation  string
	Intent        intents.Intent
	Parsed        intents.Parsed
	NextIntent    *intents.Intent // nil when this is the last queued intent
	OriginalQuery string
	Lang          string
}

// Result is the uniform handler outcome. Side effects must be performed
// before returning SUCCESS or ERROR; NEEDS_CONFIRMATION must not perform
// the side effect yet, only render the question and attach the Action that
// will perform it on approval.
type Result struct {
	Status   Status
	Message  string
	Artifact string // id of the artifact produced, if any

	// Action is required when Status is StatusNeedsConfirmation.
	Action *confirm.Action

	// ConsumedNext reports that the handler folded NextIntent into its own
	// plan; the router skips it instead of dispatching it separately.
	ConsumedNext bool

	// Resolution asks the router to resolve a pending confirmation on the
	// handler's behalf once this result is committed. Used by the confirm
	// handler, which interprets free-text yes/no answers.
	Resolution *Resolution

	// Expand splices intents into the queue in place of the current one.
	// Used by user-defined commands, which are declarative intent sequences.
	Expand []intents.Intent
}

// Resolution is a handler-requested confirmation response.
type Resolution struct {
	ID        string
	Confirmed bool
}

// Handler executes one intent type.
type Handler interface {
	Name() string
	Handle(ctx context.Context, p Params) (Result, error)
}

// Resumer re-enters a handler once its confirmation resolves. Exactly one
// of the confirmed/rejected paths runs, exactly once; the rejected path
// must never perform the side effect the confirmed path would have.
type Resumer interface {
	Resume(ctx context.Context, p *confirm.Pending, confirmed bool) (Result, error)
}

// ModelCallError marks a handler failure caused by the language model call
// itself, which makes the intent eligible for a fallback retry.
type ModelCallError struct {
	Model string
	Err   error
}

func (e *ModelCallError) Error() string {
	return fmt.Sprintf("model %s: %v", e.Model, e.Err)
}

func (e *ModelCallError) Unwrap() error { return e.Err }
