// Package todo implements the optional multi-step plan a handler or
// user-defined command can create and advance within a conversation.
package todo

import (
	"errors"
	"fmt"

	"github.com/curator-ai/curator/internal/conversation"
	"github.com/curator-ai/curator/internal/events"
)

const propertyKey = "todo_list"

// ErrNoList is returned when a conversation has no to-do list.
var ErrNoList = errors.New("no to-do list for conversation")

// StepStatus is an explicit step marker. An absent status is inferred from
// the step's position relative to CurrentStep.
type StepStatus string

const (
	StepInProgress StepStatus = "in_progress"
	StepSkipped    StepStatus = "skipped"
	StepCompleted  StepStatus = "completed"
	StepPending    StepStatus = "pending"
)

// Step is a single plan entry.
type Step struct {
	Task   string     `json:"task"`
	Status StepStatus `json:"status,omitempty"`
}

// List is the persisted to-do plan. Invariant: 1 <= CurrentStep <= len(Steps).
type List struct {
	Steps       []Step `json:"steps"`
	CurrentStep int    `json:"current_step"`
}

// StatusOf resolves a step's effective status, inferring from position when
// no explicit marker is set.
func (l *List) StatusOf(index int) StepStatus {
	if index < 0 || index >= len(l.Steps) {
		return StepPending
	}
	if s := l.Steps[index].Status; s != "" {
		return s
	}
	switch {
	case index+1 < l.CurrentStep:
		return StepCompleted
	case index+1 == l.CurrentStep:
		return StepInProgress
	default:
		return StepPending
	}
}

// clamp forces target into [1, n].
func clamp(target, n int) int {
	if target < 1 {
		return 1
	}
	if target > n {
		return n
	}
	return target
}

// Service persists to-do lists in the conversation property table.
type Service struct {
	store conversation.Store
	bus   *events.Bus
}

// NewService creates a to-do service. bus may be nil.
func NewService(store conversation.Store, bus *events.Bus) *Service {
	return &Service{store: store, bus: bus}
}

// Create replaces the conversation's to-do list with a fresh plan starting
// at step 1.
func (s *Service) Create(title string, tasks []string) (*List, error) {
	if len(tasks) == 0 {
		return nil, fmt.Errorf("todo: at least one step is required")
	}

	steps := make([]Step, len(tasks))
	for i, t := range tasks {
		steps[i] = Step{Task: t}
	}
	list := &List{Steps: steps, CurrentStep: 1}

	if err := s.store.SetProperty(title, propertyKey, list); err != nil {
		return nil, err
	}
	s.publish(title, list)
	return list, nil
}

// Get loads the conversation's to-do list.
func (s *Service) Get(title string) (*List, error) {
	var list List
	ok, err := s.store.GetProperty(title, propertyKey, &list)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoList, title)
	}
	return &list, nil
}

// Update moves the current step to the caller-suggested target, clamped into
// [1, len(steps)], optionally marking the step it leaves behind.
func (s *Service) Update(title string, targetStep int, leavingStatus StepStatus) (*List, error) {
	list, err := s.Get(title)
	if err != nil {
		return nil, err
	}

	prev := list.CurrentStep
	list.CurrentStep = clamp(targetStep, len(list.Steps))

	if leavingStatus != "" && prev >= 1 && prev <= len(list.Steps) && prev != list.CurrentStep {
		list.Steps[prev-1].Status = leavingStatus
	}

	if err := s.store.SetProperty(title, propertyKey, list); err != nil {
		return nil, err
	}
	s.publish(title, list)
	return list, nil
}

// Clear removes the to-do list, e.g. on an explicit reload request.
func (s *Service) Clear(title string) error {
	return s.store.DeleteProperty(title, propertyKey)
}

func (s *Service) publish(title string, list *List) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.NewTypedEventForConversation(events.SourceRouter,
		events.TodoUpdatedPayload{CurrentStep: list.CurrentStep, TotalSteps: len(list.Steps)}, title))
}
