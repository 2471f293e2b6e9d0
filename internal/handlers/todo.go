package handlers

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/curator-ai/curator/internal/intents"
	"github.com/curator-ai/curator/internal/router"
	"github.com/curator-ai/curator/internal/todo"
)

var stepNumberPattern = regexp.MustCompile(`\b(\d+)\b`)

// Todo creates and advances the conversation's step-tracking to-do list.
type Todo struct {
	deps *Deps
}

func NewTodo(d *Deps) *Todo { return &Todo{deps: d} }

func (h *Todo) Name() string { return intents.TypeTodo }

func (h *Todo) Handle(ctx context.Context, p router.Params) (router.Result, error) {
	existing, err := h.deps.Todos.Get(p.Conversation)
	switch {
	case errors.Is(err, todo.ErrNoList):
		return h.create(ctx, p)
	case err != nil:
		return router.Result{}, fmt.Errorf("load todo list: %w", err)
	}
	return h.update(p, existing)
}

func (h *Todo) create(ctx context.Context, p router.Params) (router.Result, error) {
	var args struct {
		Tasks []string `json:"tasks"`
	}
	info := &schema.ToolInfo{
		Name: "plan_steps",
		Desc: "Break the request into a short ordered list of steps.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"tasks": {
				Type:     schema.Array,
				Desc:     "Ordered step descriptions.",
				ElemInfo: &schema.ParameterInfo{Type: schema.String},
				Required: true,
			},
		}),
	}
	msgs := []*schema.Message{
		schema.SystemMessage("You plan multi-step work for a markdown vault assistant. Call plan_steps exactly once."),
		schema.UserMessage(p.Intent.Query),
	}
	if err := h.deps.toolCall(ctx, p.Conversation, info, msgs, &args); err != nil {
		return router.Result{}, err
	}
	if len(args.Tasks) == 0 {
		return router.Result{Status: router.StatusError, Message: "I could not derive any steps from that."}, nil
	}

	list, err := h.deps.Todos.Create(p.Conversation, args.Tasks)
	if err != nil {
		return router.Result{}, fmt.Errorf("create todo list: %w", err)
	}

	return router.Result{
		Status:  router.StatusSuccess,
		Message: renderList(list),
	}, nil
}

func (h *Todo) update(p router.Params, existing *todo.List) (router.Result, error) {
	target := existing.CurrentStep + 1
	if m := stepNumberPattern.FindString(p.Intent.Query); m != "" {
		if n, err := strconv.Atoi(m); err == nil {
			target = n
		}
	}

	leaving := todo.StepCompleted
	if strings.Contains(strings.ToLower(p.Intent.Query), "skip") {
		leaving = todo.StepSkipped
	}

	list, err := h.deps.Todos.Update(p.Conversation, target, leaving)
	if err != nil {
		return router.Result{}, fmt.Errorf("update todo list: %w", err)
	}

	return router.Result{
		Status:  router.StatusSuccess,
		Message: renderList(list),
	}, nil
}

func renderList(list *todo.List) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "To-do list (step %d of %d):\n", list.CurrentStep, len(list.Steps))
	for i, step := range list.Steps {
		marker := " "
		switch list.StatusOf(i) {
		case todo.StepCompleted:
			marker = "x"
		case todo.StepSkipped:
			marker = "-"
		case todo.StepInProgress:
			marker = ">"
		}
		fmt.Fprintf(&sb, "%d. [%s] %s\n", i+1, marker, step.Task)
	}
	return strings.TrimRight(sb.String(), "\n")
}
