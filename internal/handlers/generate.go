package handlers

import (
	"context"
	"log/slog"

	"github.com/cloudwego/eino/schema"

	"github.com/curator-ai/curator/internal/intents"
	"github.com/curator-ai/curator/internal/router"
)

// Generate answers free-form questions with the active model, honoring
// per-intent model overrides and prompt edits.
type Generate struct {
	deps *Deps
}

func NewGenerate(d *Deps) *Generate { return &Generate{deps: d} }

func (h *Generate) Name() string { return intents.TypeGenerate }

func (h *Generate) Handle(ctx context.Context, p router.Params) (router.Result, error) {
	if err := h.deps.Fallback.InitializeState(p.Conversation, h.deps.Models.DefaultName()); err != nil {
		slog.Warn("generate: initialize fallback state", "conversation", p.Conversation, "error", err)
	}

	msgs := []*schema.Message{
		schema.SystemMessage("You are a writing assistant for a personal markdown vault. Answer in the user's language, in markdown."),
	}
	for _, edit := range p.Intent.SystemPrompts {
		switch edit.Role {
		case "system", "":
			msgs = append(msgs, schema.SystemMessage(edit.Content))
		default:
			msgs = append(msgs, &schema.Message{Role: schema.RoleType(edit.Role), Content: edit.Content})
		}
	}
	for _, line := range h.recentHistory(p.Conversation) {
		msgs = append(msgs, schema.UserMessage(line))
	}
	msgs = append(msgs, schema.UserMessage(p.Intent.Query))

	text, err := h.generateWith(ctx, p, msgs)
	if err != nil {
		return router.Result{}, err
	}

	return router.Result{Status: router.StatusSuccess, Message: text}, nil
}

// generateWith prefers an explicit per-intent model and falls back to the
// conversation's active model otherwise.
func (h *Generate) generateWith(ctx context.Context, p router.Params, msgs []*schema.Message) (string, error) {
	if p.Intent.Model != "" && h.deps.Models.Has(p.Intent.Model) {
		m, err := h.deps.Models.Get(ctx, p.Intent.Model)
		if err != nil {
			return "", &router.ModelCallError{Model: p.Intent.Model, Err: err}
		}
		out, err := m.Generate(ctx, msgs)
		if err != nil {
			return "", &router.ModelCallError{Model: p.Intent.Model, Err: err}
		}
		return out.Content, nil
	}
	return h.deps.generate(ctx, p.Conversation, msgs)
}

func (h *Generate) recentHistory(title string) []string {
	msgs, err := h.deps.Conversations.History(title)
	if err != nil || len(msgs) == 0 {
		return nil
	}
	const window = 6
	if len(msgs) > window {
		msgs = msgs[len(msgs)-window:]
	}
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Role+": "+m.Content)
	}
	return out
}
