package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/curator-ai/curator/internal/artifacts"
	"github.com/curator-ai/curator/internal/intents"
	"github.com/curator-ai/curator/internal/router"
)

// Audio writes a narration script for the requested content and saves it
// as a media note, ready for a text-to-speech pass.
type Audio struct {
	deps *Deps
}

func NewAudio(d *Deps) *Audio { return &Audio{deps: d} }

func (h *Audio) Name() string { return intents.TypeAudio }

func (h *Audio) Handle(ctx context.Context, p router.Params) (router.Result, error) {
	msgs := []*schema.Message{
		schema.SystemMessage("You write narration scripts meant to be read aloud: short sentences, no markdown syntax, no headings. Answer with the script only."),
		schema.UserMessage(p.Intent.Query),
	}
	script, err := h.deps.generate(ctx, p.Conversation, msgs)
	if err != nil {
		return router.Result{}, err
	}

	path := fmt.Sprintf("Media/narration %s.md", time.Now().Format("2006-01-02 150405"))
	fm := map[string]any{"kind": "narration", "request": p.Intent.Query}
	if err := h.deps.Vault.Create(path, script, fm); err != nil {
		return router.Result{}, fmt.Errorf("save narration: %w", err)
	}

	a := &artifacts.Artifact{
		ID:           artifacts.GenerateID(),
		Conversation: p.Conversation,
		Type:         artifacts.TypeCreatedNotes,
		CreatedNotes: []string{path},
	}
	if err := h.deps.Artifacts.Add(a); err != nil {
		return router.Result{}, fmt.Errorf("record narration artifact: %w", err)
	}

	return router.Result{
		Status:   router.StatusSuccess,
		Message:  fmt.Sprintf("Saved a narration script to %q.", path),
		Artifact: a.ID,
	}, nil
}
