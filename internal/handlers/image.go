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

// Image turns a request into a detailed image-generation prompt and saves
// it as a media note. No image backend is wired; the note carries the
// prompt for whichever generator the user pastes it into.
type Image struct {
	deps *Deps
}

func NewImage(d *Deps) *Image { return &Image{deps: d} }

func (h *Image) Name() string { return intents.TypeImage }

func (h *Image) Handle(ctx context.Context, p router.Params) (router.Result, error) {
	msgs := []*schema.Message{
		schema.SystemMessage("You write detailed prompts for image generators: subject, composition, lighting, style. Answer with the prompt only."),
		schema.UserMessage(p.Intent.Query),
	}
	prompt, err := h.deps.generate(ctx, p.Conversation, msgs)
	if err != nil {
		return router.Result{}, err
	}

	path := fmt.Sprintf("Media/image prompt %s.md", time.Now().Format("2006-01-02 150405"))
	fm := map[string]any{"kind": "image-prompt", "request": p.Intent.Query}
	if err := h.deps.Vault.Create(path, prompt, fm); err != nil {
		return router.Result{}, fmt.Errorf("save image prompt: %w", err)
	}

	a := &artifacts.Artifact{
		ID:           artifacts.GenerateID(),
		Conversation: p.Conversation,
		Type:         artifacts.TypeCreatedNotes,
		CreatedNotes: []string{path},
	}
	if err := h.deps.Artifacts.Add(a); err != nil {
		return router.Result{}, fmt.Errorf("record image artifact: %w", err)
	}

	return router.Result{
		Status:   router.StatusSuccess,
		Message:  fmt.Sprintf("Saved an image prompt to %q:\n\n%s", path, prompt),
		Artifact: a.ID,
	}, nil
}
