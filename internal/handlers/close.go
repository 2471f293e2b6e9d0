package handlers

import (
	"context"
	"fmt"

	"github.com/curator-ai/curator/internal/intents"
	"github.com/curator-ai/curator/internal/router"
)

// Close marks the conversation as finished.
type Close struct {
	deps *Deps
}

func NewClose(d *Deps) *Close { return &Close{deps: d} }

func (h *Close) Name() string { return intents.TypeClose }

func (h *Close) Handle(ctx context.Context, p router.Params) (router.Result, error) {
	if err := h.deps.Conversations.Close(p.Conversation); err != nil {
		return router.Result{}, fmt.Errorf("close conversation: %w", err)
	}
	return router.Result{Status: router.StatusSuccess, Message: "Conversation closed."}, nil
}
