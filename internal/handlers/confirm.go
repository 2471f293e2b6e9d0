package handlers

import (
	"context"
	"strings"

	"github.com/curator-ai/curator/internal/intents"
	"github.com/curator-ai/curator/internal/router"
)

// Fixed bilingual lexicon for free-text yes/no answers.
var (
	affirmatives = map[string]bool{
		// en
		"yes": true, "y": true, "yeah": true, "yep": true, "sure": true,
		"ok": true, "okay": true, "confirm": true, "go ahead": true, "do it": true,
		// fr
		"oui": true, "ouais": true, "d'accord": true, "daccord": true,
		"vas-y": true, "confirme": true, "allez": true,
	}
	negatives = map[string]bool{
		// en
		"no": true, "n": true, "nope": true, "cancel": true, "stop": true,
		"abort": true, "don't": true, "dont": true,
		// fr
		"non": true, "annule": true, "annuler": true, "arrete": true,
		"arrête": true, "pas": true,
	}
)

// interpretAnswer maps a free-text reply onto a yes/no. Empty input
// defaults to affirmative so the user can just press enter to confirm.
func interpretAnswer(text string) (confirmed, ok bool) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	normalized = strings.Trim(normalized, ".!,;")

	if normalized == "" {
		return true, true
	}
	if affirmatives[normalized] {
		return true, true
	}
	if negatives[normalized] {
		return false, true
	}

	// A longer reply counts if it opens with a known term.
	first, _, _ := strings.Cut(normalized, " ")
	if affirmatives[first] {
		return true, true
	}
	if negatives[first] {
		return false, true
	}
	return false, false
}

// Confirm resolves the conversation's most recent pending confirmation from
// a free-text yes/no answer.
type Confirm struct {
	deps *Deps
}

func NewConfirm(d *Deps) *Confirm { return &Confirm{deps: d} }

func (h *Confirm) Name() string { return intents.TypeConfirm }

func (h *Confirm) Handle(ctx context.Context, p router.Params) (router.Result, error) {
	pending, ok := h.deps.Broker.Latest(p.Conversation)
	if !ok {
		return router.Result{
			Status:  router.StatusSuccess,
			Message: "There is nothing awaiting confirmation.",
		}, nil
	}

	confirmed, ok := interpretAnswer(p.Intent.Query)
	if !ok {
		return router.Result{
			Status:  router.StatusLowConfidence,
			Message: "I could not tell whether that was a yes or a no. Please answer yes or no.",
		}, nil
	}

	return router.Result{
		Status:     router.StatusSuccess,
		Resolution: &router.Resolution{ID: pending.ID, Confirmed: confirmed},
	}, nil
}
