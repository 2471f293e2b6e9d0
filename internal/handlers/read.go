package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/curator-ai/curator/internal/artifacts"
	"github.com/curator-ai/curator/internal/intents"
	"github.com/curator-ai/curator/internal/router"
)

// Read loads a note's content into the conversation and records it as a
// CONTENT_READ artifact for later intents.
type Read struct {
	deps *Deps
}

func NewRead(d *Deps) *Read { return &Read{deps: d} }

func (h *Read) Name() string { return intents.TypeRead }

func (h *Read) Handle(ctx context.Context, p router.Params) (router.Result, error) {
	path, err := h.resolvePath(p)
	if err != nil {
		return router.Result{Status: router.StatusError, Message: err.Error()}, nil
	}

	note, err := h.deps.Vault.Read(path)
	if err != nil {
		return router.Result{Status: router.StatusError, Message: fmt.Sprintf("Could not read %q: %v.", path, err)}, nil
	}

	a := &artifacts.Artifact{
		ID:           artifacts.GenerateID(),
		Conversation: p.Conversation,
		Type:         artifacts.TypeContentRead,
		Read:         &artifacts.ReadContent{Path: note.Path, Content: note.Body},
	}
	if err := h.deps.Artifacts.Add(a); err != nil {
		return router.Result{}, fmt.Errorf("record read artifact: %w", err)
	}

	return router.Result{
		Status:   router.StatusSuccess,
		Message:  fmt.Sprintf("## %s\n\n%s", note.Path, note.Body),
		Artifact: a.ID,
	}, nil
}

// resolvePath accepts an exact vault path, the top hit of a previous search
// artifact, or a fresh search over the query text, in that order.
func (h *Read) resolvePath(p router.Params) (string, error) {
	query := strings.TrimSpace(p.Intent.Query)

	if p.Parsed.FromArtifact {
		a, err := h.deps.mostRecentArtifact(p.Conversation,
			artifacts.TypeSearchResults, artifacts.TypeCreatedNotes)
		if err != nil {
			return "", err
		}
		paths := a.Paths()
		if len(paths) == 0 {
			return "", fmt.Errorf("the previous operation has no notes to read")
		}
		return paths[0], nil
	}

	if h.deps.Vault.Exists(query) {
		return query, nil
	}
	if h.deps.Vault.Exists(query + ".md") {
		return query + ".md", nil
	}

	hits, err := h.deps.Index.Search(query, 1)
	if err != nil || len(hits) == 0 {
		return "", fmt.Errorf("no note matches %q", query)
	}
	return hits[0].Path, nil
}
