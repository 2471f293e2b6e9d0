package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/curator-ai/curator/internal/artifacts"
	"github.com/curator-ai/curator/internal/intents"
	"github.com/curator-ai/curator/internal/router"
)

const searchLimit = 20

// Search runs full-text queries over the vault and records the ranked hits
// as a SEARCH_RESULTS artifact for later intents to consume.
type Search struct {
	deps *Deps
}

func NewSearch(d *Deps) *Search { return &Search{deps: d} }

func (h *Search) Name() string { return intents.TypeSearch }

func (h *Search) Handle(ctx context.Context, p router.Params) (router.Result, error) {
	query := strings.TrimSpace(p.Intent.Query)
	if query == "" {
		return router.Result{Status: router.StatusError, Message: "There is nothing to search for."}, nil
	}

	var (
		hits []artifacts.SearchHit
		err  error
	)
	// Quoted text and #tags come from the extractor's pattern stage and
	// want literal matching, not FTS query syntax.
	if strings.HasPrefix(query, "#") || strings.Contains(p.OriginalQuery, `"`+query+`"`) {
		hits, err = h.deps.Index.SearchExact(query, searchLimit)
	} else {
		hits, err = h.deps.Index.Search(query, searchLimit)
	}
	if err != nil {
		return router.Result{}, fmt.Errorf("search %q: %w", query, err)
	}

	if len(hits) == 0 {
		return router.Result{
			Status:  router.StatusSuccess,
			Message: fmt.Sprintf("No notes match %q.", query),
		}, nil
	}

	a := &artifacts.Artifact{
		ID:            artifacts.GenerateID(),
		Conversation:  p.Conversation,
		Type:          artifacts.TypeSearchResults,
		SearchResults: hits,
	}
	if err := h.deps.Artifacts.Add(a); err != nil {
		return router.Result{}, fmt.Errorf("record search artifact: %w", err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d notes for %q:\n", len(hits), query)
	for _, hit := range hits {
		fmt.Fprintf(&sb, "- %s", hit.Path)
		if hit.Snippet != "" {
			fmt.Fprintf(&sb, ": %s", hit.Snippet)
		}
		sb.WriteString("\n")
	}

	return router.Result{
		Status:   router.StatusSuccess,
		Message:  strings.TrimRight(sb.String(), "\n"),
		Artifact: a.ID,
	}, nil
}
