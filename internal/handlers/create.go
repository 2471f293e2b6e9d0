package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/curator-ai/curator/internal/artifacts"
	"github.com/curator-ai/curator/internal/confirm"
	"github.com/curator-ai/curator/internal/intents"
	"github.com/curator-ai/curator/internal/router"
)

// createPlan is the serializable plan computed before the confirmation
// suspend point. Resumption replays it without recomputation.
type createPlan struct {
	Path        string         `json:"path"`
	Content     string         `json:"content"`
	Frontmatter map[string]any `json:"frontmatter,omitempty"`
}

// Create plans a new note, asks for approval, and writes it only once the
// user confirms. The note itself is the side effect, so nothing touches the
// vault before resumption.
type Create struct {
	deps *Deps
}

func NewCreate(d *Deps) *Create { return &Create{deps: d} }

func (h *Create) Name() string { return intents.TypeCreate }

func (h *Create) Handle(ctx context.Context, p router.Params) (router.Result, error) {
	plan, err := h.plan(ctx, p)
	if err != nil {
		return router.Result{}, err
	}

	raw, err := json.Marshal(plan)
	if err != nil {
		return router.Result{}, fmt.Errorf("encode create plan: %w", err)
	}

	// A dependent generate intent right behind us only makes sense if the
	// note exists, so rejection drops it along with the rest of the queue.
	dropOnReject := p.NextIntent != nil &&
		intents.ParseType(p.NextIntent.Type).Base == intents.TypeGenerate

	return router.Result{
		Status:  router.StatusNeedsConfirmation,
		Message: fmt.Sprintf("Create the note %q? (%d characters)", plan.Path, len(plan.Content)),
		Action: &confirm.Action{
			Handler:               h.Name(),
			Plan:                  raw,
			DropRemainingOnReject: dropOnReject,
		},
	}, nil
}

// Resume commits or abandons the planned note. The rejected path performs
// no vault write.
func (h *Create) Resume(ctx context.Context, p *confirm.Pending, confirmed bool) (router.Result, error) {
	var plan createPlan
	if err := json.Unmarshal(p.Action.Plan, &plan); err != nil {
		return router.Result{}, fmt.Errorf("decode create plan: %w", err)
	}

	if !confirmed {
		return router.Result{
			Status:  router.StatusSuccess,
			Message: fmt.Sprintf("Alright, I will not create %q.", plan.Path),
		}, nil
	}

	path := plan.Path
	if h.deps.Vault.Exists(path) {
		path = h.deps.Vault.UniquePath(path)
	}
	if err := h.deps.Vault.Create(path, plan.Content, plan.Frontmatter); err != nil {
		return router.Result{}, fmt.Errorf("create %s: %w", path, err)
	}

	if note, err := h.deps.Vault.Read(path); err == nil {
		if err := h.deps.Index.Upsert(note); err != nil {
			return router.Result{}, fmt.Errorf("index %s: %w", path, err)
		}
	}

	a := &artifacts.Artifact{
		ID:           artifacts.GenerateID(),
		Conversation: p.Conversation,
		Type:         artifacts.TypeCreatedNotes,
		CreatedNotes: []string{path},
	}
	if err := h.deps.Artifacts.Add(a); err != nil {
		return router.Result{}, fmt.Errorf("record created artifact: %w", err)
	}

	return router.Result{
		Status:   router.StatusSuccess,
		Message:  fmt.Sprintf("Created %q.", path),
		Artifact: a.ID,
	}, nil
}

func (h *Create) plan(ctx context.Context, p router.Params) (*createPlan, error) {
	if p.Parsed.FromArtifact {
		return h.planFromArtifact(p)
	}

	var plan createPlan
	info := &schema.ToolInfo{
		Name: "plan_note",
		Desc: "Plan a new markdown note from the user's request.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"path": {
				Type:     schema.String,
				Desc:     "Relative vault path ending in .md, derived from the requested topic.",
				Required: true,
			},
			"content": {
				Type:     schema.String,
				Desc:     "Markdown body of the note.",
				Required: true,
			},
		}),
	}
	msgs := []*schema.Message{
		schema.SystemMessage("You plan markdown notes for a personal vault. Call plan_note exactly once."),
		schema.UserMessage(p.Intent.Query),
	}
	if err := h.deps.toolCall(ctx, p.Conversation, info, msgs, &plan); err != nil {
		return nil, err
	}
	if !strings.HasSuffix(plan.Path, ".md") {
		plan.Path += ".md"
	}
	return &plan, nil
}

// planFromArtifact turns the most recent read content into a new note.
func (h *Create) planFromArtifact(p router.Params) (*createPlan, error) {
	a, err := h.deps.mostRecentArtifact(p.Conversation, artifacts.TypeContentRead, artifacts.TypeSearchResults)
	if err != nil {
		return nil, err
	}

	switch a.Type {
	case artifacts.TypeContentRead:
		base := strings.TrimSuffix(a.Read.Path, ".md")
		return &createPlan{
			Path:    base + " copy.md",
			Content: a.Read.Content,
		}, nil
	default:
		var sb strings.Builder
		for _, hit := range a.SearchResults {
			fmt.Fprintf(&sb, "- [[%s]]\n", strings.TrimSuffix(hit.Path, ".md"))
		}
		return &createPlan{
			Path:    fmt.Sprintf("%s results.md", p.Conversation),
			Content: sb.String(),
		}, nil
	}
}
