package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/curator-ai/curator/internal/artifacts"
	"github.com/curator-ai/curator/internal/intents"
	"github.com/curator-ai/curator/internal/router"
)

type updateArgs struct {
	Files        []string          `json:"files,omitempty"`
	FilePatterns []string          `json:"filePatterns,omitempty"`
	Properties   map[string]string `json:"properties"`
}

// Update sets frontmatter properties on a set of notes and records the
// before/after state per note so the change can be reverted.
type Update struct {
	deps *Deps
}

func NewUpdate(d *Deps) *Update { return &Update{deps: d} }

func (h *Update) Name() string { return intents.TypeUpdate }

func (h *Update) Handle(ctx context.Context, p router.Params) (router.Result, error) {
	var paths []string
	var props map[string]string

	if p.Parsed.FromArtifact {
		a, err := h.deps.mostRecentArtifact(p.Conversation,
			artifacts.TypeSearchResults, artifacts.TypeCreatedNotes, artifacts.TypeCopiedNotes)
		if err != nil {
			return router.Result{Status: router.StatusError, Message: err.Error()}, nil
		}
		paths = a.Paths()
		args, err := h.extractArgs(ctx, p)
		if err != nil {
			return router.Result{}, err
		}
		props = args.Properties
	} else {
		args, err := h.extractArgs(ctx, p)
		if err != nil {
			return router.Result{}, err
		}
		props = args.Properties
		paths = args.Files
		if len(paths) == 0 && len(args.FilePatterns) > 0 {
			paths, err = h.deps.Vault.Glob(args.FilePatterns)
			if err != nil {
				return router.Result{Status: router.StatusError, Message: fmt.Sprintf("Could not resolve patterns: %v.", err)}, nil
			}
		}
	}

	if len(props) == 0 {
		return router.Result{Status: router.StatusError, Message: "No properties to update were given."}, nil
	}
	if len(paths) == 0 {
		return router.Result{Status: router.StatusError, Message: "No notes matched the update request."}, nil
	}

	var changes []artifacts.FrontmatterChange
	var failed []string
	for _, path := range paths {
		change, err := h.applyOne(path, props)
		if err != nil {
			failed = append(failed, fmt.Sprintf("%s (%v)", path, err))
			continue
		}
		changes = append(changes, *change)
	}

	if len(changes) == 0 {
		return router.Result{
			Status:  router.StatusError,
			Message: fmt.Sprintf("No notes could be updated: %s.", strings.Join(failed, ", ")),
		}, nil
	}

	a := &artifacts.Artifact{
		ID:                 artifacts.GenerateID(),
		Conversation:       p.Conversation,
		Type:               artifacts.TypeFrontmatterResults,
		FrontmatterChanges: changes,
	}
	if err := h.deps.Artifacts.Add(a); err != nil {
		return router.Result{}, fmt.Errorf("record update artifact: %w", err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Updated frontmatter on %d notes.", len(changes))
	if len(failed) > 0 {
		fmt.Fprintf(&sb, " %d failed: %s.", len(failed), strings.Join(failed, ", "))
	}
	return router.Result{Status: router.StatusSuccess, Message: sb.String(), Artifact: a.ID}, nil
}

func (h *Update) applyOne(path string, props map[string]string) (*artifacts.FrontmatterChange, error) {
	before, err := h.deps.Vault.Read(path)
	if err != nil {
		return nil, err
	}
	original := make(map[string]any, len(before.Frontmatter))
	for k, v := range before.Frontmatter {
		original[k] = v
	}

	for k, v := range props {
		if _, err := h.deps.Vault.SetProperty(path, k, v); err != nil {
			return nil, err
		}
	}

	after, err := h.deps.Vault.Read(path)
	if err != nil {
		return nil, err
	}
	if err := h.deps.Index.Upsert(after); err != nil {
		return nil, err
	}

	return &artifacts.FrontmatterChange{
		Path:     path,
		Original: original,
		Updated:  after.Frontmatter,
	}, nil
}

func (h *Update) extractArgs(ctx context.Context, p router.Params) (updateArgs, error) {
	var args updateArgs
	info := &schema.ToolInfo{
		Name: "plan_frontmatter_update",
		Desc: "Extract the notes to update and the frontmatter properties to set.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"files": {
				Type:     schema.Array,
				Desc:     "Explicit note paths, empty when patterns are given or targets come from earlier results.",
				ElemInfo: &schema.ParameterInfo{Type: schema.String},
			},
			"filePatterns": {
				Type:     schema.Array,
				Desc:     "Glob patterns selecting the notes.",
				ElemInfo: &schema.ParameterInfo{Type: schema.String},
			},
			"properties": {
				Type:     schema.Object,
				Desc:     "Frontmatter keys mapped to their new values.",
				Required: true,
			},
		}),
	}
	msgs := []*schema.Message{
		schema.SystemMessage("You plan frontmatter updates for markdown notes. Call plan_frontmatter_update exactly once."),
		schema.UserMessage(p.Intent.Query),
	}
	if err := h.deps.toolCall(ctx, p.Conversation, info, msgs, &args); err != nil {
		return updateArgs{}, err
	}
	return args, nil
}
