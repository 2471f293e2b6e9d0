package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/curator-ai/curator/internal/artifacts"
	"github.com/curator-ai/curator/internal/intents"
	"github.com/curator-ai/curator/internal/router"
)

type copyArgs struct {
	Sources     []string `json:"sources"`
	Destination string   `json:"destination"`
}

// Copy duplicates notes into a destination folder and records the
// source/destination pairs as a COPIED_NOTES artifact.
type Copy struct {
	deps *Deps
}

func NewCopy(d *Deps) *Copy { return &Copy{deps: d} }

func (h *Copy) Name() string { return intents.TypeCopy }

func (h *Copy) Handle(ctx context.Context, p router.Params) (router.Result, error) {
	args, err := h.resolveArgs(ctx, p)
	if err != nil {
		return router.Result{}, err
	}
	if len(args.Sources) == 0 {
		return router.Result{Status: router.StatusError, Message: "There is nothing to copy."}, nil
	}

	var copied []artifacts.CopiedNote
	var failed []string
	for _, src := range args.Sources {
		dst := src
		if args.Destination != "" {
			dst = path.Join(args.Destination, path.Base(src))
		}
		if h.deps.Vault.Exists(dst) {
			dst = h.deps.Vault.UniquePath(dst)
		}
		if err := h.deps.Vault.Copy(src, dst); err != nil {
			failed = append(failed, fmt.Sprintf("%s (%v)", src, err))
			continue
		}
		copied = append(copied, artifacts.CopiedNote{Source: src, Destination: dst})
		if note, err := h.deps.Vault.Read(dst); err == nil {
			if err := h.deps.Index.Upsert(note); err != nil {
				slog.Warn("copy: index", "path", dst, "error", err)
			}
		}
	}

	if len(copied) == 0 {
		return router.Result{
			Status:  router.StatusError,
			Message: fmt.Sprintf("No notes could be copied: %s.", strings.Join(failed, ", ")),
		}, nil
	}

	a := &artifacts.Artifact{
		ID:           artifacts.GenerateID(),
		Conversation: p.Conversation,
		Type:         artifacts.TypeCopiedNotes,
		CopiedNotes:  copied,
	}
	if err := h.deps.Artifacts.Add(a); err != nil {
		return router.Result{}, fmt.Errorf("record copied artifact: %w", err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Copied %d notes.", len(copied))
	if len(failed) > 0 {
		fmt.Fprintf(&sb, " %d failed: %s.", len(failed), strings.Join(failed, ", "))
	}
	return router.Result{Status: router.StatusSuccess, Message: sb.String(), Artifact: a.ID}, nil
}

func (h *Copy) resolveArgs(ctx context.Context, p router.Params) (copyArgs, error) {
	if p.Parsed.FromArtifact {
		a, err := h.deps.mostRecentArtifact(p.Conversation,
			artifacts.TypeSearchResults, artifacts.TypeCreatedNotes)
		if err != nil {
			return copyArgs{}, err
		}
		return copyArgs{Sources: a.Paths(), Destination: destinationFromQuery(ctx, h.deps, p)}, nil
	}

	var args copyArgs
	info := &schema.ToolInfo{
		Name: "plan_copy",
		Desc: "Select the notes to copy and where to put them.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"sources": {
				Type:     schema.Array,
				Desc:     "Note paths to copy.",
				ElemInfo: &schema.ParameterInfo{Type: schema.String},
				Required: true,
			},
			"destination": {
				Type: schema.String,
				Desc: "Destination folder, empty to copy alongside the source.",
			},
		}),
	}
	msgs := []*schema.Message{
		schema.SystemMessage("You plan note copies inside a markdown vault. Call plan_copy exactly once."),
		schema.UserMessage(p.Intent.Query),
	}
	if err := h.deps.toolCall(ctx, p.Conversation, info, msgs, &args); err != nil {
		return copyArgs{}, err
	}
	return args, nil
}

// destinationFromQuery extracts a destination folder hint, if any, from the
// query of an artifact-sourced copy.
func destinationFromQuery(ctx context.Context, d *Deps, p router.Params) string {
	var args struct {
		Destination string `json:"destination"`
	}
	info := &schema.ToolInfo{
		Name: "pick_destination",
		Desc: "Extract the destination folder for a copy, empty if none is named.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"destination": {Type: schema.String, Required: true},
		}),
	}
	msgs := []*schema.Message{
		schema.SystemMessage("Call pick_destination exactly once."),
		schema.UserMessage(p.Intent.Query),
	}
	if err := d.toolCall(ctx, p.Conversation, info, msgs, &args); err != nil {
		return ""
	}
	return args.Destination
}
