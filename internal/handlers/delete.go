package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/curator-ai/curator/internal/artifacts"
	"github.com/curator-ai/curator/internal/intents"
	"github.com/curator-ai/curator/internal/router"
)

// deleteArgsMessage is reported verbatim when the target selectors are
// over- or under-specified.
const deleteArgsMessage = "You can only provide either artifactId, files, or filePatterns."

// deleteArgs selects the notes to delete. Exactly one selector may be set.
type deleteArgs struct {
	ArtifactID   string   `json:"artifactId,omitempty"`
	Files        []string `json:"files,omitempty"`
	FilePatterns []string `json:"filePatterns,omitempty"`
}

func (a deleteArgs) validate() error {
	given := 0
	if a.ArtifactID != "" {
		given++
	}
	if len(a.Files) > 0 {
		given++
	}
	if len(a.FilePatterns) > 0 {
		given++
	}
	if given != 1 {
		return errors.New(deleteArgsMessage)
	}
	return nil
}

// Delete soft-deletes notes into the trash and records a DELETED_FILES
// artifact so the operation can be reverted.
type Delete struct {
	deps *Deps
}

func NewDelete(d *Deps) *Delete { return &Delete{deps: d} }

func (h *Delete) Name() string { return intents.TypeDelete }

func (h *Delete) Handle(ctx context.Context, p router.Params) (router.Result, error) {
	args, err := h.resolveArgs(ctx, p)
	if err != nil {
		return router.Result{}, err
	}

	// Validation happens before any side effect; the message goes to the
	// user verbatim.
	if err := args.validate(); err != nil {
		return router.Result{Status: router.StatusError, Message: err.Error()}, nil
	}

	paths, err := h.resolveTargets(p.Conversation, args)
	if err != nil {
		return router.Result{Status: router.StatusError, Message: err.Error()}, nil
	}
	if len(paths) == 0 {
		return router.Result{Status: router.StatusError, Message: "Nothing matched, so nothing was deleted."}, nil
	}

	var deleted []artifacts.DeletedFile
	var failed []string
	for _, path := range paths {
		if err := h.deps.Vault.SoftDelete(path); err != nil {
			failed = append(failed, fmt.Sprintf("%s (%v)", path, err))
			continue
		}
		deleted = append(deleted, artifacts.DeletedFile{Path: path})
		// The note is already in the trash. A stale index entry only
		// degrades search, so the deletion still counts and gets recorded.
		if err := h.deps.Index.Remove(path); err != nil {
			slog.Warn("delete: unindex", "path", path, "error", err)
		}
	}

	var artifactID string
	if len(deleted) > 0 {
		a := &artifacts.Artifact{
			ID:           artifacts.GenerateID(),
			Conversation: p.Conversation,
			Type:         artifacts.TypeDeletedFiles,
			DeletedFiles: deleted,
		}
		if err := h.deps.Artifacts.Add(a); err != nil {
			return router.Result{}, fmt.Errorf("record deleted artifact: %w", err)
		}
		artifactID = a.ID
	}

	// Partial success is preserved and reported in one message.
	var sb strings.Builder
	fmt.Fprintf(&sb, "Moved %d notes to the trash.", len(deleted))
	if len(failed) > 0 {
		fmt.Fprintf(&sb, " %d could not be deleted: %s.", len(failed), strings.Join(failed, ", "))
	}

	status := router.StatusSuccess
	if len(deleted) == 0 {
		status = router.StatusError
	}
	return router.Result{Status: status, Message: sb.String(), Artifact: artifactID}, nil
}

// resolveArgs derives the target selector, either from the most recent
// artifact or from a model call over the query text.
func (h *Delete) resolveArgs(ctx context.Context, p router.Params) (deleteArgs, error) {
	if p.Parsed.FromArtifact {
		a, err := h.deps.mostRecentArtifact(p.Conversation,
			artifacts.TypeSearchResults, artifacts.TypeCreatedNotes)
		if err != nil {
			return deleteArgs{}, err
		}
		return deleteArgs{ArtifactID: a.ID}, nil
	}

	var args deleteArgs
	info := &schema.ToolInfo{
		Name: "select_targets",
		Desc: "Select the notes the user wants to delete. Provide exactly one of the three selectors.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"files": {
				Type:     schema.Array,
				Desc:     "Explicit note paths.",
				ElemInfo: &schema.ParameterInfo{Type: schema.String},
			},
			"filePatterns": {
				Type:     schema.Array,
				Desc:     "Glob patterns such as projects/**/*.md.",
				ElemInfo: &schema.ParameterInfo{Type: schema.String},
			},
			"artifactId": {
				Type: schema.String,
				Desc: "Id of a previous operation's artifact, when the user refers to earlier results.",
			},
		}),
	}
	msgs := []*schema.Message{
		schema.SystemMessage("You select deletion targets in a markdown vault. Call select_targets exactly once."),
		schema.UserMessage(p.Intent.Query),
	}
	if err := h.deps.toolCall(ctx, p.Conversation, info, msgs, &args); err != nil {
		return deleteArgs{}, err
	}
	return args, nil
}

func (h *Delete) resolveTargets(title string, args deleteArgs) ([]string, error) {
	switch {
	case args.ArtifactID != "":
		a, err := h.deps.Artifacts.ByID(title, args.ArtifactID)
		if err != nil {
			return nil, fmt.Errorf("artifact %s not found", args.ArtifactID)
		}
		return a.Paths(), nil
	case len(args.Files) > 0:
		return args.Files, nil
	default:
		paths, err := h.deps.Vault.Glob(args.FilePatterns)
		if err != nil {
			return nil, fmt.Errorf("resolve patterns: %v", err)
		}
		return paths, nil
	}
}
