package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/curator-ai/curator/internal/artifacts"
	"github.com/curator-ai/curator/internal/intents"
	"github.com/curator-ai/curator/internal/router"
)

var artifactIDPattern = regexp.MustCompile(`\bart_[0-9a-f]{8}\b`)

// revertable lists the artifact types that have an inverse operation.
var revertable = []artifacts.Type{
	artifacts.TypeCreatedNotes,
	artifacts.TypeDeletedFiles,
	artifacts.TypeFrontmatterResults,
}

// Revert undoes a previous operation by applying its artifact's inverse,
// file by file. Partial reverts are reported, not rolled back further.
type Revert struct {
	deps *Deps
}

func NewRevert(d *Deps) *Revert { return &Revert{deps: d} }

func (h *Revert) Name() string { return intents.TypeRevert }

func (h *Revert) Handle(ctx context.Context, p router.Params) (router.Result, error) {
	a, err := h.resolveArtifact(p)
	if err != nil {
		return router.Result{Status: router.StatusError, Message: err.Error()}, nil
	}

	// When the query names the operation kind, the artifact type must
	// match it. A mismatch is a user-visible error, not a silent no-op.
	if expected, named := expectedType(p.Intent.Query); named && expected != a.Type {
		return router.Result{
			Status:  router.StatusError,
			Message: fmt.Sprintf("The most recent operation is a %s, not something I can revert as %s.", a.Type, expected),
		}, nil
	}

	var reverted, failed []string
	switch a.Type {
	case artifacts.TypeCreatedNotes:
		for _, path := range a.CreatedNotes {
			if err := h.deps.Vault.SoftDelete(path); err != nil {
				failed = append(failed, fmt.Sprintf("%s (%v)", path, err))
				continue
			}
			if err := h.deps.Index.Remove(path); err != nil {
				slog.Warn("revert: unindex", "path", path, "error", err)
			}
			reverted = append(reverted, path)
		}
	case artifacts.TypeDeletedFiles:
		for _, f := range a.DeletedFiles {
			if err := h.deps.Vault.Restore(f.Path); err != nil {
				failed = append(failed, fmt.Sprintf("%s (%v)", f.Path, err))
				continue
			}
			if note, err := h.deps.Vault.Read(f.Path); err == nil {
				if err := h.deps.Index.Upsert(note); err != nil {
					slog.Warn("revert: reindex", "path", f.Path, "error", err)
				}
			}
			reverted = append(reverted, f.Path)
		}
	case artifacts.TypeFrontmatterResults:
		for _, c := range a.FrontmatterChanges {
			if _, err := h.deps.Vault.ReplaceFrontmatter(c.Path, c.Original); err != nil {
				failed = append(failed, fmt.Sprintf("%s (%v)", c.Path, err))
				continue
			}
			reverted = append(reverted, c.Path)
		}
	default:
		return router.Result{
			Status:  router.StatusError,
			Message: fmt.Sprintf("A %s artifact cannot be reverted.", a.Type),
		}, nil
	}

	if len(reverted) == 0 {
		return router.Result{
			Status:  router.StatusError,
			Message: fmt.Sprintf("Nothing could be reverted: %s.", strings.Join(failed, ", ")),
		}, nil
	}

	// The artifact goes away only once at least one file actually
	// reverted; a fully failed revert keeps it available for retry.
	if err := h.deps.Artifacts.Remove(p.Conversation, a.ID); err != nil {
		return router.Result{}, fmt.Errorf("remove artifact %s: %w", a.ID, err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Reverted %d notes from the last %s operation.", len(reverted), a.Type)
	if len(failed) > 0 {
		fmt.Fprintf(&sb, " %d failed: %s.", len(failed), strings.Join(failed, ", "))
	}
	return router.Result{Status: router.StatusSuccess, Message: sb.String()}, nil
}

func (h *Revert) resolveArtifact(p router.Params) (*artifacts.Artifact, error) {
	if id := artifactIDPattern.FindString(p.Intent.Query); id != "" {
		a, err := h.deps.Artifacts.ByID(p.Conversation, id)
		if err != nil {
			return nil, fmt.Errorf("there are no recent operations with id %s", id)
		}
		return a, nil
	}

	a, err := h.deps.Artifacts.MostRecentOfTypes(p.Conversation, revertable...)
	if err != nil {
		return nil, fmt.Errorf("there are no recent operations to revert")
	}
	return a, nil
}

// expectedType reads an operation kind out of the query wording.
func expectedType(query string) (artifacts.Type, bool) {
	q := strings.ToLower(query)
	switch {
	case strings.Contains(q, "creat"):
		return artifacts.TypeCreatedNotes, true
	case strings.Contains(q, "delet"), strings.Contains(q, "trash"):
		return artifacts.TypeDeletedFiles, true
	case strings.Contains(q, "frontmatter"), strings.Contains(q, "propert"), strings.Contains(q, "updat"):
		return artifacts.TypeFrontmatterResults, true
	}
	return "", false
}
