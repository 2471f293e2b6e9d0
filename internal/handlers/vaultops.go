package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/curator-ai/curator/internal/intents"
	"github.com/curator-ai/curator/internal/router"
)

// Vault maintenance tool names. A "?tools=" suffix on the intent type
// restricts which of these the model may pick.
const (
	vaultToolList   = "list"
	vaultToolRename = "rename"
	vaultToolCount  = "count"
)

var allVaultTools = []string{vaultToolList, vaultToolRename, vaultToolCount}

// VaultOps runs maintenance operations on the vault itself.
type VaultOps struct {
	deps *Deps
}

func NewVaultOps(d *Deps) *VaultOps { return &VaultOps{deps: d} }

func (h *VaultOps) Name() string { return intents.TypeVault }

func (h *VaultOps) Handle(ctx context.Context, p router.Params) (router.Result, error) {
	allowed := p.Parsed.ToolOptions
	if len(allowed) == 0 {
		allowed = allVaultTools
	}

	var args struct {
		Tool string `json:"tool"`
		From string `json:"from,omitempty"`
		To   string `json:"to,omitempty"`
		Glob string `json:"glob,omitempty"`
	}
	info := &schema.ToolInfo{
		Name: "vault_operation",
		Desc: "Pick the vault maintenance operation the user asked for.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"tool": {
				Type:     schema.String,
				Desc:     "The operation to run.",
				Enum:     allowed,
				Required: true,
			},
			"from": {Type: schema.String, Desc: "Source path for rename."},
			"to":   {Type: schema.String, Desc: "Destination path for rename."},
			"glob": {Type: schema.String, Desc: "Optional glob filter for list and count."},
		}),
	}
	msgs := []*schema.Message{
		schema.SystemMessage("You run maintenance operations on a markdown vault. Call vault_operation exactly once."),
		schema.UserMessage(p.Intent.Query),
	}
	if err := h.deps.toolCall(ctx, p.Conversation, info, msgs, &args); err != nil {
		return router.Result{}, err
	}

	if !contains(allowed, args.Tool) {
		return router.Result{
			Status:  router.StatusError,
			Message: fmt.Sprintf("The %s operation is not available here.", args.Tool),
		}, nil
	}

	switch args.Tool {
	case vaultToolList:
		return h.list(args.Glob)
	case vaultToolCount:
		return h.count(args.Glob)
	case vaultToolRename:
		return h.rename(args.From, args.To)
	default:
		return router.Result{Status: router.StatusError, Message: fmt.Sprintf("Unknown vault operation %q.", args.Tool)}, nil
	}
}

func (h *VaultOps) list(glob string) (router.Result, error) {
	paths, err := h.paths(glob)
	if err != nil {
		return router.Result{}, err
	}
	const max = 50
	shown := paths
	if len(shown) > max {
		shown = shown[:max]
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "The vault holds %d notes", len(paths))
	if glob != "" {
		fmt.Fprintf(&sb, " matching %q", glob)
	}
	sb.WriteString(":\n")
	for _, p := range shown {
		fmt.Fprintf(&sb, "- %s\n", p)
	}
	if len(paths) > max {
		fmt.Fprintf(&sb, "... and %d more\n", len(paths)-max)
	}
	return router.Result{Status: router.StatusSuccess, Message: strings.TrimRight(sb.String(), "\n")}, nil
}

func (h *VaultOps) count(glob string) (router.Result, error) {
	paths, err := h.paths(glob)
	if err != nil {
		return router.Result{}, err
	}
	return router.Result{
		Status:  router.StatusSuccess,
		Message: fmt.Sprintf("The vault holds %d notes.", len(paths)),
	}, nil
}

func (h *VaultOps) rename(from, to string) (router.Result, error) {
	if from == "" || to == "" {
		return router.Result{Status: router.StatusError, Message: "A rename needs both a source and a destination."}, nil
	}
	if err := h.deps.Vault.Rename(from, to); err != nil {
		return router.Result{Status: router.StatusError, Message: fmt.Sprintf("Could not rename %q: %v.", from, err)}, nil
	}
	if err := h.deps.Index.Remove(from); err != nil {
		slog.Warn("rename: unindex", "path", from, "error", err)
	}
	if note, err := h.deps.Vault.Read(to); err == nil {
		if err := h.deps.Index.Upsert(note); err != nil {
			slog.Warn("rename: index", "path", to, "error", err)
		}
	}
	return router.Result{Status: router.StatusSuccess, Message: fmt.Sprintf("Renamed %q to %q.", from, to)}, nil
}

func (h *VaultOps) paths(glob string) ([]string, error) {
	if glob != "" {
		return h.deps.Vault.Glob([]string{glob})
	}
	return h.deps.Vault.List()
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
