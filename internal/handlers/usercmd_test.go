package handlers

import (
	"context"
	"testing"

	"github.com/curator-ai/curator/internal/intents"
	"github.com/curator-ai/curator/internal/router"
	"github.com/curator-ai/curator/internal/vault"
)

func newCommandVault(t *testing.T) *vault.Vault {
	t.Helper()
	v, err := vault.New(t.TempDir(), ".trash")
	if err != nil {
		t.Fatalf("vault.New: %v", err)
	}
	return v
}

func TestLoadUserCommands(t *testing.T) {
	v := newCommandVault(t)

	v.Create("Commands/weekly.md",
		"- search: {query}\n- generate: summarize the results\n",
		map[string]any{"command": "weekly_review"})
	v.Create("Commands/no-name.md", "- search: x\n", nil)
	v.Create("Commands/no-steps.md", "just prose, no list\n", map[string]any{"command": "empty"})
	v.Create("Elsewhere/ignored.md", "- search: x\n", map[string]any{"command": "outside"})

	cmds, err := LoadUserCommands(v, &Deps{})
	if err != nil {
		t.Fatalf("LoadUserCommands: %v", err)
	}
	if len(cmds) != 1 {
		t.Fatalf("cmds = %d, want 1", len(cmds))
	}
	if cmds[0].Name() != "weekly_review" {
		t.Errorf("name = %q", cmds[0].Name())
	}
}

func TestUserCommandExpandsPlaceholder(t *testing.T) {
	v := newCommandVault(t)

	v.Create("Commands/lookup.md",
		"- search: {query}\n- read: first result\n",
		map[string]any{"command": "lookup"})

	cmds, err := LoadUserCommands(v, &Deps{})
	if err != nil || len(cmds) != 1 {
		t.Fatalf("LoadUserCommands: cmds=%d err=%v", len(cmds), err)
	}

	res, err := cmds[0].Handle(context.Background(), router.Params{
		Conversation: "conv",
		Intent:       intents.Intent{Type: "lookup", Query: "meeting notes"},
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.Status != router.StatusSuccess {
		t.Errorf("status = %s", res.Status)
	}
	if len(res.Expand) != 2 {
		t.Fatalf("expand = %+v", res.Expand)
	}
	if res.Expand[0].Type != intents.TypeSearch || res.Expand[0].Query != "meeting notes" {
		t.Errorf("step 1 = %+v", res.Expand[0])
	}
	if res.Expand[1].Query != "first result" {
		t.Errorf("step 2 = %+v", res.Expand[1])
	}
}
