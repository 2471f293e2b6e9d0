package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/curator-ai/curator/internal/intents"
	"github.com/curator-ai/curator/internal/router"
	"github.com/curator-ai/curator/internal/vault"
)

// commandsDir holds the vault notes that declare user-defined commands.
const commandsDir = "Commands/"

// UserCommand is a declarative intent sequence loaded from a vault command
// note. Invoking it splices its steps into the conversation's queue; the
// placeholder {query} in a step is replaced by the invocation query.
type UserCommand struct {
	deps  *Deps
	name  string
	steps []intents.Intent
}

func (h *UserCommand) Name() string { return h.name }

func (h *UserCommand) Handle(ctx context.Context, p router.Params) (router.Result, error) {
	expanded := make([]intents.Intent, len(h.steps))
	for i, step := range h.steps {
		step.Query = strings.ReplaceAll(step.Query, "{query}", p.Intent.Query)
		expanded[i] = step
	}
	return router.Result{
		Status:  router.StatusSuccess,
		Message: fmt.Sprintf("Running %s (%d steps).", h.name, len(expanded)),
		Expand:  expanded,
	}, nil
}

// LoadUserCommands reads every command note under Commands/ and returns a
// handler per command. A command note declares its name in frontmatter and
// one step per list line in the body, "- type: query".
func LoadUserCommands(v *vault.Vault, d *Deps) ([]*UserCommand, error) {
	paths, err := v.List()
	if err != nil {
		return nil, fmt.Errorf("list command notes: %w", err)
	}

	var cmds []*UserCommand
	for _, path := range paths {
		if !strings.HasPrefix(path, commandsDir) {
			continue
		}
		note, err := v.Read(path)
		if err != nil {
			continue
		}
		cmd, ok := parseCommandNote(note, d)
		if !ok {
			continue
		}
		cmds = append(cmds, cmd)
	}
	return cmds, nil
}

// RegisterUserCommands loads the vault's command notes and registers each
// as a handler. The returned names extend the extractor's vocabulary.
func RegisterUserCommands(r *router.Router, v *vault.Vault, d *Deps) ([]string, error) {
	cmds, err := LoadUserCommands(v, d)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(cmds))
	for _, cmd := range cmds {
		r.Register(cmd)
		names = append(names, cmd.Name())
	}
	return names, nil
}

func parseCommandNote(note *vault.Note, d *Deps) (*UserCommand, bool) {
	name, _ := note.Frontmatter["command"].(string)
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false
	}

	var steps []intents.Intent
	for _, line := range strings.Split(note.Body, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "- ") {
			continue
		}
		kind, query, ok := strings.Cut(strings.TrimPrefix(line, "- "), ":")
		if !ok {
			continue
		}
		steps = append(steps, intents.Intent{
			Type:  strings.TrimSpace(kind),
			Query: strings.TrimSpace(query),
		})
	}
	if len(steps) == 0 {
		return nil, false
	}

	return &UserCommand{deps: d, name: name, steps: steps}, true
}
