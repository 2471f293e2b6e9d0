// Package handlers implements one handler per intent type, all under the
// router's uniform result contract.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/curator-ai/curator/internal/artifacts"
	"github.com/curator-ai/curator/internal/confirm"
	"github.com/curator-ai/curator/internal/conversation"
	"github.com/curator-ai/curator/internal/events"
	"github.com/curator-ai/curator/internal/fallback"
	"github.com/curator-ai/curator/internal/models"
	"github.com/curator-ai/curator/internal/router"
	"github.com/curator-ai/curator/internal/search"
	"github.com/curator-ai/curator/internal/todo"
	"github.com/curator-ai/curator/internal/vault"
)

// Deps bundles the collaborators shared by the handler set. Every handler
// receives it explicitly at construction.
type Deps struct {
	Vault         *vault.Vault
	Index         *search.Index
	Conversations conversation.Store
	Artifacts     artifacts.Store
	Broker        *confirm.Broker
	Fallback      *fallback.Service
	Todos         *todo.Service
	Models        *models.Registry
	Bus           *events.Bus
}

// RegisterAll registers the complete built-in handler set on the router.
func RegisterAll(r *router.Router, d *Deps) {
	r.Register(NewSearch(d))
	r.Register(NewCreate(d))
	r.Register(NewDelete(d))
	r.Register(NewCopy(d))
	r.Register(NewUpdate(d))
	r.Register(NewGenerate(d))
	r.Register(NewRead(d))
	r.Register(NewClose(d))
	r.Register(NewConfirm(d))
	r.Register(NewImage(d))
	r.Register(NewAudio(d))
	r.Register(NewRevert(d))
	r.Register(NewTodo(d))
	r.Register(NewVaultOps(d))
}

// chatModel resolves the active model for a conversation, honoring any
// fallback switches recorded so far.
func (d *Deps) chatModel(ctx context.Context, title string) (model.ToolCallingChatModel, string, error) {
	name := d.Models.DefaultName()
	if d.Fallback.Enabled() {
		name = d.Fallback.CurrentModel(title, name)
	}
	m, err := d.Models.Get(ctx, name)
	if err != nil {
		return nil, name, &router.ModelCallError{Model: name, Err: err}
	}
	return m, name, nil
}

// generate runs a plain text generation. Model failures come back as
// ModelCallError so the router can walk the fallback chain.
func (d *Deps) generate(ctx context.Context, title string, msgs []*schema.Message) (string, error) {
	m, name, err := d.chatModel(ctx, title)
	if err != nil {
		return "", err
	}
	out, err := m.Generate(ctx, msgs)
	if err != nil {
		return "", &router.ModelCallError{Model: name, Err: models.HandleError(err)}
	}
	d.publishUsage(title, name, out)
	return out.Content, nil
}

// publishUsage reports token counts when the provider returns them.
func (d *Deps) publishUsage(title, model string, resp *schema.Message) {
	if d.Bus == nil || resp == nil || resp.ResponseMeta == nil || resp.ResponseMeta.Usage == nil {
		return
	}
	u := resp.ResponseMeta.Usage
	d.Bus.Publish(events.NewTypedEventForConversation(events.SourceHandler,
		events.ModelUsagePayload{
			Model:            model,
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
		}, title))
}

// toolCall binds a single tool, generates, and decodes the call arguments
// into out. The model is forced into structured output by the tool schema.
func (d *Deps) toolCall(ctx context.Context, title string, info *schema.ToolInfo, msgs []*schema.Message, out any) error {
	m, name, err := d.chatModel(ctx, title)
	if err != nil {
		return err
	}
	bound, err := m.WithTools([]*schema.ToolInfo{info})
	if err != nil {
		return fmt.Errorf("bind tool %s: %w", info.Name, err)
	}
	resp, err := bound.Generate(ctx, msgs)
	if err != nil {
		return &router.ModelCallError{Model: name, Err: models.HandleError(err)}
	}
	d.publishUsage(title, name, resp)
	if len(resp.ToolCalls) == 0 {
		return fmt.Errorf("model returned no %s call", info.Name)
	}
	if err := json.Unmarshal([]byte(resp.ToolCalls[0].Function.Arguments), out); err != nil {
		return fmt.Errorf("parse %s arguments: %w", info.Name, err)
	}
	return nil
}

// mostRecentArtifact returns the newest artifact of the given types, or an
// error message suitable for the user when none exists.
func (d *Deps) mostRecentArtifact(title string, types ...artifacts.Type) (*artifacts.Artifact, error) {
	a, err := d.Artifacts.MostRecentOfTypes(title, types...)
	if err != nil {
		return nil, fmt.Errorf("no recent operations to draw from")
	}
	return a, nil
}
