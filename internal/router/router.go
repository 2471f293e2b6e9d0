// Package router dispatches extracted intents to their handlers, strictly
// sequentially per conversation, under the uniform result contract.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/curator-ai/curator/internal/abort"
	"github.com/curator-ai/curator/internal/artifacts"
	"github.com/curator-ai/curator/internal/confirm"
	"github.com/curator-ai/curator/internal/conversation"
	"github.com/curator-ai/curator/internal/events"
	"github.com/curator-ai/curator/internal/extractor"
	"github.com/curator-ai/curator/internal/fallback"
	"github.com/curator-ai/curator/internal/intents"
)

const historyWindow = 10

// Config wires the router's collaborators. Everything is injected; the
// router holds direct references instead of reaching for shared globals.
type Config struct {
	Conversations conversation.Store
	Artifacts     artifacts.Store
	Broker        *confirm.Broker
	Extractor     *extractor.Extractor
	Fallback      *fallback.Service
	Aborts        *abort.Registry
	Bus           *events.Bus
	DefaultModel  string

	// ConfidenceThreshold gates auto-execution: extractions at or below it
	// halt with LOW_CONFIDENCE until explicitly re-confirmed.
	ConfidenceThreshold float64
}

// Request is one batch of intents to process for a conversation.
type Request struct {
	Title                     string
	Intents                   []intents.Intent
	OriginalQuery             string
	Lang                      string
	Explanation               string
	Confidence                float64
	IntentExtractionConfirmed bool
}

// Outcome summarizes a processing run for the caller.
type Outcome struct {
	Status         Status
	Messages       []string
	ConfirmationID string
	Explanation    string
	Confidence     float64

	// Intents echoes the extracted queue on LOW_CONFIDENCE so the caller
	// can re-submit it with IntentExtractionConfirmed set.
	Intents []intents.Intent
}

// Router owns the handler registry and the per-conversation queues.
type Router struct {
	cfg      Config
	handlers map[string]Handler
	resumers map[string]Resumer

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a Router with an empty handler registry.
func New(cfg Config) *Router {
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = 0.7
	}
	return &Router{
		cfg:      cfg,
		handlers: make(map[string]Handler),
		resumers: make(map[string]Resumer),
		locks:    make(map[string]*sync.Mutex),
	}
}

// SetExtractor installs the extractor after construction. The extractor's
// vocabulary depends on the registered handler set, so it is built last.
func (r *Router) SetExtractor(e *extractor.Extractor) {
	r.cfg.Extractor = e
}

// Register adds a handler under its name. Handlers that also implement
// Resumer join the resumption table used after confirmations.
func (r *Router) Register(h Handler) {
	r.handlers[h.Name()] = h
	if res, ok := h.(Resumer); ok {
		r.resumers[h.Name()] = res
	}
}

// Handlers returns the registered handler names.
func (r *Router) Handlers() []string {
	names := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		names = append(names, n)
	}
	return names
}

// conversationLock returns the mutex serializing one conversation's work.
// Two intents of the same conversation never execute concurrently;
// different conversations proceed independently.
func (r *Router) conversationLock(title string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[title]
	if !ok {
		l = &sync.Mutex{}
		r.locks[title] = l
	}
	return l
}

// ProcessUtterance runs the full pipeline: record the user message, extract
// intents, then process the resulting queue.
func (r *Router) ProcessUtterance(ctx context.Context, title, utterance, lang string) (Outcome, error) {
	if _, err := r.cfg.Conversations.AppendMessage(title, utterance, "user", ""); err != nil {
		return Outcome{}, fmt.Errorf("router: record utterance: %w", err)
	}

	ext, err := r.cfg.Extractor.Extract(ctx, extractor.Request{
		Conversation: title,
		Utterance:    utterance,
		History:      r.recentHistory(title),
		Artifacts:    r.artifactContext(title),
		Lang:         lang,
	})
	if err != nil {
		// Extraction failure is surfaced as a conversation message; the
		// queue is never started.
		msg := fmt.Sprintf("I could not understand that request: %v", err)
		r.appendAssistant(title, msg, "")
		return Outcome{Status: StatusError, Messages: []string{msg}}, nil
	}

	return r.ProcessIntents(ctx, Request{
		Title:         title,
		Intents:       ext.Intents,
		OriginalQuery: utterance,
		Lang:          lang,
		Explanation:   ext.Explanation,
		Confidence:    ext.Confidence,
	})
}

// ProcessIntents dispatches a queue of intents front-to-back. Extractions
// at or below the confidence threshold halt before any handler runs and
// must be re-submitted with IntentExtractionConfirmed.
func (r *Router) ProcessIntents(ctx context.Context, req Request) (Outcome, error) {
	lock := r.conversationLock(req.Title)
	lock.Lock()
	defer lock.Unlock()

	if !req.IntentExtractionConfirmed && req.Confidence <= r.cfg.ConfidenceThreshold {
		slog.Info("router: low confidence extraction",
			"conversation", req.Title, "confidence", req.Confidence)
		return Outcome{
			Status:      StatusLowConfidence,
			Explanation: req.Explanation,
			Confidence:  req.Confidence,
			Intents:     req.Intents,
		}, nil
	}

	if len(req.Intents) == 0 {
		msg := req.Explanation
		if msg == "" {
			msg = "I found nothing actionable in that request."
		}
		r.appendAssistant(req.Title, msg, "")
		return Outcome{Status: StatusSuccess, Messages: []string{msg}}, nil
	}

	return r.runQueue(ctx, req.Title, req.Lang, req.OriginalQuery, req.Intents)
}

// runQueue executes intents sequentially. The caller must hold the
// conversation lock.
func (r *Router) runQueue(ctx context.Context, title, lang, originalQuery string, queue []intents.Intent) (Outcome, error) {
	out := Outcome{Status: StatusSuccess}

	for i := 0; i < len(queue); i++ {
		in := queue[i]
		parsed := intents.ParseType(in.Type)

		h, ok := r.handlers[parsed.Base]
		if !ok {
			// Unknown type is fatal for this intent and the rest of the
			// queue is abandoned.
			msg := fmt.Sprintf("Unknown command %q.", parsed.Base)
			r.appendAssistant(title, msg, "")
			r.publishCompleted(title, in.Type, StatusError, msg, "")
			out.Status = StatusError
			out.Messages = append(out.Messages, msg)
			return out, nil
		}

		r.publish(title, events.IntentStartedPayload{Type: in.Type, Query: in.Query})

		params := Params{
			Conversation:  title,
			Intent:        in,
			Parsed:        parsed,
			OriginalQuery: originalQuery,
			Lang:          lang,
		}
		if i+1 < len(queue) {
			next := queue[i+1]
			params.NextIntent = &next
		}

		res, err := r.invoke(ctx, title, h, params)
		if err != nil {
			msg := fmt.Sprintf("The %s command failed: %v", parsed.Base, err)
			r.appendAssistant(title, msg, parsed.Base)
			r.publishCompleted(title, in.Type, StatusError, msg, err.Error())
			out.Status = StatusError
			out.Messages = append(out.Messages, msg)
			return out, nil
		}

		if res.Message != "" {
			r.appendAssistant(title, res.Message, parsed.Base)
			out.Messages = append(out.Messages, res.Message)
		}

		switch res.Status {
		case StatusSuccess:
			r.publishCompleted(title, in.Type, StatusSuccess, res.Message, "")
			if res.Resolution != nil {
				if p, taken := r.cfg.Broker.Take(res.Resolution.ID); taken {
					sub, err := r.respondTaken(ctx, p, res.Resolution.Confirmed)
					if err != nil {
						return out, err
					}
					out.Messages = append(out.Messages, sub.Messages...)
					if sub.Status != StatusSuccess {
						out.Status = sub.Status
						out.ConfirmationID = sub.ConfirmationID
						out.Explanation = sub.Explanation
						return out, nil
					}
				}
			}
			if res.ConsumedNext {
				i++
			}
			if len(res.Expand) > 0 {
				// Splice the expansion in place of the current intent.
				spliced := make([]intents.Intent, 0, len(queue)-1+len(res.Expand))
				spliced = append(spliced, queue[:i+1]...)
				spliced = append(spliced, res.Expand...)
				spliced = append(spliced, queue[i+1:]...)
				queue = spliced
			}

		case StatusNeedsConfirmation:
			if res.Action == nil {
				return out, fmt.Errorf("router: handler %s returned NEEDS_CONFIRMATION without an action", parsed.Base)
			}
			remaining := remainingQueue(queue, i, res.ConsumedNext)
			id := r.cfg.Broker.Request(&confirm.Pending{
				Type:         parsed.Base,
				Conversation: title,
				Message:      res.Message,
				Action:       *res.Action,
				Remaining:    remaining,
				Lang:         lang,
			})
			out.Status = StatusNeedsConfirmation
			out.ConfirmationID = id
			return out, nil

		case StatusLowConfidence:
			r.publishCompleted(title, in.Type, StatusLowConfidence, res.Message, "")
			out.Status = StatusLowConfidence
			out.Explanation = res.Message
			return out, nil

		case StatusError:
			r.publishCompleted(title, in.Type, StatusError, res.Message, "")
			out.Status = StatusError
			return out, nil

		default:
			return out, fmt.Errorf("router: handler %s returned invalid status %q", parsed.Base, res.Status)
		}
	}

	return out, nil
}

// invoke runs one handler under its own abort token, retrying through the
// fallback chain when the failure came from the model call itself.
func (r *Router) invoke(ctx context.Context, title string, h Handler, p Params) (Result, error) {
	opName := title + ":" + p.Parsed.Base
	opCtx := r.cfg.Aborts.Register(ctx, opName)
	defer r.cfg.Aborts.Clear(opName)

	for {
		res, err := h.Handle(opCtx, p)
		if err == nil {
			return res, nil
		}

		var mce *ModelCallError
		if !errors.As(err, &mce) || !r.cfg.Fallback.Enabled() {
			return Result{}, err
		}

		if err := r.cfg.Fallback.InitializeState(title, r.cfg.DefaultModel); err != nil {
			slog.Warn("router: initialize fallback state", "conversation", title, "error", err)
		}
		if err := r.cfg.Fallback.RecordError(title, mce.Model, mce.Err); err != nil {
			slog.Warn("router: record model error", "conversation", title, "error", err)
		}

		if !r.cfg.Fallback.HasMoreFallbacks(title) {
			return Result{}, fmt.Errorf("model %s failed and no fallbacks remain: %w", mce.Model, mce.Err)
		}

		next, err := r.cfg.Fallback.SwitchToNextModel(title)
		if err != nil {
			return Result{}, fmt.Errorf("model %s failed: %w", mce.Model, mce.Err)
		}
		slog.Info("router: retrying with fallback model",
			"conversation", title, "failed", mce.Model, "next", next)
	}
}

// RespondToConfirmation resolves a pending confirmation. Unknown or stale
// ids are a silent no-op: the likely cause is a duplicate UI event.
func (r *Router) RespondToConfirmation(ctx context.Context, id string, confirmed bool) (Outcome, error) {
	p, ok := r.cfg.Broker.Take(id)
	if !ok {
		slog.Debug("router: confirmation not pending", "id", id)
		return Outcome{Status: StatusSuccess}, nil
	}

	lock := r.conversationLock(p.Conversation)
	lock.Lock()
	defer lock.Unlock()

	return r.respondTaken(ctx, p, confirmed)
}

// respondTaken resolves an already-taken confirmation. The caller must hold
// the conversation lock.
func (r *Router) respondTaken(ctx context.Context, p *confirm.Pending, confirmed bool) (Outcome, error) {
	r.cfg.Broker.Resolved(p, confirmed, false)

	res, ok, err := r.resume(ctx, p, confirmed)
	if err != nil {
		msg := fmt.Sprintf("The %s command failed: %v", p.Action.Handler, err)
		r.appendAssistant(p.Conversation, msg, p.Action.Handler)
		return Outcome{Status: StatusError, Messages: []string{msg}}, nil
	}
	if !ok {
		return Outcome{Status: StatusSuccess}, nil
	}

	out := Outcome{Status: res.Status}
	if res.Message != "" {
		r.appendAssistant(p.Conversation, res.Message, p.Action.Handler)
		out.Messages = append(out.Messages, res.Message)
	}

	if res.Status != StatusSuccess {
		return out, nil
	}

	// A rejection either drops the queued dependents or lets them run,
	// depending on what the suspending handler planned. Never both.
	if !confirmed && p.Action.DropRemainingOnReject {
		return out, nil
	}
	if len(p.Remaining) == 0 {
		return out, nil
	}

	rest, err := r.runQueue(ctx, p.Conversation, p.Lang, "", p.Remaining)
	if err != nil {
		return out, err
	}
	rest.Messages = append(out.Messages, rest.Messages...)
	return rest, nil
}

// resume dispatches the pending action through the resumption table.
func (r *Router) resume(ctx context.Context, p *confirm.Pending, confirmed bool) (Result, bool, error) {
	res, ok := r.resumers[p.Action.Handler]
	if !ok {
		return Result{}, false, fmt.Errorf("router: no resumer registered for %q", p.Action.Handler)
	}

	opName := p.Conversation + ":" + p.Action.Handler
	opCtx := r.cfg.Aborts.Register(ctx, opName)
	defer r.cfg.Aborts.Clear(opName)

	result, err := res.Resume(opCtx, p, confirmed)
	if err != nil {
		return Result{}, false, err
	}
	return result, true, nil
}

// PendingConfirmations lists a conversation's unresolved confirmations.
func (r *Router) PendingConfirmations(title string) []*confirm.Pending {
	return r.cfg.Broker.ForConversation(title)
}

func (r *Router) recentHistory(title string) []string {
	msgs, err := r.cfg.Conversations.History(title)
	if err != nil {
		return nil
	}
	if len(msgs) > historyWindow {
		msgs = msgs[len(msgs)-historyWindow:]
	}
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Role + ": " + m.Content
	}
	return out
}

func (r *Router) artifactContext(title string) []string {
	a, err := r.cfg.Artifacts.MostRecentOfTypes(title,
		artifacts.TypeSearchResults, artifacts.TypeCreatedNotes,
		artifacts.TypeDeletedFiles, artifacts.TypeCopiedNotes,
		artifacts.TypeFrontmatterResults, artifacts.TypeContentRead)
	if err != nil {
		return nil
	}
	return []string{fmt.Sprintf("%s (%s): %d paths", a.ID, a.Type, len(a.Paths()))}
}

func (r *Router) appendAssistant(title, content, command string) {
	if _, err := r.cfg.Conversations.AppendMessage(title, content, "assistant", command); err != nil {
		slog.Warn("router: append message", "conversation", title, "error", err)
	}
}

func (r *Router) publish(title string, payload events.EventPayload) {
	if r.cfg.Bus != nil {
		r.cfg.Bus.Publish(events.NewTypedEventForConversation(events.SourceRouter, payload, title))
	}
}

func (r *Router) publishCompleted(title, intentType string, status Status, message, errMsg string) {
	r.publish(title, events.IntentCompletedPayload{
		Type:    intentType,
		Status:  string(status),
		Message: message,
		Error:   errMsg,
	})
}

func remainingQueue(queue []intents.Intent, i int, consumedNext bool) []intents.Intent {
	start := i + 1
	if consumedNext {
		start++
	}
	if start >= len(queue) {
		return nil
	}
	rest := make([]intents.Intent, len(queue)-start)
	copy(rest, queue[start:])
	return rest
}
