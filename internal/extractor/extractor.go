// Package extractor turns free-text utterances into ordered, typed intents.
//
// Extraction runs in up to three stages: pure pattern shortcuts for quoted
// text and tags, a semantic classifier cache for previously seen phrasings,
// and finally model tool-calls: one to classify the intent types, one to
// derive a focused query per type.
package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/curator-ai/curator/internal/events"
	"github.com/curator-ai/curator/internal/intents"
)

const (
	// Confidence assigned to classifier-cache hits. Classification is
	// cheap and precedent-based, so it is a fixed high constant.
	cacheHitConfidence = 0.9

	// Minimum model confidence for writing a classification back into
	// the cache.
	learnConfidence = 0.8
)

// Extraction is the result of one extraction run.
type Extraction struct {
	Intents     []intents.Intent `json:"intents"`
	Explanation string           `json:"explanation"`
	Confidence  float64          `json:"confidence"`
}

// ModelProvider yields the chat model extraction should use. The current
// model can change between calls when fallback switches.
type ModelProvider interface {
	Model(ctx context.Context) (model.ToolCallingChatModel, error)
}

// Request carries one utterance plus its conversational context.
type Request struct {
	Conversation string
	Utterance    string
	History      []string // recent messages, oldest first, "role: content"
	Artifacts    []string // short descriptions of artifacts available to _from_artifact intents
	Lang         string
}

// Extractor classifies utterances into ordered intents.
type Extractor struct {
	provider   ModelProvider
	classifier *Classifier // nil disables the cache
	vocab      *intents.Vocabulary
	bus        *events.Bus
}

// New creates an Extractor. classifier may be nil to disable the cache.
func New(provider ModelProvider, classifier *Classifier, vocab *intents.Vocabulary, bus *events.Bus) *Extractor {
	return &Extractor{provider: provider, classifier: classifier, vocab: vocab, bus: bus}
}

// Extract turns an utterance into ordered intents with a confidence score.
// Typos are passed through as literal text; no correction happens here.
func (e *Extractor) Extract(ctx context.Context, req Request) (Extraction, error) {
	if strings.TrimSpace(req.Utterance) == "" {
		return Extraction{Explanation: "empty utterance", Confidence: 1}, nil
	}

	// Stage 0: quoted substrings and #tags carry unambiguous structure.
	if matched := matchPatterns(req.Utterance); len(matched) > 0 {
		ext := Extraction{Intents: matched, Explanation: "exact-match search from quoted text or tags", Confidence: 1}
		e.publish(req.Conversation, ext)
		return ext, nil
	}

	// Stage 1: classifier cache, then model classification on a miss.
	types, explanation, confidence, fromCache, err := e.classifyTypes(ctx, req)
	if err != nil {
		return Extraction{}, err
	}
	if len(types) == 0 {
		return Extraction{Explanation: explanation, Confidence: confidence}, nil
	}

	if !fromCache && e.classifier != nil && confidence >= learnConfidence {
		if err := e.classifier.Learn(ctx, req.Utterance, strings.Join(types, ":")); err != nil {
			slog.Warn("extractor: classifier write-back failed", "error", err)
		}
	}

	// Cost-saving short-circuit: a single intent that is not read or
	// generate takes the whole utterance as its query.
	if len(types) == 1 {
		base := intents.ParseType(types[0]).Base
		if base != intents.TypeRead && base != intents.TypeGenerate {
			ext := Extraction{
				Intents:     []intents.Intent{{Type: types[0], Query: req.Utterance}},
				Explanation: explanation,
				Confidence:  confidence,
			}
			e.publish(req.Conversation, ext)
			return ext, nil
		}
	}

	// Stage 2: one focused query per type, order and length preserved.
	queries, err := e.extractQueries(ctx, req, types)
	if err != nil {
		return Extraction{}, err
	}

	list := make([]intents.Intent, len(types))
	for i, t := range types {
		list[i] = intents.Intent{Type: t, Query: queries[i]}
	}
	ext := Extraction{Intents: list, Explanation: explanation, Confidence: confidence}
	e.publish(req.Conversation, ext)
	return ext, nil
}

func (e *Extractor) classifyTypes(ctx context.Context, req Request) (types []string, explanation string, confidence float64, fromCache bool, err error) {
	if e.classifier != nil {
		label, ok, cerr := e.classifier.Classify(ctx, req.Utterance)
		if cerr != nil {
			slog.Warn("extractor: classifier lookup failed", "error", cerr)
		} else if ok {
			types = strings.Split(label, ":")
			for _, t := range types {
				if !e.vocab.IsValid(t) {
					return nil, "", 0, false, fmt.Errorf("extractor: cached label contains invalid type %q", t)
				}
			}
			return types, "matched a previously classified utterance", cacheHitConfidence, true, nil
		}
	}

	types, explanation, confidence, err = e.modelClassify(ctx, req)
	return types, explanation, confidence, false, err
}

type classifyArgs struct {
	Intents     []string `json:"intents"`
	Explanation string   `json:"explanation"`
	Confidence  float64  `json:"confidence"`
}

func (e *Extractor) modelClassify(ctx context.Context, req Request) ([]string, string, float64, error) {
	m, err := e.provider.Model(ctx)
	if err != nil {
		return nil, "", 0, fmt.Errorf("extractor: get model: %w", err)
	}

	bound, err := m.WithTools([]*schema.ToolInfo{classifyTool(e.vocab)})
	if err != nil {
		return nil, "", 0, fmt.Errorf("extractor: bind classify tool: %w", err)
	}

	msg, err := bound.Generate(ctx, classifyMessages(req, e.vocab))
	if err != nil {
		return nil, "", 0, fmt.Errorf("extractor: classify call: %w", err)
	}
	if len(msg.ToolCalls) == 0 {
		return nil, "", 0, fmt.Errorf("extractor: model returned no classification")
	}

	var args classifyArgs
	if err := json.Unmarshal([]byte(msg.ToolCalls[0].Function.Arguments), &args); err != nil {
		return nil, "", 0, fmt.Errorf("extractor: parse classification: %w", err)
	}

	for _, t := range args.Intents {
		if !e.vocab.IsValid(t) {
			return nil, "", 0, fmt.Errorf("extractor: model returned invalid intent type %q", t)
		}
	}

	confidence := args.Confidence
	if confidence < 0 {
		confidence = 0
	} else if confidence > 1 {
		confidence = 1
	}
	return args.Intents, args.Explanation, confidence, nil
}

type queryArgs struct {
	Queries []string `json:"queries"`
}

func (e *Extractor) extractQueries(ctx context.Context, req Request, types []string) ([]string, error) {
	m, err := e.provider.Model(ctx)
	if err != nil {
		return nil, fmt.Errorf("extractor: get model: %w", err)
	}

	bound, err := m.WithTools([]*schema.ToolInfo{queriesTool(len(types))})
	if err != nil {
		return nil, fmt.Errorf("extractor: bind queries tool: %w", err)
	}

	msg, err := bound.Generate(ctx, queryMessages(req, types))
	if err != nil {
		return nil, fmt.Errorf("extractor: query extraction call: %w", err)
	}
	if len(msg.ToolCalls) == 0 {
		return nil, fmt.Errorf("extractor: model returned no queries")
	}

	var args queryArgs
	if err := json.Unmarshal([]byte(msg.ToolCalls[0].Function.Arguments), &args); err != nil {
		return nil, fmt.Errorf("extractor: parse queries: %w", err)
	}
	if len(args.Queries) != len(types) {
		return nil, fmt.Errorf("extractor: expected %d queries, got %d", len(types), len(args.Queries))
	}
	return args.Queries, nil
}

func (e *Extractor) publish(conversationTitle string, ext Extraction) {
	if e.bus == nil {
		return
	}
	names := make([]string, len(ext.Intents))
	for i, in := range ext.Intents {
		names[i] = in.Type
	}
	e.bus.Publish(events.NewTypedEventForConversation(events.SourceExtractor, events.IntentExtractedPayload{
		Types:       names,
		Explanation: ext.Explanation,
		Confidence:  ext.Confidence,
	}, conversationTitle))
}

func classifyTool(vocab *intents.Vocabulary) *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: "classify_intents",
		Desc: "Report the ordered list of intent types the user's message asks for.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"intents": {
				Type: schema.Array,
				Desc: "Ordered intent types, one per requested action. Empty if the message asks for nothing actionable.",
				ElemInfo: &schema.ParameterInfo{
					Type: schema.String,
					Enum: vocab.Names(),
				},
				Required: true,
			},
			"explanation": {
				Type:     schema.String,
				Desc:     "One sentence explaining the classification.",
				Required: true,
			},
			"confidence": {
				Type:     schema.Number,
				Desc:     "Classification confidence between 0 and 1.",
				Required: true,
			},
		}),
	}
}

func queriesTool(n int) *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: "extract_queries",
		Desc: fmt.Sprintf("Provide exactly %d focused sub-queries, one per intent type, in the given order.", n),
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"queries": {
				Type:     schema.Array,
				Desc:     "One query per intent type, same order as the types.",
				ElemInfo: &schema.ParameterInfo{Type: schema.String},
				Required: true,
			},
		}),
	}
}

func classifyMessages(req Request, vocab *intents.Vocabulary) []*schema.Message {
	var sb strings.Builder
	sb.WriteString("You classify a user's request into ordered intent types for a markdown note assistant.\n")
	sb.WriteString("Valid types: ")
	sb.WriteString(strings.Join(vocab.Names(), ", "))
	sb.WriteString("\nA type may carry the suffix _from_artifact when the action targets the result of a previous operation instead of a fresh query.\n")
	sb.WriteString("Call classify_intents exactly once. Keep the user's wording; do not correct typos.")
	system := sb.String()

	return []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(userContext(req) + "Message: " + req.Utterance),
	}
}

func queryMessages(req Request, types []string) []*schema.Message {
	system := "You split a user's request into one focused sub-query per intent type.\n" +
		"Call extract_queries exactly once, with the queries in the same order as the types.\n" +
		"Types: " + strings.Join(types, ", ")

	return []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(userContext(req) + "Message: " + req.Utterance),
	}
}

func userContext(req Request) string {
	var sb strings.Builder
	if req.Lang != "" {
		fmt.Fprintf(&sb, "Language: %s\n", req.Lang)
	}
	if len(req.History) > 0 {
		sb.WriteString("Recent conversation:\n")
		for _, h := range req.History {
			sb.WriteString("  " + h + "\n")
		}
	}
	if len(req.Artifacts) > 0 {
		sb.WriteString("Available artifacts:\n")
		for _, a := range req.Artifacts {
			sb.WriteString("  " + a + "\n")
		}
	}
	return sb.String()
}
