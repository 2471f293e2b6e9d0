// Package intents defines the typed unit of work extracted from user text
// and the closed vocabulary of command names.
package intents

import (
	"net/url"
	"sort"
	"strings"
)

// FromArtifactSuffix marks an intent that sources its input from the most
// recent matching artifact instead of a fresh query.
const FromArtifactSuffix = "_from_artifact"

// Built-in command names. The vocabulary is closed: the extractor rejects
// any model output containing a type outside this set (plus user-defined
// command names registered at runtime).
const (
	TypeSearch   = "search"
	TypeCreate   = "create"
	TypeDelete   = "delete"
	TypeCopy     = "copy"
	TypeUpdate   = "update"
	TypeGenerate = "generate"
	TypeRead     = "read"
	TypeClose    = "close"
	TypeConfirm  = "confirm"
	TypeImage    = "image"
	TypeAudio    = "audio"
	TypeRevert   = "revert"
	TypeTodo     = "todo"
	TypeVault    = "vault"
)

// BuiltinTypes lists every built-in command name.
var BuiltinTypes = []string{
	TypeSearch, TypeCreate, TypeDelete, TypeCopy, TypeUpdate, TypeGenerate,
	TypeRead, TypeClose, TypeConfirm, TypeImage, TypeAudio, TypeRevert,
	TypeTodo, TypeVault,
}

// PromptEdit is an extra system prompt attached to a single intent.
type PromptEdit struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Intent is one typed, parameterized unit of work. Immutable once extracted;
// a conversation holds an ordered list consumed strictly front-to-back.
type Intent struct {
	Type          string       `json:"type"`
	Query         string       `json:"query"`
	Model         string       `json:"model,omitempty"`
	SystemPrompts []PromptEdit `json:"system_prompts,omitempty"`
}

// Parsed is an intent type decomposed into its base name and modifiers.
type Parsed struct {
	Base         string
	ToolOptions  []string
	FromArtifact bool
}

// ParseType decomposes a raw intent type like "vault?tools=list,rename" or
// "delete_from_artifact" into its base name, tool-selection hint, and
// artifact marker.
func ParseType(raw string) Parsed {
	p := Parsed{Base: raw}

	if i := strings.Index(p.Base, "?"); i >= 0 {
		opts := p.Base[i+1:]
		p.Base = p.Base[:i]
		if values, err := url.ParseQuery(opts); err == nil {
			if tools := values.Get("tools"); tools != "" {
				for _, t := range strings.Split(tools, ",") {
					if t = strings.TrimSpace(t); t != "" {
						p.ToolOptions = append(p.ToolOptions, t)
					}
				}
			}
		}
	}

	if strings.HasSuffix(p.Base, FromArtifactSuffix) {
		p.FromArtifact = true
		p.Base = strings.TrimSuffix(p.Base, FromArtifactSuffix)
	}

	return p
}

// Vocabulary validates intent types against the closed command set.
type Vocabulary struct {
	names map[string]bool
}

// NewVocabulary builds a vocabulary from the built-in types plus any extra
// (user-defined) command names.
func NewVocabulary(extra ...string) *Vocabulary {
	names := make(map[string]bool, len(BuiltinTypes)+len(extra))
	for _, n := range BuiltinTypes {
		names[n] = true
	}
	for _, n := range extra {
		names[n] = true
	}
	return &Vocabulary{names: names}
}

// IsValid reports whether the raw type (after stripping modifiers) is a
// known command name.
func (v *Vocabulary) IsValid(raw string) bool {
	return v.names[ParseType(raw).Base]
}

// Names returns the built-in command names followed by sorted extras.
func (v *Vocabulary) Names() []string {
	out := make([]string, 0, len(v.names))
	out = append(out, BuiltinTypes...)

	var extras []string
	builtin := make(map[string]bool, len(BuiltinTypes))
	for _, n := range BuiltinTypes {
		builtin[n] = true
	}
	for n := range v.names {
		if !builtin[n] {
			extras = append(extras, n)
		}
	}
	sort.Strings(extras)
	return append(out, extras...)
}
