package extractor

import (
	"regexp"
	"strings"

	"github.com/curator-ai/curator/internal/intents"
)

var (
	quotedPattern = regexp.MustCompile(`"([^"]+)"|“([^”]+)”`)
	tagPattern    = regexp.MustCompile(`(^|\s)#([\p{L}\p{N}_/-]+)`)
)

// matchPatterns extracts exact-match search intents from quoted substrings
// and #tag tokens. These carry unambiguous structure, so they bypass both
// classification stages entirely.
func matchPatterns(utterance string) []intents.Intent {
	var out []intents.Intent

	for _, m := range quotedPattern.FindAllStringSubmatch(utterance, -1) {
		text := m[1]
		if text == "" {
			text = m[2]
		}
		if text = strings.TrimSpace(text); text != "" {
			out = append(out, intents.Intent{Type: intents.TypeSearch, Query: text})
		}
	}

	for _, m := range tagPattern.FindAllStringSubmatch(utterance, -1) {
		out = append(out, intents.Intent{Type: intents.TypeSearch, Query: "#" + m[2]})
	}

	return out
}
