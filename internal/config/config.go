// Package config holds the Curator configuration model and loader.
package config

import "time"

// Config is the root configuration for Curator.
type Config struct {
	Gateway   GatewayConfig   `json:"gateway"`
	Vault     VaultConfig     `json:"vault"`
	Models    ModelsConfig    `json:"models"`
	Embedding EmbeddingConfig `json:"embedding"`
	Extractor ExtractorConfig `json:"extractor"`
	Events    EventsConfig    `json:"events"`
	Sweeper   SweeperConfig   `json:"sweeper"`
}

// GatewayConfig holds the gateway server settings.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// VaultConfig locates the markdown vault and its derived state.
type VaultConfig struct {
	Path     string `json:"path"`
	TrashDir string `json:"trash_dir,omitempty"` // relative to Path, default ".trash"
	StateDir string `json:"state_dir,omitempty"` // relative to Path, default ".curator"
}

// ModelsConfig holds model provider configuration and the fallback chain.
type ModelsConfig struct {
	Default         string                    `json:"default"`
	FallbackChain   []string                  `json:"fallback_chain,omitempty"`
	FallbackEnabled bool                      `json:"fallback_enabled"`
	Providers       map[string]ProviderConfig `json:"providers"`
}

// ProviderConfig configures a single LLM provider.
type ProviderConfig struct {
	Driver    string         `json:"driver"` // "anthropic", "openai", "ollama", "gemini"
	Model     string         `json:"model"`
	BaseURL   string         `json:"base_url,omitempty"`
	Auth      AuthConfig     `json:"auth"`
	MaxTokens int            `json:"max_tokens,omitempty"`
	Timeout   Duration       `json:"timeout,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
}

// AuthConfig configures API key resolution.
type AuthConfig struct {
	APIKey string `json:"api_key,omitempty"` // Direct API key or ${{ .Env.VAR }} template
	Token  string `json:"token,omitempty"`   // OAuth/Bearer token
}

// EmbeddingConfig configures the classifier-cache embedder.
type EmbeddingConfig struct {
	Driver  string     `json:"driver"` // "openai", "ollama"
	Model   string     `json:"model"`
	BaseURL string     `json:"base_url,omitempty"`
	Auth    AuthConfig `json:"auth"`
	Dims    int        `json:"dims,omitempty"`
}

// ExtractorConfig tunes the intent extractor.
type ExtractorConfig struct {
	ConfidenceThreshold float64 `json:"confidence_threshold"` // results at or below halt for review
	ClassifierThreshold float64 `json:"classifier_threshold"` // min similarity for a cache hit
	ClassifierDisabled  bool    `json:"classifier_disabled,omitempty"`
}

// EventsConfig holds event bus settings.
type EventsConfig struct {
	BufferSize int `json:"buffer_size"`
}

// SweeperConfig controls expiry of orphaned pending confirmations.
type SweeperConfig struct {
	Cron   string   `json:"cron,omitempty"`    // default "*/5 * * * *"
	MaxAge Duration `json:"max_age,omitempty"` // default 30m
}

// Duration wraps time.Duration for JSON unmarshaling.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}
