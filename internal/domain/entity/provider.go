package entity

import "time"

// ProviderConfig is a static entry in the gateway's priority list,
// loaded once from providers.yaml.
type ProviderConfig struct {
	Name      string   `yaml:"name"`
	Type      string   `yaml:"type"` // "openai", "anthropic", "gemini"
	BaseURL   string   `yaml:"base_url"`
	APIKeyEnv string   `yaml:"api_key_env"`
	Priority  int      `yaml:"priority"`
	TimeoutMS int      `yaml:"timeout_ms"`
	Fallback  bool     `yaml:"fallback"` // eligible to serve as a fallback target
	Models    []string `yaml:"models"`
	Prefix    string   `yaml:"prefix"` // model name prefix match, e.g. "gpt-"
}

// Timeout returns the per-call timeout for this provider.
func (p ProviderConfig) Timeout() time.Duration {
	if p.TimeoutMS <= 0 {
		return 30 * time.Second
	}
	return time.Duration(p.TimeoutMS) * time.Millisecond
}

// Serves reports whether this provider handles the given model name,
// either by exact listing or by prefix.
func (p ProviderConfig) Serves(model string) bool {
	for _, m := range p.Models {
		if m == model {
			return true
		}
	}
	return p.Prefix != "" && len(model) >= len(p.Prefix) && model[:len(p.Prefix)] == p.Prefix
}

// Attempt outcomes recorded for provider routing.
const (
	OutcomeSuccess     = "success"
	OutcomeTimeout     = "timeout"
	OutcomeRateLimited = "rate_limited"
	OutcomeError       = "error"
)

// RoutingAttempt records one provider tried within a single logical
// call. Observability only; never part of conversation state.
type RoutingAttempt struct {
	Provider string        `json:"provider"`
	Outcome  string        `json:"outcome"`
	Tokens   int           `json:"tokens"`
	Elapsed  time.Duration `json:"elapsed_ms"`
}

// Usage is the token accounting of the winning attempt.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is a normalized provider response: either final text or a
// set of tool calls the model wants executed (or both).
type Completion struct {
	Content   string           `json:"content"`
	ToolCalls []ToolCall       `json:"tool_calls,omitempty"`
	Model     string           `json:"model"`
	Provider  string           `json:"provider"`
	Usage     Usage            `json:"usage"`
	Cached    bool             `json:"cached"`
	Attempts  []RoutingAttempt `json:"-"`
}

// ProviderRequest is the normalized request shape handed to a provider
// adapter. Vendor-specific fields never cross this boundary.
type ProviderRequest struct {
	Model       string
	Messages    []Message
	Tools       []ToolDefinition
	Temperature float32
}
