package models

// Message represents one conversation turn sent to the completion API.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat roles recognized by the completion API.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Valid ranges for user-adjustable settings.
const (
	TemperatureMin = 0.0
	TemperatureMax = 2.0
	MaxTokensMin   = 1
	MaxTokensMax   = 4000
	MemoryMin      = 1
	MemoryMax      = 10
)

// UserSettings represents user-specific settings, persisted per user ID.
// Memory is counted in exchanges (one user turn plus one assistant reply).
type UserSettings struct {
	UserID       string  `json:"user_id"`
	Model        string  `json:"model"`
	Temperature  float64 `json:"temperature"`
	MaxTokens    int     `json:"max_tokens"`
	Memory       int     `json:"memory"`
	SystemPrompt string  `json:"system_prompt"`
}

// RequestParameters is the effective configuration for a single completion
// request, resolved from inline directives, user settings and defaults.
// It is computed fresh per request and never stored.
type RequestParameters struct {
	Model        string
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
}

// ModelInfo describes one model reported by the completion API.
type ModelInfo struct {
	ID   string `json:"id"`
	Tier string `json:"tier,omitempty"`
}
