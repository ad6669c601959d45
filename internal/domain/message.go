package domain

import "encoding/json"

// Role constants for message roles.
const (
	RoleSystem    = "system"
	RoleDeveloper = "developer"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one input message of a response request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TextFormat requests structured output constrained by a JSON schema.
type TextFormat struct {
	Name   string          `json:"name"`
	Schema json.RawMessage `json:"schema"`
	Strict bool            `json:"strict,omitempty"`
}

// ResponseRequest is sent to a streaming responses provider.
type ResponseRequest struct {
	Model           string            `json:"model"`
	Instructions    string            `json:"instructions,omitempty"`
	Messages        []Message         `json:"messages"`
	MaxOutputTokens int               `json:"max_output_tokens,omitempty"`
	Temperature     float64           `json:"temperature,omitempty"`
	TextFormat      *TextFormat       `json:"text_format,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}
