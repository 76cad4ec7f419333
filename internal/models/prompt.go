package models

import "time"

// Message roles understood by OpenAI-compatible chat APIs.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one role-tagged turn of a prompt.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Prompt is the assembled instruction for the generation model.
// DroppedChunks counts context chunks removed to fit the input limit.
type Prompt struct {
	Messages      []Message `json:"messages"`
	ContextChunks int       `json:"context_chunks"`
	DroppedChunks int       `json:"dropped_chunks"`
	Chars         int       `json:"chars"`
}

// Answer is the generated response text.
type Answer struct {
	Text          string        `json:"text"`
	Model         string        `json:"model,omitempty"`
	Sources       []string      `json:"sources,omitempty"`
	DroppedChunks int           `json:"dropped_chunks,omitempty"`
	Took          time.Duration `json:"took"`
}
