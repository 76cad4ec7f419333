package models

import "strings"

// ChatRequest is the body of a chat request.
type ChatRequest struct {
	Query string `json:"query"`
}

// Validate trims the query and rejects empty questions.
func (r *ChatRequest) Validate() error {
	r.Query = strings.TrimSpace(r.Query)
	if r.Query == "" {
		return NewError(KindInvalidArgument, "chat", "query cannot be empty", nil)
	}
	return nil
}

// ChatResponse is the body of a chat response. Exactly one of Response and Error is set.
type ChatResponse struct {
	Response      string   `json:"response,omitempty"`
	Sources       []string `json:"sources,omitempty"`
	DroppedChunks int      `json:"dropped_chunks,omitempty"`
	Error         string   `json:"error,omitempty"`
}
