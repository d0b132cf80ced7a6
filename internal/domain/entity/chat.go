package entity

import "time"

// ChatRequest is the inbound chat completion request.
type ChatRequest struct {
	Model          string    `json:"model"`
	Messages       []Message `json:"messages"`
	User           string    `json:"user"`
	Stream         bool      `json:"stream"`
	Temperature    float32   `json:"temperature"`
	ConversationID string    `json:"conversation_id,omitempty"`
}

// ConversationSummary is a lightweight history listing entry.
type ConversationSummary struct {
	ID           string    `json:"id"`
	User         string    `json:"user"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
