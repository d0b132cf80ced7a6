package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"raggate/internal/domain/entity"
)

func openHistory(t *testing.T) *SQLiteHistory {
	t.Helper()
	h, err := NewSQLiteHistory(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("NewSQLiteHistory: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func TestHistoryAppendAndRead(t *testing.T) {
	h := openHistory(t)
	ctx := context.Background()

	turn := []entity.Message{
		{Role: entity.RoleUser, Content: "how many vacation days do I have?"},
		{Role: entity.RoleAssistant, Content: "You have 25 days."},
	}
	if err := h.Append(ctx, "conv-1", "alice", turn); err != nil {
		t.Fatalf("Append: %v", err)
	}

	conversations, err := h.List(ctx, "alice", 10, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(conversations) != 1 {
		t.Fatalf("got %d conversations, want 1", len(conversations))
	}
	c := conversations[0]
	if c.ID != "conv-1" || c.MessageCount != 2 {
		t.Errorf("summary = %+v", c)
	}
	if c.Title != "how many vacation days do I have?" {
		t.Errorf("title = %q", c.Title)
	}

	messages, err := h.Messages(ctx, "conv-1")
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(messages))
	}
	if messages[0].Role != entity.RoleUser || messages[1].Content != "You have 25 days." {
		t.Errorf("messages = %+v", messages)
	}
}

func TestHistoryAppendGrowsConversation(t *testing.T) {
	h := openHistory(t)
	ctx := context.Background()

	first := []entity.Message{{Role: entity.RoleUser, Content: "first"}}
	second := []entity.Message{{Role: entity.RoleUser, Content: "second"}}
	if err := h.Append(ctx, "conv-1", "alice", first); err != nil {
		t.Fatalf("first Append: %v", err)
	}
	if err := h.Append(ctx, "conv-1", "alice", second); err != nil {
		t.Fatalf("second Append: %v", err)
	}

	messages, err := h.Messages(ctx, "conv-1")
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(messages))
	}

	conversations, _ := h.List(ctx, "alice", 10, 0)
	if len(conversations) != 1 {
		t.Errorf("appending to an existing conversation created %d rows", len(conversations))
	}
	// The first message still names the conversation.
	if conversations[0].Title != "first" {
		t.Errorf("title = %q, want first", conversations[0].Title)
	}
}

func TestHistoryTitleRuneBoundary(t *testing.T) {
	h := openHistory(t)
	ctx := context.Background()

	turn := []entity.Message{{Role: entity.RoleUser, Content: strings.Repeat("日本語", 40)}}
	if err := h.Append(ctx, "conv-1", "alice", turn); err != nil {
		t.Fatalf("Append: %v", err)
	}

	conversations, err := h.List(ctx, "alice", 10, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	title := conversations[0].Title
	if !utf8.ValidString(title) {
		t.Error("title truncation split a multi-byte character")
	}
	if len(title) > 80 {
		t.Errorf("title is %d bytes, want at most 80", len(title))
	}
}

func TestHistoryToolCallsRoundTrip(t *testing.T) {
	h := openHistory(t)
	ctx := context.Background()

	turn := []entity.Message{{
		Role:    entity.RoleAssistant,
		Content: "",
		ToolCalls: []entity.ToolCall{{
			ID:        "call_1",
			Name:      "search_internal_documents",
			Arguments: json.RawMessage(`{"query":"vacation"}`),
		}},
	}}
	if err := h.Append(ctx, "conv-1", "alice", turn); err != nil {
		t.Fatalf("Append: %v", err)
	}

	messages, err := h.Messages(ctx, "conv-1")
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(messages) != 1 || len(messages[0].ToolCalls) != 1 {
		t.Fatalf("messages = %+v", messages)
	}
	if messages[0].ToolCalls[0].ID != "call_1" {
		t.Errorf("tool call = %+v", messages[0].ToolCalls[0])
	}
}

func TestHistoryDelete(t *testing.T) {
	h := openHistory(t)
	ctx := context.Background()

	turn := []entity.Message{{Role: entity.RoleUser, Content: "hello"}}
	if err := h.Append(ctx, "conv-1", "alice", turn); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if err := h.Delete(ctx, "conv-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	// The cascade removes the messages too.
	messages, err := h.Messages(ctx, "conv-1")
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(messages) != 0 {
		t.Errorf("delete left %d messages behind", len(messages))
	}

	if err := h.Delete(ctx, "conv-1"); !errors.Is(err, entity.ErrResourceNotFound) {
		t.Errorf("second delete = %v, want ErrResourceNotFound", err)
	}
}

func TestHistoryListScopedToUser(t *testing.T) {
	h := openHistory(t)
	ctx := context.Background()

	if err := h.Append(ctx, "conv-a", "alice", []entity.Message{{Role: entity.RoleUser, Content: "a"}}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := h.Append(ctx, "conv-b", "bob", []entity.Message{{Role: entity.RoleUser, Content: "b"}}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	conversations, err := h.List(ctx, "alice", 10, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(conversations) != 1 || conversations[0].ID != "conv-a" {
		t.Errorf("conversations = %+v", conversations)
	}
}
