package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"raggate/internal/domain/entity"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const historySchema = `
CREATE TABLE IF NOT EXISTS conversations (
	id         TEXT PRIMARY KEY,
	user       TEXT NOT NULL,
	title      TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	role            TEXT NOT NULL,
	content         TEXT NOT NULL,
	tool_call_id    TEXT NOT NULL DEFAULT '',
	tool_calls      TEXT NOT NULL DEFAULT '',
	created_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user, updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, id);
`

// SQLiteHistory persists finished conversation turns. Pure-Go driver,
// WAL mode so history writes never block concurrent reads.
type SQLiteHistory struct {
	db *sql.DB
}

func NewSQLiteHistory(path string) (*SQLiteHistory, error) {
	dsn := path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(ON)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if _, err := db.Exec(historySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: apply schema: %w", err)
	}
	return &SQLiteHistory{db: db}, nil
}

func (s *SQLiteHistory) Close() error { return s.db.Close() }

// Append stores messages under conversationID, creating the
// conversation row on first use. An empty conversationID starts a new
// conversation titled after the first user message.
func (s *SQLiteHistory) Append(ctx context.Context, conversationID, user string, messages []entity.Message) error {
	if len(messages) == 0 {
		return nil
	}
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	now := time.Now().Unix()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: begin: %w", err)
	}
	defer tx.Rollback()

	title := conversationTitle(messages)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (id, user, title, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at`,
		conversationID, user, title, now, now)
	if err != nil {
		return fmt.Errorf("history: upsert conversation: %w", err)
	}

	for _, msg := range messages {
		var toolCalls string
		if len(msg.ToolCalls) > 0 {
			data, err := json.Marshal(msg.ToolCalls)
			if err != nil {
				return fmt.Errorf("history: marshal tool calls: %w", err)
			}
			toolCalls = string(data)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO messages (conversation_id, role, content, tool_call_id, tool_calls, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			conversationID, msg.Role, msg.Content, msg.ToolCallID, toolCalls, now)
		if err != nil {
			return fmt.Errorf("history: insert message: %w", err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteHistory) List(ctx context.Context, user string, limit, offset int) ([]entity.ConversationSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.user, c.title, c.created_at, c.updated_at,
		       (SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id)
		FROM conversations c
		WHERE c.user = ?
		ORDER BY c.updated_at DESC
		LIMIT ? OFFSET ?`, user, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	defer rows.Close()

	var out []entity.ConversationSummary
	for rows.Next() {
		var c entity.ConversationSummary
		var created, updated int64
		if err := rows.Scan(&c.ID, &c.User, &c.Title, &created, &updated, &c.MessageCount); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		c.CreatedAt = time.Unix(created, 0)
		c.UpdatedAt = time.Unix(updated, 0)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteHistory) Messages(ctx context.Context, conversationID string) ([]entity.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, tool_call_id, tool_calls
		FROM messages
		WHERE conversation_id = ?
		ORDER BY id`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("history: messages: %w", err)
	}
	defer rows.Close()

	var out []entity.Message
	for rows.Next() {
		var msg entity.Message
		var toolCalls string
		if err := rows.Scan(&msg.Role, &msg.Content, &msg.ToolCallID, &toolCalls); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		if toolCalls != "" {
			if err := json.Unmarshal([]byte(toolCalls), &msg.ToolCalls); err != nil {
				return nil, fmt.Errorf("history: unmarshal tool calls: %w", err)
			}
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

func (s *SQLiteHistory) Delete(ctx context.Context, conversationID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, conversationID)
	if err != nil {
		return fmt.Errorf("history: delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return entity.ErrResourceNotFound
	}
	return nil
}

func conversationTitle(messages []entity.Message) string {
	for _, msg := range messages {
		if msg.Role == entity.RoleUser && msg.Content != "" {
			cut := 80
			if len(msg.Content) <= cut {
				return msg.Content
			}
			for cut > 0 && !utf8.RuneStart(msg.Content[cut]) {
				cut--
			}
			return msg.Content[:cut]
		}
	}
	return "untitled"
}
