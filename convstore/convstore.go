// CLAUDE:SUMMARY SQLite store for the dashboard's conversation list: conversations, messages, channel analytics.
// Package convstore persists the conversations the dashboard lists and
// the messages inside them. Message text is sanitized on the way in —
// inbound chat content is attacker-controlled and ends up rendered in an
// operator's browser.
package convstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/chatdesk/console/idgen"
)

// Schema for conversations and messages. Idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	channel       TEXT NOT NULL,
	last_message  TEXT NOT NULL DEFAULT '',
	updated_at    INTEGER NOT NULL,
	UNIQUE(user_id, channel)
);

CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id),
	role            TEXT NOT NULL,
	content         TEXT NOT NULL,
	created_at      INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation
	ON messages(conversation_id, created_at);
`

// Conversation is one row in the dashboard's conversation list.
type Conversation struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Channel     string    `json:"channel"` // "whatsapp", "facebook", "instagram", ...
	LastMessage string    `json:"last_message"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Message is one message inside a conversation.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"` // "user" or "agent"
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// Analytics summarizes stored traffic for the dashboard's counters.
type Analytics struct {
	Conversations int            `json:"conversations"`
	Messages      int            `json:"messages"`
	PerChannel    map[string]int `json:"per_channel"`
}

// Store reads and writes conversations. Safe for concurrent use.
type Store struct {
	db        *sql.DB
	policy    *bluemonday.Policy
	newConvID idgen.Generator
	newMsgID  idgen.Generator
	logger    *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithIDGenerator sets the base generator for conversation and message
// IDs (prefixes are applied on top).
func WithIDGenerator(gen idgen.Generator) Option {
	return func(s *Store) {
		s.newConvID = idgen.Prefixed("conv_", gen)
		s.newMsgID = idgen.Prefixed("msg_", gen)
	}
}

// New creates a Store over an opened database.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:        db,
		policy:    bluemonday.StrictPolicy(),
		newConvID: idgen.Prefixed("conv_", idgen.Default),
		newMsgID:  idgen.Prefixed("msg_", idgen.Default),
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ApplySchema creates the conversation tables if missing.
func ApplySchema(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("convstore: apply schema: %w", err)
	}
	return nil
}

// Append records one message, creating the (user, channel) conversation
// on first contact and bumping its preview. The text is stripped of any
// HTML before it touches the database.
func (s *Store) Append(ctx context.Context, userID, channel, role, text string) (*Message, error) {
	clean := strings.TrimSpace(s.policy.Sanitize(text))
	now := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("convstore: begin: %w", err)
	}
	defer tx.Rollback()

	var convID string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM conversations WHERE user_id = ? AND channel = ?`,
		userID, channel).Scan(&convID)
	switch {
	case err == sql.ErrNoRows:
		convID = s.newConvID()
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversations (id, user_id, channel, last_message, updated_at)
			VALUES (?,?,?,?,?)`,
			convID, userID, channel, clean, now.Unix()); err != nil {
			return nil, fmt.Errorf("convstore: create conversation: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("convstore: lookup conversation: %w", err)
	default:
		if _, err := tx.ExecContext(ctx, `
			UPDATE conversations SET last_message = ?, updated_at = ? WHERE id = ?`,
			clean, now.Unix(), convID); err != nil {
			return nil, fmt.Errorf("convstore: update conversation: %w", err)
		}
	}

	msg := &Message{
		ID:             s.newMsgID(),
		ConversationID: convID,
		Role:           role,
		Content:        clean,
		CreatedAt:      now,
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, created_at)
		VALUES (?,?,?,?,?)`,
		msg.ID, msg.ConversationID, msg.Role, msg.Content, now.Unix()); err != nil {
		return nil, fmt.Errorf("convstore: insert message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("convstore: commit: %w", err)
	}
	return msg, nil
}

// List returns conversations newest-activity first, at most limit rows.
func (s *Store) List(ctx context.Context, limit int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, channel, last_message, updated_at
		FROM conversations ORDER BY updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("convstore: list: %w", err)
	}
	defer rows.Close()

	convs := []Conversation{}
	for rows.Next() {
		var c Conversation
		var updated int64
		if err := rows.Scan(&c.ID, &c.UserID, &c.Channel, &c.LastMessage, &updated); err != nil {
			return nil, fmt.Errorf("convstore: scan conversation: %w", err)
		}
		c.UpdatedAt = time.Unix(updated, 0).UTC()
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// Messages returns a conversation's messages oldest first.
func (s *Store) Messages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, created_at
		FROM messages WHERE conversation_id = ? ORDER BY created_at, id`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("convstore: messages: %w", err)
	}
	defer rows.Close()

	msgs := []Message{}
	for rows.Next() {
		var m Message
		var created int64
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &created); err != nil {
			return nil, fmt.Errorf("convstore: scan message: %w", err)
		}
		m.CreatedAt = time.Unix(created, 0).UTC()
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// Analytics counts stored conversations and messages, split per channel.
func (s *Store) Analytics(ctx context.Context) (*Analytics, error) {
	a := &Analytics{PerChannel: map[string]int{}}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conversations`).Scan(&a.Conversations); err != nil {
		return nil, fmt.Errorf("convstore: count conversations: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages`).Scan(&a.Messages); err != nil {
		return nil, fmt.Errorf("convstore: count messages: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT channel, COUNT(*) FROM conversations GROUP BY channel`)
	if err != nil {
		return nil, fmt.Errorf("convstore: per channel: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var channel string
		var n int
		if err := rows.Scan(&channel, &n); err != nil {
			return nil, fmt.Errorf("convstore: scan channel count: %w", err)
		}
		a.PerChannel[channel] = n
	}
	return a, rows.Err()
}
