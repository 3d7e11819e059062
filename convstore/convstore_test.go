package convstore

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	db.Exec("PRAGMA foreign_keys=ON")
	if err := ApplySchema(db); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestAppendCreatesConversation(t *testing.T) {
	// WHAT: First message from a (user, channel) pair creates the
	// conversation; a second message reuses it.
	// WHY: The dashboard groups by contact — duplicate conversations for
	// the same contact fragment the list.
	ctx := context.Background()
	s := New(openTestDB(t))

	m1, err := s.Append(ctx, "u1", "whatsapp", "user", "hello")
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	m2, err := s.Append(ctx, "u1", "whatsapp", "agent", "hi there")
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if m1.ConversationID != m2.ConversationID {
		t.Errorf("conversation split: %s vs %s", m1.ConversationID, m2.ConversationID)
	}

	convs, err := s.List(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(convs) != 1 {
		t.Fatalf("conversations = %d, want 1", len(convs))
	}
	if convs[0].LastMessage != "hi there" {
		t.Errorf("last message = %q, want latest text", convs[0].LastMessage)
	}
}

func TestAppendSanitizesHTML(t *testing.T) {
	// WHAT: Script tags and markup are stripped before storage.
	// WHY: Message content is attacker-controlled and rendered in the
	// operator's browser.
	ctx := context.Background()
	s := New(openTestDB(t))

	m, err := s.Append(ctx, "u1", "facebook", "user",
		`<script>alert(1)</script>order <b>now</b>`)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if strings.Contains(m.Content, "<") {
		t.Errorf("content = %q, markup survived", m.Content)
	}
	if !strings.Contains(m.Content, "order") {
		t.Errorf("content = %q, text lost", m.Content)
	}

	msgs, err := s.Messages(ctx, m.ConversationID)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(msgs) != 1 || strings.Contains(msgs[0].Content, "script") {
		t.Errorf("stored = %+v, want sanitized single message", msgs)
	}
}

func TestMessagesOrderedOldestFirst(t *testing.T) {
	// WHAT: Messages come back in insertion order.
	// WHY: The thread view reads top to bottom.
	ctx := context.Background()
	s := New(openTestDB(t))

	s.Append(ctx, "u1", "telegram", "user", "one")
	s.Append(ctx, "u1", "telegram", "agent", "two")
	m, _ := s.Append(ctx, "u1", "telegram", "user", "three")

	msgs, err := s.Messages(ctx, m.ConversationID)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("messages = %d, want 3", len(msgs))
	}
	for i, want := range []string{"one", "two", "three"} {
		if msgs[i].Content != want {
			t.Errorf("msgs[%d] = %q, want %q", i, msgs[i].Content, want)
		}
	}
}

func TestListSeparatesChannels(t *testing.T) {
	// WHAT: Same user on two channels gets two conversations.
	// WHY: Channel context matters when replying.
	ctx := context.Background()
	s := New(openTestDB(t))

	s.Append(ctx, "u1", "whatsapp", "user", "wa")
	s.Append(ctx, "u1", "instagram", "user", "ig")

	convs, err := s.List(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(convs) != 2 {
		t.Errorf("conversations = %d, want 2", len(convs))
	}
}

func TestAnalytics(t *testing.T) {
	// WHAT: Analytics counts conversations, messages, and per-channel
	// splits.
	// WHY: These feed the dashboard's headline counters.
	ctx := context.Background()
	s := New(openTestDB(t))

	s.Append(ctx, "u1", "whatsapp", "user", "a")
	s.Append(ctx, "u1", "whatsapp", "agent", "b")
	s.Append(ctx, "u2", "facebook", "user", "c")

	a, err := s.Analytics(ctx)
	if err != nil {
		t.Fatalf("analytics: %v", err)
	}
	if a.Conversations != 2 {
		t.Errorf("conversations = %d, want 2", a.Conversations)
	}
	if a.Messages != 3 {
		t.Errorf("messages = %d, want 3", a.Messages)
	}
	if a.PerChannel["whatsapp"] != 1 || a.PerChannel["facebook"] != 1 {
		t.Errorf("per channel = %v", a.PerChannel)
	}
}

func TestEmptyListIsNotNil(t *testing.T) {
	// WHAT: An empty store lists zero conversations, not nil.
	// WHY: The JSON encoder must emit [] rather than null for the UI.
	s := New(openTestDB(t))
	convs, err := s.List(context.Background(), 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if convs == nil {
		t.Error("list returned nil slice")
	}
}
