package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sunggeunkim/haya-sub004/pkg/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sessions.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreAppendAndGetHistory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.AppendMessage(ctx, "sess-1", models.Message{Role: models.RoleUser, Content: "hello", TimestampMs: 1}); err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}
	if err := s.AppendMessage(ctx, "sess-1", models.Message{Role: models.RoleAssistant, Content: "hi there", TimestampMs: 2}); err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}

	history, err := s.GetHistory(ctx, "sess-1", 0)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("len(history) = %d, want 2", len(history))
	}
	if history[0].Content != "hello" || history[1].Content != "hi there" {
		t.Errorf("history = %+v, want hello then hi there in order", history)
	}
}

func TestStoreGetHistoryUnknownSession(t *testing.T) {
	s := openTestStore(t)
	history, err := s.GetHistory(context.Background(), "nope", 0)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(history) != 0 {
		t.Errorf("history = %v, want empty for unknown session", history)
	}
}

func TestStoreGetHistoryRespectsLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := s.AppendMessage(ctx, "sess-1", models.Message{Role: models.RoleUser, Content: string(rune('a' + i)), TimestampMs: int64(i)}); err != nil {
			t.Fatalf("AppendMessage() error = %v", err)
		}
	}

	history, err := s.GetHistory(ctx, "sess-1", 2)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("len(history) = %d, want 2", len(history))
	}
	if history[0].Content != "d" || history[1].Content != "e" {
		t.Errorf("history = %+v, want last two messages (d, e) in order", history)
	}
}

func TestStoreMessageCount(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	count, err := s.MessageCount(ctx, "sess-1")
	if err != nil {
		t.Fatalf("MessageCount() error = %v", err)
	}
	if count != 0 {
		t.Errorf("MessageCount() = %d, want 0 for empty session", count)
	}

	_ = s.AppendMessage(ctx, "sess-1", models.Message{Role: models.RoleUser, Content: "x"})
	_ = s.AppendMessage(ctx, "sess-1", models.Message{Role: models.RoleAssistant, Content: "y"})

	count, err = s.MessageCount(ctx, "sess-1")
	if err != nil {
		t.Fatalf("MessageCount() error = %v", err)
	}
	if count != 2 {
		t.Errorf("MessageCount() = %d, want 2", count)
	}
}

func TestStorePersistsToolCalls(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	msg := models.Message{
		Role:    models.RoleAssistant,
		Content: "",
		ToolCalls: []models.ToolCall{
			{ID: "call-1", Name: "web_search", Arguments: `{"query":"go"}`},
		},
	}
	if err := s.AppendMessage(ctx, "sess-tools", msg); err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}

	history, err := s.GetHistory(ctx, "sess-tools", 0)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(history) != 1 || len(history[0].ToolCalls) != 1 {
		t.Fatalf("history = %+v, want one message with one tool call", history)
	}
	if history[0].ToolCalls[0].ID != "call-1" || history[0].ToolCalls[0].Name != "web_search" {
		t.Errorf("tool call = %+v, want call-1/web_search", history[0].ToolCalls[0])
	}
}

func TestStoreIndependentSessions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	_ = s.AppendMessage(ctx, "a", models.Message{Role: models.RoleUser, Content: "a-msg"})
	_ = s.AppendMessage(ctx, "b", models.Message{Role: models.RoleUser, Content: "b-msg"})

	ha, _ := s.GetHistory(ctx, "a", 0)
	hb, _ := s.GetHistory(ctx, "b", 0)
	if len(ha) != 1 || ha[0].Content != "a-msg" {
		t.Errorf("history a = %+v, want one a-msg", ha)
	}
	if len(hb) != 1 || hb[0].Content != "b-msg" {
		t.Errorf("history b = %+v, want one b-msg", hb)
	}
}
