package sessions

import (
	"context"
	"sync"
	"testing"

	"github.com/sunggeunkim/haya-sub004/pkg/models"
)

func TestMemoryStoreAppendAndGetHistory(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if err := store.AppendMessage(ctx, "s1", models.Message{Role: models.RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}
	if err := store.AppendMessage(ctx, "s1", models.Message{Role: models.RoleAssistant, Content: "hello"}); err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}

	history, err := store.GetHistory(ctx, "s1", 0)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("len(history) = %d, want 2", len(history))
	}
	if history[0].Content != "hi" || history[1].Content != "hello" {
		t.Errorf("history = %+v, want order preserved", history)
	}
}

func TestMemoryStoreGetHistoryUnknownSession(t *testing.T) {
	store := NewMemoryStore()
	history, err := store.GetHistory(context.Background(), "missing", 0)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if history != nil {
		t.Errorf("history = %v, want nil", history)
	}
}

func TestMemoryStoreGetHistoryLimit(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	for i := 0; i < 5; i++ {
		_ = store.AppendMessage(ctx, "s1", models.Message{Content: string(rune('a' + i))})
	}
	history, err := store.GetHistory(ctx, "s1", 2)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("len(history) = %d, want 2", len(history))
	}
	if history[0].Content != "d" || history[1].Content != "e" {
		t.Errorf("history = %+v, want last two messages", history)
	}
}

func TestMemoryStoreMessageCount(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if count, err := store.MessageCount(ctx, "missing"); err != nil || count != 0 {
		t.Errorf("MessageCount(missing) = %d, %v; want 0, nil", count, err)
	}
	_ = store.AppendMessage(ctx, "s1", models.Message{Content: "x"})
	_ = store.AppendMessage(ctx, "s1", models.Message{Content: "y"})
	if count, err := store.MessageCount(ctx, "s1"); err != nil || count != 2 {
		t.Errorf("MessageCount(s1) = %d, %v; want 2, nil", count, err)
	}
}

func TestMemoryStoreConcurrentAppendsSameSession(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	const n = 100

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = store.AppendMessage(ctx, "s1", models.Message{Content: "m"})
		}(i)
	}
	wg.Wait()

	count, err := store.MessageCount(ctx, "s1")
	if err != nil {
		t.Fatalf("MessageCount() error = %v", err)
	}
	if count != n {
		t.Errorf("MessageCount() = %d, want %d", count, n)
	}
}
