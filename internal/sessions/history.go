package sessions

import (
	"context"

	"github.com/sunggeunkim/haya-sub004/internal/tokencount"
	"github.com/sunggeunkim/haya-sub004/pkg/models"
)

const (
	defaultMaxHistoryMessages = 100
	reserveForResponse        = 4096
	recentMessageCount        = 10
)

// Summarizer synthesizes a short summary of a dropped message slice. It is
// called synchronously by the compactor with exactly the messages being
// dropped from the head of history.
type Summarizer interface {
	Summarize(ctx context.Context, messages []models.Message) (string, error)
}

// HistoryOptions configures one getHistory call.
type HistoryOptions struct {
	MaxHistoryMessages int // 0 means defaultMaxHistoryMessages
	MaxTokens          int // 0 disables token-budget compaction
	SystemPromptTokens int
	Summarizer         Summarizer
}

// Manager is the History Manager: it owns a Store and applies message-count
// and token-budget compaction to what getHistory returns.
type Manager struct {
	store Store
}

// NewManager wraps a Store with history-management behavior.
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// AddMessage appends msg to sessionID, creating the session on first write.
func (m *Manager) AddMessage(ctx context.Context, sessionID string, msg models.Message) error {
	return m.store.AppendMessage(ctx, sessionID, msg)
}

// AddMessages appends msgs in order.
func (m *Manager) AddMessages(ctx context.Context, sessionID string, msgs []models.Message) error {
	for _, msg := range msgs {
		if err := m.store.AppendMessage(ctx, sessionID, msg); err != nil {
			return err
		}
	}
	return nil
}

// GetMessageCount returns the session's message count, or 0 if it doesn't
// exist.
func (m *Manager) GetMessageCount(ctx context.Context, sessionID string) (int, error) {
	return m.store.MessageCount(ctx, sessionID)
}

// GetHistory returns the messages a caller should send to the model,
// applying message-count truncation and, if MaxTokens is set,
// token-budget compaction. The second return value reports whether
// token-budget compaction actually dropped any head-of-history messages
// this call, so a caller tracking a compaction cycle (e.g. the memory-flush
// trigger) knows when a new cycle has begun.
func (m *Manager) GetHistory(ctx context.Context, sessionID string, opts HistoryOptions) ([]models.Message, bool, error) {
	all, err := m.store.GetHistory(ctx, sessionID, 0)
	if err != nil {
		return nil, false, err
	}
	if len(all) == 0 {
		return nil, false, nil
	}

	maxMessages := opts.MaxHistoryMessages
	if maxMessages <= 0 {
		maxMessages = defaultMaxHistoryMessages
	}
	history := all
	if len(history) > maxMessages {
		history = history[len(history)-maxMessages:]
	}

	if opts.MaxTokens <= 0 {
		return history, false, nil
	}
	return compactToBudget(ctx, history, opts)
}

// compactToBudget implements the token-budget compaction contract: the
// last recentMessageCount messages are always kept; older messages are
// kept backward from there until the next one would exceed budget. Dropped
// head-of-history messages are optionally replaced by a single synthesized
// summary message. Tool-call/tool pairs are never split: an assistant
// message whose tool_calls are referenced by a tool message already kept
// is forced into the kept set regardless of budget, since dropping it
// would orphan that tool result. The bool return reports whether any
// head-of-history messages were actually dropped.
func compactToBudget(ctx context.Context, history []models.Message, opts HistoryOptions) ([]models.Message, bool, error) {
	budget := opts.MaxTokens - opts.SystemPromptTokens - reserveForResponse
	if budget <= 0 || len(history) <= recentMessageCount {
		return history, false, nil
	}

	// toolResultIdx maps a tool_call id to the index of the tool message
	// that answers it, so the backward walk can tell whether a candidate
	// assistant message's tool_calls are already spoken for in the kept
	// tail.
	toolResultIdx := make(map[string]int, len(history))
	for i, msg := range history {
		if msg.Role == models.RoleTool && msg.ToolCallID != "" {
			toolResultIdx[msg.ToolCallID] = i
		}
	}

	keepFrom := len(history) - recentMessageCount
	tokens := tokencount.CountMessages(history[keepFrom:])

	for keepFrom > 0 {
		candidateIdx := keepFrom - 1
		candidate := history[candidateIdx]
		cost := tokencount.Count(candidate.Content) + 4

		forced := false
		for _, tc := range candidate.ToolCalls {
			if idx, ok := toolResultIdx[tc.ID]; ok && idx >= keepFrom {
				forced = true
				break
			}
		}

		if !forced && tokens+cost > budget {
			break
		}
		tokens += cost
		keepFrom = candidateIdx
	}

	if keepFrom == 0 {
		return history, false, nil
	}

	dropped := history[:keepFrom]
	kept := history[keepFrom:]

	if opts.Summarizer == nil {
		return kept, true, nil
	}

	summary, err := opts.Summarizer.Summarize(ctx, dropped)
	if err != nil {
		return nil, false, err
	}
	if summary == "" {
		return kept, true, nil
	}

	result := make([]models.Message, 0, len(kept)+1)
	result = append(result, models.Message{Role: models.RoleSystem, Content: summary})
	result = append(result, kept...)
	return result, true, nil
}
