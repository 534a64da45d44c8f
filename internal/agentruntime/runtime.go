// Package agentruntime defines the boundary between the gateway and the
// LLM provider that actually generates assistant turns.
package agentruntime

import (
	"context"

	"github.com/sunggeunkim/haya-sub004/pkg/models"
)

// ChatParams carries the per-turn parameters a chat.send request supplies.
type ChatParams struct {
	SessionID    string
	Message      string
	Model        string
	SystemPrompt string
}

// Usage reports token accounting for a completed turn.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// ChunkFunc receives streamed text as it arrives. delta is the incremental
// text; done is true on the final call (delta may be empty then).
type ChunkFunc func(delta string, done bool)

// Runtime is the narrow contract the gateway needs from whatever actually
// talks to an LLM: given a turn and the session's prior history, stream
// back text chunks and return the assembled assistant message plus usage.
// The returned Message may carry ToolCalls for the gateway's tool registry
// to execute; this runtime does not run the tool loop itself.
type Runtime interface {
	Chat(ctx context.Context, params ChatParams, history []models.Message, onChunk ChunkFunc) (models.Message, Usage, error)
}
