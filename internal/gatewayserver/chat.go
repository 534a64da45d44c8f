package gatewayserver

import (
	"context"
	"time"

	"github.com/sunggeunkim/haya-sub004/internal/agentruntime"
	"github.com/sunggeunkim/haya-sub004/internal/memoryflush"
	"github.com/sunggeunkim/haya-sub004/internal/protocol"
	"github.com/sunggeunkim/haya-sub004/internal/sessions"
	"github.com/sunggeunkim/haya-sub004/internal/tokencount"
	"github.com/sunggeunkim/haya-sub004/pkg/models"
)

// maxToolIterations bounds the tool-call/tool-result round trip within one
// chat.send turn. The model is expected to converge on a final text answer
// well before this; it exists only to stop a misbehaving model from
// looping the gateway forever.
const maxToolIterations = 4

// idleDeltaTimeout cancels a streaming chat.send that has gone silent:
// there is no overall deadline on streaming methods, but a provider that
// stops producing deltas must not pin the connection forever.
const idleDeltaTimeout = 120 * time.Second

type chatSendParams struct {
	SessionID    string `json:"sessionId"`
	Message      string `json:"message"`
	Model        string `json:"model"`
	SystemPrompt string `json:"systemPrompt"`
}

// handleChatSend implements the chat.send turn: fetch history, run the
// memory-flush trigger if due, stream a completion from the runtime,
// resolve any tool calls it makes, and persist the turn.
func (s *Server) handleChatSend(ctx context.Context, wc *wsConn, req *protocol.Request) {
	var params chatSendParams
	if err := jsonUnmarshalLenient(req.Params, &params); err != nil {
		wc.sendError(req.ID, protocol.CodeInvalidParams, "invalid params: "+err.Error())
		return
	}

	systemPrompt := params.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = s.cfg.Agent.SystemPrompt
	}

	historyOpts := sessions.HistoryOptions{
		MaxHistoryMessages: s.cfg.Agent.MaxHistoryMessages,
		MaxTokens:          s.cfg.Agent.ContextWindowTokens,
		SystemPromptTokens: tokencount.Count(systemPrompt),
	}

	history, compacted, err := s.deps.Sessions.GetHistory(ctx, params.SessionID, historyOpts)
	if err != nil {
		wc.sendError(req.ID, protocol.CodeInternalError, "fetch history: "+err.Error())
		return
	}
	s.resetFlushCycleIfCompacted(params.SessionID, compacted)

	turnCtx, cancelIdle := context.WithCancel(ctx)
	defer cancelIdle()
	idle := time.AfterFunc(idleDeltaTimeout, cancelIdle)
	defer idle.Stop()
	ctx = turnCtx

	onChunk := func(delta string, done bool) {
		idle.Reset(idleDeltaTimeout)
		wc.sendEvent("chat.delta", map[string]any{
			"sessionId": params.SessionID,
			"delta":     delta,
			"done":      done,
		})
	}

	s.maybeRunMemoryFlush(ctx, params.SessionID, history)

	runtimeParams := agentruntime.ChatParams{
		SessionID:    params.SessionID,
		Message:      params.Message,
		Model:        params.Model,
		SystemPrompt: systemPrompt,
	}

	assistantMsg, usage, err := s.runTurn(ctx, onChunk, params.SessionID, runtimeParams, history)
	if err != nil {
		if ctx.Err() != nil {
			wc.sendEvent("chat.delta", map[string]any{
				"sessionId": params.SessionID,
				"done":      true,
				"error":     "cancelled",
			})
			wc.sendError(req.ID, protocol.CodeInternalError, "cancelled")
			return
		}
		wc.sendError(req.ID, protocol.CodeInternalError, "chat completion failed: "+err.Error())
		return
	}

	userMsg := models.Message{Role: models.RoleUser, Content: params.Message, TimestampMs: time.Now().UnixMilli()}
	assistantMsg.TimestampMs = time.Now().UnixMilli()
	persistErr := s.deps.Sessions.AddMessages(ctx, params.SessionID, []models.Message{userMsg, assistantMsg})

	result := map[string]any{
		"sessionId": params.SessionID,
		"message":   assistantMsg,
		"usage": map[string]any{
			"inputTokens":  usage.InputTokens,
			"outputTokens": usage.OutputTokens,
		},
	}
	wc.sendResult(req.ID, result)

	// Persistence is best-effort from the caller's point of view: the
	// model result has already been returned as the success response, so
	// a store failure surfaces as a separate error event rather than
	// retroactively failing the chat.send call.
	if persistErr != nil {
		wc.sendEvent("error", map[string]any{
			"sessionId": params.SessionID,
			"code":      protocol.CodeInternalError,
			"message":   "failed to persist turn: " + persistErr.Error(),
		})
	}
}

// handleChannelMessage runs a full chat turn for one inbound channel
// message and sends the reply back out through the same plugin. It is the
// non-WebSocket counterpart to handleChatSend: one session per channel id,
// no streaming client to forward chat.delta events to, and a failed send
// just gets logged (there is no caller waiting on a response frame).
func (s *Server) handleChannelMessage(ctx context.Context, channelID string, plugin interface {
	Send(ctx context.Context, msg models.Message) error
}, inbound models.Message) {
	sessionID := "channel:" + channelID

	if s.deps.Profiles != nil && inbound.Sender != "" {
		ts := inbound.TimestampMs
		if ts == 0 {
			ts = time.Now().UnixMilli()
		}
		if _, err := s.deps.Profiles.Touch(channelID+"-"+inbound.Sender, "", channelID, ts); err != nil {
			s.log().Warn(ctx, "sender profile update failed", "channel_id", channelID, "error", err)
		}
	}

	systemPrompt := s.cfg.Agent.SystemPrompt
	historyOpts := sessions.HistoryOptions{
		MaxHistoryMessages: s.cfg.Agent.MaxHistoryMessages,
		MaxTokens:          s.cfg.Agent.ContextWindowTokens,
		SystemPromptTokens: tokencount.Count(systemPrompt),
	}

	history, compacted, err := s.deps.Sessions.GetHistory(ctx, sessionID, historyOpts)
	if err != nil {
		s.log().Error(ctx, "channel turn fetch history failed", "channel_id", channelID, "error", err)
		return
	}
	s.resetFlushCycleIfCompacted(sessionID, compacted)

	noop := func(string, bool) {}
	s.maybeRunMemoryFlush(ctx, sessionID, history)

	runtimeParams := agentruntime.ChatParams{
		SessionID:    sessionID,
		Message:      inbound.Content,
		SystemPrompt: systemPrompt,
	}

	assistantMsg, _, err := s.runTurn(ctx, noop, sessionID, runtimeParams, history)
	if err != nil {
		s.log().Error(ctx, "channel turn failed", "channel_id", channelID, "error", err)
		return
	}

	userTs := inbound.TimestampMs
	if userTs == 0 {
		userTs = time.Now().UnixMilli()
	}
	userMsg := models.Message{Role: models.RoleUser, Content: inbound.Content, Sender: inbound.Sender, TimestampMs: userTs}
	assistantMsg.TimestampMs = time.Now().UnixMilli()
	if err := s.deps.Sessions.AddMessages(ctx, sessionID, []models.Message{userMsg, assistantMsg}); err != nil {
		s.log().Warn(ctx, "channel turn persist failed", "channel_id", channelID, "error", err)
	}

	// Kakao's reply path is keyed by the inbound request's correlation id
	// (carried in ToolCallID), not a channel-wide recipient; other plugins
	// ignore it.
	reply := models.Message{Role: models.RoleAssistant, Content: assistantMsg.Content, ToolCallID: inbound.ToolCallID}
	if err := plugin.Send(ctx, reply); err != nil {
		s.log().Error(ctx, "channel reply send failed", "channel_id", channelID, "error", err)
	}
}

// maybeRunMemoryFlush evaluates the pre-compaction memory-flush trigger and,
// if due, runs a silent turn against the runtime so the model has a chance
// to call save_memory before older history is dropped. Silent means no
// chat.delta events reach the client; the flush turn's own messages are
// persisted directly rather than being part of the response the client is
// waiting on.
func (s *Server) maybeRunMemoryFlush(ctx context.Context, sessionID string, history []models.Message) {
	if s.deps.Memory == nil {
		return
	}

	totalTokens := tokencount.CountMessages(history)
	state := s.flushStateFor(sessionID)

	state.mu.Lock()
	hasRun := state.hasRunForCycle
	state.mu.Unlock()

	due := memoryflush.ShouldRun(memoryflush.Thresholds{
		TotalTokens:         totalTokens,
		ContextWindowTokens: s.cfg.Agent.ContextWindowTokens,
		ReserveTokens:       s.cfg.Agent.MemoryFlushReserveTokens,
		SoftThresholdTokens: s.cfg.Agent.MemoryFlushSoftThresholdTokens,
		HasRunForCycle:      hasRun,
	})
	if !due {
		return
	}

	turn := memoryflush.BuildTurn(memoryflush.Prompts{})
	flushParams := agentruntime.ChatParams{
		SessionID:    sessionID,
		SystemPrompt: turn[0].Content,
		Message:      turn[1].Content,
	}
	silent := func(string, bool) {}

	assistantMsg, _, err := s.runTurn(ctx, silent, sessionID, flushParams, history)
	if err != nil {
		s.log().Warn(ctx, "memory flush turn failed", "session_id", sessionID, "error", err)
		return
	}

	state.mu.Lock()
	state.hasRunForCycle = true
	state.mu.Unlock()

	flushUser := turn[1]
	flushUser.TimestampMs = time.Now().UnixMilli()
	assistantMsg.TimestampMs = time.Now().UnixMilli()
	if err := s.deps.Sessions.AddMessages(ctx, sessionID, []models.Message{flushUser, assistantMsg}); err != nil {
		s.log().Warn(ctx, "memory flush turn persist failed", "session_id", sessionID, "error", err)
	}
}

// runTurn drives one runtime.Chat call through to a final text answer,
// resolving tool calls along the way via the tool registry. Streamed text
// is forwarded to onChunk, the caller's choice of client or no-op.
func (s *Server) runTurn(ctx context.Context, onChunk agentruntime.ChunkFunc, sessionID string, params agentruntime.ChatParams, history []models.Message) (models.Message, agentruntime.Usage, error) {
	workingHistory := history
	turnParams := params

	for i := 0; i < maxToolIterations; i++ {
		msg, usage, err := s.deps.Runtime.Chat(ctx, turnParams, workingHistory, onChunk)
		if err != nil {
			return models.Message{}, agentruntime.Usage{}, err
		}
		if len(msg.ToolCalls) == 0 {
			return msg, usage, nil
		}

		results := s.deps.Tools.ExecuteAll(ctx, msg.ToolCalls)
		if s.deps.Metrics != nil {
			for i, r := range results {
				outcome := "ok"
				if r.IsError {
					outcome = "error"
				}
				s.deps.Metrics.ToolExecutions.WithLabelValues(msg.ToolCalls[i].Name, outcome).Inc()
			}
		}
		workingHistory = append(append([]models.Message{}, workingHistory...), msg)
		for _, r := range results {
			workingHistory = append(workingHistory, models.Message{
				Role:       models.RoleTool,
				Content:    r.Content,
				ToolCallID: r.ToolCallID,
			})
		}
		turnParams = agentruntime.ChatParams{SessionID: params.SessionID, SystemPrompt: params.SystemPrompt, Model: params.Model}
	}

	return models.Message{}, agentruntime.Usage{}, errMaxToolIterations
}

var errMaxToolIterations = &iterationError{"exceeded max tool iterations without a final answer"}

type iterationError struct{ msg string }

func (e *iterationError) Error() string { return e.msg }
