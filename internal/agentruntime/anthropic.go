// Package agentruntime's anthropic.go is the reference Runtime binding: a
// thin adapter from the gateway's narrow Chat contract onto
// anthropics/anthropic-sdk-go's streaming Messages API.
package agentruntime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/sunggeunkim/haya-sub004/pkg/models"
)

const defaultMaxTokens = 4096

// AnthropicConfig configures an AnthropicRuntime.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxTokens    int
}

// AnthropicRuntime implements Runtime against the Anthropic Messages API.
type AnthropicRuntime struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicRuntime builds an AnthropicRuntime from cfg.
func NewAnthropicRuntime(cfg AnthropicConfig) (*AnthropicRuntime, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &AnthropicRuntime{
		client:    anthropic.NewClient(opts...),
		model:     cfg.DefaultModel,
		maxTokens: maxTokens,
	}, nil
}

// Chat implements Runtime by streaming a single Anthropic Messages
// completion, forwarding text deltas to onChunk and assembling the final
// assistant Message (including any tool_use blocks as ToolCalls).
func (r *AnthropicRuntime) Chat(ctx context.Context, params ChatParams, history []models.Message, onChunk ChunkFunc) (models.Message, Usage, error) {
	model := params.Model
	if model == "" {
		model = r.model
	}
	if model == "" {
		return models.Message{}, Usage{}, fmt.Errorf("no model configured")
	}

	msgParams := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: r.maxTokens,
		Messages:  convertHistory(history, params.Message),
	}
	if params.SystemPrompt != "" {
		msgParams.System = []anthropic.TextBlockParam{{Text: params.SystemPrompt}}
	}

	stream := r.client.Messages.NewStreaming(ctx, msgParams)

	var text, toolName, toolID string
	var toolInput []byte
	var toolCalls []models.ToolCall
	var usage Usage

	for stream.Next() {
		event := stream.Current()
		switch event.Type {
		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			if block.Type == "tool_use" {
				use := block.AsToolUse()
				toolID, toolName = use.ID, use.Name
				toolInput = toolInput[:0]
			}
		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					text += delta.Text
					if onChunk != nil {
						onChunk(delta.Text, false)
					}
				}
			case "input_json_delta":
				toolInput = append(toolInput, []byte(delta.PartialJSON)...)
			}
		case "content_block_stop":
			if toolID != "" {
				toolCalls = append(toolCalls, models.ToolCall{
					ID:        toolID,
					Name:      toolName,
					Arguments: string(toolInput),
				})
				toolID, toolName = "", ""
				toolInput = nil
			}
		case "message_start":
			start := event.AsMessageStart()
			usage.InputTokens = int(start.Message.Usage.InputTokens)
		case "message_delta":
			delta := event.AsMessageDelta()
			usage.OutputTokens = int(delta.Usage.OutputTokens)
		}
	}
	if err := stream.Err(); err != nil {
		return models.Message{}, Usage{}, fmt.Errorf("anthropic stream: %w", err)
	}

	if onChunk != nil {
		onChunk("", true)
	}

	return models.Message{
		Role:      models.RoleAssistant,
		Content:   text,
		ToolCalls: toolCalls,
	}, usage, nil
}

func convertHistory(history []models.Message, trailingUser string) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(history)+1)
	for _, m := range history {
		switch m.Role {
		case models.RoleUser, models.RoleSystem:
			// Mid-history system messages (compaction summaries) become a
			// user turn; the API only accepts a top-level system prompt.
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case models.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var input any
				if tc.Arguments != "" {
					_ = json.Unmarshal([]byte(tc.Arguments), &input)
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(blocks) == 0 {
				continue
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		case models.RoleTool:
			out = append(out, anthropic.NewUserMessage(anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false)))
		}
	}
	if trailingUser != "" {
		out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(trailingUser)))
	}
	return out
}
