package tools

import (
	"context"
	"sync"

	"github.com/sunggeunkim/haya-sub004/pkg/models"
)

// ExecuteAll runs every call in toolCalls concurrently against the
// registry, with unbounded fan-out (a batch is already bounded by the
// model's tool_calls array). Results preserve the order of toolCalls; one
// call's failure never cancels the others.
func (r *Registry) ExecuteAll(ctx context.Context, toolCalls []models.ToolCall) []models.ToolResult {
	results := make([]models.ToolResult, len(toolCalls))
	var wg sync.WaitGroup

	for i, call := range toolCalls {
		wg.Add(1)
		go func(idx int, c models.ToolCall) {
			defer wg.Done()
			select {
			case <-ctx.Done():
				results[idx] = errResult(c.ID, "Tool execution error: "+ctx.Err().Error())
			default:
				results[idx] = r.Execute(c)
			}
		}(i, call)
	}

	wg.Wait()
	return results
}
