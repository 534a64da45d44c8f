// Package tools implements the tool registry, its parallel executor, and a
// pluggable policy engine gating execution by (name, args).
package tools

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sunggeunkim/haya-sub004/pkg/models"
)

// Registry manages registered tools with thread-safe registration and
// lookup. Re-registering an existing name is a hard error.
type Registry struct {
	mu           sync.RWMutex
	tools        map[string]models.AgentTool
	policyEngine PolicyEngine
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]models.AgentTool)}
}

// Register adds a tool to the registry. Registering a name that already
// exists fails.
func (r *Registry) Register(tool models.AgentTool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("tool already registered: %s", tool.Name)
	}
	r.tools[tool.Name] = tool
	return nil
}

// Unregister removes a tool by name. A no-op if the name is unknown.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (models.AgentTool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// List returns all registered tools, in no particular order.
func (r *Registry) List() []models.AgentTool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.AgentTool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}

// Size returns the number of registered tools.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// SetPolicyEngine attaches the policy engine consulted before execution. A
// nil engine disables policy checks (everything allowed).
func (r *Registry) SetPolicyEngine(engine PolicyEngine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policyEngine = engine
}

// Execute runs a single tool call against the registry: lookup, argument
// parsing, policy check, invocation. Every failure mode is captured as an
// error ToolResult; execute never returns a Go error for a tool-level
// failure.
func (r *Registry) Execute(call models.ToolCall) models.ToolResult {
	r.mu.RLock()
	tool, ok := r.tools[call.Name]
	engine := r.policyEngine
	r.mu.RUnlock()

	if !ok {
		return errResult(call.ID, "Tool not found: "+call.Name)
	}

	var args map[string]any
	raw := call.Arguments
	if raw == "" {
		raw = "{}"
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return errResult(call.ID, "Invalid tool arguments: "+call.Arguments)
	}

	if engine != nil {
		decision, err := engine.CheckPolicy(call.Name, args)
		if err != nil {
			return errResult(call.ID, "Tool blocked by policy: "+err.Error())
		}
		if !decision.Allowed {
			reason := decision.Reason
			if reason == "" {
				reason = "denied"
			}
			return errResult(call.ID, "Tool blocked by policy: "+reason)
		}
	}

	result, err := tool.Execute(args)
	if err != nil {
		return errResult(call.ID, "Tool execution error: "+err.Error())
	}
	return models.ToolResult{ToolCallID: call.ID, Content: result}
}

func errResult(toolCallID, content string) models.ToolResult {
	return models.ToolResult{ToolCallID: toolCallID, Content: content, IsError: true}
}
