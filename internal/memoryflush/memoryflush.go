// Package memoryflush implements the pre-compaction memory-flush trigger:
// a pure decision function plus the turn it builds when the decision
// fires.
package memoryflush

import "github.com/sunggeunkim/haya-sub004/pkg/models"

// Thresholds carries the inputs to ShouldRun.
type Thresholds struct {
	TotalTokens         int
	ContextWindowTokens int
	ReserveTokens       int
	SoftThresholdTokens int
	HasRunForCycle      bool
}

// ShouldRun decides whether a pre-compaction memory-flush turn should run
// this cycle.
func ShouldRun(t Thresholds) bool {
	if t.TotalTokens <= 0 || t.HasRunForCycle {
		return false
	}
	threshold := t.ContextWindowTokens - t.ReserveTokens - t.SoftThresholdTokens
	if threshold < 0 {
		threshold = 0
	}
	if threshold <= 0 {
		return false
	}
	return t.TotalTokens >= threshold
}

const (
	defaultSystemPrompt = "Pre-compaction memory flush turn. Decide whether any durable facts from this conversation are worth persisting before older history is dropped."
	defaultUserPrompt   = "Pre-compaction memory flush. The session is approaching context limits. If there are important facts, decisions, or preferences worth remembering, use the save_memory tool to store them now. If nothing needs saving, reply with a brief acknowledgment."
)

// Prompts overrides the default flush-turn messages.
type Prompts struct {
	System string
	User   string
}

// BuildTurn constructs the system/user message pair for a memory-flush
// turn, falling back to the default prompts for any field left empty.
func BuildTurn(overrides Prompts) []models.Message {
	system := overrides.System
	if system == "" {
		system = defaultSystemPrompt
	}
	user := overrides.User
	if user == "" {
		user = defaultUserPrompt
	}
	return []models.Message{
		{Role: models.RoleSystem, Content: system},
		{Role: models.RoleUser, Content: user},
	}
}
