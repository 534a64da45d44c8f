// Package tokencount implements the cheap character-based token estimator
// used for compaction budgeting. It is deliberately not a real tokenizer:
// the gateway only needs a fast, deterministic upper bound.
package tokencount

import (
	"math"

	"github.com/sunggeunkim/haya-sub004/pkg/models"
)

// perMessageOverhead accounts for role/framing tokens a real tokenizer
// would spend per message.
const perMessageOverhead = 4

// Count estimates the token cost of a single string: ceil(len/4).
func Count(s string) int {
	if s == "" {
		return 0
	}
	return int(math.Ceil(float64(len(s)) / 4))
}

// CountMessages estimates the token cost of a message slice: the sum of
// each message's content cost plus a fixed per-message overhead.
func CountMessages(msgs []models.Message) int {
	total := 0
	for _, m := range msgs {
		total += Count(m.Content) + perMessageOverhead
	}
	return total
}
