package responder

import (
	"github.com/Mihir-M112/VisiQ-GPT/internal/vision"
)

const (
	// charsPerToken is the conservative character-to-token ratio used for
	// estimation. 4 chars/token is standard for English prose; using 3
	// would be more aggressive but risks overflowing context windows.
	charsPerToken = 4

	// DefaultMaxContextTokens is the default input context budget in tokens.
	// Conservative enough to fit within 8k-context models while leaving room
	// for the output. Override via Config.MaxContextTokens.
	DefaultMaxContextTokens = 6000
)

// estimate returns a rough token count for s using the character heuristic.
func estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// estimateMessages returns the estimated total token count for a slice of
// vision.Message values, summing role + content for each message.
func estimateMessages(msgs []vision.Message) int {
	total := 0
	for _, m := range msgs {
		// Each message has a small per-message overhead (~4 tokens in most APIs).
		total += 4
		total += estimate(m.Role)
		total += estimate(m.Content)
	}
	return total
}

// trimHistory removes the oldest messages from history until the total
// estimated token count of fixed + history fits within maxTokens. fixed
// contains messages that must not be trimmed (system prompt, retrieved
// context, current user message). history contains prior session turns that
// may be dropped oldest-first.
//
// Returns the trimmed history slice. If even an empty history exceeds the
// budget, the empty slice is returned — fixed messages are never dropped here.
func trimHistory(fixed, history []vision.Message, maxTokens int) []vision.Message {
	if len(history) == 0 {
		return history
	}

	fixedTokens := estimateMessages(fixed)

	// History is at most a handful of turns; a linear scan dropping oldest
	// is clear and correct.
	for len(history) > 0 {
		if fixedTokens+estimateMessages(history) <= maxTokens {
			break
		}
		history = history[1:]
	}
	return history
}
