package responder

import (
	"strings"
	"testing"

	"github.com/Mihir-M112/VisiQ-GPT/internal/vision"
)

func TestEstimate(t *testing.T) {
	t.Parallel()
	if got := estimate(""); got != 0 {
		t.Errorf("empty string should cost 0 tokens, got %d", got)
	}
	if got := estimate("ab"); got != 1 {
		t.Errorf("short non-empty string should cost at least 1 token, got %d", got)
	}
	if got := estimate(strings.Repeat("x", 400)); got != 100 {
		t.Errorf("400 chars should estimate 100 tokens, got %d", got)
	}
}

func TestTrimHistory_FitsWithinBudget(t *testing.T) {
	t.Parallel()
	fixed := []vision.Message{
		{Role: vision.RoleSystem, Content: strings.Repeat("s", 200)},
		{Role: vision.RoleUser, Content: strings.Repeat("q", 200)},
	}
	history := []vision.Message{
		{Role: vision.RoleUser, Content: strings.Repeat("a", 400)},
		{Role: vision.RoleAssistant, Content: strings.Repeat("b", 400)},
		{Role: vision.RoleUser, Content: strings.Repeat("c", 400)},
		{Role: vision.RoleAssistant, Content: strings.Repeat("d", 400)},
	}

	trimmed := trimHistory(fixed, history, 300)
	if len(trimmed) >= len(history) {
		t.Fatalf("expected trimming, kept %d of %d", len(trimmed), len(history))
	}
	// Oldest messages go first; the newest must survive longest.
	if len(trimmed) > 0 && trimmed[len(trimmed)-1].Content != history[len(history)-1].Content {
		t.Error("newest message should be retained")
	}
	if estimateMessages(fixed)+estimateMessages(trimmed) > 300 {
		t.Error("trimmed history still exceeds budget")
	}
}

func TestTrimHistory_NoTrimNeeded(t *testing.T) {
	t.Parallel()
	fixed := []vision.Message{{Role: vision.RoleSystem, Content: "short"}}
	history := []vision.Message{{Role: vision.RoleUser, Content: "also short"}}

	trimmed := trimHistory(fixed, history, DefaultMaxContextTokens)
	if len(trimmed) != 1 {
		t.Errorf("expected untouched history, got %d messages", len(trimmed))
	}
}

func TestTrimHistory_FixedAloneExceedsBudget(t *testing.T) {
	t.Parallel()
	fixed := []vision.Message{{Role: vision.RoleSystem, Content: strings.Repeat("s", 4000)}}
	history := []vision.Message{{Role: vision.RoleUser, Content: "drop me"}}

	trimmed := trimHistory(fixed, history, 100)
	if len(trimmed) != 0 {
		t.Errorf("expected all history dropped, got %d messages", len(trimmed))
	}
}

func TestTrimHistory_EmptyHistory(t *testing.T) {
	t.Parallel()
	if got := trimHistory(nil, nil, 100); len(got) != 0 {
		t.Errorf("expected empty result, got %d", len(got))
	}
}
