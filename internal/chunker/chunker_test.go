package chunker

import (
	"strings"
	"testing"
)

func newChunker(t *testing.T, cfg *Config) *Chunker {
	t.Helper()
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestSplit_ShortTextSingleChunk(t *testing.T) {
	t.Parallel()
	c := newChunker(t, nil)
	chunks := c.Split("Revenue grew twelve percent this quarter.", "report.pdf")
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Index != 0 || chunks[0].Source != "report.pdf" {
		t.Errorf("unexpected chunk metadata: %+v", chunks[0])
	}
}

func TestSplit_EmptyText(t *testing.T) {
	t.Parallel()
	c := newChunker(t, nil)
	if chunks := c.Split("   \n\t ", "report.pdf"); chunks != nil {
		t.Errorf("expected no chunks, got %d", len(chunks))
	}
}

func TestSplit_RespectsChunkSize(t *testing.T) {
	t.Parallel()
	c := newChunker(t, &Config{ChunkSize: 120, Overlap: 30})

	var text strings.Builder
	for i := 0; i < 20; i++ {
		text.WriteString("The quick brown fox jumps over the lazy dog near the river bank. ")
	}

	chunks := c.Split(text.String(), "fable.pdf")
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for _, ch := range chunks {
		// Overlap plus one sentence can push slightly past the target, but
		// never beyond target + overlap + one sentence.
		if len(ch.Text) > 120+30+70 {
			t.Errorf("chunk %d is %d chars, too large: %q", ch.Index, len(ch.Text), ch.Text)
		}
	}
}

func TestSplit_ConsecutiveChunksOverlap(t *testing.T) {
	t.Parallel()
	c := newChunker(t, &Config{ChunkSize: 100, Overlap: 40})

	text := "Alpha beta gamma delta epsilon zeta eta theta. " +
		"Iota kappa lambda mu nu xi omicron pi rho sigma. " +
		"Tau upsilon phi chi psi omega one two three four five."
	chunks := c.Split(text, "letters.pdf")
	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(chunks))
	}

	// The second chunk must start with text that already appeared at the
	// tail of the first.
	firstWords := strings.Fields(chunks[0].Text)
	secondStart := strings.Fields(chunks[1].Text)[0]
	found := false
	for _, w := range firstWords {
		if w == secondStart {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("no overlap between chunks:\n  first:  %q\n  second: %q", chunks[0].Text, chunks[1].Text)
	}
}

func TestSplit_NegativeOverlapDisablesOverlap(t *testing.T) {
	t.Parallel()
	c := newChunker(t, &Config{ChunkSize: 100, Overlap: -1})

	text := "Alpha beta gamma delta epsilon zeta eta theta. " +
		"Iota kappa lambda mu nu xi omicron pi rho sigma. " +
		"Tau upsilon phi chi psi omega one two three four five."
	chunks := c.Split(text, "letters.pdf")
	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(chunks))
	}

	// With overlap disabled no chunk may repeat content from its predecessor.
	for i := 1; i < len(chunks); i++ {
		firstWord := strings.Fields(chunks[i].Text)[0]
		if strings.Contains(chunks[i-1].Text, firstWord) {
			t.Errorf("chunk %d repeats %q from chunk %d:\n  prev: %q\n  next: %q",
				i, firstWord, i-1, chunks[i-1].Text, chunks[i].Text)
		}
	}
}

func TestSplit_NoTailOnlyDuplicateChunks(t *testing.T) {
	t.Parallel()
	c := newChunker(t, &Config{ChunkSize: 100, Overlap: 50})

	// Each sentence nearly fills a chunk, so the carried tail can never fit
	// alongside the next sentence.
	text := "The first quarter revenue figures exceeded every forecast the analysts had published in January. " +
		"The second quarter saw a modest decline that management attributed to seasonal purchasing patterns."
	chunks := c.Split(text, "report.pdf")

	for i := 1; i < len(chunks); i++ {
		prevTail := overlapTail(chunks[i-1].Text, 50)
		if chunks[i].Text == prevTail {
			t.Errorf("chunk %d is a bare copy of chunk %d's tail: %q", i, i-1, chunks[i].Text)
		}
	}
}

func TestSplit_HardSplitsOversizedSentence(t *testing.T) {
	t.Parallel()
	c := newChunker(t, &Config{ChunkSize: 80, Overlap: 10})

	// One 400-character "sentence" with no terminal punctuation.
	long := strings.Repeat("wordwordwo ", 40)
	chunks := c.Split(long, "blob.txt")
	if len(chunks) < 3 {
		t.Fatalf("expected oversized sentence to split into several chunks, got %d", len(chunks))
	}
	for _, ch := range chunks {
		if len(ch.Text) > 160 {
			t.Errorf("chunk %d is %d chars, hard split failed", ch.Index, len(ch.Text))
		}
	}
}

func TestChunkID_Deterministic(t *testing.T) {
	t.Parallel()
	a := ChunkID("report.pdf", 0)
	b := ChunkID("report.pdf", 0)
	if a != b {
		t.Errorf("same source and index must yield the same ID: %s vs %s", a, b)
	}
	if a == ChunkID("report.pdf", 1) {
		t.Error("different indices must yield different IDs")
	}
	if a == ChunkID("other.pdf", 0) {
		t.Error("different sources must yield different IDs")
	}
	if len(a) != 36 {
		t.Errorf("expected UUID format, got %q", a)
	}
}

func TestNew_RejectsOverlapLargerThanChunk(t *testing.T) {
	t.Parallel()
	if _, err := New(&Config{ChunkSize: 50, Overlap: 60}); err == nil {
		t.Error("expected error when overlap exceeds chunk size")
	}
}
