// Package chunker splits extracted document text into overlapping chunks
// sized for embedding. Splitting is sentence-aware: chunks break on sentence
// boundaries so no embedding ever sees half a sentence, and consecutive
// chunks share an overlap so context spanning a boundary is retrievable from
// either side.
package chunker

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"
)

// Defaults tuned for short factual queries over mixed documents.
const (
	// DefaultChunkSize is the target chunk length in characters.
	DefaultChunkSize = 400
	// DefaultOverlap is how many trailing characters of one chunk reappear
	// at the start of the next.
	DefaultOverlap = 100
)

// Chunk is one embeddable slice of a source document.
type Chunk struct {
	// ID is a deterministic UUID derived from the source and index, so
	// re-ingesting the same file overwrites its existing points instead of
	// duplicating them.
	ID string
	// Text is the chunk content.
	Text string
	// Index is the chunk's position within the source document.
	Index int
	// Source is the origin file path.
	Source string
}

// Config holds chunking parameters. Zero values take the defaults.
type Config struct {
	// ChunkSize is the target chunk length in characters.
	ChunkSize int
	// Overlap is the number of trailing characters carried into the next chunk.
	// Must be smaller than ChunkSize. Zero takes DefaultOverlap; a negative
	// value disables overlap entirely.
	Overlap int
}

// Chunker splits text into overlapping sentence-aligned chunks.
// It is safe for concurrent use.
type Chunker struct {
	chunkSize int
	overlap   int
	tokenizer *sentences.DefaultSentenceTokenizer
}

// New constructs a Chunker, loading the English sentence tokenizer.
func New(cfg *Config) (*Chunker, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	size := cfg.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	overlap := cfg.Overlap
	if overlap < 0 {
		overlap = 0
	}
	if overlap == 0 && cfg.Overlap == 0 {
		overlap = DefaultOverlap
	}
	if overlap >= size {
		return nil, fmt.Errorf("chunker: overlap %d must be smaller than chunk size %d", overlap, size)
	}

	tokenizer, err := english.NewSentenceTokenizer(nil)
	if err != nil {
		return nil, fmt.Errorf("chunker: load sentence tokenizer: %w", err)
	}

	return &Chunker{
		chunkSize: size,
		overlap:   overlap,
		tokenizer: tokenizer,
	}, nil
}

// Split breaks text into chunks attributed to source. Whitespace-only input
// yields no chunks.
func (c *Chunker) Split(text, source string) []Chunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var parts []string
	for _, s := range c.tokenizer.Tokenize(text) {
		t := strings.TrimSpace(s.Text)
		if t == "" {
			continue
		}
		// A single sentence longer than the chunk size is split hard; it
		// would otherwise produce an oversized chunk no matter the grouping.
		parts = append(parts, hardSplit(t, c.chunkSize)...)
	}

	var (
		chunks  []Chunk
		current strings.Builder
		carried string
	)
	flush := func() {
		body := strings.TrimSpace(current.String())
		// A body that is nothing but the carried overlap would duplicate the
		// previous chunk's tail, so it is never emitted on its own.
		if body == "" || body == carried {
			return
		}
		chunks = append(chunks, Chunk{
			ID:     ChunkID(source, len(chunks)),
			Text:   body,
			Index:  len(chunks),
			Source: source,
		})
		carried = overlapTail(body, c.overlap)
		current.Reset()
		current.WriteString(carried)
	}

	for _, part := range parts {
		if current.Len() > 0 && current.Len()+1+len(part) > c.chunkSize {
			flush()
			// When even the carried tail plus the next sentence will not fit,
			// drop the tail instead of letting it become its own chunk.
			if current.Len() > 0 && current.Len()+1+len(part) > c.chunkSize {
				current.Reset()
				carried = ""
			}
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(part)
	}
	flush()

	return chunks
}

// ChunkID derives the deterministic UUID for a chunk of source at index.
func ChunkID(source string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(source+"#"+strconv.Itoa(index))).String()
}

// hardSplit cuts a string into pieces of at most size bytes, breaking on
// spaces where possible.
func hardSplit(s string, size int) []string {
	if len(s) <= size {
		return []string{s}
	}
	var out []string
	for len(s) > size {
		cut := size
		if i := strings.LastIndexByte(s[:size], ' '); i > size/2 {
			cut = i
		}
		out = append(out, strings.TrimSpace(s[:cut]))
		s = strings.TrimSpace(s[cut:])
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}

// overlapTail returns the last n characters of text, extended left to the
// nearest word boundary so the overlap never starts mid-word.
func overlapTail(text string, n int) string {
	if n <= 0 || len(text) <= n {
		if n <= 0 {
			return ""
		}
		return text
	}
	tail := text[len(text)-n:]
	if i := strings.IndexByte(tail, ' '); i >= 0 {
		return strings.TrimSpace(tail[i:])
	}
	return tail
}
