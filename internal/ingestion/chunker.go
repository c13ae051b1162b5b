package ingestion

import "strings"

// Chunk is one indexable unit produced from a non-empty page.
type Chunk struct {
	PageNumber int
	ChunkIndex int
	Text       string
	TokenCount int
}

// Chunker turns extracted pages into bounded-size retrieval units: one chunk
// per non-empty page, capped at maxChars characters.
type Chunker struct {
	maxChars int
}

func NewChunker(maxChars int) *Chunker {
	if maxChars <= 0 {
		maxChars = 2000
	}
	return &Chunker{maxChars: maxChars}
}

// ChunkPages skips whitespace-only pages entirely; skipped pages produce
// neither a page record nor a chunk. Chunk indices are dense and 0-based
// over the emitted chunks, while page numbers keep their 1-based extraction
// positions.
func (c *Chunker) ChunkPages(pages []string) []Chunk {
	var chunks []Chunk

	for i, pageText := range pages {
		trimmed := strings.TrimSpace(pageText)
		if trimmed == "" {
			continue
		}

		text := trimmed
		if runes := []rune(text); len(runes) > c.maxChars {
			text = string(runes[:c.maxChars])
		}

		chunks = append(chunks, Chunk{
			PageNumber: i + 1,
			ChunkIndex: len(chunks),
			Text:       text,
			TokenCount: estimateTokens(text),
		})
	}

	return chunks
}

// estimateTokens uses the crude 4-characters-per-token heuristic; it is a
// sizing hint, not a real tokenizer count.
func estimateTokens(text string) int {
	n := len([]rune(text))
	return (n + 3) / 4
}
