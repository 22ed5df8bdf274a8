package chunker

import "strings"

// Splitter splits long text into overlapping fixed-size segments.
type Splitter struct {
	ChunkSize    int
	ChunkOverlap int
}

// New returns a Splitter with sane bounds applied.
func New(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 2
	}
	return &Splitter{ChunkSize: chunkSize, ChunkOverlap: overlap}
}

// Split chunks text into segments of at most ChunkSize characters with
// ChunkOverlap characters shared between consecutive chunks. Chunk ends are
// nudged to paragraph, sentence or line boundaries when one falls in the
// second half of the window.
func (s *Splitter) Split(text string) []string {
	text = strings.TrimSpace(text)
	if len(text) == 0 {
		return []string{}
	}

	chunks := []string{}
	start := 0
	total := len(text)

	for start < total {
		end := start + s.ChunkSize
		if end > total {
			end = total
		}

		if end < total {
			window := text[start:end]
			if idx := strings.LastIndex(window, "\n\n"); idx > s.ChunkSize/2 {
				end = start + idx + 2
			} else if idx := strings.LastIndex(window, ". "); idx > s.ChunkSize/2 {
				end = start + idx + 2
			} else if idx := strings.LastIndex(window, "\n"); idx > s.ChunkSize/2 {
				end = start + idx + 1
			}
		}

		chunk := strings.TrimSpace(text[start:end])
		if len(chunk) > 0 {
			chunks = append(chunks, chunk)
		}
		if end >= total {
			break
		}

		next := end - s.ChunkOverlap
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks
}
