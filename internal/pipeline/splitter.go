package pipeline

import "strings"

// Splitter turns source text into chunk contents. Chunk boundaries are decided
// here; downstream components treat each chunk as an opaque document.
type Splitter interface {
	Split(text string) []string
}

// OverlapSplitter packs whole words into chunks of roughly chunkSize
// characters, carrying the last chunkOverlap characters' worth of words into
// the next chunk. Words are never split across chunks.
type OverlapSplitter struct {
	chunkSize    int
	chunkOverlap int
}

// NewOverlapSplitter creates a splitter with the given size and overlap in
// characters. Overlap must be smaller than size for the window to advance;
// violating inputs are clamped.
func NewOverlapSplitter(chunkSize, chunkOverlap int) *OverlapSplitter {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 2
	}
	return &OverlapSplitter{chunkSize: chunkSize, chunkOverlap: chunkOverlap}
}

// Split returns the chunks of text in order. Empty and whitespace-only input
// yields no chunks.
func (s *OverlapSplitter) Split(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var chunks []string
	start := 0
	for start < len(words) {
		length := 0
		end := start
		for end < len(words) {
			wordLen := len(words[end])
			if length > 0 {
				wordLen++ // joining space
			}
			if length+wordLen > s.chunkSize && length > 0 {
				break
			}
			length += wordLen
			end++
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end >= len(words) {
			break
		}

		// Walk back over trailing words until the overlap budget is spent.
		overlapLen := 0
		next := end
		for next > start+1 && overlapLen+len(words[next-1])+1 <= s.chunkOverlap {
			next--
			overlapLen += len(words[next]) + 1
		}
		start = next
	}
	return chunks
}
