package chunking

import "strings"

// Splitter breaks text into chunks of at most ChunkSize runes, preferring
// sentence boundaries and carrying Overlap runes of trailing context into the
// next chunk. Splitting is deterministic for identical input.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 1024
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}
}

func (s *Splitter) Split(text string) []string {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var out []string
	var current []rune
	for _, sentence := range sentences {
		runes := []rune(sentence)

		// Sentences longer than a whole chunk are cut hard.
		for len(runes) > s.ChunkSize {
			if len(current) > 0 {
				out = appendChunk(out, current)
				current = s.tail(current)
			}
			room := s.ChunkSize - len(current)
			current = append(current, runes[:room]...)
			out = appendChunk(out, current)
			current = s.tail(current)
			runes = runes[room:]
		}

		if len(current)+len(runes) > s.ChunkSize && len(current) > 0 {
			out = appendChunk(out, current)
			current = s.tail(current)
		}
		// Shrink the overlap seed rather than exceed the chunk size.
		if len(current)+len(runes) > s.ChunkSize {
			keep := s.ChunkSize - len(runes)
			if keep < 0 {
				keep = 0
			}
			if keep < len(current) {
				current = current[len(current)-keep:]
			}
		}
		current = append(current, runes...)
	}
	if len(current) > 0 {
		out = appendChunk(out, current)
	}
	return out
}

// tail returns the last Overlap runes of the finished chunk as the seed of
// the next one.
func (s *Splitter) tail(chunk []rune) []rune {
	if s.Overlap <= 0 || len(chunk) == 0 {
		return nil
	}
	start := len(chunk) - s.Overlap
	if start < 0 {
		start = 0
	}
	return append([]rune(nil), chunk[start:]...)
}

func appendChunk(out []string, chunk []rune) []string {
	trimmed := strings.TrimSpace(string(chunk))
	if trimmed == "" {
		return out
	}
	return append(out, trimmed)
}

var sentenceTerminators = map[rune]bool{
	'.': true,
	'!': true,
	'?': true,
	'\n': true,
}

// splitSentences cuts text after terminator runs, keeping the terminator and
// any following whitespace with the sentence it closes.
func splitSentences(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var sentences []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		if !sentenceTerminators[runes[i]] {
			continue
		}
		end := i + 1
		for end < len(runes) && (sentenceTerminators[runes[end]] || runes[end] == ' ' || runes[end] == '\t') {
			end++
		}
		sentences = append(sentences, string(runes[start:end]))
		i = end - 1
		start = end
	}
	if start < len(runes) {
		sentences = append(sentences, string(runes[start:]))
	}
	return sentences
}
