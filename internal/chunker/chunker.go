// Package chunker splits long text into overlapping fixed-size windows.
package chunker

import "strings"

// Chunk splits text into windows of windowSize characters where consecutive
// windows share overlap characters. Sizes are counted in runes so multi-byte
// text is never split inside a character. Empty or whitespace-only input
// yields no chunks.
func Chunk(text string, windowSize, overlap int) []string {
	if strings.TrimSpace(text) == "" {
		return []string{}
	}
	if windowSize <= 0 {
		return []string{text}
	}
	if overlap < 0 {
		overlap = 0
	}
	// an overlap at or beyond the window would never advance
	if overlap >= windowSize {
		overlap = windowSize - 1
	}

	runes := []rune(text)
	n := len(runes)
	chunks := make([]string, 0, n/(windowSize-overlap)+1)
	start := 0
	for {
		end := min(start+windowSize, n)
		chunks = append(chunks, string(runes[start:end]))
		if end >= n {
			break
		}
		start = max(0, end-overlap)
	}
	return chunks
}

// Reassemble joins chunks produced by Chunk with the same overlap back into
// the original text.
func Reassemble(chunks []string, overlap int) string {
	var b strings.Builder
	for i, c := range chunks {
		if i == 0 {
			b.WriteString(c)
			continue
		}
		r := []rune(c)
		b.WriteString(string(r[min(overlap, len(r)):]))
	}
	return b.String()
}
