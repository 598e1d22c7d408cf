package llm

import "strings"

// charsPerToken is a rough estimate for statement text.
const charsPerToken = 4

// ChunkLines splits text into chunks of at most tokenBudget estimated tokens.
// Chunks always end on a line break; a single line longer than the budget
// becomes a chunk of its own. A non-positive budget yields one chunk.
func ChunkLines(text string, tokenBudget int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if tokenBudget <= 0 {
		return []string{text}
	}
	limit := tokenBudget * charsPerToken

	var chunks []string
	var b strings.Builder
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if b.Len() > 0 && b.Len()+1+len(line) > limit {
			chunks = append(chunks, b.String())
			b.Reset()
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
	}
	if strings.TrimSpace(b.String()) != "" {
		chunks = append(chunks, b.String())
	}
	return chunks
}
