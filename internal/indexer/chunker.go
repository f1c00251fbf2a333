package indexer

import (
	"strings"
)

// SplitText breaks text into chunks of at most chunkSize bytes, preferring
// sentence boundaries, with roughly overlap bytes of trailing sentences
// repeated at the start of the next chunk.
func SplitText(text string, chunkSize int, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return []string{}
	}
	if chunkSize < 200 {
		chunkSize = 200
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}

	sentences := splitSentences(text)

	out := []string{}
	var cur []string
	curLen := 0

	flush := func() {
		if curLen == 0 {
			return
		}
		piece := strings.TrimSpace(strings.Join(cur, " "))
		if piece != "" {
			out = append(out, piece)
		}
	}

	for _, sent := range sentences {
		if len(sent) > chunkSize {
			// A single sentence longer than a whole chunk gets hard-split.
			flush()
			cur, curLen = nil, 0
			step := chunkSize - overlap
			if step <= 0 {
				step = chunkSize
			}
			for start := 0; start < len(sent); start += step {
				end := start + chunkSize
				if end > len(sent) {
					end = len(sent)
				}
				piece := strings.TrimSpace(sent[start:end])
				if piece != "" {
					out = append(out, piece)
				}
			}
			continue
		}

		if curLen > 0 && curLen+len(sent)+1 > chunkSize {
			flush()
			budget := overlap
			if max := chunkSize - len(sent) - 1; budget > max {
				budget = max
			}
			cur = overlapTail(cur, budget)
			curLen = joinedLen(cur)
		}
		cur = append(cur, sent)
		curLen += len(sent)
		if len(cur) > 1 {
			curLen++
		}
	}
	flush()
	return out
}

// splitSentences cuts on terminal punctuation followed by whitespace, and
// on blank lines. The terminator stays with its sentence.
func splitSentences(text string) []string {
	out := []string{}
	start := 0
	runes := []byte(text)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		boundary := false
		switch c {
		case '.', '!', '?':
			if i+1 >= len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n' || runes[i+1] == '\t' || runes[i+1] == '\r' {
				boundary = true
			}
		case '\n':
			boundary = true
		}
		if boundary {
			piece := strings.TrimSpace(text[start : i+1])
			if piece != "" {
				out = append(out, piece)
			}
			start = i + 1
		}
	}
	if tail := strings.TrimSpace(text[start:]); tail != "" {
		out = append(out, tail)
	}
	return out
}

func overlapTail(sentences []string, budget int) []string {
	if budget <= 0 || len(sentences) == 0 {
		return nil
	}
	total := 0
	i := len(sentences)
	for i > 0 {
		next := total + len(sentences[i-1])
		if total > 0 {
			next++
		}
		if next > budget {
			break
		}
		total = next
		i--
	}
	tail := make([]string, len(sentences)-i)
	copy(tail, sentences[i:])
	return tail
}

func joinedLen(sentences []string) int {
	total := 0
	for i, s := range sentences {
		total += len(s)
		if i > 0 {
			total++
		}
	}
	return total
}
