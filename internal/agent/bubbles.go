package agent

import (
	"regexp"
	"strings"
)

var paragraphSplit = regexp.MustCompile(`\n{2,}`)

// SplitBubbles splits the final assistant text into "bubbles" for separate
// delivery. Paragraphs (runs separated by two or more newlines) are
// preferred; if the text is a single paragraph, it falls back to grouping
// sentences into pairs. Empty input yields no bubbles.
func SplitBubbles(text string) []string {
	normalized := strings.TrimSpace(strings.ReplaceAll(text, "\r", ""))
	if normalized == "" {
		return nil
	}

	paragraphs := make([]string, 0, 2)
	for _, p := range paragraphSplit.Split(normalized, -1) {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			paragraphs = append(paragraphs, trimmed)
		}
	}
	if len(paragraphs) >= 2 {
		return paragraphs
	}

	sentences := splitSentences(normalized)
	if len(sentences) <= 2 {
		return []string{normalized}
	}

	bubbles := make([]string, 0, (len(sentences)+1)/2)
	for i := 0; i < len(sentences); i += 2 {
		if i+1 < len(sentences) {
			bubbles = append(bubbles, strings.TrimSpace(sentences[i]+" "+sentences[i+1]))
		} else {
			bubbles = append(bubbles, strings.TrimSpace(sentences[i]))
		}
	}
	return bubbles
}

// splitSentences emulates splitting on the regex `(?<=[.!?])\s+`: Go's
// RE2-backed regexp package does not support lookbehind, so the split point
// (just after sentence-ending punctuation, consuming the following run of
// whitespace as the separator) is found by hand.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', '!', '?':
			j := i + 1
			if j < len(text) && isSentenceSpace(text[j]) {
				k := j
				for k < len(text) && isSentenceSpace(text[k]) {
					k++
				}
				sentences = append(sentences, text[start:j])
				start = k
				i = k - 1
			}
		}
	}
	if start < len(text) {
		sentences = append(sentences, text[start:])
	}
	return sentences
}

func isSentenceSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	default:
		return false
	}
}
