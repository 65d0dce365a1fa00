package indexer

import (
	"strings"
)

const maxHighlights = 3

// Highlight returns up to three sentences of content containing any word of
// the query. Matching is literal word containment, not semantic.
func Highlight(content, query string) []string {
	words := queryWords(query)
	if len(words) == 0 {
		return nil
	}

	var highlights []string
	for _, sentence := range splitSentences(content) {
		lower := strings.ToLower(sentence)
		for _, w := range words {
			if strings.Contains(lower, w) {
				highlights = append(highlights, strings.TrimSpace(sentence))
				break
			}
		}
		if len(highlights) == maxHighlights {
			break
		}
	}
	return highlights
}

func queryWords(query string) []string {
	var words []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		w = strings.Trim(w, `.,;:!?"'()`)
		if len(w) > 2 {
			words = append(words, w)
		}
	}
	return words
}

func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for i, r := range text {
		current.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') && i+1 < len(text) && text[i+1] == ' ' {
			sentences = append(sentences, current.String())
			current.Reset()
		}
	}

	if current.Len() > 0 {
		sentences = append(sentences, current.String())
	}
	return sentences
}
