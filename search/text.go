package search

import "strings"

// containsAllQueryWords reports whether every word of the query appears
// in the text, case-insensitively. Used to boost verbatim matches above
// purely semantic ones.
func containsAllQueryWords(text, query string) bool {
	words := strings.Fields(strings.ToLower(query))
	if len(words) == 0 {
		return false
	}

	lowered := strings.ToLower(text)
	for _, word := range words {
		if !strings.Contains(lowered, word) {
			return false
		}
	}
	return true
}
