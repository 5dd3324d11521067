// Package search derives filtered, highlighted views over a transcript.
package search

import (
	"strings"
	"unicode"

	"github.com/yyc3/yunshu/backend/internal/model/chat"
)

// Span marks a highlighted match as rune offsets [Start, End).
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Result is a message that matched the query together with its highlights.
type Result struct {
	Message    chat.Message `json:"message"`
	Highlights []Span       `json:"highlights,omitempty"`
}

// Blank reports whether query should be treated as "no filter".
func Blank(query string) bool {
	return strings.TrimSpace(query) == ""
}

// Filter returns the messages whose text contains query, ignoring case,
// in their original order. A blank query returns messages unchanged.
func Filter(messages []chat.Message, query string) []chat.Message {
	if Blank(query) {
		return messages
	}
	needle := fold(query)
	filtered := make([]chat.Message, 0, len(messages))
	for _, msg := range messages {
		if index(fold(msg.Text), needle, 0) >= 0 {
			filtered = append(filtered, msg)
		}
	}
	return filtered
}

// Highlight returns the non-overlapping spans of query within text.
func Highlight(text, query string) []Span {
	if Blank(query) {
		return nil
	}
	haystack := fold(text)
	needle := fold(query)

	var spans []Span
	for from := 0; ; {
		at := index(haystack, needle, from)
		if at < 0 {
			break
		}
		spans = append(spans, Span{Start: at, End: at + len(needle)})
		from = at + len(needle)
	}
	return spans
}

// Results combines Filter and Highlight for rendering.
func Results(messages []chat.Message, query string) []Result {
	filtered := Filter(messages, query)
	results := make([]Result, 0, len(filtered))
	for _, msg := range filtered {
		results = append(results, Result{Message: msg, Highlights: Highlight(msg.Text, query)})
	}
	return results
}

// fold lowers every rune individually so offsets stay aligned with the original text.
func fold(s string) []rune {
	runes := []rune(s)
	for i, r := range runes {
		runes[i] = unicode.ToLower(r)
	}
	return runes
}

func index(haystack, needle []rune, from int) int {
	if len(needle) == 0 {
		return -1
	}
	for i := from; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
