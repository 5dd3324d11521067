package voice

import (
	"strings"
	"unicode"
)

// DefaultSegmentLength is the largest chunk, in runes, handed to synthesis.
const DefaultSegmentLength = 120

// Segment splits text into chunks of at most max runes. Cuts prefer the end
// of a sentence, then whitespace, and fall back to a hard cut.
func Segment(text string, max int) []string {
	if max <= 0 {
		max = DefaultSegmentLength
	}
	rest := []rune(strings.TrimSpace(text))
	var out []string
	for len(rest) > max {
		cut := lastCut(rest[:max])
		if chunk := strings.TrimSpace(string(rest[:cut])); chunk != "" {
			out = append(out, chunk)
		}
		rest = trimLeftSpace(rest[cut:])
	}
	if chunk := strings.TrimSpace(string(rest)); chunk != "" {
		out = append(out, chunk)
	}
	return out
}

func lastCut(window []rune) int {
	for i := len(window) - 1; i >= 0; i-- {
		if sentenceEnd(window[i]) {
			return i + 1
		}
	}
	for i := len(window) - 1; i > 0; i-- {
		if unicode.IsSpace(window[i]) {
			return i + 1
		}
	}
	return len(window)
}

func sentenceEnd(r rune) bool {
	switch r {
	case '。', '！', '？', '；', '.', '!', '?', ';', '\n':
		return true
	}
	return false
}

func trimLeftSpace(r []rune) []rune {
	for len(r) > 0 && unicode.IsSpace(r[0]) {
		r = r[1:]
	}
	return r
}
