// Package tokenutil sizes prompts before they are sent to a model. Counts use
// the cl100k_base encoding from tiktoken-go and fall back to a rune heuristic
// when the encoding cannot be loaded (for example when offline).
package tokenutil

import (
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// messageOverhead approximates the role and separator tokens of one chat turn.
const messageOverhead = 4

var loadEncoding = sync.OnceValue(func() *tiktoken.Tiktoken {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil
	}
	return enc
})

// CountTokens counts the tokens of text.
func CountTokens(text string) int {
	if text == "" {
		return 0
	}
	enc := loadEncoding()
	if enc == nil {
		return EstimateFast(text)
	}
	return len(enc.Encode(text, nil, nil))
}

// CountMessages counts a whole conversation, one entry per turn.
func CountMessages(contents []string) int {
	total := 0
	for _, content := range contents {
		total += messageOverhead + CountTokens(content)
	}
	return total
}

// EstimateFast is the offline estimate: a quarter of the runes, but never
// fewer than the number of words.
func EstimateFast(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	return max(utf8.RuneCountInString(text)/4, len(strings.Fields(text)), 1)
}
