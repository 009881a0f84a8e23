package router

import (
	"strings"
	"unicode"

	"github.com/herald-crm/herald/pkg/chat"
)

// fullWidthPunct maps full-width Chinese punctuation to ASCII equivalents.
// The mapping is information-preserving: only punctuation shape changes.
var fullWidthPunct = map[rune]rune{
	'（': '(',
	'）': ')',
	'｛': '{',
	'｝': '}',
	'［': '[',
	'］': ']',
	'！': '!',
	'？': '?',
	'：': ':',
	'；': ';',
	'，': ',',
	'、': ',',
	'。': '.',
	'“': '"',
	'”': '"',
	'‘': '\'',
	'’': '\'',
}

// Canonicalize collapses whitespace runs to single spaces, trims the ends,
// and maps full-width Chinese punctuation to ASCII. Every message content
// passes through here before dispatch so that token estimates, cache keys,
// and the wire payload all see the same text.
func Canonicalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	pendingSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			pendingSpace = true
			continue
		}
		if pendingSpace {
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
		}
		if mapped, ok := fullWidthPunct[r]; ok {
			r = mapped
		}
		b.WriteRune(r)
	}
	return b.String()
}

// canonicalizeMessages returns a copy of messages with canonicalized
// content. The input is never mutated; conversation history stays raw.
func canonicalizeMessages(messages []chat.Message) []chat.Message {
	out := chat.Clone(messages)
	for i := range out {
		out[i].Content = Canonicalize(out[i].Content)
	}
	return out
}
