package rag

import (
	"strings"
	"unicode/utf8"
)

// sentenceEnders close a sentence during the second-level split. The
// separator stays attached to the sentence it ends.
var sentenceEnders = map[rune]bool{
	'。': true,
	'！': true,
	'？': true,
	'；': true,
}

// SentenceChunker splits text in two passes: paragraphs first (newline
// boundaries), then sentences within paragraphs that do not fit the
// remaining budget. Sizes are rune counts, not bytes, so mixed-script
// input budgets evenly.
//
// A chunk may overshoot the target size by at most one sentence: a single
// sentence longer than the budget is emitted whole rather than cut.
type SentenceChunker struct {
	size    int
	overlap int
}

// NewSentenceChunker builds a chunker for the given target size and
// overlap, both in runes. Out-of-range values fall back to the config
// defaults.
func NewSentenceChunker(size, overlap int) *SentenceChunker {
	if size <= 0 {
		size = 512
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 4
	}
	return &SentenceChunker{size: size, overlap: overlap}
}

// Size returns the target chunk size in runes.
func (c *SentenceChunker) Size() int { return c.size }

// Overlap returns the overlap seed length in runes.
func (c *SentenceChunker) Overlap() int { return c.overlap }

// Split chunks text. Empty or whitespace-only input yields no chunks;
// input within the target size is returned as a single chunk. Each
// emitted chunk seeds the next with its final Overlap runes.
func (c *SentenceChunker) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= c.size {
		return []string{text}
	}

	var chunks []string
	var current []rune
	fresh := false // current holds content beyond the overlap seed

	emit := func() {
		chunk := strings.TrimSpace(string(current))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		if c.overlap > 0 {
			seed := current
			if len(seed) > c.overlap {
				seed = seed[len(seed)-c.overlap:]
			}
			current = append([]rune(nil), seed...)
		} else {
			current = current[:0]
		}
		fresh = false
	}

	for _, para := range splitParagraphs(text) {
		paraLen := utf8.RuneCountInString(para)

		// Whole paragraph fits in the remaining budget.
		if budget := c.size - len(current); paraLen < budget || (len(current) == 0 && paraLen <= c.size) {
			if fresh {
				current = append(current, '\n')
			}
			current = append(current, []rune(para)...)
			fresh = true
			continue
		}

		for _, sentence := range splitSentences(para) {
			sLen := utf8.RuneCountInString(sentence)
			if fresh && len(current)+sLen > c.size {
				emit()
			}
			current = append(current, []rune(sentence)...)
			fresh = true
		}
	}

	if fresh {
		emit()
	}
	return chunks
}

// splitParagraphs treats every newline as a paragraph boundary and drops
// blank lines.
func splitParagraphs(text string) []string {
	var paras []string
	for _, p := range strings.Split(text, "\n") {
		if p = strings.TrimSpace(p); p != "" {
			paras = append(paras, p)
		}
	}
	return paras
}

// splitSentences cuts a paragraph at sentence enders, keeping each ender
// attached to its sentence. Text after the last ender is the final
// sentence.
func splitSentences(paragraph string) []string {
	var sentences []string
	var b []rune
	for _, r := range paragraph {
		b = append(b, r)
		if sentenceEnders[r] {
			sentences = append(sentences, string(b))
			b = b[:0]
		}
	}
	if len(b) > 0 {
		sentences = append(sentences, string(b))
	}
	return sentences
}
