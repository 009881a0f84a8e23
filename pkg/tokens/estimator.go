// Package tokens estimates token costs for mixed Chinese/English text and
// truncates message histories to fit model budgets.
//
// The heuristic estimator weighs CJK characters at 1.5 tokens and everything
// else at 0.25. It is deliberately rough and used only for budget decisions;
// exact counts come from the tiktoken-backed estimator when an encoding is
// known.
package tokens

import (
	"math"
	"unicode"

	"github.com/herald-crm/herald/pkg/chat"
)

// Estimator reports token costs for budget decisions.
type Estimator interface {
	// Estimate returns the estimated token count of text.
	Estimate(text string) int
	// EstimateMessages returns the estimated cost of a message list.
	EstimateMessages(messages []chat.Message) int
}

// HeuristicEstimator estimates tokens from character classes alone;
// it needs no model vocabulary and never fails.
type HeuristicEstimator struct{}

var _ Estimator = HeuristicEstimator{}

// Estimate applies round(1.5·|CJK| + 0.25·|other|) over runes.
func (HeuristicEstimator) Estimate(text string) int {
	var cjk, other int
	for _, r := range text {
		if isCJK(r) {
			cjk++
		} else {
			other++
		}
	}
	return int(math.Round(1.5*float64(cjk) + 0.25*float64(other)))
}

// EstimateMessages sums the content estimates of all messages.
func (e HeuristicEstimator) EstimateMessages(messages []chat.Message) int {
	total := 0
	for _, m := range messages {
		total += e.Estimate(m.Content)
	}
	return total
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}
