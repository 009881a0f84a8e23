package tokens

import "github.com/herald-crm/herald/pkg/chat"

// Truncate fits messages into budget. All system messages are kept
// unconditionally; remaining messages are admitted newest-first until the
// next one would exceed the budget. Output preserves original order.
func Truncate(est Estimator, messages []chat.Message, budget int) []chat.Message {
	if len(messages) == 0 {
		return messages
	}

	keep := make([]bool, len(messages))
	used := 0
	for i, m := range messages {
		if m.IsSystem() {
			keep[i] = true
			used += est.Estimate(m.Content)
		}
	}

	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].IsSystem() {
			continue
		}
		cost := est.Estimate(messages[i].Content)
		if used+cost > budget {
			break
		}
		keep[i] = true
		used += cost
	}

	out := make([]chat.Message, 0, len(messages))
	for i, m := range messages {
		if keep[i] {
			out = append(out, m)
		}
	}
	return out
}
