package rag

import "strings"

// promptScrubber strips role markers, instruction-override phrases, and
// delimiter runs that user text could use to break out of a composed
// prompt. Replacement is removal; the surrounding text survives.
var promptScrubber = strings.NewReplacer(
	"SYSTEM:", "", "System:", "", "system:", "",
	"ASSISTANT:", "", "Assistant:", "", "assistant:", "",
	"USER:", "", "User:", "", "user:", "",
	"Ignore previous instructions", "", "ignore previous instructions", "",
	"Ignore all previous", "", "ignore all previous", "",
	"Disregard previous", "", "disregard previous", "",
	"```", "", "---", "", "===", "", "***", "",
)

// sanitizeQuery cleans user text before it is embedded in a prompt.
func sanitizeQuery(input string) string {
	return strings.TrimSpace(promptScrubber.Replace(input))
}
