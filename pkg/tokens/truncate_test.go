package tokens

import (
	"strings"
	"testing"

	"github.com/herald-crm/herald/pkg/chat"
)

// ascii produces text whose heuristic estimate is exactly n tokens.
func ascii(n int) string {
	return strings.Repeat("a", n*4)
}

func TestTruncateKeepsSystemAndNewest(t *testing.T) {
	est := HeuristicEstimator{}
	messages := []chat.Message{
		chat.System(ascii(50)),
		chat.User(ascii(500)),
		chat.Assistant(ascii(500)),
		chat.User(ascii(500)),
	}

	got := Truncate(est, messages, 700)

	if len(got) != 2 {
		t.Fatalf("Truncate() returned %d messages, want 2", len(got))
	}
	if got[0].Role != chat.RoleSystem {
		t.Errorf("first message role = %s, want system", got[0].Role)
	}
	if got[1].Role != chat.RoleUser || got[1].Content != messages[3].Content {
		t.Errorf("second message should be the newest user message")
	}
	if total := est.EstimateMessages(got); total > 700 {
		t.Errorf("truncated estimate = %d, exceeds budget 700", total)
	}
}

func TestTruncateAllFit(t *testing.T) {
	est := HeuristicEstimator{}
	messages := []chat.Message{
		chat.System(ascii(10)),
		chat.User(ascii(20)),
		chat.Assistant(ascii(20)),
	}

	got := Truncate(est, messages, 100)

	if len(got) != 3 {
		t.Fatalf("Truncate() returned %d messages, want all 3", len(got))
	}
	for i := range messages {
		if got[i].Content != messages[i].Content {
			t.Errorf("message %d reordered", i)
		}
	}
}

func TestTruncateSystemsAlwaysKept(t *testing.T) {
	est := HeuristicEstimator{}
	messages := []chat.Message{
		chat.System(ascii(40)),
		chat.User(ascii(100)),
		chat.System(ascii(40)),
		chat.User(ascii(100)),
	}

	got := Truncate(est, messages, 80)

	if len(got) != 2 {
		t.Fatalf("Truncate() returned %d messages, want 2 systems", len(got))
	}
	for i, m := range got {
		if m.Role != chat.RoleSystem {
			t.Errorf("message %d role = %s, want system", i, m.Role)
		}
	}
}

func TestTruncateStopsAtFirstOversized(t *testing.T) {
	// An oversized newest message blocks everything older, even smaller
	// messages; admission is strictly newest-first.
	est := HeuristicEstimator{}
	messages := []chat.Message{
		chat.User(ascii(10)),
		chat.User(ascii(500)),
	}

	got := Truncate(est, messages, 100)

	if len(got) != 0 {
		t.Fatalf("Truncate() returned %d messages, want 0", len(got))
	}
}

func TestTruncatePreservesOriginalOrder(t *testing.T) {
	est := HeuristicEstimator{}
	messages := []chat.Message{
		chat.User(ascii(10)),
		chat.System(ascii(5)),
		chat.Assistant(ascii(10)),
		chat.User(ascii(10)),
	}

	got := Truncate(est, messages, 1000)

	wantRoles := []chat.Role{chat.RoleUser, chat.RoleSystem, chat.RoleAssistant, chat.RoleUser}
	if len(got) != len(wantRoles) {
		t.Fatalf("Truncate() returned %d messages, want %d", len(got), len(wantRoles))
	}
	for i, want := range wantRoles {
		if got[i].Role != want {
			t.Errorf("message %d role = %s, want %s", i, got[i].Role, want)
		}
	}
}

func TestTruncateEmpty(t *testing.T) {
	got := Truncate(HeuristicEstimator{}, nil, 100)
	if len(got) != 0 {
		t.Errorf("Truncate(nil) = %v, want empty", got)
	}
}
