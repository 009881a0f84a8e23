package rag

import (
	"math"
	"testing"
)

func sc(id string, score float64) ScoredChunk {
	return ScoredChunk{Chunk: Chunk{ID: id, Content: "content-" + id}, Score: score}
}

func ids(chunks []ScoredChunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Chunk.ID
	}
	return out
}

func TestFuseRRFDeterministic(t *testing.T) {
	listA := []ScoredChunk{sc("d1", 0.9), sc("d2", 0.8), sc("d3", 0.7)}
	listB := []ScoredChunk{sc("d2", 0.85), sc("d1", 0.75), sc("d4", 0.6)}

	fused := Fuse([][]ScoredChunk{listA, listB}, FusionRRF)

	wantOrder := []string{"d1", "d2", "d3", "d4"}
	got := ids(fused)
	if len(got) != len(wantOrder) {
		t.Fatalf("Fuse returned %v, want order %v", got, wantOrder)
	}
	for i, id := range wantOrder {
		if got[i] != id {
			t.Fatalf("fused order = %v, want %v", got, wantOrder)
		}
	}

	wantScores := map[string]float64{
		"d1": 1.0/61 + 1.0/62, // ranks 0 and 1
		"d2": 1.0/62 + 1.0/61, // ranks 1 and 0
		"d3": 1.0 / 63,        // rank 2 in one list
		"d4": 1.0 / 63,        // rank 2 in one list
	}
	for _, c := range fused {
		if want := wantScores[c.Chunk.ID]; math.Abs(c.Score-want) > 1e-9 {
			t.Errorf("%s score = %.6f, want %.6f", c.Chunk.ID, c.Score, want)
		}
	}
}

func TestFuseRRFTieBreaksFirstSeen(t *testing.T) {
	// d1/d2 and d3/d4 tie pairwise; first-seen order decides.
	listA := []ScoredChunk{sc("d1", 0.9), sc("d2", 0.8), sc("d3", 0.7)}
	listB := []ScoredChunk{sc("d2", 0.85), sc("d1", 0.75), sc("d4", 0.6)}

	fused := Fuse([][]ScoredChunk{listA, listB}, FusionRRF)
	got := ids(fused)

	if got[0] != "d1" || got[1] != "d2" {
		t.Errorf("tied pair order = %v, want d1 before d2", got[:2])
	}
	if got[2] != "d3" || got[3] != "d4" {
		t.Errorf("tied pair order = %v, want d3 before d4", got[2:])
	}
}

func TestFuseWeighted(t *testing.T) {
	lists := [][]ScoredChunk{
		{sc("a", 0.5), sc("b", 0.4)},
		{sc("b", 0.5)},
		{sc("c", 1.0)},
	}

	fused := Fuse(lists, FusionWeighted)

	want := map[string]float64{
		"a": 1.0 * 0.5,
		"b": 1.0*0.4 + 0.8*0.5,
		"c": 0.6 * 1.0,
	}
	for _, c := range fused {
		if w := want[c.Chunk.ID]; math.Abs(c.Score-w) > 1e-9 {
			t.Errorf("%s score = %.3f, want %.3f", c.Chunk.ID, c.Score, w)
		}
	}
	if got := ids(fused); got[0] != "b" {
		t.Errorf("fused order = %v, want b first (0.8)", got)
	}
}

func TestFuseWeightedLateListsShareWeight(t *testing.T) {
	lists := [][]ScoredChunk{
		{sc("a", 1.0)}, {sc("b", 1.0)}, {sc("c", 1.0)}, {sc("d", 1.0)}, {sc("e", 1.0)},
	}
	fused := Fuse(lists, FusionWeighted)
	byID := make(map[string]float64)
	for _, c := range fused {
		byID[c.Chunk.ID] = c.Score
	}
	if byID["d"] != 0.4 || byID["e"] != 0.4 {
		t.Errorf("lists beyond the fourth should weigh 0.4, got d=%.2f e=%.2f", byID["d"], byID["e"])
	}
}

func TestFuseMaxKeepsWinningOccurrence(t *testing.T) {
	first := sc("a", 0.5)
	first.Chunk.Content = "from list one"
	second := sc("a", 0.9)
	second.Chunk.Content = "from list two"

	fused := Fuse([][]ScoredChunk{{first}, {second}}, FusionMax)
	if len(fused) != 1 {
		t.Fatalf("Fuse returned %d chunks, want 1", len(fused))
	}
	if fused[0].Score != 0.9 || fused[0].Chunk.Content != "from list two" {
		t.Errorf("max fusion kept %+v, want the 0.9 occurrence from list two", fused[0])
	}
}

func TestFuseDeduplicatesByID(t *testing.T) {
	lists := [][]ScoredChunk{
		{sc("a", 0.9), sc("b", 0.8), sc("a", 0.7)},
		{sc("b", 0.6), sc("c", 0.5)},
	}
	for _, method := range []FusionMethod{FusionRRF, FusionWeighted, FusionMax} {
		fused := Fuse(lists, method)
		seen := make(map[string]bool)
		for _, c := range fused {
			if seen[c.Chunk.ID] {
				t.Errorf("%s: duplicate id %s in output", method, c.Chunk.ID)
			}
			seen[c.Chunk.ID] = true
		}
		if len(fused) != 3 {
			t.Errorf("%s: fused %d chunks, want 3 unique", method, len(fused))
		}
	}
}

func TestFuseEmptyAndSingleList(t *testing.T) {
	if got := Fuse(nil, FusionRRF); got != nil {
		t.Errorf("Fuse(nil) = %v, want nil", got)
	}
	if got := Fuse([][]ScoredChunk{}, FusionMax); got != nil {
		t.Errorf("Fuse(no lists) = %v, want nil", got)
	}

	single := []ScoredChunk{sc("a", 0.9), sc("b", 0.8), sc("a", 0.7)}
	fused := Fuse([][]ScoredChunk{single}, FusionMax)
	if got := ids(fused); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("single list fusion = %v, want deduplicated [a b]", got)
	}
}
