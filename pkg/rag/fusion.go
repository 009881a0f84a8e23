package rag

import "sort"

// FusionMethod selects how result lists are merged.
type FusionMethod string

const (
	// FusionRRF is reciprocal rank fusion: each occurrence at 0-based
	// rank r contributes 1/(60+r+1) to the chunk's fused score.
	FusionRRF FusionMethod = "rrf"

	// FusionWeighted sums per-list weighted scores. List weights are
	// 1.0, 0.8, 0.6, then 0.4 for every further list.
	FusionWeighted FusionMethod = "weighted"

	// FusionMax keeps each chunk's best score across lists, along with
	// the occurrence that produced it.
	FusionMax FusionMethod = "max"
)

// rrfK dampens rank influence in reciprocal rank fusion.
const rrfK = 60

var fusionWeights = []float64{1.0, 0.8, 0.6, 0.4}

func listWeight(i int) float64 {
	if i < len(fusionWeights) {
		return fusionWeights[i]
	}
	return fusionWeights[len(fusionWeights)-1]
}

type fusedEntry struct {
	chunk ScoredChunk
	score float64
	order int // first-seen position, breaks score ties
}

// Fuse merges result lists into one, de-duplicated by chunk ID and sorted
// by fused score descending. Ties keep first-seen order, so the output is
// fully determined by the inputs. Empty input fuses to nothing.
func Fuse(lists [][]ScoredChunk, method FusionMethod) []ScoredChunk {
	entries := make(map[string]*fusedEntry)
	var order []string

	for li, list := range lists {
		for rank, sc := range list {
			id := sc.Chunk.ID
			e, ok := entries[id]
			if !ok {
				e = &fusedEntry{chunk: sc, order: len(order)}
				if method == FusionRRF || method == FusionWeighted {
					e.score = 0
				} else {
					e.score = sc.Score
				}
				entries[id] = e
				order = append(order, id)
				if method == FusionMax {
					continue
				}
			}
			switch method {
			case FusionRRF:
				e.score += 1.0 / float64(rrfK+rank+1)
			case FusionWeighted:
				e.score += listWeight(li) * sc.Score
			case FusionMax:
				if sc.Score > e.score {
					e.score = sc.Score
					e.chunk = sc
				}
			}
		}
	}

	if len(entries) == 0 {
		return nil
	}

	fused := make([]*fusedEntry, 0, len(entries))
	for _, id := range order {
		fused = append(fused, entries[id])
	}
	sort.SliceStable(fused, func(i, j int) bool {
		if fused[i].score != fused[j].score {
			return fused[i].score > fused[j].score
		}
		return fused[i].order < fused[j].order
	})

	out := make([]ScoredChunk, len(fused))
	for i, e := range fused {
		out[i] = e.chunk
		out[i].Score = e.score
	}
	return out
}
