package rag

import (
	"sort"

	"github.com/herald-crm/herald/pkg/tokens"
)

// generationReserve is held back from the context window for the model's
// output.
const generationReserve = 200

// Packer fits retrieved chunks into a model context window. The budget is
// the window minus the query, the system prompt, and the generation
// reserve; chunks are admitted in score order until it runs out.
type Packer struct {
	window int
	est    tokens.Estimator
}

// NewPacker builds a packer for a context window of windowTokens.
func NewPacker(windowTokens int, est tokens.Estimator) *Packer {
	if windowTokens <= 0 {
		windowTokens = 4000
	}
	if est == nil {
		est = tokens.HeuristicEstimator{}
	}
	return &Packer{window: windowTokens, est: est}
}

// Pack selects the chunks that fit alongside query and systemPrompt.
// Chunks are walked in descending score order (ties keep input order);
// each that fits whole is admitted. The first chunk that does not fit is
// cut to the largest prefix within the remaining budget, suffixed with an
// ellipsis, and ends the walk. With no budget left, nothing more is
// admitted.
func (p *Packer) Pack(query string, chunks []ScoredChunk, systemPrompt string) []ScoredChunk {
	available := p.window - p.est.Estimate(query) - p.est.Estimate(systemPrompt) - generationReserve
	if available <= 0 || len(chunks) == 0 {
		return nil
	}

	sorted := make([]ScoredChunk, len(chunks))
	copy(sorted, chunks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	var kept []ScoredChunk
	for _, sc := range sorted {
		cost := p.est.Estimate(sc.Chunk.Content)
		if cost <= available {
			kept = append(kept, sc)
			available -= cost
			continue
		}
		if available > 0 {
			if prefix := p.prefixWithinBudget(sc.Chunk.Content, available); prefix != "" {
				cut := sc
				cut.Chunk.Content = prefix + "..."
				kept = append(kept, cut)
			}
		}
		break
	}
	return kept
}

// prefixWithinBudget returns the longest rune prefix of content whose
// estimate stays within budget. Estimates grow monotonically with prefix
// length, so binary search applies.
func (p *Packer) prefixWithinBudget(content string, budget int) string {
	runes := []rune(content)
	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if p.est.Estimate(string(runes[:mid])) <= budget {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return string(runes[:lo])
}
