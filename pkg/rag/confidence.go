package rag

import "math"

// Confidence folds retrieval scores into a single [0,1] scalar: mostly the
// mean score, nudged down by score spread and up by evidence count (five
// or more sources saturate the count term). No scores means no confidence.
func Confidence(scores []float64) float64 {
	n := len(scores)
	if n == 0 {
		return 0
	}

	var sum float64
	for _, s := range scores {
		sum += s
	}
	avg := sum / float64(n)

	var variance float64
	for _, s := range scores {
		d := s - avg
		variance += d * d
	}
	variance /= float64(n)

	c := 0.7*avg + 0.2*(1-variance) + 0.1*math.Min(float64(n)/5, 1)
	return math.Max(0, math.Min(1, c))
}

func chunkScores(chunks []ScoredChunk) []float64 {
	scores := make([]float64, len(chunks))
	for i, sc := range chunks {
		scores[i] = sc.Score
	}
	return scores
}
