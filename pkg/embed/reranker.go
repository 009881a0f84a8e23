package embed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// RankedDoc is a rerank result: Index points into the input document list.
type RankedDoc struct {
	Index int
	Score float32
}

// Reranker reorders documents by semantic relevance to a query. Results are
// sorted by score descending and capped at topK; omitted indices are
// unranked.
type Reranker interface {
	Rerank(ctx context.Context, query string, docs []string, topK int) ([]RankedDoc, error)
}

// Generator is the minimal completion surface the reranker needs. The model
// router satisfies it.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

const rerankTimeout = 15 * time.Second

// LLMReranker asks a model to order documents by relevance. Vector scores
// are replaced with position scores (1.0, 0.95, 0.90, ... floor 0.1), so
// threshold filtering must happen before reranking, not after.
type LLMReranker struct {
	generator Generator
	maxDocs   int
}

var _ Reranker = (*LLMReranker)(nil)

// NewLLMReranker builds a reranker on top of a completion generator.
// maxDocs caps how many documents are sent to the model (default 20).
func NewLLMReranker(generator Generator, maxDocs int) *LLMReranker {
	if maxDocs <= 0 {
		maxDocs = 20
	}
	return &LLMReranker{generator: generator, maxDocs: maxDocs}
}

const rerankSystemPrompt = "You are a search result ranking system. " +
	"Rank the numbered documents by relevance to the query. " +
	"Return a JSON array of document numbers, most relevant first, " +
	"for example: [2, 0, 3]. Return only the array."

// Rerank implements Reranker. On model or parse failure the input order is
// kept with position scores, so retrieval degrades instead of failing.
func (r *LLMReranker) Rerank(ctx context.Context, query string, docs []string, topK int) ([]RankedDoc, error) {
	if len(docs) == 0 || topK <= 0 {
		return nil, nil
	}

	limited := docs
	if len(limited) > r.maxDocs {
		limited = limited[:r.maxDocs]
	}

	ctx, cancel := context.WithTimeout(ctx, rerankTimeout)
	defer cancel()

	response, err := r.generator.Generate(ctx, rerankSystemPrompt, r.buildPrompt(query, limited))
	if err != nil {
		slog.Debug("Rerank generation failed, keeping input order", "error", err)
		return identityRanking(len(limited), topK), nil
	}

	order := parseIndexArray(response, len(limited))
	if len(order) == 0 {
		slog.Debug("Rerank response unparseable, keeping input order", "response_len", len(response))
		return identityRanking(len(limited), topK), nil
	}

	ranked := make([]RankedDoc, 0, topK)
	seen := make(map[int]bool, len(order))
	for _, idx := range order {
		if seen[idx] {
			continue
		}
		seen[idx] = true
		ranked = append(ranked, RankedDoc{Index: idx, Score: positionScore(len(ranked))})
		if len(ranked) == topK {
			return ranked, nil
		}
	}

	// Fill remaining slots with unranked documents in input order.
	for idx := range limited {
		if seen[idx] {
			continue
		}
		ranked = append(ranked, RankedDoc{Index: idx, Score: positionScore(len(ranked))})
		if len(ranked) == topK {
			break
		}
	}
	return ranked, nil
}

func (r *LLMReranker) buildPrompt(query string, docs []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Query: %s\n\nDocuments:\n\n", sanitize(query))
	for i, doc := range docs {
		if len(doc) > 500 {
			doc = doc[:500] + "..."
		}
		fmt.Fprintf(&sb, "[%d] %s\n\n", i, sanitize(doc))
	}
	sb.WriteString("Return the JSON array of document numbers sorted by relevance.")
	return sb.String()
}

func positionScore(position int) float32 {
	score := 1.0 - float32(position)*0.05
	if score < 0.1 {
		return 0.1
	}
	return score
}

func identityRanking(n, topK int) []RankedDoc {
	if n > topK {
		n = topK
	}
	ranked := make([]RankedDoc, n)
	for i := range ranked {
		ranked[i] = RankedDoc{Index: i, Score: positionScore(i)}
	}
	return ranked
}

// parseIndexArray extracts a JSON array of indices from a model response,
// tolerating code fences, quoted numbers, and stray prose. Out-of-range
// indices are dropped.
func parseIndexArray(response string, n int) []int {
	response = strings.TrimSpace(response)

	start := strings.Index(response, "[")
	end := strings.LastIndex(response, "]")
	if start >= 0 && end > start {
		raw := response[start : end+1]

		var ints []int
		if err := json.Unmarshal([]byte(raw), &ints); err == nil {
			return filterIndices(ints, n)
		}

		var strs []string
		normalized := strings.ReplaceAll(raw, "'", `"`)
		if err := json.Unmarshal([]byte(normalized), &strs); err == nil {
			ints = ints[:0]
			for _, s := range strs {
				if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
					ints = append(ints, v)
				}
			}
			return filterIndices(ints, n)
		}
	}

	// Last resort: pull bare integers out of the text.
	var ints []int
	for _, field := range strings.FieldsFunc(response, func(r rune) bool {
		return r < '0' || r > '9'
	}) {
		if v, err := strconv.Atoi(field); err == nil {
			ints = append(ints, v)
		}
	}
	return filterIndices(ints, n)
}

func filterIndices(ints []int, n int) []int {
	out := ints[:0]
	for _, v := range ints {
		if v >= 0 && v < n {
			out = append(out, v)
		}
	}
	return out
}

func sanitize(s string) string {
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// NoopReranker keeps input order; used when reranking is disabled but a
// Reranker is still required.
type NoopReranker struct{}

var _ Reranker = NoopReranker{}

// Rerank returns the first topK documents in input order.
func (NoopReranker) Rerank(_ context.Context, _ string, docs []string, topK int) ([]RankedDoc, error) {
	return identityRanking(len(docs), topK), nil
}
