package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/herald-crm/herald/pkg/chat"
	"github.com/herald-crm/herald/pkg/router"
)

const (
	paraphraseTemperature = 0.7
	paraphraseMaxTokens   = 200
)

// Paraphraser produces alternative phrasings of a query for fusion
// retrieval. Implementations never fail: on trouble they return fewer
// paraphrases, down to none.
type Paraphraser interface {
	Paraphrase(ctx context.Context, query string, n int) []string
}

// TemplateParaphraser rewrites the query with fixed templates. It is the
// default strategy: free, deterministic, and language-agnostic enough for
// recall purposes.
type TemplateParaphraser struct {
	templates []string
}

// NewTemplateParaphraser returns the stock two-template paraphraser.
func NewTemplateParaphraser() *TemplateParaphraser {
	return &TemplateParaphraser{templates: []string{
		"information about %s",
		"%s related content",
	}}
}

func (t *TemplateParaphraser) Paraphrase(_ context.Context, query string, n int) []string {
	if n > len(t.templates) {
		n = len(t.templates)
	}
	out := make([]string, 0, n)
	for _, tmpl := range t.templates[:n] {
		out = append(out, fmt.Sprintf(tmpl, query))
	}
	return out
}

// ModelParaphraser asks a model for rephrasings and falls back to
// templates when the call or the parse comes up short.
type ModelParaphraser struct {
	llm      Generator
	fallback *TemplateParaphraser
}

// NewModelParaphraser wraps a model generator. A nil generator degrades
// to the template strategy.
func NewModelParaphraser(llm Generator) *ModelParaphraser {
	return &ModelParaphraser{llm: llm, fallback: NewTemplateParaphraser()}
}

const paraphrasePrompt = `Rewrite the following search query %d times. Each rewrite should look for the same information with different wording, synonyms, or a different angle.

Query: %q

Answer with the rewrites only, one per line, no numbering.`

func (m *ModelParaphraser) Paraphrase(ctx context.Context, query string, n int) []string {
	if n <= 0 {
		return nil
	}
	if m.llm == nil {
		return m.fallback.Paraphrase(ctx, query, n)
	}

	prompt := fmt.Sprintf(paraphrasePrompt, n, sanitizeQuery(query))
	resp, err := m.llm.ChatCompletion(ctx, router.Request{
		Messages:    []chat.Message{chat.User(prompt)},
		Temperature: router.Float64Ptr(paraphraseTemperature),
		MaxTokens:   paraphraseMaxTokens,
	})
	if err != nil {
		slog.Warn("Query paraphrase failed, using templates", "error", err)
		return m.fallback.Paraphrase(ctx, query, n)
	}

	paraphrases := parseParaphrases(resp.Content, query, n)

	if len(paraphrases) < n {
		for _, t := range m.fallback.Paraphrase(ctx, query, n) {
			if len(paraphrases) >= n {
				break
			}
			paraphrases = append(paraphrases, t)
		}
	}
	return paraphrases
}

// parseParaphrases pulls up to n distinct rewrites out of a model
// response, one per line. Bullets, numbering, and quotes are shed; the
// original query and duplicates are skipped.
func parseParaphrases(response, original string, n int) []string {
	seen := map[string]bool{strings.ToLower(strings.TrimSpace(original)): true}
	var out []string
	for _, line := range strings.Split(response, "\n") {
		q := strings.TrimSpace(line)
		for _, prefix := range []string{"-", "•", "*", "1.", "2.", "3.", "4.", "5."} {
			q = strings.TrimSpace(strings.TrimPrefix(q, prefix))
		}
		q = strings.Trim(q, `"'“”`)
		if q == "" || seen[strings.ToLower(q)] {
			continue
		}
		seen[strings.ToLower(q)] = true
		out = append(out, q)
		if len(out) >= n {
			break
		}
	}
	return out
}
