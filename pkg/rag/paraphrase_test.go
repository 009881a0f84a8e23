package rag

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/herald-crm/herald/pkg/router"
)

// fakeGenerator scripts ChatCompletion responses and records every
// request it saw. Shared by the paraphraser and engine tests.
type fakeGenerator struct {
	mu    sync.Mutex
	calls []router.Request
	reply func(router.Request) (router.Response, error)
}

func (f *fakeGenerator) ChatCompletion(_ context.Context, req router.Request) (router.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.reply != nil {
		return f.reply(req)
	}
	return router.Response{Content: "ok"}, nil
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestTemplateParaphrase(t *testing.T) {
	p := NewTemplateParaphraser()

	got := p.Paraphrase(context.Background(), "拓展企业客户", 2)
	want := []string{"information about 拓展企业客户", "拓展企业客户 related content"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Paraphrase = %v, want %v", got, want)
	}

	if got := p.Paraphrase(context.Background(), "q", 10); len(got) != 2 {
		t.Errorf("Paraphrase(n=10) returned %d rewrites, want capped at 2", len(got))
	}
}

func TestModelParaphraseParsesLines(t *testing.T) {
	gen := &fakeGenerator{reply: func(router.Request) (router.Response, error) {
		return router.Response{Content: "- \"how to win new clients\"\nhow to win new clients\n2. acquiring enterprise accounts\n\n"}, nil
	}}
	p := NewModelParaphraser(gen)

	got := p.Paraphrase(context.Background(), "customer acquisition", 2)
	want := []string{"how to win new clients", "acquiring enterprise accounts"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Paraphrase = %v, want %v", got, want)
	}
	if gen.callCount() != 1 {
		t.Errorf("generator called %d times, want 1", gen.callCount())
	}
}

func TestModelParaphraseFallsBackOnError(t *testing.T) {
	gen := &fakeGenerator{reply: func(router.Request) (router.Response, error) {
		return router.Response{}, errors.New("all providers down")
	}}
	p := NewModelParaphraser(gen)

	got := p.Paraphrase(context.Background(), "churn risk", 2)
	want := NewTemplateParaphraser().Paraphrase(context.Background(), "churn risk", 2)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Paraphrase after model error = %v, want template output %v", got, want)
	}
}

func TestModelParaphrasePadsShortResponses(t *testing.T) {
	gen := &fakeGenerator{reply: func(router.Request) (router.Response, error) {
		return router.Response{Content: "customer growth tactics"}, nil
	}}
	p := NewModelParaphraser(gen)

	got := p.Paraphrase(context.Background(), "growth", 2)
	if len(got) != 2 {
		t.Fatalf("Paraphrase returned %d rewrites, want padded to 2: %v", len(got), got)
	}
	if got[0] != "customer growth tactics" {
		t.Errorf("got[0] = %q, want the model rewrite first", got[0])
	}
}

func TestModelParaphraseNilGenerator(t *testing.T) {
	p := NewModelParaphraser(nil)
	if got := p.Paraphrase(context.Background(), "q", 2); len(got) != 2 {
		t.Errorf("nil-generator Paraphrase returned %d rewrites, want 2 from templates", len(got))
	}
	if got := p.Paraphrase(context.Background(), "q", 0); got != nil {
		t.Errorf("Paraphrase(n=0) = %v, want nil", got)
	}
}

func TestParseParaphrases(t *testing.T) {
	tests := []struct {
		name     string
		response string
		original string
		n        int
		want     []string
	}{
		{
			name:     "strips bullets and quotes",
			response: "• “扩大销售渠道”\n* 提升客户转化率",
			original: "销售",
			n:        3,
			want:     []string{"扩大销售渠道", "提升客户转化率"},
		},
		{
			name:     "skips the original query",
			response: "Customer Retention\nkeeping customers loyal",
			original: "customer retention",
			n:        3,
			want:     []string{"keeping customers loyal"},
		},
		{
			name:     "deduplicates case-insensitively",
			response: "Renewal Playbook\nrenewal playbook\nupsell timing",
			original: "renewals",
			n:        3,
			want:     []string{"Renewal Playbook", "upsell timing"},
		},
		{
			name:     "caps at n",
			response: "a1\na2\na3\na4",
			original: "q",
			n:        2,
			want:     []string{"a1", "a2"},
		},
		{
			name:     "empty response",
			response: "\n\n",
			original: "q",
			n:        2,
			want:     nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseParaphrases(tt.response, tt.original, tt.n)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseParaphrases(%q) = %v, want %v", tt.response, got, tt.want)
			}
		})
	}
}
