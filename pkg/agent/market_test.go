package agent

import (
	"context"
	"reflect"
	"strings"
	"testing"
)

func TestProspectCandidatesDeterministic(t *testing.T) {
	a := NewMarketAgent(Services{})
	criteria := map[string]string{"industry": "制造业"}

	first := a.ProspectCandidates(context.Background(), criteria, 20)
	second := a.ProspectCandidates(context.Background(), criteria, 20)

	if len(first) != 20 {
		t.Fatalf("len = %d, want 20", len(first))
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("identical criteria produced different candidate lists")
	}
}

func TestProspectCandidatesCriteria(t *testing.T) {
	a := NewMarketAgent(Services{})

	fixed := a.ProspectCandidates(context.Background(), map[string]string{
		"industry": "金融",
		"region":   "华南",
		"scale":    "中型",
	}, 6)
	for _, c := range fixed {
		if c.Industry != "金融" || c.Region != "华南" || c.Scale != "中型" {
			t.Fatalf("candidate = %+v, want fixed criteria applied", c)
		}
		if c.Source != "市场推演" {
			t.Errorf("Source = %q, want 市场推演 without knowledge", c.Source)
		}
	}

	open := a.ProspectCandidates(context.Background(), nil, 6)
	if open[0].Industry != "综合" {
		t.Errorf("Industry = %q, want the 综合 default", open[0].Industry)
	}
	if open[0].Region != "华东" || open[1].Region != "华北" {
		t.Errorf("regions = %q, %q, want the rotation to start 华东, 华北", open[0].Region, open[1].Region)
	}
	if open[0].Scale != "大型" || open[1].Scale != "中型" || open[2].Scale != "小型" {
		t.Errorf("scales = %q, %q, %q, want the 大中小 rotation", open[0].Scale, open[1].Scale, open[2].Scale)
	}
	if open[0].Name != "华东综合大型企业01" {
		t.Errorf("Name = %q", open[0].Name)
	}
}

func TestProspectCandidatesLimitClamp(t *testing.T) {
	a := NewMarketAgent(Services{})
	if got := len(a.ProspectCandidates(context.Background(), nil, 0)); got != MaxProspects {
		t.Errorf("limit 0 produced %d, want %d", got, MaxProspects)
	}
	if got := len(a.ProspectCandidates(context.Background(), nil, 25)); got != MaxProspects {
		t.Errorf("limit 25 produced %d, want %d", got, MaxProspects)
	}
	if got := len(a.ProspectCandidates(context.Background(), nil, 5)); got != 5 {
		t.Errorf("limit 5 produced %d", got)
	}
}

func TestProspectCandidatesKnowledgeSource(t *testing.T) {
	know := &fakeKnowledge{answer: knowledgeAnswer("制造业线索画像")}
	a := NewMarketAgent(Services{Knowledge: know})

	cited := a.ProspectCandidates(context.Background(), map[string]string{"industry": "制造业"}, 3)
	if cited[0].Source != "知识库+市场推演" {
		t.Errorf("Source = %q, want the knowledge citation", cited[0].Source)
	}

	know.queries = nil
	open := a.ProspectCandidates(context.Background(), nil, 3)
	if len(know.queries) != 0 {
		t.Errorf("queries = %v, want none for the 综合 default", know.queries)
	}
	if open[0].Source != "市场推演" {
		t.Errorf("Source = %q", open[0].Source)
	}
}

func TestProspectLimit(t *testing.T) {
	tests := []struct {
		entities map[string]string
		want     int
	}{
		{map[string]string{"count": "5"}, 5},
		{map[string]string{"count": "50"}, MaxProspects},
		{map[string]string{"count": "abc"}, 10},
		{nil, 10},
	}
	for _, tt := range tests {
		if got := prospectLimit(tt.entities); got != tt.want {
			t.Errorf("prospectLimit(%v) = %d, want %d", tt.entities, got, tt.want)
		}
	}
}

func TestMarketAnalyzeRouting(t *testing.T) {
	a := NewMarketAgent(Services{})
	tests := []struct {
		content string
		want    string
	}{
		{"帮我找10家制造业的潜在客户", taskProspectSource},
		{"近期行业趋势如何", taskTrendSummary},
		{"竞品有什么动作", taskCompetitorWatch},
		{"帮我调研华东区域市场", taskRegionAnalysis},
		{"这个行业市场规模多大", taskIndustryScan},
		{"你好", marketConsult},
	}
	for _, tt := range tests {
		got := a.Analyze(context.Background(), Message{Content: tt.content})
		if got.TaskType != tt.want {
			t.Errorf("Analyze(%q).TaskType = %q, want %q", tt.content, got.TaskType, tt.want)
		}
		if got.NeedsCollaboration {
			t.Errorf("Analyze(%q) requests collaboration", tt.content)
		}
	}
}

func TestMarketExecuteProspectSourcing(t *testing.T) {
	a := NewMarketAgent(Services{})
	msg := Message{Content: "帮我找10家制造业的潜在客户"}

	result, err := a.Execute(context.Background(), msg, a.Analyze(context.Background(), msg))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	candidates, ok := result.Data["candidates"].([]PotentialCustomer)
	if !ok {
		t.Fatalf("candidates missing: %#v", result.Data)
	}
	if len(candidates) != 10 {
		t.Fatalf("len = %d, want the requested 10", len(candidates))
	}
	if candidates[0].Industry != "制造业" {
		t.Errorf("Industry = %q", candidates[0].Industry)
	}
	answer, _ := result.Data["answer"].(string)
	if !strings.Contains(answer, "候选客户（10家）") {
		t.Errorf("answer = %q", answer)
	}
}

func TestMarketExecuteUsesTaskPrompt(t *testing.T) {
	gen := &fakeGenerator{}
	a := NewMarketAgent(Services{LLM: gen})
	msg := Message{Content: "竞品有什么动作"}

	result, err := a.Execute(context.Background(), msg, a.Analyze(context.Background(), msg))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got, _ := result.Data["answer"].(string); got != "模型回答" {
		t.Errorf("answer = %q", got)
	}
	req := gen.lastCall(t)
	if req.Messages[0].Content != marketPrompts[taskCompetitorWatch] {
		t.Errorf("system prompt = %q, want the competitor watch prompt", req.Messages[0].Content)
	}
}

func TestMarketRespondCopiesCandidates(t *testing.T) {
	a := NewMarketAgent(Services{})
	candidates := []PotentialCustomer{{Name: "华东综合大型企业01"}}

	resp := a.Respond(context.Background(), TaskResult{
		Success:      true,
		ResponseType: taskProspectSource,
		Data:         map[string]any{"answer": "名单", "candidates": candidates},
	}, nil)

	got, ok := resp.Metadata["candidates"].([]PotentialCustomer)
	if !ok || len(got) != 1 {
		t.Fatalf("candidates metadata = %#v", resp.Metadata["candidates"])
	}
	if len(resp.NextActions) == 0 {
		t.Error("NextActions empty for prospect sourcing")
	}
}
