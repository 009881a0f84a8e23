package rag

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/herald-crm/herald/pkg/embed"
	"github.com/herald-crm/herald/pkg/router"
	"github.com/herald-crm/herald/pkg/vector"
)

const testCollection = "crm_knowledge"

// fakeEmbedder returns scripted vectors for known texts and a fallback
// vector for everything else (queries, paraphrases).
type fakeEmbedder struct {
	mu       sync.Mutex
	vectors  map[string][]float32
	fallback []float32
	singles  int
	batches  int
}

func (f *fakeEmbedder) vec(text string) []float32 {
	if v, ok := f.vectors[text]; ok {
		return v
	}
	return f.fallback
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.singles++
	f.mu.Unlock()
	return f.vec(text), nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.batches++
	f.mu.Unlock()
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vec(t)
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return len(f.fallback) }
func (f *fakeEmbedder) Name() string   { return "fake" }
func (f *fakeEmbedder) Close() error   { return nil }

func (f *fakeEmbedder) counts() (singles, batches int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.singles, f.batches
}

// fakeReranker records the documents it saw and replies with a scripted
// ranking or a scripted error.
type fakeReranker struct {
	mu      sync.Mutex
	gotDocs []string
	ranked  []embed.RankedDoc
	err     error
}

func (f *fakeReranker) Rerank(_ context.Context, _ string, docs []string, _ int) ([]embed.RankedDoc, error) {
	f.mu.Lock()
	f.gotDocs = append([]string(nil), docs...)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.ranked, nil
}

func (f *fakeReranker) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gotDocs
}

// failingStore wraps the memory provider with a search that always fails.
type failingStore struct {
	*vector.MemoryProvider
}

func (f *failingStore) Search(context.Context, string, []float32, int, float32) ([]vector.Match, error) {
	return nil, errors.New("store offline")
}

// Knowledge base for the pipeline tests. The query always embeds to the
// fallback [1,1,1]; cosine similarities against it are churn ≈ 0.80,
// renewal ≈ 0.70, pricing ≈ 0.68, all above the relaxed thresholds.
const (
	renewalContent = "续约策略：提前九十天联系客户，评估使用情况。"
	pricingContent = "定价方案：按年付费可享受八五折优惠。"
	churnContent   = "流失预警：登录频率下降与工单激增是主要信号。"
)

func knowledgeDocs() []Document {
	return []Document{
		{ID: "renewal", Content: renewalContent, Metadata: map[string]any{"topic": "renewal"}},
		{ID: "pricing", Content: pricingContent},
		{ID: "churn", Content: churnContent},
	}
}

func knowledgeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{
		vectors: map[string][]float32{
			renewalContent: {1, 0.25, 0},
			pricingContent: {0.2, 1, 0},
			churnContent:   {0.1, 0.4, 1},
		},
		fallback: []float32{1, 1, 1},
	}
}

type engineFixture struct {
	engine   *Engine
	embedder *fakeEmbedder
	reranker *fakeReranker
	gen      *fakeGenerator
	store    *vector.MemoryProvider
}

func newEngineFixture(t *testing.T, cfg Config) *engineFixture {
	t.Helper()
	fx := &engineFixture{
		embedder: knowledgeEmbedder(),
		reranker: &fakeReranker{},
		gen:      &fakeGenerator{},
		store:    vector.NewMemoryProvider(),
	}
	var err error
	fx.engine, err = NewEngine(cfg, fx.store, fx.embedder, fx.gen, WithReranker(fx.reranker))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if err := fx.engine.AddDocuments(context.Background(), testCollection, knowledgeDocs()); err != nil {
		t.Fatalf("AddDocuments: %v", err)
	}
	return fx
}

func pipelineConfig() Config {
	return Config{SimilarityThreshold: 0.5, RerankTopK: 2}
}

func TestNewEngineValidation(t *testing.T) {
	emb := knowledgeEmbedder()
	if _, err := NewEngine(Config{}, nil, emb, nil); err == nil {
		t.Error("NewEngine accepted a nil store")
	}
	if _, err := NewEngine(Config{}, vector.NewMemoryProvider(), nil, nil); err == nil {
		t.Error("NewEngine accepted a nil embedder")
	}
	if _, err := NewEngine(Config{Temperature: 5}, vector.NewMemoryProvider(), emb, nil); err == nil {
		t.Error("NewEngine accepted an invalid config")
	}
}

func TestAddDocumentsIdempotent(t *testing.T) {
	fx := newEngineFixture(t, pipelineConfig())
	ctx := context.Background()

	// Second ingest of the same documents overwrites by chunk ID.
	if err := fx.engine.AddDocuments(ctx, testCollection, knowledgeDocs()); err != nil {
		t.Fatalf("AddDocuments (second): %v", err)
	}

	if got := fx.store.Count(testCollection); got != 3 {
		t.Fatalf("store holds %d points after double ingest, want 3", got)
	}
	matches, err := fx.store.Search(ctx, testCollection, []float32{1, 1, 1}, 100, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	byID := map[string]vector.Match{}
	for _, m := range matches {
		byID[m.ID] = m
	}
	m, ok := byID["renewal_0"]
	if !ok {
		t.Fatalf("chunk renewal_0 missing, have %v", byID)
	}
	if m.Payload["original_doc_id"] != "renewal" {
		t.Errorf("original_doc_id = %v, want renewal", m.Payload["original_doc_id"])
	}
	if m.Payload["chunk_index"] != 0 || m.Payload["total_chunks"] != 1 {
		t.Errorf("chunk position payload = %v/%v, want 0/1", m.Payload["chunk_index"], m.Payload["total_chunks"])
	}
	if m.Payload["topic"] != "renewal" {
		t.Errorf("document metadata not carried into payload: %v", m.Payload)
	}
}

func TestAddDocumentsRequiresCollection(t *testing.T) {
	fx := newEngineFixture(t, pipelineConfig())
	err := fx.engine.AddDocuments(context.Background(), "", knowledgeDocs())
	if err == nil {
		t.Error("AddDocuments accepted an empty collection name")
	}
	if !IsKind(err, KindValidation) {
		t.Errorf("AddDocuments error = %v, want kind %s", err, KindValidation)
	}
	if err := fx.engine.AddDocuments(context.Background(), testCollection, nil); err != nil {
		t.Errorf("AddDocuments with no documents = %v, want nil", err)
	}
}

func TestRetrieveSimpleOrdersByScore(t *testing.T) {
	fx := newEngineFixture(t, pipelineConfig())

	res := fx.engine.Retrieve(context.Background(), "客户经营问题", ModeSimple, testCollection)
	if got := ids(res.Documents); len(got) != 3 || got[0] != "churn_0" || got[1] != "renewal_0" || got[2] != "pricing_0" {
		t.Fatalf("simple retrieval order = %v, want [churn_0 renewal_0 pricing_0]", got)
	}
	for i := 1; i < len(res.Documents); i++ {
		if res.Documents[i].Score > res.Documents[i-1].Score {
			t.Errorf("scores not descending: %v then %v", res.Documents[i-1].Score, res.Documents[i].Score)
		}
	}
	for _, d := range res.Documents {
		if d.Chunk.Metadata["score"] != d.Score {
			t.Errorf("chunk %s metadata score = %v, want %v", d.Chunk.ID, d.Chunk.Metadata["score"], d.Score)
		}
	}
	if _, ok := res.Metadata["error"]; ok {
		t.Errorf("healthy retrieval carries error metadata: %v", res.Metadata)
	}
}

func TestRetrieveUnknownModeFallsBackToSimple(t *testing.T) {
	fx := newEngineFixture(t, pipelineConfig())

	res := fx.engine.Retrieve(context.Background(), "q", RetrievalMode("banana"), testCollection)
	if len(res.Documents) != 3 {
		t.Errorf("unknown mode returned %d documents, want simple's 3", len(res.Documents))
	}
	if _, ok := res.Metadata["error"]; ok {
		t.Errorf("unknown mode flagged an error: %v", res.Metadata)
	}
}

func TestRetrieveFusionDisabledUsesSingleQuery(t *testing.T) {
	cfg := pipelineConfig()
	cfg.EnableFusion = boolPtr(false)
	fx := newEngineFixture(t, cfg)

	_, batchesBefore := fx.embedder.counts()
	res := fx.engine.Retrieve(context.Background(), "q", ModeFusion, testCollection)
	singles, batches := fx.embedder.counts()

	if batches != batchesBefore {
		t.Errorf("fusion-disabled retrieval embedded a batch, want single-query embedding only")
	}
	if singles != 1 {
		t.Errorf("single embeds = %d, want 1", singles)
	}
	if len(res.Documents) != 3 {
		t.Errorf("got %d documents, want 3", len(res.Documents))
	}
}

func TestRetrieveFusionCapsAtTopK(t *testing.T) {
	cfg := pipelineConfig()
	cfg.TopK = 2
	fx := newEngineFixture(t, cfg)

	res := fx.engine.Retrieve(context.Background(), "q", ModeFusion, testCollection)
	if got := ids(res.Documents); len(got) != 2 || got[0] != "churn_0" || got[1] != "renewal_0" {
		t.Errorf("fusion results = %v, want top 2 by reciprocal rank [churn_0 renewal_0]", got)
	}
}

func TestRetrieveHybridRerankFailureKeepsVectorOrder(t *testing.T) {
	fx := newEngineFixture(t, pipelineConfig())
	fx.reranker.err = errors.New("rerank gateway down")

	res := fx.engine.Retrieve(context.Background(), "q", ModeHybrid, testCollection)
	if got := ids(res.Documents); len(got) != 2 || got[0] != "churn_0" || got[1] != "renewal_0" {
		t.Errorf("degraded hybrid results = %v, want vector-order head [churn_0 renewal_0]", got)
	}
	if _, ok := res.Metadata["error"]; ok {
		t.Errorf("rerank degradation flagged as retrieval error: %v", res.Metadata)
	}
}

func TestRetrieveDegradesOnStoreFailure(t *testing.T) {
	store := &failingStore{vector.NewMemoryProvider()}
	e, err := NewEngine(pipelineConfig(), store, knowledgeEmbedder(), nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	res := e.Retrieve(context.Background(), "q", ModeSimple, testCollection)
	if len(res.Documents) != 0 {
		t.Errorf("failed retrieval returned %d documents, want none", len(res.Documents))
	}
	msg, _ := res.Metadata["error"].(string)
	if !strings.Contains(msg, "store offline") {
		t.Errorf("error metadata = %q, want the store failure", msg)
	}
}

func TestQueryHybridPipeline(t *testing.T) {
	fx := newEngineFixture(t, pipelineConfig())
	fx.reranker.ranked = []embed.RankedDoc{{Index: 1, Score: 0.95}, {Index: 2, Score: 0.9}}
	const reply = "根据【1】，建议提前九十天启动续约流程。"
	fx.gen.reply = func(router.Request) (router.Response, error) {
		return router.Response{Content: reply}, nil
	}

	ans := fx.engine.Query(context.Background(), "客户续约应该怎么做？", ModeHybrid, testCollection)

	if ans.Answer != reply {
		t.Errorf("Answer = %q, want the model reply", ans.Answer)
	}
	if ans.Mode != ModeHybrid || ans.Metadata["mode"] != "hybrid" {
		t.Errorf("mode = %v / %v, want hybrid", ans.Mode, ans.Metadata["mode"])
	}

	// Reranker saw all three fused candidates in reciprocal-rank order.
	if seen := fx.reranker.seen(); len(seen) != 3 || seen[0] != churnContent || seen[1] != renewalContent {
		t.Errorf("reranker saw %d docs starting %.8s, want fused order churn/renewal/pricing", len(seen), strings.Join(seen, ","))
	}

	if len(ans.Sources) != 2 {
		t.Fatalf("got %d sources, want 2 reranked", len(ans.Sources))
	}
	if math.Abs(ans.Sources[0].Score-0.95) > 1e-6 || math.Abs(ans.Sources[1].Score-0.9) > 1e-6 {
		t.Errorf("source scores = %v / %v, want rerank scores 0.95 / 0.9",
			ans.Sources[0].Score, ans.Sources[1].Score)
	}
	if !strings.Contains(ans.Sources[0].ContentPreview, "续约策略") {
		t.Errorf("top source preview = %q, want the renewal chunk", ans.Sources[0].ContentPreview)
	}
	if ans.Sources[0].Index != 1 || ans.Sources[1].Index != 2 {
		t.Errorf("source indices = %d/%d, want 1/2", ans.Sources[0].Index, ans.Sources[1].Index)
	}
	if ans.Confidence <= 0 || ans.Confidence > 1 {
		t.Errorf("Confidence = %v, want in (0,1]", ans.Confidence)
	}
	if ans.RetrievalMs < 0 || ans.TotalMs < ans.GenerationMs {
		t.Errorf("timing inconsistent: retrieval %dms, generation %dms, total %dms",
			ans.RetrievalMs, ans.GenerationMs, ans.TotalMs)
	}

	// The model prompt carries numbered evidence and the question.
	if fx.gen.callCount() != 1 {
		t.Fatalf("generator called %d times, want 1", fx.gen.callCount())
	}
	prompt := fx.gen.calls[0].Messages[len(fx.gen.calls[0].Messages)-1].Content
	if !strings.Contains(prompt, "【1】"+renewalContent) {
		t.Errorf("prompt missing first evidence block:\n%s", prompt)
	}
	if !strings.Contains(prompt, "【2】"+pricingContent) {
		t.Errorf("prompt missing second evidence block:\n%s", prompt)
	}
	if !strings.Contains(prompt, "客户续约应该怎么做？") {
		t.Errorf("prompt missing the question:\n%s", prompt)
	}
}

func TestQueryNoResultsSkipsModel(t *testing.T) {
	emb := &fakeEmbedder{
		vectors:  map[string][]float32{"孤立文档内容。": {1, 0, 0}},
		fallback: []float32{0, 1, 0}, // orthogonal to everything stored
	}
	gen := &fakeGenerator{}
	e, err := NewEngine(pipelineConfig(), vector.NewMemoryProvider(), emb, gen)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	ctx := context.Background()
	if err := e.AddDocuments(ctx, testCollection, []Document{{ID: "d", Content: "孤立文档内容。"}}); err != nil {
		t.Fatalf("AddDocuments: %v", err)
	}

	ans := e.Query(ctx, "毫不相关的问题", ModeSimple, testCollection)
	if ans.Answer != noContextAnswer {
		t.Errorf("Answer = %q, want the no-context answer", ans.Answer)
	}
	if ans.Confidence != 0 || len(ans.Sources) != 0 {
		t.Errorf("empty retrieval produced confidence %v with %d sources", ans.Confidence, len(ans.Sources))
	}
	if gen.callCount() != 0 {
		t.Errorf("generator called %d times on empty retrieval, want 0", gen.callCount())
	}
}

func TestQueryGenerationFailure(t *testing.T) {
	fx := newEngineFixture(t, pipelineConfig())
	fx.reranker.ranked = []embed.RankedDoc{{Index: 0, Score: 0.9}}
	fx.gen.reply = func(router.Request) (router.Response, error) {
		return router.Response{}, errors.New("all fallbacks exhausted")
	}

	ans := fx.engine.Query(context.Background(), "q", ModeHybrid, testCollection)
	if ans.Answer != generationFailedAnswer {
		t.Errorf("Answer = %q, want the generation-failure answer", ans.Answer)
	}
	if ans.Confidence != 0 || len(ans.Sources) != 0 {
		t.Errorf("failed generation produced confidence %v with %d sources", ans.Confidence, len(ans.Sources))
	}
	msg, _ := ans.Metadata["error"].(string)
	if !strings.Contains(msg, "all fallbacks exhausted") {
		t.Errorf("error metadata = %q, want the generation failure", msg)
	}
}

func TestGenerateEmptyPackSkipsModel(t *testing.T) {
	fx := newEngineFixture(t, pipelineConfig())

	got, err := fx.engine.Generate(context.Background(), "q", nil, ModeSimple)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != noContextAnswer {
		t.Errorf("Generate with no chunks = %q, want the no-context answer", got)
	}
	if fx.gen.callCount() != 0 {
		t.Errorf("generator called %d times, want 0", fx.gen.callCount())
	}
}

func TestGenerateWithoutModel(t *testing.T) {
	e, err := NewEngine(pipelineConfig(), vector.NewMemoryProvider(), knowledgeEmbedder(), nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if _, err := e.Generate(context.Background(), "q", []ScoredChunk{sc("a", 0.9)}, ModeSimple); err == nil {
		t.Error("Generate without a model succeeded, want error")
	}
}

func TestUpdateConfigRebuilds(t *testing.T) {
	fx := newEngineFixture(t, pipelineConfig())

	next := pipelineConfig()
	next.ChunkSize = 256
	next.ChunkOverlap = 25
	if err := fx.engine.UpdateConfig(next); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	if got := fx.engine.Config(); got.ChunkSize != 256 || got.ChunkOverlap != 25 {
		t.Errorf("Config after update = %+v, want chunk size 256 / overlap 25", got)
	}

	bad := Config{ChunkSize: 10, ChunkOverlap: 20}
	if err := fx.engine.UpdateConfig(bad); err == nil {
		t.Error("UpdateConfig accepted overlap >= chunk size")
	}
	if got := fx.engine.Config(); got.ChunkSize != 256 {
		t.Errorf("rejected update still mutated config: %+v", got)
	}
}
