// Package rag implements the retrieval pipeline: sentence-aware chunking,
// vector retrieval in four modes, result fusion, context packing, and
// grounded answer generation.
//
// The engine degrades instead of failing: retrieval errors produce empty
// results, generation errors produce an error answer with zero confidence,
// and Query never returns an error to the caller.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/herald-crm/herald/pkg/chat"
	"github.com/herald-crm/herald/pkg/embed"
	"github.com/herald-crm/herald/pkg/observability"
	"github.com/herald-crm/herald/pkg/router"
	"github.com/herald-crm/herald/pkg/tokens"
	"github.com/herald-crm/herald/pkg/vector"
)

// Generator is the completion surface the engine needs from the model
// layer. The runtime adapts *router.Router to it.
type Generator interface {
	ChatCompletion(ctx context.Context, req router.Request) (router.Response, error)
}

// Gateway call budgets.
const (
	searchTimeout = 10 * time.Second
	embedTimeout  = 15 * time.Second
	rerankTimeout = 15 * time.Second
)

// previewRunes bounds the content preview attached to answer sources.
const previewRunes = 100

const (
	engineSystemPrompt = "你是一名专业的客户关系管理智能助手。请仅依据提供的参考资料回答问题，资料不足时如实说明，不要编造内容。"

	noContextAnswer = "抱歉，知识库中没有找到与您的问题相关的资料。"

	generationFailedAnswer = "已检索到相关资料，但生成回答时出现问题，请稍后重试。"
)

// Engine owns the retrieval pipeline. The vector store, embedder,
// reranker, and model router are shared gateways; the chunker and packer
// are owned and rebuilt on every config update.
type Engine struct {
	store       vector.Provider
	embedder    embed.Embedder
	reranker    embed.Reranker
	llm         Generator
	paraphraser Paraphraser
	est         tokens.Estimator

	mu      sync.RWMutex
	cfg     Config
	chunker *SentenceChunker
	packer  *Packer
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithReranker replaces the default no-op reranker.
func WithReranker(r embed.Reranker) EngineOption {
	return func(e *Engine) {
		if r != nil {
			e.reranker = r
		}
	}
}

// WithParaphraser replaces the default template paraphraser.
func WithParaphraser(p Paraphraser) EngineOption {
	return func(e *Engine) {
		if p != nil {
			e.paraphraser = p
		}
	}
}

// WithEstimator replaces the default heuristic token estimator.
func WithEstimator(est tokens.Estimator) EngineOption {
	return func(e *Engine) {
		if est != nil {
			e.est = est
		}
	}
}

// NewEngine builds an engine. The store and embedder are required; llm
// may be nil for retrieval-only use, in which case generation degrades to
// an error answer.
func NewEngine(cfg Config, store vector.Provider, embedder embed.Embedder, llm Generator, opts ...EngineOption) (*Engine, error) {
	if store == nil {
		return nil, newEngineError(KindValidation, "New", "", "vector store is required", nil)
	}
	if embedder == nil {
		return nil, newEngineError(KindValidation, "New", "", "embedder is required", nil)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, newEngineError(KindValidation, "New", "", "invalid config", err)
	}

	e := &Engine{
		store:       store,
		embedder:    embedder,
		reranker:    embed.NoopReranker{},
		llm:         llm,
		paraphraser: NewTemplateParaphraser(),
		est:         tokens.HeuristicEstimator{},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.cfg = cfg
	e.chunker = NewSentenceChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	e.packer = NewPacker(cfg.ContextWindowTokens, e.est)
	return e, nil
}

// Config returns the current configuration snapshot.
func (e *Engine) Config() Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// UpdateConfig atomically replaces the configuration and rebuilds the
// chunker and packer. The rebuild is logged even when the new config
// equals the old one.
func (e *Engine) UpdateConfig(cfg Config) error {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return newEngineError(KindValidation, "UpdateConfig", "", "invalid config", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = cfg
	e.chunker = NewSentenceChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	e.packer = NewPacker(cfg.ContextWindowTokens, e.est)

	slog.Info("RAG pipeline rebuilt",
		"chunk_size", cfg.ChunkSize,
		"chunk_overlap", cfg.ChunkOverlap,
		"top_k", cfg.TopK,
		"similarity_threshold", cfg.SimilarityThreshold,
		"rerank_top_k", cfg.RerankTopK,
		"context_window_tokens", cfg.ContextWindowTokens,
		"rerank_enabled", cfg.RerankEnabled(),
		"fusion_enabled", cfg.FusionEnabled())
	return nil
}

func (e *Engine) snapshot() (Config, *SentenceChunker, *Packer) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg, e.chunker, e.packer
}

// AddDocuments chunks, embeds, and upserts documents into a collection.
// Chunk IDs are derived from the document ID and chunk index, so
// re-ingesting a document overwrites its previous chunks.
func (e *Engine) AddDocuments(ctx context.Context, collection string, docs []Document) error {
	if collection == "" {
		return newEngineError(KindValidation, "AddDocuments", "", "collection name is required", nil)
	}
	if len(docs) == 0 {
		return nil
	}
	_, chunker, _ := e.snapshot()

	var (
		ids      []string
		contents []string
		payloads []map[string]any
	)
	for _, doc := range docs {
		pieces := chunker.Split(doc.Content)
		for i, content := range pieces {
			payload := make(map[string]any, len(doc.Metadata)+4)
			for k, v := range doc.Metadata {
				payload[k] = v
			}
			payload["original_doc_id"] = doc.ID
			payload["chunk_index"] = i
			payload["total_chunks"] = len(pieces)
			payload["content"] = content

			ids = append(ids, fmt.Sprintf("%s_%d", doc.ID, i))
			contents = append(contents, content)
			payloads = append(payloads, payload)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	if err := e.store.EnsureCollection(ctx, collection, e.embedder.Dimension()); err != nil {
		return newEngineError(classifyErr(err), "AddDocuments", collection, "ensure collection", err)
	}

	vectors, err := e.embedder.EmbedBatch(ctx, contents)
	if err != nil {
		return newEngineError(classifyErr(err), "AddDocuments", collection,
			fmt.Sprintf("embed %d chunks", len(contents)), err)
	}
	if len(vectors) != len(contents) {
		return newEngineError(KindInternal, "AddDocuments", collection,
			fmt.Sprintf("embedder returned %d vectors for %d chunks", len(vectors), len(contents)), nil)
	}

	points := make([]vector.Point, len(ids))
	for i := range ids {
		points[i] = vector.Point{ID: ids[i], Vector: vectors[i], Payload: payloads[i]}
	}
	if err := e.store.Upsert(ctx, collection, points); err != nil {
		return newEngineError(classifyErr(err), "AddDocuments", collection,
			fmt.Sprintf("upsert %d chunks", len(points)), err)
	}

	slog.Info("Documents indexed",
		"collection", collection, "documents", len(docs), "chunks", len(ids))
	return nil
}

// Retrieve runs one retrieval pass. It never returns an error: gateway
// failures degrade to an empty result with the error noted in metadata.
func (e *Engine) Retrieve(ctx context.Context, query string, mode RetrievalMode, collection string) RetrievalResult {
	cfg, _, _ := e.snapshot()
	start := time.Now()

	tracer := observability.Tracer("herald.rag")
	ctx, span := tracer.Start(ctx, observability.SpanRetrieval,
		trace.WithAttributes(
			attribute.String(observability.AttrRetrievalMode, string(mode)),
			attribute.String("retrieval.collection", collection),
		))
	defer span.End()

	docs, err := e.retrieve(ctx, cfg, query, mode, collection)
	elapsed := time.Since(start)
	observability.GlobalRecorder().RecordRetrieval(ctx, string(mode), elapsed, len(docs), err)

	result := RetrievalResult{
		Mode:        mode,
		RetrievalMs: elapsed.Milliseconds(),
		Metadata:    map[string]any{"collection": collection},
	}
	if err != nil {
		slog.Warn("Retrieval degraded to empty result",
			"mode", mode, "collection", collection, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		result.Metadata["error"] = err.Error()
		return result
	}

	for i := range docs {
		if docs[i].Chunk.Metadata == nil {
			docs[i].Chunk.Metadata = make(map[string]any, 1)
		}
		docs[i].Chunk.Metadata["score"] = docs[i].Score
	}
	result.Documents = docs

	span.SetAttributes(attribute.Int("retrieval.documents", len(docs)))
	span.SetStatus(codes.Ok, "success")
	return result
}

func (e *Engine) retrieve(ctx context.Context, cfg Config, query string, mode RetrievalMode, collection string) ([]ScoredChunk, error) {
	switch mode {
	case ModeSimple, "":
		return e.retrieveSimple(ctx, cfg, collection, query)
	case ModeFusion:
		if !cfg.FusionEnabled() {
			return e.retrieveSimple(ctx, cfg, collection, query)
		}
		return e.retrieveFusion(ctx, cfg, collection, query)
	case ModeRerank:
		return e.retrieveRerank(ctx, cfg, collection, query)
	case ModeHybrid:
		return e.retrieveHybrid(ctx, cfg, collection, query)
	default:
		slog.Warn("Unknown retrieval mode, using simple", "mode", mode)
		return e.retrieveSimple(ctx, cfg, collection, query)
	}
}

func (e *Engine) retrieveSimple(ctx context.Context, cfg Config, collection, query string) ([]ScoredChunk, error) {
	vec, err := e.embedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return e.search(ctx, collection, vec, cfg.TopK, cfg.SimilarityThreshold)
}

func (e *Engine) retrieveFusion(ctx context.Context, cfg Config, collection, query string) ([]ScoredChunk, error) {
	fused, err := e.fusedSearch(ctx, cfg, collection, query)
	if err != nil {
		return nil, err
	}
	if len(fused) > cfg.TopK {
		fused = fused[:cfg.TopK]
	}
	return fused, nil
}

func (e *Engine) retrieveRerank(ctx context.Context, cfg Config, collection, query string) ([]ScoredChunk, error) {
	vec, err := e.embedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	candidates, err := e.search(ctx, collection, vec, 2*cfg.TopK, 0.7*cfg.SimilarityThreshold)
	if err != nil {
		return nil, err
	}
	return e.rerankChunks(ctx, query, candidates, cfg.RerankTopK), nil
}

func (e *Engine) retrieveHybrid(ctx context.Context, cfg Config, collection, query string) ([]ScoredChunk, error) {
	var fused []ScoredChunk
	var err error
	if cfg.FusionEnabled() {
		fused, err = e.fusedSearch(ctx, cfg, collection, query)
	} else {
		fused, err = e.retrieveSimple(ctx, cfg, collection, query)
	}
	if err != nil {
		return nil, err
	}

	if len(fused) > cfg.RerankTopK {
		if cfg.RerankEnabled() {
			return e.rerankChunks(ctx, query, fused, cfg.RerankTopK), nil
		}
		fused = fused[:cfg.RerankTopK]
	}
	return fused, nil
}

// fusedSearch embeds the query and its paraphrases in one batch, searches
// for each in parallel at a relaxed threshold, and fuses the lists with
// reciprocal rank fusion.
func (e *Engine) fusedSearch(ctx context.Context, cfg Config, collection, query string) ([]ScoredChunk, error) {
	queries := append([]string{query}, e.paraphraser.Paraphrase(ctx, query, 2)...)

	ectx, cancel := context.WithTimeout(ctx, embedTimeout)
	defer cancel()
	vectors, err := e.embedder.EmbedBatch(ectx, queries)
	if err != nil {
		return nil, fmt.Errorf("embed query variants: %w", err)
	}

	threshold := 0.8 * cfg.SimilarityThreshold
	lists := make([][]ScoredChunk, len(vectors))
	g, gctx := errgroup.WithContext(ctx)
	for i, vec := range vectors {
		g.Go(func() error {
			list, err := e.search(gctx, collection, vec, cfg.TopK, threshold)
			if err != nil {
				return err
			}
			lists[i] = list
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fusion search: %w", err)
	}
	return Fuse(lists, FusionRRF), nil
}

// rerankChunks reorders candidates through the rerank gateway and replaces
// vector scores with rerank scores. A gateway failure keeps the vector
// ordering instead of dropping the candidates.
func (e *Engine) rerankChunks(ctx context.Context, query string, candidates []ScoredChunk, topK int) []ScoredChunk {
	if len(candidates) == 0 {
		return nil
	}
	docs := make([]string, len(candidates))
	for i, sc := range candidates {
		docs[i] = sc.Chunk.Content
	}

	rctx, cancel := context.WithTimeout(ctx, rerankTimeout)
	defer cancel()
	ranked, err := e.reranker.Rerank(rctx, query, docs, topK)
	if err != nil {
		slog.Warn("Rerank failed, keeping vector order", "error", err)
		if len(candidates) > topK {
			candidates = candidates[:topK]
		}
		return candidates
	}

	out := make([]ScoredChunk, 0, len(ranked))
	for _, r := range ranked {
		if r.Index < 0 || r.Index >= len(candidates) {
			continue
		}
		sc := candidates[r.Index]
		sc.Score = float64(r.Score)
		out = append(out, sc)
	}
	return out
}

func (e *Engine) embedQuery(ctx context.Context, text string) ([]float32, error) {
	ectx, cancel := context.WithTimeout(ctx, embedTimeout)
	defer cancel()
	return e.embedder.Embed(ectx, text)
}

func (e *Engine) search(ctx context.Context, collection string, vec []float32, limit int, threshold float64) ([]ScoredChunk, error) {
	sctx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()
	matches, err := e.store.Search(sctx, collection, vec, limit, float32(threshold))
	if err != nil {
		return nil, fmt.Errorf("vector search in %s: %w", collection, err)
	}
	chunks := make([]ScoredChunk, len(matches))
	for i, m := range matches {
		chunks[i] = matchToChunk(m)
	}
	return chunks, nil
}

// matchToChunk rebuilds a chunk from a stored point. The payload map is
// copied, never aliased: providers may hand back their internal maps.
func matchToChunk(m vector.Match) ScoredChunk {
	metadata := make(map[string]any, len(m.Payload))
	for k, v := range m.Payload {
		if k != "content" {
			metadata[k] = v
		}
	}
	return ScoredChunk{
		Chunk: Chunk{
			ID:            m.ID,
			OriginalDocID: payloadString(m.Payload, "original_doc_id"),
			ChunkIndex:    payloadInt(m.Payload, "chunk_index"),
			TotalChunks:   payloadInt(m.Payload, "total_chunks"),
			Content:       m.Content,
			Metadata:      metadata,
		},
		Score: float64(m.Score),
	}
}

func payloadString(payload map[string]any, key string) string {
	s, _ := payload[key].(string)
	return s
}

// payloadInt tolerates the numeric types a payload round trip can produce.
func payloadInt(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// Generate answers query from the given chunks. The packer decides what
// fits; an empty pack yields the no-context answer without a model call.
func (e *Engine) Generate(ctx context.Context, query string, chunks []ScoredChunk, mode RetrievalMode) (string, error) {
	cfg, _, packer := e.snapshot()

	kept := packer.Pack(query, chunks, engineSystemPrompt)
	if len(kept) == 0 {
		return noContextAnswer, nil
	}
	if e.llm == nil {
		return "", fmt.Errorf("rag: no model configured for generation")
	}

	resp, err := e.llm.ChatCompletion(ctx, router.Request{
		Messages: []chat.Message{
			chat.System(engineSystemPrompt),
			chat.User(buildAnswerPrompt(query, kept)),
		},
		Temperature: router.Float64Ptr(cfg.Temperature),
		MaxTokens:   cfg.MaxGenTokens,
	})
	if err != nil {
		return "", fmt.Errorf("rag: generate answer: %w", err)
	}

	slog.Debug("Answer generated", "mode", mode, "evidence", len(kept))
	return resp.Content, nil
}

// buildAnswerPrompt lays out kept chunks as numbered evidence blocks
// followed by the question. The 【n】 markers survive wire
// canonicalization, so evidence stays addressable after whitespace
// collapses.
func buildAnswerPrompt(query string, kept []ScoredChunk) string {
	var b strings.Builder
	b.WriteString("参考资料：\n")
	for i, sc := range kept {
		fmt.Fprintf(&b, "【%d】%s\n", i+1, strings.TrimSpace(sc.Chunk.Content))
	}
	b.WriteString("\n问题：")
	b.WriteString(sanitizeQuery(query))
	b.WriteString("\n\n请仅根据上述参考资料回答问题，并在引用时标注资料编号。资料不足以回答时，请直接说明。")
	return b.String()
}

// Query is the full pipeline: retrieve, pack, generate, score. It never
// returns an error; failures degrade to localized answers with zero
// confidence.
func (e *Engine) Query(ctx context.Context, question string, mode RetrievalMode, collection string) Answer {
	start := time.Now()
	ret := e.Retrieve(ctx, question, mode, collection)

	answer := Answer{
		Mode:        mode,
		RetrievalMs: ret.RetrievalMs,
		Metadata: map[string]any{
			"mode":       string(mode),
			"collection": collection,
		},
	}

	if len(ret.Documents) == 0 {
		answer.Answer = noContextAnswer
		answer.TotalMs = time.Since(start).Milliseconds()
		return answer
	}

	genStart := time.Now()
	text, err := e.Generate(ctx, question, ret.Documents, mode)
	answer.GenerationMs = time.Since(genStart).Milliseconds()
	answer.TotalMs = time.Since(start).Milliseconds()

	if err != nil {
		slog.Warn("Answer generation failed", "mode", mode, "error", err)
		answer.Answer = generationFailedAnswer
		answer.Metadata["error"] = err.Error()
		return answer
	}

	answer.Answer = text
	answer.Sources = buildSources(ret.Documents)
	answer.Confidence = Confidence(chunkScores(ret.Documents))
	return answer
}

func buildSources(docs []ScoredChunk) []Source {
	sources := make([]Source, len(docs))
	for i, sc := range docs {
		sources[i] = Source{
			Index:          i + 1,
			ContentPreview: preview(sc.Chunk.Content, previewRunes),
			Metadata:       sc.Chunk.Metadata,
			Score:          sc.Score,
		}
	}
	return sources
}

func preview(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
