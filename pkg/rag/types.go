package rag

// Document is an ingest input: one logical source document before chunking.
type Document struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Chunk is one retrievable piece of a document. Immutable once created:
// produced by the chunker at ingest, stored in the vector store, and
// returned by retrieval.
type Chunk struct {
	ID            string         `json:"id"`
	OriginalDocID string         `json:"original_doc_id"`
	ChunkIndex    int            `json:"chunk_index"`
	TotalChunks   int            `json:"total_chunks"`
	Content       string         `json:"content"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// ScoredChunk pairs a chunk with a relevance score. Higher is better.
// Depending on the pipeline stage the score is a cosine similarity, a
// fused score, or a rerank score.
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// RetrievalMode selects the retrieval pipeline.
type RetrievalMode string

const (
	// ModeSimple is a single vector search.
	ModeSimple RetrievalMode = "simple"

	// ModeFusion searches with the query plus paraphrases and fuses the
	// result lists with reciprocal rank fusion.
	ModeFusion RetrievalMode = "fusion"

	// ModeRerank over-fetches candidates and reorders them with the
	// rerank gateway.
	ModeRerank RetrievalMode = "rerank"

	// ModeHybrid fuses first, then reranks the fused list.
	ModeHybrid RetrievalMode = "hybrid"
)

// RetrievalResult is the outcome of one retrieval pass.
type RetrievalResult struct {
	Documents   []ScoredChunk  `json:"documents"`
	Mode        RetrievalMode  `json:"mode"`
	RetrievalMs int64          `json:"retrieval_time_ms"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Source describes one piece of evidence behind an answer. Index matches
// the numbering used in the generation prompt (1-based).
type Source struct {
	Index          int            `json:"index"`
	ContentPreview string         `json:"content_preview"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Score          float64        `json:"score"`
}

// Answer is the result of a full retrieve-and-generate pass.
type Answer struct {
	Answer       string         `json:"answer"`
	Sources      []Source       `json:"sources"`
	Confidence   float64        `json:"confidence"`
	RetrievalMs  int64          `json:"retrieval_ms"`
	GenerationMs int64          `json:"generation_ms"`
	TotalMs      int64          `json:"total_ms"`
	Mode         RetrievalMode  `json:"mode"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}
