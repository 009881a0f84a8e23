// Package vector abstracts vector storage behind a small provider interface.
//
// Three implementations are provided: an in-process exact-scan store (tests,
// small corpora), an embedded chromem-go store with optional persistence, and
// a Qdrant client for external deployments. All providers score by cosine
// similarity and treat upserts as idempotent by point ID.
package vector

import (
	"context"
	"fmt"
)

// Point is a stored vector with its payload. Payload key "content" holds the
// chunk text by convention.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// Match is a search hit. Score is cosine similarity, higher is better.
type Match struct {
	ID      string
	Score   float32
	Content string
	Payload map[string]any
}

// Provider is the storage contract the retrieval engine depends on.
type Provider interface {
	// EnsureCollection creates the collection when absent. Existing
	// collections are left untouched.
	EnsureCollection(ctx context.Context, collection string, dimension int) error

	// Upsert inserts or replaces points by ID.
	Upsert(ctx context.Context, collection string, points []Point) error

	// Search returns up to limit matches with similarity ≥ threshold,
	// sorted by similarity descending. A zero threshold admits everything.
	Search(ctx context.Context, collection string, vector []float32, limit int, threshold float32) ([]Match, error)

	// Delete removes points by ID. Missing IDs are not an error.
	Delete(ctx context.Context, collection string, ids []string) error

	// DropCollection removes a collection and all its points.
	DropCollection(ctx context.Context, collection string) error

	// Name identifies the provider implementation.
	Name() string

	// Close releases resources and flushes any pending persistence.
	Close() error
}

func contentFromPayload(payload map[string]any) string {
	if c, ok := payload["content"].(string); ok {
		return c
	}
	return ""
}

func validateNonEmpty(collection string) error {
	if collection == "" {
		return fmt.Errorf("vector: collection name is required")
	}
	return nil
}
