package vector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryProvider keeps vectors in process memory and scans exhaustively on
// search. It is the default for tests and single-shot CLI runs; durable
// deployments use chromem or qdrant.
type MemoryProvider struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

type memoryCollection struct {
	dimension int
	points    map[string]Point
}

// NewMemoryProvider creates an empty in-memory store.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{collections: make(map[string]*memoryCollection)}
}

var _ Provider = (*MemoryProvider)(nil)

func (p *MemoryProvider) Name() string { return "memory" }

func (p *MemoryProvider) EnsureCollection(_ context.Context, collection string, dimension int) error {
	if err := validateNonEmpty(collection); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.collections[collection]; !ok {
		p.collections[collection] = &memoryCollection{
			dimension: dimension,
			points:    make(map[string]Point),
		}
	}
	return nil
}

func (p *MemoryProvider) Upsert(ctx context.Context, collection string, points []Point) error {
	if err := validateNonEmpty(collection); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	col, ok := p.collections[collection]
	if !ok {
		dim := 0
		if len(points) > 0 {
			dim = len(points[0].Vector)
		}
		col = &memoryCollection{dimension: dim, points: make(map[string]Point)}
		p.collections[collection] = col
	}

	for _, pt := range points {
		if pt.ID == "" {
			return fmt.Errorf("vector: point ID is required")
		}
		if col.dimension > 0 && len(pt.Vector) != col.dimension {
			return fmt.Errorf("vector: dimension mismatch in %q: got %d, want %d",
				collection, len(pt.Vector), col.dimension)
		}
		col.points[pt.ID] = pt
	}
	return nil
}

func (p *MemoryProvider) Search(_ context.Context, collection string, vector []float32, limit int, threshold float32) ([]Match, error) {
	if err := validateNonEmpty(collection); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	col, ok := p.collections[collection]
	if !ok {
		return nil, nil
	}

	matches := make([]Match, 0, len(col.points))
	for _, pt := range col.points {
		score := cosineSimilarity(vector, pt.Vector)
		if score < threshold {
			continue
		}
		matches = append(matches, Match{
			ID:      pt.ID,
			Score:   score,
			Content: contentFromPayload(pt.Payload),
			Payload: pt.Payload,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (p *MemoryProvider) Delete(_ context.Context, collection string, ids []string) error {
	if err := validateNonEmpty(collection); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	col, ok := p.collections[collection]
	if !ok {
		return nil
	}
	for _, id := range ids {
		delete(col.points, id)
	}
	return nil
}

func (p *MemoryProvider) DropCollection(_ context.Context, collection string) error {
	if err := validateNonEmpty(collection); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.collections, collection)
	return nil
}

func (p *MemoryProvider) Close() error { return nil }

// Count reports the number of points stored in a collection.
func (p *MemoryProvider) Count(collection string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if col, ok := p.collections[collection]; ok {
		return len(col.points)
	}
	return 0
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
