package vector

import (
	"context"
	"math"
	"testing"
)

func TestMemoryUpsertAndSearch(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider()

	points := []Point{
		{ID: "a", Vector: []float32{1, 0}, Payload: map[string]any{"content": "first"}},
		{ID: "b", Vector: []float32{0, 1}, Payload: map[string]any{"content": "second"}},
		{ID: "c", Vector: []float32{0.9, 0.1}, Payload: map[string]any{"content": "third"}},
	}
	if err := p.Upsert(ctx, "docs", points); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	matches, err := p.Search(ctx, "docs", []float32{1, 0}, 10, 0)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("Search() returned %d matches, want 3", len(matches))
	}
	if matches[0].ID != "a" {
		t.Errorf("best match = %s, want a", matches[0].ID)
	}
	if matches[0].Content != "first" {
		t.Errorf("best match content = %q, want %q", matches[0].Content, "first")
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].Score > matches[i-1].Score {
			t.Errorf("matches not sorted descending at %d", i)
		}
	}
}

func TestMemorySearchThreshold(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider()

	_ = p.Upsert(ctx, "docs", []Point{
		{ID: "near", Vector: []float32{1, 0}},
		{ID: "far", Vector: []float32{-1, 0}},
	})

	matches, err := p.Search(ctx, "docs", []float32{1, 0}, 10, 0.5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "near" {
		t.Errorf("Search() = %v, want only %q", matches, "near")
	}
}

func TestMemorySearchLimit(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider()

	_ = p.Upsert(ctx, "docs", []Point{
		{ID: "a", Vector: []float32{1, 0}},
		{ID: "b", Vector: []float32{0.9, 0.1}},
		{ID: "c", Vector: []float32{0.8, 0.2}},
	})

	matches, err := p.Search(ctx, "docs", []float32{1, 0}, 2, 0)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(matches) != 2 {
		t.Errorf("Search() returned %d matches, want 2", len(matches))
	}
}

func TestMemoryUpsertIdempotent(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider()

	_ = p.Upsert(ctx, "docs", []Point{{ID: "a", Vector: []float32{1, 0}}})
	_ = p.Upsert(ctx, "docs", []Point{{ID: "a", Vector: []float32{0, 1}, Payload: map[string]any{"content": "updated"}}})

	if got := p.Count("docs"); got != 1 {
		t.Fatalf("Count() = %d, want 1 after re-upsert", got)
	}

	matches, _ := p.Search(ctx, "docs", []float32{0, 1}, 1, 0)
	if len(matches) != 1 || matches[0].Content != "updated" {
		t.Errorf("re-upsert did not replace point: %v", matches)
	}
}

func TestMemoryDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider()

	if err := p.EnsureCollection(ctx, "docs", 2); err != nil {
		t.Fatalf("EnsureCollection() error = %v", err)
	}
	err := p.Upsert(ctx, "docs", []Point{{ID: "a", Vector: []float32{1, 2, 3}}})
	if err == nil {
		t.Error("Upsert() expected dimension mismatch error")
	}
}

func TestMemoryDelete(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider()

	_ = p.Upsert(ctx, "docs", []Point{
		{ID: "a", Vector: []float32{1, 0}},
		{ID: "b", Vector: []float32{0, 1}},
	})
	if err := p.Delete(ctx, "docs", []string{"a", "missing"}); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if got := p.Count("docs"); got != 1 {
		t.Errorf("Count() = %d, want 1", got)
	}
}

func TestMemorySearchUnknownCollection(t *testing.T) {
	p := NewMemoryProvider()
	matches, err := p.Search(context.Background(), "missing", []float32{1}, 5, 0)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("Search() = %v, want empty", matches)
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{name: "identical", a: []float32{1, 2}, b: []float32{1, 2}, want: 1},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 0},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-1, 0}, want: -1},
		{name: "length_mismatch", a: []float32{1}, b: []float32{1, 2}, want: 0},
		{name: "zero_vector", a: []float32{0, 0}, b: []float32{1, 2}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := float64(cosineSimilarity(tt.a, tt.b))
			if math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("cosineSimilarity() = %v, want %v", got, tt.want)
			}
		})
	}
}
