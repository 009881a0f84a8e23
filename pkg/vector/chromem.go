package vector

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/philippgille/chromem-go"
)

// ChromemConfig configures the embedded chromem provider.
type ChromemConfig struct {
	// PersistPath enables file persistence when set. The directory is
	// created if missing; empty keeps vectors in memory only.
	PersistPath string `yaml:"persist_path,omitempty"`

	// Compress gzips the persisted database.
	Compress bool `yaml:"compress,omitempty"`
}

// ChromemProvider stores vectors with chromem-go: pure Go, in-process,
// optional gzip persistence. Single process only; use qdrant at scale.
type ChromemProvider struct {
	db          *chromem.DB
	persistPath string
	compress    bool

	mu          sync.RWMutex
	collections map[string]*chromem.Collection
}

var _ Provider = (*ChromemProvider)(nil)

// NewChromemProvider opens or creates an embedded store.
func NewChromemProvider(cfg ChromemConfig) (*ChromemProvider, error) {
	var db *chromem.DB

	if cfg.PersistPath != "" {
		if err := os.MkdirAll(cfg.PersistPath, 0o755); err != nil {
			return nil, fmt.Errorf("vector: create persist directory: %w", err)
		}
		dbPath := chromemDBPath(cfg.PersistPath, cfg.Compress)
		if _, statErr := os.Stat(dbPath); statErr == nil {
			loaded, err := chromem.NewPersistentDB(dbPath, cfg.Compress)
			if err != nil {
				slog.Warn("Could not load vector database, starting fresh",
					"path", dbPath, "error", err)
				db = chromem.NewDB()
			} else {
				db = loaded
				slog.Info("Loaded vector database", "path", dbPath)
			}
		} else {
			db = chromem.NewDB()
		}
	} else {
		db = chromem.NewDB()
	}

	return &ChromemProvider{
		db:          db,
		persistPath: cfg.PersistPath,
		compress:    cfg.Compress,
		collections: make(map[string]*chromem.Collection),
	}, nil
}

func (p *ChromemProvider) Name() string { return "chromem" }

// getCollection gets or creates a collection. The embedding func rejects
// calls: vectors always arrive pre-computed from the embed gateway.
func (p *ChromemProvider) getCollection(name string) (*chromem.Collection, error) {
	p.mu.RLock()
	if col, ok := p.collections[name]; ok {
		p.mu.RUnlock()
		return col, nil
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if col, ok := p.collections[name]; ok {
		return col, nil
	}

	col, err := p.db.GetOrCreateCollection(name, nil, rejectEmbedding)
	if err != nil {
		return nil, fmt.Errorf("vector: get/create collection %q: %w", name, err)
	}
	p.collections[name] = col
	return col, nil
}

func rejectEmbedding(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("vector: vectors must be pre-computed")
}

func (p *ChromemProvider) EnsureCollection(_ context.Context, collection string, _ int) error {
	if err := validateNonEmpty(collection); err != nil {
		return err
	}
	_, err := p.getCollection(collection)
	return err
}

func (p *ChromemProvider) Upsert(ctx context.Context, collection string, points []Point) error {
	if err := validateNonEmpty(collection); err != nil {
		return err
	}
	if len(points) == 0 {
		return nil
	}
	col, err := p.getCollection(collection)
	if err != nil {
		return err
	}

	docs := make([]chromem.Document, 0, len(points))
	for _, pt := range points {
		if pt.ID == "" {
			return fmt.Errorf("vector: point ID is required")
		}
		meta := make(map[string]string, len(pt.Payload))
		for k, v := range pt.Payload {
			meta[k] = fmt.Sprint(v)
		}
		docs = append(docs, chromem.Document{
			ID:        pt.ID,
			Content:   contentFromPayload(pt.Payload),
			Metadata:  meta,
			Embedding: pt.Vector,
		})
	}

	if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("vector: upsert %d documents into %q: %w", len(docs), collection, err)
	}

	if err := p.persist(); err != nil {
		slog.Warn("Vector persistence failed after upsert", "error", err)
	}
	return nil
}

func (p *ChromemProvider) Search(ctx context.Context, collection string, vector []float32, limit int, threshold float32) ([]Match, error) {
	if err := validateNonEmpty(collection); err != nil {
		return nil, err
	}
	col, err := p.getCollection(collection)
	if err != nil {
		return nil, err
	}

	// chromem rejects nResults above the stored document count.
	n := limit
	if count := col.Count(); n > count {
		n = count
	}
	if n <= 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("vector: search %q: %w", collection, err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		if r.Similarity < threshold {
			continue
		}
		payload := make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			payload[k] = v
		}
		matches = append(matches, Match{
			ID:      r.ID,
			Score:   r.Similarity,
			Content: r.Content,
			Payload: payload,
		})
	}
	return matches, nil
}

func (p *ChromemProvider) Delete(ctx context.Context, collection string, ids []string) error {
	if err := validateNonEmpty(collection); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	col, err := p.getCollection(collection)
	if err != nil {
		return err
	}

	if err := col.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("vector: delete from %q: %w", collection, err)
	}

	if err := p.persist(); err != nil {
		slog.Warn("Vector persistence failed after delete", "error", err)
	}
	return nil
}

func (p *ChromemProvider) DropCollection(_ context.Context, collection string) error {
	if err := validateNonEmpty(collection); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.db.DeleteCollection(collection); err != nil {
		return fmt.Errorf("vector: drop collection %q: %w", collection, err)
	}
	delete(p.collections, collection)

	if err := p.persist(); err != nil {
		slog.Warn("Vector persistence failed after drop", "error", err)
	}
	return nil
}

// Close flushes the database to disk when persistence is enabled.
func (p *ChromemProvider) Close() error {
	return p.persist()
}

func (p *ChromemProvider) persist() error {
	if p.persistPath == "" {
		return nil
	}
	dbPath := chromemDBPath(p.persistPath, p.compress)
	//nolint:staticcheck // Export remains the stable persistence entry point.
	if err := p.db.Export(dbPath, p.compress, ""); err != nil {
		return fmt.Errorf("vector: persist database: %w", err)
	}
	return nil
}

func chromemDBPath(dir string, compress bool) string {
	name := "vectors.gob"
	if compress {
		name += ".gz"
	}
	return filepath.Join(dir, name)
}
