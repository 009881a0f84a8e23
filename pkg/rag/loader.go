package rag

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"
)

// defaultMaxFileSize caps files the loader will read.
const defaultMaxFileSize = 10 << 20 // 10 MiB

// DirectoryLoader walks a directory tree and converts every readable file
// into a Document via an extractor set. Files that cannot be extracted
// are logged and skipped; only the walk itself can fail the load.
type DirectoryLoader struct {
	extractors  *ExtractorSet
	maxFileSize int64
}

// NewDirectoryLoader builds a loader. maxFileSize ≤ 0 selects the 10 MiB
// default.
func NewDirectoryLoader(extractors *ExtractorSet, maxFileSize int64) *DirectoryLoader {
	if extractors == nil {
		extractors = NewExtractorSet()
	}
	if maxFileSize <= 0 {
		maxFileSize = defaultMaxFileSize
	}
	return &DirectoryLoader{extractors: extractors, maxFileSize: maxFileSize}
}

// Load reads every eligible file under root. Document IDs are
// slash-separated paths relative to root, so reloading the same tree
// overwrites rather than duplicates. Hidden files and directories, empty
// files, and files over the size cap are skipped.
func (l *DirectoryLoader) Load(ctx context.Context, root string) ([]Document, error) {
	var docs []Document

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if err != nil {
			if d == nil {
				return err // root itself is unreadable
			}
			slog.Warn("Skipping unreadable path", "path", path, "error", err)
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		name := d.Name()
		if d.IsDir() {
			if path != root && name != "" && name[0] == '.' {
				return filepath.SkipDir
			}
			return nil
		}
		if name == "" || name[0] == '.' {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			slog.Warn("Skipping file without metadata", "path", path, "error", err)
			return nil
		}
		if info.Size() == 0 || info.Size() > l.maxFileSize {
			return nil
		}

		extracted, err := l.extractors.Extract(ctx, path)
		if err != nil {
			slog.Warn("Skipping unextractable file", "path", path, "error", err)
			return nil
		}
		if extracted.Content == "" {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}

		metadata := map[string]any{
			"source":   filepath.ToSlash(rel),
			"modified": info.ModTime().Format(time.RFC3339),
		}
		for k, v := range extracted.Metadata {
			metadata[k] = v
		}
		docs = append(docs, Document{
			ID:       filepath.ToSlash(rel),
			Content:  extracted.Content,
			Metadata: metadata,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load directory %s: %w", root, err)
	}

	slog.Info("Directory loaded", "root", root, "documents", len(docs))
	return docs, nil
}
