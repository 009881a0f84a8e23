package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/herald-crm/herald/pkg/rag"
	"github.com/herald-crm/herald/pkg/runtime"
)

// IngestCmd loads files or directory trees into a knowledge collection.
type IngestCmd struct {
	Paths []string `arg:"" help:"Files or directories to ingest." type:"path"`

	Collection string `help:"Target knowledge collection." default:"sales_knowledge"`
}

func (c *IngestCmd) Run(cli *CLI) error {
	ctx := context.Background()

	core, err := runtime.New(ctx, cli.options())
	if err != nil {
		return err
	}
	defer core.Close()

	extractors := rag.NewExtractorSet()
	loader := rag.NewDirectoryLoader(extractors, 0)

	var docs []rag.Document
	for _, path := range c.Paths {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}

		if info.IsDir() {
			loaded, err := loader.Load(ctx, path)
			if err != nil {
				return fmt.Errorf("load %s: %w", path, err)
			}
			docs = append(docs, loaded...)
			continue
		}

		extracted, err := extractors.Extract(ctx, path)
		if err != nil {
			return fmt.Errorf("extract %s: %w", path, err)
		}
		docs = append(docs, rag.Document{
			ID:       filepath.ToSlash(filepath.Clean(path)),
			Content:  extracted.Content,
			Metadata: extracted.Metadata,
		})
	}

	if len(docs) == 0 {
		fmt.Println("nothing to ingest")
		return nil
	}

	if err := core.Engine().AddDocuments(ctx, c.Collection, docs); err != nil {
		return err
	}
	fmt.Printf("ingested %d documents into %s\n", len(docs), c.Collection)
	return nil
}
