package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/herald-crm/herald/pkg/rag"
	"github.com/herald-crm/herald/pkg/runtime"
)

// QueryCmd runs one retrieve-and-generate pass against a collection.
type QueryCmd struct {
	Question []string `arg:"" help:"The question to answer."`

	Collection string `help:"Knowledge collection to search." default:"sales_knowledge"`
	Mode       string `help:"Retrieval mode." default:"hybrid" enum:"simple,fusion,rerank,hybrid"`
	Sources    bool   `help:"Print the retrieved sources."`
}

func (c *QueryCmd) Run(cli *CLI) error {
	ctx := context.Background()

	core, err := runtime.New(ctx, cli.options())
	if err != nil {
		return err
	}
	defer core.Close()

	question := strings.Join(c.Question, " ")
	answer := core.Engine().Query(ctx, question, rag.RetrievalMode(c.Mode), c.Collection)

	fmt.Println(answer.Answer)
	fmt.Printf("\nconfidence %.2f · %d sources · %dms\n", answer.Confidence, len(answer.Sources), answer.TotalMs)

	if c.Sources {
		for _, src := range answer.Sources {
			fmt.Printf("  [%d] %.3f %s\n", src.Index, src.Score, src.ContentPreview)
		}
	}
	return nil
}
