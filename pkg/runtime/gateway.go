package runtime

import (
	"context"

	"github.com/herald-crm/herald/pkg/agent"
	"github.com/herald-crm/herald/pkg/chat"
	"github.com/herald-crm/herald/pkg/embed"
	"github.com/herald-crm/herald/pkg/rag"
	"github.com/herald-crm/herald/pkg/router"
)

// modelGateway adapts the router to the completion surfaces the other
// components consume. A non-empty model pins requests to it, which is how
// the reranker gets its own model without its own router.
type modelGateway struct {
	router *router.Router
	model  string
}

var (
	_ agent.Generator = (*modelGateway)(nil)
	_ rag.Generator   = (*modelGateway)(nil)
	_ embed.Generator = (*modelGateway)(nil)
)

func (g *modelGateway) ChatCompletion(ctx context.Context, req router.Request) (router.Response, error) {
	if req.Model == "" {
		req.Model = g.model
	}
	resp, err := g.router.ChatCompletion(ctx, req)
	if err != nil {
		return router.Response{}, err
	}
	return *resp, nil
}

func (g *modelGateway) Generate(ctx context.Context, system, user string) (string, error) {
	resp, err := g.router.ChatCompletion(ctx, router.Request{
		Model:    g.model,
		Messages: []chat.Message{chat.System(system), chat.User(user)},
		Fallback: router.FallbackNextModel,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
