package agent

import (
	"context"
	"fmt"

	"github.com/herald-crm/herald/pkg/registry"
)

// Communicator routes messages to agents by id. Agents hold a Communicator
// instead of each other, which keeps the agent graph acyclic.
type Communicator interface {
	// Dispatch runs the full lifecycle of the addressed agent.
	Dispatch(ctx context.Context, agentID string, msg Message) (Response, error)
	// Agents lists the reachable agent ids in stable order.
	Agents() []string
}

// Hub is the in-process Communicator backed by the shared registry.
type Hub struct {
	agents *registry.BaseRegistry[Agent]
}

var _ Communicator = (*Hub)(nil)

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{agents: registry.NewBaseRegistry[Agent]()}
}

// Register adds an agent under its id. Duplicate ids error.
func (h *Hub) Register(a Agent) error {
	if a == nil {
		return fmt.Errorf("hub: nil agent")
	}
	return h.agents.Register(a.ID(), a)
}

// Get returns the agent registered under id.
func (h *Hub) Get(id string) (Agent, bool) {
	return h.agents.Get(id)
}

// Dispatch implements Communicator.
func (h *Hub) Dispatch(ctx context.Context, agentID string, msg Message) (Response, error) {
	a, ok := h.agents.Get(agentID)
	if !ok {
		return Response{}, fmt.Errorf("hub: unknown agent %q", agentID)
	}
	return HandleMessage(ctx, a, msg), nil
}

// Agents implements Communicator.
func (h *Hub) Agents() []string {
	return h.agents.Names()
}
