package provider

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/consul/api"
)

// ConsulProvider loads config from a consul KV key and watches it with
// blocking queries.
type ConsulProvider struct {
	kv   *api.KV
	path string
}

// NewConsulProvider creates a provider reading the given KV key. The first
// endpoint is used as the consul address.
func NewConsulProvider(endpoints []string, path string) (*ConsulProvider, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("consul endpoints are required")
	}

	cfg := api.DefaultConfig()
	cfg.Address = endpoints[0]

	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consul client: %w", err)
	}

	return &ConsulProvider{kv: client.KV(), path: path}, nil
}

// Type returns TypeConsul.
func (p *ConsulProvider) Type() Type {
	return TypeConsul
}

// Load reads the KV key.
func (p *ConsulProvider) Load(ctx context.Context) ([]byte, error) {
	pair, _, err := p.kv.Get(p.path, (&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to read consul key %s: %w", p.path, err)
	}
	if pair == nil {
		return nil, fmt.Errorf("consul key %s not found", p.path)
	}
	return pair.Value, nil
}

// Watch starts a blocking-query loop on the key.
func (p *ConsulProvider) Watch(ctx context.Context) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)
	go p.watchLoop(ctx, ch)

	slog.Info("Watching consul key", "key", p.path)
	return ch, nil
}

// watchLoop runs consul blocking queries. The first pass primes the modify
// index without signalling; later index movement signals a change.
func (p *ConsulProvider) watchLoop(ctx context.Context, ch chan<- struct{}) {
	defer close(ch)

	var index uint64
	primed := false

	for {
		if ctx.Err() != nil {
			return
		}

		opts := (&api.QueryOptions{
			WaitIndex: index,
			WaitTime:  5 * time.Minute,
		}).WithContext(ctx)

		_, meta, err := p.kv.Get(p.path, opts)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			slog.Error("Consul watch error", "key", p.path, "error", err)
			if !sleepCtx(ctx, 2*time.Second) {
				return
			}
			continue
		}
		if meta == nil {
			continue
		}

		// Index moved backwards: reset per consul blocking-query rules.
		if meta.LastIndex < index {
			index = 0
			continue
		}

		if meta.LastIndex != index {
			index = meta.LastIndex
			if primed {
				select {
				case ch <- struct{}{}:
					slog.Debug("Consul key changed", "key", p.path)
				default:
				}
			}
		}
		primed = true
	}
}

// Close releases resources. The consul client holds none worth closing.
func (p *ConsulProvider) Close() error {
	return nil
}

var _ Provider = (*ConsulProvider)(nil)
