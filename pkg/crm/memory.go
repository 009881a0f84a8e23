package crm

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryDirectory keeps customers in process memory. Zero-config default
// and the store behind tests and one-shot CLI runs.
type MemoryDirectory struct {
	mu        sync.RWMutex
	customers map[string]*Customer
}

// NewMemoryDirectory returns an empty in-memory directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		customers: make(map[string]*Customer),
	}
}

// CreateCustomer inserts a record.
func (d *MemoryDirectory) CreateCustomer(ctx context.Context, c *Customer) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now

	d.mu.Lock()
	defer d.mu.Unlock()

	stored := *c
	d.customers[c.ID] = &stored
	return nil
}

// Customer looks up a record by id.
func (d *MemoryDirectory) Customer(ctx context.Context, id string) (*Customer, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	c, ok := d.customers[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *c
	return &out, nil
}

// ListCustomers returns all records, newest first.
func (d *MemoryDirectory) ListCustomers(ctx context.Context) ([]*Customer, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*Customer, 0, len(d.customers))
	for _, c := range d.customers {
		copied := *c
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Close is a no-op for the in-memory directory.
func (d *MemoryDirectory) Close() error {
	return nil
}

var _ Directory = (*MemoryDirectory)(nil)
