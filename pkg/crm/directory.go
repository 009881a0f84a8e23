// Package crm provides the customer directory: the minimal persistence the
// core needs for customer records produced by the discovery workflow and
// consulted by agent tools.
package crm

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a customer id is unknown.
var ErrNotFound = errors.New("crm: customer not found")

// Customer is a directory record. Score carries the qualification score the
// sales agent assigned when the record was created.
type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Industry  string    `json:"industry,omitempty"`
	Scale     string    `json:"scale,omitempty"`
	Region    string    `json:"region,omitempty"`
	Website   string    `json:"website,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	Score     float64   `json:"score,omitempty"`
	Source    string    `json:"source,omitempty"`
	Notes     []string  `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Directory stores customer records.
//
// Implementations must be safe for concurrent use.
type Directory interface {
	// CreateCustomer inserts a record. A missing ID is generated; creation
	// timestamps are set by the directory.
	CreateCustomer(ctx context.Context, c *Customer) error

	// Customer looks up a record by id, returning ErrNotFound when absent.
	Customer(ctx context.Context, id string) (*Customer, error)

	// ListCustomers returns all records, newest first.
	ListCustomers(ctx context.Context) ([]*Customer, error)

	// Close releases the underlying store.
	Close() error
}

// New creates the directory selected by cfg: in-memory by default, SQL when
// a database driver is configured.
func New(cfg Config) (Directory, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Driver == "" || cfg.Driver == "memory" {
		return NewMemoryDirectory(), nil
	}
	return NewSQLDirectory(cfg)
}
