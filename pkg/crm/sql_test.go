package crm

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteDirectory(t *testing.T) *SQLDirectory {
	t.Helper()

	cfg := Config{
		Driver:   "sqlite",
		Database: filepath.Join(t.TempDir(), "crm.db"),
	}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())

	d, err := NewSQLDirectory(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestSQLDirectoryRoundTrip(t *testing.T) {
	d := newSQLiteDirectory(t)
	ctx := context.Background()

	c := &Customer{
		Name:     "Delta Logistics",
		Industry: "logistics",
		Scale:    "medium",
		Region:   "south china",
		Website:  "https://delta.example.com",
		Phone:    "+86-10-0000-0000",
		Email:    "sales@delta.example.com",
		Score:    0.74,
		Source:   "discovery_workflow",
		Notes:    []string{"contacted via email", "follow-up scheduled"},
	}
	require.NoError(t, d.CreateCustomer(ctx, c))
	require.NotEmpty(t, c.ID)

	got, err := d.Customer(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.Name, got.Name)
	assert.Equal(t, c.Industry, got.Industry)
	assert.Equal(t, c.Scale, got.Scale)
	assert.Equal(t, c.Region, got.Region)
	assert.Equal(t, c.Website, got.Website)
	assert.Equal(t, c.Phone, got.Phone)
	assert.Equal(t, c.Email, got.Email)
	assert.InDelta(t, c.Score, got.Score, 1e-9)
	assert.Equal(t, c.Source, got.Source)
	assert.Equal(t, c.Notes, got.Notes)
	assert.WithinDuration(t, c.CreatedAt, got.CreatedAt, time.Second)
}

func TestSQLDirectoryNotFound(t *testing.T) {
	d := newSQLiteDirectory(t)

	_, err := d.Customer(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLDirectoryList(t *testing.T) {
	d := newSQLiteDirectory(t)
	ctx := context.Background()

	for _, name := range []string{"One", "Two", "Three"} {
		require.NoError(t, d.CreateCustomer(ctx, &Customer{Name: name}))
		time.Sleep(5 * time.Millisecond)
	}

	list, err := d.ListCustomers(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "Three", list[0].Name, "list should be newest first")
}

func TestSQLDirectoryDuplicateID(t *testing.T) {
	d := newSQLiteDirectory(t)
	ctx := context.Background()

	c := &Customer{ID: "fixed-id", Name: "First"}
	require.NoError(t, d.CreateCustomer(ctx, c))

	dup := &Customer{ID: "fixed-id", Name: "Second"}
	assert.Error(t, d.CreateCustomer(ctx, dup))
}

func TestSQLDirectoryEmptyNotes(t *testing.T) {
	d := newSQLiteDirectory(t)
	ctx := context.Background()

	c := &Customer{Name: "No Notes"}
	require.NoError(t, d.CreateCustomer(ctx, c))

	got, err := d.Customer(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Notes)
}
