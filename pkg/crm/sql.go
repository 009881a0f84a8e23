package crm

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// DOUBLE PRECISION and VARCHAR are understood by all three dialects.
const createCustomersTableSQL = `
CREATE TABLE IF NOT EXISTS customers (
    id VARCHAR(64) PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    industry VARCHAR(255),
    scale VARCHAR(64),
    region VARCHAR(255),
    website VARCHAR(255),
    phone VARCHAR(64),
    email VARCHAR(255),
    score DOUBLE PRECISION,
    source VARCHAR(255),
    notes TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
)`

// SQLDirectory stores customers in a relational database.
type SQLDirectory struct {
	db      *sql.DB
	dialect string
}

// NewSQLDirectory opens the configured database, initializes the schema, and
// returns the directory.
func NewSQLDirectory(cfg Config) (*SQLDirectory, error) {
	driverName := cfg.DriverName()

	db, err := sql.Open(driverName, cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time. A single connection
	// serializes all access and prevents "database is locked" errors.
	if driverName == "sqlite3" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		if cfg.MaxConns > 0 {
			db.SetMaxOpenConns(cfg.MaxConns)
		}
		if cfg.MaxIdle > 0 {
			db.SetMaxIdleConns(cfg.MaxIdle)
		}
	}
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", cfg.Driver, err)
	}

	if driverName == "sqlite3" {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			slog.Warn("Failed to enable WAL mode", "error", err)
		}
		if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=10000"); err != nil {
			slog.Warn("Failed to set busy timeout", "error", err)
		}
	}

	d := &SQLDirectory{db: db, dialect: cfg.Driver}
	if err := d.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	slog.Info("Customer directory ready", "driver", cfg.Driver, "database", cfg.Database)
	return d, nil
}

// NewSQLDirectoryWithDB wraps an existing connection. Used by tests and by
// callers that manage pooling themselves.
func NewSQLDirectoryWithDB(db *sql.DB, dialect string) (*SQLDirectory, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	switch dialect {
	case "postgres", "mysql", "sqlite", "sqlite3":
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: postgres, mysql, sqlite)", dialect)
	}

	d := &SQLDirectory{db: db, dialect: dialect}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := d.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return d, nil
}

func (d *SQLDirectory) initSchema(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, createCustomersTableSQL); err != nil {
		return fmt.Errorf("failed to create customers table: %w", err)
	}
	return nil
}

// CreateCustomer inserts a record.
func (d *SQLDirectory) CreateCustomer(ctx context.Context, c *Customer) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now

	notesJSON, err := json.Marshal(c.Notes)
	if err != nil {
		return fmt.Errorf("failed to marshal notes: %w", err)
	}

	query := `
INSERT INTO customers (id, name, industry, scale, region, website, phone, email, score, source, notes, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if d.dialect == "postgres" {
		query = `
INSERT INTO customers (id, name, industry, scale, region, website, phone, email, score, source, notes, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	}

	_, err = d.db.ExecContext(ctx, query,
		c.ID, c.Name, c.Industry, c.Scale, c.Region, c.Website, c.Phone, c.Email,
		c.Score, c.Source, string(notesJSON), c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert customer: %w", err)
	}
	return nil
}

const customerColumns = "id, name, industry, scale, region, website, phone, email, score, source, notes, created_at, updated_at"

// Customer looks up a record by id.
func (d *SQLDirectory) Customer(ctx context.Context, id string) (*Customer, error) {
	query := "SELECT " + customerColumns + " FROM customers WHERE id = ?"
	if d.dialect == "postgres" {
		query = "SELECT " + customerColumns + " FROM customers WHERE id = $1"
	}

	c, err := scanCustomer(d.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query customer: %w", err)
	}
	return c, nil
}

// ListCustomers returns all records, newest first.
func (d *SQLDirectory) ListCustomers(ctx context.Context) ([]*Customer, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT "+customerColumns+" FROM customers ORDER BY created_at DESC, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	defer rows.Close()

	var out []*Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate customers: %w", err)
	}
	return out, nil
}

// Close closes the database connection.
func (d *SQLDirectory) Close() error {
	return d.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCustomer(row rowScanner) (*Customer, error) {
	var c Customer
	var industry, scale, region, website, phone, email, source, notes sql.NullString
	var score sql.NullFloat64

	err := row.Scan(&c.ID, &c.Name, &industry, &scale, &region, &website,
		&phone, &email, &score, &source, &notes, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}

	c.Industry = industry.String
	c.Scale = scale.String
	c.Region = region.String
	c.Website = website.String
	c.Phone = phone.String
	c.Email = email.String
	c.Source = source.String
	c.Score = score.Float64

	if notes.Valid && notes.String != "" {
		if err := json.Unmarshal([]byte(notes.String), &c.Notes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal notes: %w", err)
		}
	}
	return &c, nil
}

var _ Directory = (*SQLDirectory)(nil)
