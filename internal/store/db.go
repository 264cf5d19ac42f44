// Package store owns the two logical SQL stores: primary (raw and aggregated
// market rows, live view, collector status) and unified (cross-venue funding,
// moving averages, arbitrage).
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
)

// Config holds connection configuration for one logical store.
type Config struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
}

// DefaultConfig returns reasonable connection-pool defaults.
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		QueryTimeout:    30 * time.Second,
	}
}

// Open connects to Postgres and verifies the connection.
func Open(cfg Config) (*sqlx.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store DSN is required")
	}

	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Stores bundles the two logical stores and their query timeout.
type Stores struct {
	Primary *sqlx.DB
	Unified *sqlx.DB
	Timeout time.Duration
}

// OpenStores opens both stores. The unified store falls back to the primary
// DSN when not configured separately.
func OpenStores(primary, unified Config) (*Stores, error) {
	p, err := Open(primary)
	if err != nil {
		return nil, fmt.Errorf("primary store: %w", err)
	}

	u := p
	if unified.DSN != "" && unified.DSN != primary.DSN {
		u, err = Open(unified)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("unified store: %w", err)
		}
	}

	timeout := primary.QueryTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Stores{Primary: p, Unified: u, Timeout: timeout}, nil
}

// Close closes both stores.
func (s *Stores) Close() error {
	err := s.Primary.Close()
	if s.Unified != s.Primary {
		if uerr := s.Unified.Close(); err == nil {
			err = uerr
		}
	}
	return err
}

// Migrate applies the table schema to both stores. Every statement is
// idempotent so Migrate is safe to run on each startup.
func (s *Stores) Migrate(ctx context.Context) error {
	for _, stmt := range primarySchema {
		if _, err := s.Primary.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("primary schema: %w", err)
		}
	}
	for _, stmt := range unifiedSchema {
		if _, err := s.Unified.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("unified schema: %w", err)
		}
	}
	return nil
}
