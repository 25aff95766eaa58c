// Package postgres provides the Postgres-backed show catalog.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/showwatch/showwatch/internal/show"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool behind the catalog.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// Store persists show records in a Postgres table keyed by record ID.
type Store struct {
	pool  querier
	table string
}

// New creates a Postgres-backed Store using the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("catalog.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "shows"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool, table: table}, nil
}

// NewWithPool constructs a Store from an existing pool (primarily for testing).
func NewWithPool(pool querier, table string) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "shows"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Store{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Projections returns the id->fingerprint map of every stored record. The
// two columns are all the delivery diff needs; full rows stay in Postgres.
func (s *Store) Projections(ctx context.Context) (map[string]string, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("catalog is not configured")
	}
	query := fmt.Sprintf(`SELECT id, content_fingerprint FROM %s`, s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("select projections: %w", err)
	}
	defer rows.Close()

	projections := make(map[string]string)
	for rows.Next() {
		var id, fingerprint string
		if err := rows.Scan(&id, &fingerprint); err != nil {
			return nil, fmt.Errorf("scan projection: %w", err)
		}
		projections[id] = fingerprint
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read projections: %w", err)
	}
	return projections, nil
}

// Upsert inserts the record or overwrites the existing row with the same ID.
func (s *Store) Upsert(ctx context.Context, rec show.Show) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("catalog is not configured")
	}
	if rec.ID == "" {
		return fmt.Errorf("record id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	title,
	source_url,
	occurs_at,
	image_url,
	ticket_url,
	sold_out,
	content_fingerprint
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8
)
ON CONFLICT (id) DO UPDATE SET
	title = EXCLUDED.title,
	source_url = EXCLUDED.source_url,
	occurs_at = EXCLUDED.occurs_at,
	image_url = EXCLUDED.image_url,
	ticket_url = EXCLUDED.ticket_url,
	sold_out = EXCLUDED.sold_out,
	content_fingerprint = EXCLUDED.content_fingerprint`, s.table)

	args := []any{
		rec.ID,
		rec.Title,
		rec.SourceURL,
		rec.OccursAt,
		rec.ImageURL,
		rec.TicketURL,
		rec.SoldOut,
		rec.ContentFingerprint,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert show: %w", err)
	}
	return nil
}

// Delete removes the record with the given ID; deleting an absent ID is not
// an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("catalog is not configured")
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.table)
	if _, err := s.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("delete show: %w", err)
	}
	return nil
}
