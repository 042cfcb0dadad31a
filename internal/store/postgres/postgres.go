// Package postgres implements the store repositories on PostgreSQL through
// database/sql and lib/pq. Id lists are passed as arrays so every lookup is
// one round trip regardless of how many buildings a cluster has.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/kohde-resolver/internal/model"
	"github.com/kohde-resolver/internal/store"
)

//go:embed schema.sql
var schema string

const defaultTxTimeout = 30 * time.Second

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the PostgreSQL backend.
type Store struct {
	db      *sql.DB
	timeout time.Duration
}

// New creates a store over an open pool.
func New(db *sql.DB) *Store {
	return &Store{db: db, timeout: defaultTxTimeout}
}

// Stores returns repositories that run each statement on the pool.
func (s *Store) Stores() store.Stores {
	return newStores(s.db)
}

// RunInTx runs fn in one transaction, committing when it returns nil.
func (s *Store) RunInTx(ctx context.Context, fn func(store.Stores) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transaction aborted: %w", err)
	}
	if _, ok := ctx.Deadline(); !ok && s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(newStores(tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// InitSchema creates the tables if they do not exist.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SeedUsageClasses inserts usage classes that are not present yet.
func (s *Store) SeedUsageClasses(ctx context.Context, classes []model.UsageClass) error {
	codes := make([]string, 0, len(classes))
	names := make([]string, 0, len(classes))
	significant := make([]bool, 0, len(classes))
	sauna := make([]bool, 0, len(classes))
	for _, c := range classes {
		codes = append(codes, c.Code)
		names = append(names, c.Name)
		significant = append(significant, c.Significant)
		sauna = append(sauna, c.Sauna)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_class (code, name, significant, sauna)
		SELECT * FROM unnest($1::text[], $2::text[], $3::boolean[], $4::boolean[])
		ON CONFLICT (code) DO NOTHING
	`, pq.Array(codes), pq.Array(names), pq.Array(significant), pq.Array(sauna))
	if err != nil {
		return fmt.Errorf("failed to seed usage classes: %w", err)
	}
	return nil
}

func newStores(q querier) store.Stores {
	return store.Stores{
		Buildings:  &buildingRepo{q: q},
		Parties:    &partyRepo{q: q},
		Facilities: &facilityRepo{q: q},
		Dependents: &dependentRepo{q: q},
		Customers:  &customerRepo{q: q},
		Runs:       &runRepo{q: q},
		CodeTables: &codeTableRepo{q: q},
	}
}

// datePtr converts a nullable date column to a civil date.
func datePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	d := model.Day(t.Time)
	return &d
}

// nullDate converts an optional civil date to a query argument.
func nullDate(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: model.Day(*t), Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
