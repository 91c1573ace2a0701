// Package pg implements the tracking store on PostgreSQL through the pgx
// database/sql driver.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"sitetrack.io/internal/model"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
	pgErrCheckViolation      = "23514"
)

// Store is a PostgreSQL-backed tracking store.
type Store struct {
	db *sql.DB
}

// PoolConfig tunes the connection pool. Zero values keep the defaults.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open connects to dsn with the pgx driver.
func Open(dsn string, pool PoolConfig) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(orDefault(pool.MaxOpenConns, 25))
	db.SetMaxIdleConns(orDefault(pool.MaxIdleConns, 10))
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(15 * time.Minute)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing handle.
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// mapWriteError classifies constraint violations into model errors.
func mapWriteError(err error) error {
	pgErr, ok := maybePgError(err)
	if !ok {
		return err
	}
	switch pgErr.Code {
	case pgErrUniqueViolation:
		return fmt.Errorf("%w: %s", model.ErrConflict, pgErr.ConstraintName)
	case pgErrForeignKeyViolation, pgErrCheckViolation:
		return fmt.Errorf("%w: %s", model.ErrInvalidInput, pgErr.ConstraintName)
	default:
		return err
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: v.UTC(), Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
