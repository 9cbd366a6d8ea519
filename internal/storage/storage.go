// Package storage opens the configured database backend and exposes the
// domain repositories built on top of it.
package storage

import (
	"context"
	"database/sql"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/bistro/internal/domain/auth"
	"github.com/xenking/bistro/internal/domain/menu"
	"github.com/xenking/bistro/internal/domain/order"
	"github.com/xenking/bistro/internal/storage/postgres"
	"github.com/xenking/bistro/internal/storage/sqlite"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Store bundles the repositories of a single backend.
type Store struct {
	Driver  string
	Menu    menu.Repository
	Orders  order.Repository
	Users   auth.UserRepository
	APIKeys auth.APIKeyRepository

	ping  func(ctx context.Context) error
	close func()
}

// Ping checks connectivity to the backend.
func (s *Store) Ping(ctx context.Context) error {
	return s.ping(ctx)
}

// Close releases the underlying connections.
func (s *Store) Close() {
	s.close()
}

// Open connects to the backend selected by driver and applies its schema.
// For postgres dsn is a connection URL, for sqlite a file path or ":memory:".
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	switch driver {
	case DriverPostgres, "":
		pool, err := postgres.NewPool(ctx, dsn)
		if err != nil {
			return nil, err
		}
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return NewPostgres(pool), nil
	case DriverSQLite:
		db, err := sqlite.Open(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return NewSQLite(db), nil
	default:
		return nil, errors.Errorf("unknown storage driver %q", driver)
	}
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool *pgxpool.Pool) *Store {
	return &Store{
		Driver:  DriverPostgres,
		Menu:    postgres.NewMenuRepository(pool),
		Orders:  postgres.NewOrderRepository(pool),
		Users:   postgres.NewUserRepository(pool),
		APIKeys: postgres.NewAPIKeyRepository(pool),
		ping:    pool.Ping,
		close:   pool.Close,
	}
}

// NewSQLite wraps an open SQLite database.
func NewSQLite(db *sql.DB) *Store {
	return &Store{
		Driver:  DriverSQLite,
		Menu:    sqlite.NewMenuRepository(db),
		Orders:  sqlite.NewOrderRepository(db),
		Users:   sqlite.NewUserRepository(db),
		APIKeys: sqlite.NewAPIKeyRepository(db),
		ping:    db.PingContext,
		close:   func() { _ = db.Close() },
	}
}
