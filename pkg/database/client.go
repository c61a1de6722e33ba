package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
)

var errMissingRequiredConfig = errors.New("missing required database configuration")

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Client wraps a pooled Postgres connection shared by every storage-backed
// component (the bus dedup registry, the WAL, the knowledge graph, the CAS
// state machine, the hatchery instance ledger).
type Client struct {
	DB  *sqlx.DB
	cfg Config
}

// Open connects to Postgres, applies pool settings, and runs embedded
// migrations to bring the schema up to date. It does not return until the
// connection has been verified with a ping.
func Open(ctx context.Context, cfg Config) (*Client, error) {
	sqlDB, err := sql.Open("pgx", cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("open database connection: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	client := &Client{DB: sqlx.NewDb(sqlDB, "pgx"), cfg: cfg}

	if err := client.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return client, nil
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.DB.Close()
}

func (c *Client) migrate() error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}

	driver, err := postgres.WithInstance(c.DB.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "pgx", driver)
	if err != nil {
		return fmt.Errorf("initialize migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	slog.Info("database migrations applied")
	return nil
}
