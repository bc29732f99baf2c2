package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/dlmiddlecote/sqlstats"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	migrate "github.com/rubenv/sql-migrate"

	// Import postgres driver for database/sql package
	_ "github.com/lib/pq"
)

const (
	postgresMigrationTable = "broker_migrations"
	postgresQueryTimeout   = 10 * time.Second
)

var postgresMigrations = &migrate.MemoryMigrationSource{
	Migrations: []*migrate.Migration{
		{
			Id: "20260101000000-create-kv",
			Up: []string{
				`CREATE TABLE IF NOT EXISTS broker_kv (
					key BYTEA PRIMARY KEY,
					value BYTEA NOT NULL,
					updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
				)`,
			},
			Down: []string{`DROP TABLE IF EXISTS broker_kv`},
		},
	},
}

// PostgresDB implements DB on a single postgres table.
type PostgresDB struct {
	db *sql.DB
}

// NewPostgres connects to dsn and applies pending migrations.
func NewPostgres(dsn string) (*PostgresDB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open postgres connection")
	}

	ctx, cancel := context.WithTimeout(context.Background(), postgresQueryTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to ping postgres")
	}

	if _, err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &PostgresDB{db: db}, nil
}

// StatsCollector exports the connection pool stats of the database.
//
//nolint:ireturn
func (p *PostgresDB) StatsCollector() prometheus.Collector {
	return sqlstats.NewStatsCollector("wallet_broker", p.db)
}

// Migrate applies the key/value schema and returns the number of applied migrations.
func Migrate(db *sql.DB) (int, error) {
	migrate.SetTable(postgresMigrationTable)

	n, err := migrate.Exec(db, "postgres", postgresMigrations, migrate.Up)
	if err != nil {
		return 0, errors.Wrap(err, "failed to apply migrations")
	}

	return n, nil
}

func (p *PostgresDB) Get(key []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), postgresQueryTimeout)
	defer cancel()

	var value []byte
	err := p.db.QueryRowContext(ctx, `SELECT value FROM broker_kv WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "postgres get")
	}

	return value, nil
}

func (p *PostgresDB) Put(key, value []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), postgresQueryTimeout)
	defer cancel()

	_, err := p.db.ExecContext(ctx, `
		INSERT INTO broker_kv (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`, key, value)
	if err != nil {
		return errors.Wrap(err, "postgres put")
	}

	return nil
}

func (p *PostgresDB) Delete(key []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), postgresQueryTimeout)
	defer cancel()

	if _, err := p.db.ExecContext(ctx, `DELETE FROM broker_kv WHERE key = $1`, key); err != nil {
		return errors.Wrap(err, "postgres delete")
	}

	return nil
}

func (p *PostgresDB) Has(key []byte) (bool, error) {
	_, err := p.Get(key)
	if errors.Is(err, ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return true, nil
}

func (p *PostgresDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), postgresQueryTimeout)
	defer cancel()

	rows, err := p.db.QueryContext(ctx,
		`SELECT key, value FROM broker_kv WHERE substring(key from 1 for $2) = $1 ORDER BY key`,
		prefix, len(prefix))
	if err != nil {
		return errors.Wrap(err, "postgres scan")
	}
	defer rows.Close()

	type kv struct{ key, value []byte }
	var items []kv
	for rows.Next() {
		var item kv
		if err := rows.Scan(&item.key, &item.value); err != nil {
			return errors.Wrap(err, "postgres scan row")
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "postgres rows")
	}

	for _, item := range items {
		if err := fn(item.key, item.value); err != nil {
			return err
		}
	}

	return nil
}

func (p *PostgresDB) Close() error {
	return p.db.Close()
}
