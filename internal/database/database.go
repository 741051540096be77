// Package database is aerial's store: a thin, single-purpose layer over a
// pgx connection pool. Every mutation commits before returning; every error
// is surfaced to the caller, which treats it as a transient skip.
package database

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/snarg/aerial/internal/config"
)

// schemaVersion is the schema this build speaks. InitSchema refuses to run
// against any other version.
const schemaVersion = 1

const healthCheckTimeout = 2 * time.Second

// pgUndefinedTable is SQLSTATE 42P01, returned when schema_version has
// never been created: a fresh database.
const pgUndefinedTable = "42P01"

type DB struct {
	Pool *pgxpool.Pool
	log  zerolog.Logger
}

// Connect opens the pool. The DVR's load is a handful of periodic ticks
// plus one writer per in-flight capture, so the pool stays small; sizing
// comes from config rather than pgx's server-oriented defaults.
func Connect(ctx context.Context, cfg config.DatabaseConfig, log zerolog.Logger) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = int32(cfg.MinConns)
	}
	// Capture workers hold connections only for short writes; idle
	// connections between airings are cheap to re-open.
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Info().
		Str("url", redactDSN(cfg.URL)).
		Int32("max_conns", poolCfg.MaxConns).
		Int32("min_conns", poolCfg.MinConns).
		Msg("database connected")

	return &DB{Pool: pool, log: log}, nil
}

// HealthCheck verifies the pool can still reach the server.
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	if err := db.Pool.Ping(ctx); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}
	return nil
}

func (db *DB) Close() {
	db.log.Info().Msg("closing database pool")
	db.Pool.Close()
}

// InitSchema brings a database to the current schema version: a fresh
// database (no schema_version table) gets the embedded schema; the current
// version is a no-op; anything else is a mismatch the caller treats as
// fatal.
func (db *DB) InitSchema(ctx context.Context, schemaSQL []byte) error {
	version, err := db.storedSchemaVersion(ctx)
	if err != nil {
		return err
	}

	switch version {
	case schemaVersion:
		db.log.Debug().Int("version", version).Msg("schema up to date")
		return nil
	case 0:
		db.log.Info().Msg("empty database detected — applying schema")
		if _, err := db.Pool.Exec(ctx, string(schemaSQL)); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
		db.log.Info().Int("version", schemaVersion).Msg("schema applied")
		return nil
	default:
		return fmt.Errorf("database has schema version %d, this build requires %d", version, schemaVersion)
	}
}

// storedSchemaVersion reads schema_version; 0 means the table does not
// exist yet.
func (db *DB) storedSchemaVersion(ctx context.Context) (int, error) {
	var version int
	err := db.Pool.QueryRow(ctx, `SELECT version FROM schema_version`).Scan(&version)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUndefinedTable {
			return 0, nil
		}
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

var keywordPassword = regexp.MustCompile(`(password=)\S+`)

// redactDSN strips credentials from either DSN form pgx accepts: a
// postgres:// URL loses its password, a key=value DSN gets the password
// field blanked.
func redactDSN(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.Scheme != "" && u.User != nil {
		if _, hasPassword := u.User.Password(); hasPassword {
			u.User = url.User(u.User.Username())
		}
		return u.String()
	}
	return keywordPassword.ReplaceAllString(dsn, "${1}redacted")
}
