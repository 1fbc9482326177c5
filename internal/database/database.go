package database

import (
	"context"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/config"
)

// Connect opens a pool for the configured driver ("pgx" or "sqlite3").
func Connect(cfg config.DBConfig) (*sqlx.DB, error) {
	db, err := sqlx.Connect(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Driver, err)
	}
	if cfg.Driver == "sqlite3" {
		// SQLite serialises writers; one connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// EnsureSchema creates the tables if they do not exist yet.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	stmts := postgresSchema
	if db.DriverName() == "sqlite3" {
		stmts = sqliteSchema
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS gardens (
		id          SERIAL PRIMARY KEY,
		title       VARCHAR(256) NOT NULL,
		address     TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		status      VARCHAR(256) NOT NULL DEFAULT 'setup',
		created     TIMESTAMPTZ NOT NULL,
		updated     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS device_types (
		id                SERIAL PRIMARY KEY,
		name              VARCHAR(256) NOT NULL,
		measure_data_name VARCHAR(128) NOT NULL DEFAULT '',
		unit              VARCHAR(32),
		created           TIMESTAMPTZ NOT NULL,
		updated           TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS devices (
		id             SERIAL PRIMARY KEY,
		device_type_id INTEGER NOT NULL REFERENCES device_types(id),
		garden_id      INTEGER NOT NULL REFERENCES gardens(id),
		title          VARCHAR(512) NOT NULL,
		description    TEXT NOT NULL DEFAULT '',
		status         VARCHAR(64) NOT NULL DEFAULT 'setup',
		meta_data      TEXT,
		last_ping      TIMESTAMPTZ,
		created        TIMESTAMPTZ NOT NULL,
		updated        TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS measure_datas (
		id        SERIAL PRIMARY KEY,
		device_id INTEGER NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL,
		value     VARCHAR(256) NOT NULL,
		created   TIMESTAMPTZ NOT NULL,
		updated   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS measure_datas_device_ts ON measure_datas (device_id, timestamp)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS gardens (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		title       TEXT NOT NULL,
		address     TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		status      TEXT NOT NULL DEFAULT 'setup',
		created     TIMESTAMP NOT NULL,
		updated     TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS device_types (
		id                INTEGER PRIMARY KEY AUTOINCREMENT,
		name              TEXT NOT NULL,
		measure_data_name TEXT NOT NULL DEFAULT '',
		unit              TEXT,
		created           TIMESTAMP NOT NULL,
		updated           TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS devices (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		device_type_id INTEGER NOT NULL REFERENCES device_types(id),
		garden_id      INTEGER NOT NULL REFERENCES gardens(id),
		title          TEXT NOT NULL,
		description    TEXT NOT NULL DEFAULT '',
		status         TEXT NOT NULL DEFAULT 'setup',
		meta_data      TEXT,
		last_ping      TIMESTAMP,
		created        TIMESTAMP NOT NULL,
		updated        TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS measure_datas (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		device_id INTEGER NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		value     TEXT NOT NULL,
		created   TIMESTAMP NOT NULL,
		updated   TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS measure_datas_device_ts ON measure_datas (device_id, timestamp)`,
}
