package sqlite

import (
	"context"
	"database/sql"

	"github.com/Masterminds/semver/v3"
	"github.com/go-faster/errors"
)

// Migration is a forward-only schema change identified by a semantic version.
type Migration struct {
	Version string
	Up      string
}

// Migrations lists every schema change in application order.
var Migrations = []Migration{
	{Version: "1.0.0", Up: schemaV1},
}

const schemaV1 = `
CREATE TABLE IF NOT EXISTS menu_items (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    name        TEXT NOT NULL CHECK (trim(name) <> ''),
    price       TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    image       TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_menu_items_name ON menu_items (lower(name));

CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    username      TEXT NOT NULL UNIQUE,
    email         TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL DEFAULT 'customer'
);

CREATE TABLE IF NOT EXISTS orders (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id    TEXT NOT NULL,
    status     TEXT NOT NULL DEFAULT 'Pending',
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS order_items (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    order_id        INTEGER NOT NULL REFERENCES orders (id) ON DELETE CASCADE,
    position        INTEGER NOT NULL,
    menu_item_id    INTEGER NOT NULL,
    menu_item_name  TEXT NOT NULL,
    menu_item_price TEXT NOT NULL,
    menu_item_image TEXT NOT NULL DEFAULT '',
    quantity        INTEGER NOT NULL CHECK (quantity >= 1),
    UNIQUE (order_id, position)
);

CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items (order_id);

CREATE TABLE IF NOT EXISTS api_keys (
    id       TEXT PRIMARY KEY,
    key_hash TEXT NOT NULL UNIQUE,
    name     TEXT NOT NULL,
    scopes   TEXT NOT NULL DEFAULT '[]',
    active   INTEGER NOT NULL DEFAULT 1
);
`

// ApplyMigrations runs every migration newer than the recorded schema version.
func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		version    TEXT PRIMARY KEY,
		applied_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return errors.Wrap(err, "create schema_version")
	}

	current, err := currentVersion(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range Migrations {
		v, err := semver.NewVersion(m.Version)
		if err != nil {
			return errors.Wrapf(err, "parse migration version %q", m.Version)
		}
		if !current.LessThan(v) {
			continue
		}

		err = inTx(ctx, db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.Up); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, m.Version)
			return err
		})
		if err != nil {
			return errors.Wrapf(err, "apply migration %s", m.Version)
		}
		current = v
	}
	return nil
}

func currentVersion(ctx context.Context, db *sql.DB) (*semver.Version, error) {
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_version`)
	if err != nil {
		return nil, errors.Wrap(err, "read schema_version")
	}
	defer rows.Close()

	current := semver.MustParse("0.0.0")
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, errors.Wrap(err, "scan schema_version")
		}
		v, err := semver.NewVersion(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid schema version %q", raw)
		}
		if v.GreaterThan(current) {
			current = v
		}
	}
	return current, rows.Err()
}
