package config

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrateTable runs the config_kv schema migration against db, so a fresh
// deployment never needs a manual DDL step before the config table exists.
func MigrateTable(db *sql.DB) error {
	goose.SetBaseFS(migrationsFS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("config: setting migration dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("config: running migrations: %w", err)
	}
	return nil
}

// TablePersistence is the warehouse-table-backed Persistence strategy: a
// MERGE-equivalent upsert (`INSERT ... ON CONFLICT DO UPDATE`, the
// sqlite/ANSI idiom for the warehouse's MERGE statement) into a single
// config_kv(config_key, config_value) table named by TableName.
type TablePersistence struct {
	DB        *sql.DB
	TableName string
}

func (t TablePersistence) table() string {
	if t.TableName == "" {
		return "config_kv"
	}
	return t.TableName
}

// Load selects every row from the config table.
func (t TablePersistence) Load() (map[string]string, error) {
	rows, err := t.DB.Query(fmt.Sprintf("SELECT config_key, config_value FROM %s", t.table())) //nolint:gosec // table name is operator-configured, not user input
	if err != nil {
		return nil, fmt.Errorf("config: querying %s: %w", t.table(), err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("config: scanning row: %w", err)
		}
		values[k] = v
	}
	return values, rows.Err()
}

// Write upserts every key/value pair in values inside a single transaction.
func (t TablePersistence) Write(values map[string]string) error {
	tx, err := t.DB.Begin()
	if err != nil {
		return fmt.Errorf("config: beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	query := fmt.Sprintf(
		`INSERT INTO %s (config_key, config_value) VALUES (?, ?)
		 ON CONFLICT(config_key) DO UPDATE SET config_value = excluded.config_value`,
		t.table(),
	)

	for k, v := range values {
		if _, err := tx.Exec(query, k, v); err != nil {
			return fmt.Errorf("config: upserting %q: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("config: committing: %w", err)
	}
	return nil
}
