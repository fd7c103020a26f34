package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
)

// schemaVersion is the current expected schema version.
const schemaVersion = 2

// migration is one schema step with a statement list per dialect.
type migration struct {
	Version     int
	Description string
	SQLite      string
	MySQL       string
}

func (m migration) sql(d dialect) string {
	if d.name == DriverMySQL {
		return m.MySQL
	}
	return m.SQLite
}

// migrations is the ordered list of schema migrations.
// Each migration is applied exactly once, tracked in the schema_version table.
var migrations = []migration{
	{
		Version:     1,
		Description: "base schema: customers, messages",
		SQLite: `
		CREATE TABLE IF NOT EXISTS customers (
			id               INTEGER PRIMARY KEY,
			name             TEXT NOT NULL DEFAULT '',
			phone            TEXT UNIQUE,
			email            TEXT UNIQUE,
			instagram_handle TEXT UNIQUE,
			review_handle    TEXT UNIQUE,
			message_count    INTEGER NOT NULL DEFAULT 0,
			last_message_at  DATETIME,
			created_at       DATETIME NOT NULL,
			updated_at       DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS messages (
			id              INTEGER PRIMARY KEY,
			customer_id     INTEGER NOT NULL REFERENCES customers(id),
			channel         TEXT NOT NULL,
			sender          TEXT NOT NULL,
			external_id     TEXT,
			kind            TEXT NOT NULL,
			content         TEXT,
			attachment      TEXT,
			metadata        TEXT,
			intent          TEXT NOT NULL,
			confidence      REAL NOT NULL,
			language        TEXT NOT NULL,
			matched_intents TEXT NOT NULL,
			priority        TEXT NOT NULL,
			status          TEXT NOT NULL DEFAULT 'unread',
			batch_id        TEXT NOT NULL DEFAULT '',
			raw_timestamp   TEXT NOT NULL DEFAULT '',
			received_at     DATETIME NOT NULL,
			created_at      DATETIME NOT NULL,
			updated_at      DATETIME NOT NULL,
			UNIQUE (channel, external_id)
		);
		CREATE INDEX IF NOT EXISTS idx_messages_customer ON messages(customer_id, created_at);
		`,
		MySQL: `
		CREATE TABLE IF NOT EXISTS customers (
			id               BIGINT PRIMARY KEY,
			name             VARCHAR(255) NOT NULL DEFAULT '',
			phone            VARCHAR(191) UNIQUE,
			email            VARCHAR(191) UNIQUE,
			instagram_handle VARCHAR(191) UNIQUE,
			review_handle    VARCHAR(191) UNIQUE,
			message_count    INT NOT NULL DEFAULT 0,
			last_message_at  DATETIME(6) NULL,
			created_at       DATETIME(6) NOT NULL,
			updated_at       DATETIME(6) NOT NULL
		) DEFAULT CHARSET=utf8mb4;

		CREATE TABLE IF NOT EXISTS messages (
			id              BIGINT PRIMARY KEY,
			customer_id     BIGINT NOT NULL,
			channel         VARCHAR(32) NOT NULL,
			sender          VARCHAR(191) NOT NULL,
			external_id     VARCHAR(191),
			kind            VARCHAR(32) NOT NULL,
			content         TEXT,
			attachment      TEXT,
			metadata        TEXT,
			intent          VARCHAR(64) NOT NULL,
			confidence      DOUBLE NOT NULL,
			language        VARCHAR(8) NOT NULL,
			matched_intents TEXT NOT NULL,
			priority        VARCHAR(16) NOT NULL,
			status          VARCHAR(16) NOT NULL DEFAULT 'unread',
			batch_id        VARCHAR(64) NOT NULL DEFAULT '',
			raw_timestamp   VARCHAR(64) NOT NULL DEFAULT '',
			received_at     DATETIME(6) NOT NULL,
			created_at      DATETIME(6) NOT NULL,
			updated_at      DATETIME(6) NOT NULL,
			UNIQUE KEY uq_messages_external (channel, external_id),
			INDEX idx_messages_customer (customer_id, created_at),
			CONSTRAINT fk_messages_customer FOREIGN KEY (customer_id) REFERENCES customers(id)
		) DEFAULT CHARSET=utf8mb4;
		`,
	},
	{
		Version:     2,
		Description: "v2: triage indexes on channel, priority, status",
		SQLite: `
		CREATE INDEX IF NOT EXISTS idx_messages_triage ON messages(priority, status, created_at);
		CREATE INDEX IF NOT EXISTS idx_messages_channel ON messages(channel, created_at);
		`,
		MySQL: `
		CREATE INDEX idx_messages_triage ON messages(priority, status, created_at);
		CREATE INDEX idx_messages_channel ON messages(channel, created_at);
		`,
	},
}

// RunMigrations applies all pending schema migrations.
func RunMigrations(ctx context.Context, db *sql.DB, d dialect, logger *slog.Logger) error {
	if _, err := db.ExecContext(ctx, d.schemaVersionDDL); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	current, err := SchemaVersion(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		logger.Info("applying migration", "version", m.Version, "description", m.Description)
		if err := applyMigration(ctx, db, d, m, logger); err != nil {
			return err
		}
		logger.Info("migration applied", "version", m.Version)
	}
	return nil
}

// applyMigration runs each statement on its own. MySQL commits DDL implicitly,
// so statements that report an object already exists are skipped to keep a
// half-applied step re-runnable.
func applyMigration(ctx context.Context, db *sql.DB, d dialect, m migration, logger *slog.Logger) error {
	for _, stmt := range splitSQL(m.sql(d)) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			if alreadyApplied(err) {
				logger.Debug("migration statement skipped (already applied)", "stmt_prefix", truncate(stmt, 60))
				continue
			}
			return fmt.Errorf("migration v%d statement failed: %w\nSQL: %s", m.Version, err, truncate(stmt, 200))
		}
	}
	if _, err := db.ExecContext(ctx,
		"INSERT INTO schema_version (version, description, applied_at) VALUES (?, ?, CURRENT_TIMESTAMP)",
		m.Version, m.Description,
	); err != nil {
		return fmt.Errorf("record migration v%d: %w", m.Version, err)
	}
	return nil
}

func alreadyApplied(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already exists") ||
		strings.Contains(msg, "duplicate column") ||
		strings.Contains(msg, "duplicate key name")
}

// splitSQL splits a multi-statement SQL string on semicolons.
func splitSQL(script string) []string {
	var out []string
	for _, s := range strings.Split(script, ";") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// SchemaVersion returns the highest applied migration, 0 for an empty database.
func SchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "no such table") ||
			strings.Contains(strings.ToLower(err.Error()), "doesn't exist") {
			return 0, nil
		}
		return 0, fmt.Errorf("query schema version: %w", err)
	}
	return version, nil
}
