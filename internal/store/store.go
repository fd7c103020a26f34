// Package store persists customers and routed messages in SQLite or MySQL.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/sony/sonyflake"

	_ "modernc.org/sqlite"

	"frontdesk/internal/domain"
)

// Supported drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

type dialect struct {
	name             string
	schemaVersionDDL string
}

var dialects = map[string]dialect{
	DriverSQLite: {
		name: DriverSQLite,
		schemaVersionDDL: `CREATE TABLE IF NOT EXISTS schema_version (
			version     INTEGER PRIMARY KEY,
			description TEXT,
			applied_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	},
	DriverMySQL: {
		name: DriverMySQL,
		schemaVersionDDL: `CREATE TABLE IF NOT EXISTS schema_version (
			version     INT PRIMARY KEY,
			description VARCHAR(255),
			applied_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	},
}

// Config selects and tunes the database.
type Config struct {
	Driver       string // sqlite (default) or mysql
	Path         string // sqlite file path
	DSN          string // mysql DSN
	MaxOpenConns int
	MachineID    uint16 // sonyflake machine id; 0 derives one from the pid
	Logger       *slog.Logger
}

// Store implements routing.Persister and the read side of the REST API.
type Store struct {
	db      *sql.DB
	dialect dialect
	ids     *sonyflake.Sonyflake
	now     func() time.Time
	logger  *slog.Logger
}

// Open connects, migrates and returns a Store.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Driver == "" {
		cfg.Driver = DriverSQLite
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	d, ok := dialects[cfg.Driver]
	if !ok {
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}

	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}

	machineID := cfg.MachineID
	if machineID == 0 {
		machineID = uint16(os.Getpid())
	}
	ids, err := sonyflake.New(sonyflake.Settings{
		StartTime: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		MachineID: func() (uint16, error) { return machineID, nil },
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sonyflake: %w", err)
	}

	s := &Store{db: db, dialect: d, ids: ids, now: time.Now, logger: cfg.Logger}
	if err := RunMigrations(ctx, db, d, cfg.Logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return s, nil
}

func openDB(cfg Config) (*sql.DB, error) {
	switch cfg.Driver {
	case DriverMySQL:
		dsn, err := mysqlDSN(cfg.DSN)
		if err != nil {
			return nil, err
		}
		db, err := sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("cannot open database: %w", err)
		}
		if cfg.MaxOpenConns <= 0 {
			cfg.MaxOpenConns = 20
		}
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns / 2)
		db.SetConnMaxLifetime(30 * time.Minute)
		return db, nil
	default:
		if cfg.Path == "" {
			return nil, errors.New("storage path is required for sqlite")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("cannot create database directory: %w", err)
		}
		db, err := sql.Open("sqlite", cfg.Path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
		if err != nil {
			return nil, fmt.Errorf("cannot open database: %w", err)
		}
		// Single connection for SQLite.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		return db, nil
	}
}

// mysqlDSN forces the options the store relies on: parsed DATETIME columns,
// UTC, and affected-row counts that include unchanged rows.
func mysqlDSN(dsn string) (string, error) {
	if dsn == "" {
		return "", errors.New("storage dsn is required for mysql")
	}
	mc, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.ClientFoundRows = true
	if mc.Params == nil {
		mc.Params = map[string]string{}
	}
	if _, ok := mc.Params["charset"]; !ok {
		mc.Params["charset"] = "utf8mb4"
	}
	return mc.FormatDSN(), nil
}

// DB exposes the handle for health checks and the CLI.
func (s *Store) DB() *sql.DB { return s.db }

// Driver returns the configured driver name.
func (s *Store) Driver() string { return s.dialect.name }

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) nextID() (int64, error) {
	id, err := s.ids.NextID()
	if err != nil {
		return 0, fmt.Errorf("next id: %w", err)
	}
	return int64(id), nil
}

// handleColumn is the customers column a channel's sender identifies.
func handleColumn(ch domain.Channel) (string, error) {
	switch ch {
	case domain.ChannelWhatsApp:
		return "phone", nil
	case domain.ChannelEmail:
		return "email", nil
	case domain.ChannelInstagram:
		return "instagram_handle", nil
	case domain.ChannelReview:
		return "review_handle", nil
	}
	return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedChannel, string(ch))
}

// isUniqueViolation recognizes duplicate-key errors from both drivers.
func isUniqueViolation(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
