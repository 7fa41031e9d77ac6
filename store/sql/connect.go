package sqlstore

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

// ConnectConfig describes one database connection for the stores. It
// satisfies the persistence client's config contract.
type ConnectConfig struct {
	Driver         string
	DSN            string
	Debug          bool
	PingTimeout    time.Duration
	OtelIdentifier string
}

func (c ConnectConfig) GetDebug() bool {
	return c.Debug
}

func (c ConnectConfig) GetDriver() string {
	return c.Driver
}

func (c ConnectConfig) GetServer() string {
	return c.DSN
}

func (c ConnectConfig) GetPingTimeout() time.Duration {
	if c.PingTimeout <= 0 {
		return 5 * time.Second
	}
	return c.PingTimeout
}

func (c ConnectConfig) GetOtelIdentifier() string {
	if strings.TrimSpace(c.OtelIdentifier) == "" {
		return "go-pylon"
	}
	return c.OtelIdentifier
}

// ConnectPostgres opens a Postgres-backed persistence client for the stores.
func ConnectPostgres(cfg ConnectConfig) (*persistence.Client, error) {
	cfg.Driver = "postgres"
	sqlDB, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open postgres: %w", err)
	}
	client, err := persistence.New(cfg, sqlDB, pgdialect.New())
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return client, nil
}

// ConnectSQLite opens a SQLite-backed persistence client, typically for
// local runs and tests.
func ConnectSQLite(cfg ConnectConfig) (*persistence.Client, error) {
	cfg.Driver = "sqlite3"
	sqlDB, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open sqlite: %w", err)
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return client, nil
}
