// Package storage opens the database that holds the paired device identity
// and Signal session keys. Both SQLite and PostgreSQL are supported.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/sipeed/wabridge/pkg/logger"
)

const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

// Config holds device store configuration.
type Config struct {
	Dialect      string        // "sqlite" or "postgres"
	DSN          string        // file path for sqlite, connection URL for postgres
	SSLEnabled   bool          // postgres only, ignored when DSN sets sslmode
	MaxIdleConns int           // postgres connection pool - max idle connections
	MaxOpenConns int           // postgres connection pool - max open connections
	MaxLifetime  time.Duration // postgres connection pool - max lifetime
}

// DefaultConfig returns a SQLite store under the user's home directory.
func DefaultConfig() Config {
	return Config{
		Dialect:      DialectSQLite,
		DSN:          "~/.wabridge/whatsapp.db",
		MaxIdleConns: 5,
		MaxOpenConns: 25,
		MaxLifetime:  5 * time.Minute,
	}
}

// DeviceStore wraps the whatsmeow sqlstore container and its database.
type DeviceStore struct {
	container *sqlstore.Container
	db        *sql.DB
	dialect   string
}

// Open connects to the configured database and upgrades the whatsmeow schema.
func Open(ctx context.Context, cfg Config) (*DeviceStore, error) {
	var (
		db  *sql.DB
		err error
	)
	switch cfg.Dialect {
	case DialectSQLite, "":
		cfg.Dialect = DialectSQLite
		db, err = openSQLite(cfg.DSN)
	case DialectPostgres:
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported store dialect: %s (supported: sqlite, postgres)", cfg.Dialect)
	}
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", cfg.Dialect, err)
	}

	container := sqlstore.NewWithDB(db, cfg.Dialect, waLog.Zerolog(logger.Zerolog("whatsapp-db")))
	if err := container.Upgrade(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to upgrade device store: %w", err)
	}

	logger.InfoCF("storage", "Device store ready", map[string]interface{}{
		"dialect": cfg.Dialect,
	})
	return &DeviceStore{container: container, db: db, dialect: cfg.Dialect}, nil
}

// Device returns the paired device, or a fresh unpaired one when the store is
// empty.
func (s *DeviceStore) Device(ctx context.Context) (*store.Device, error) {
	device, err := s.container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get device from store: %w", err)
	}
	return device, nil
}

func (s *DeviceStore) Dialect() string {
	return s.dialect
}

func (s *DeviceStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *DeviceStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
