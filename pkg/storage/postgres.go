package storage

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
)

func openPostgres(cfg Config) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database URL is required for postgres store")
	}

	db, err := sql.Open("postgres", ensureSSLMode(cfg.DSN, cfg.SSLEnabled))
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL connection: %w", err)
	}

	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.MaxLifetime)
	}
	return db, nil
}

// ensureSSLMode appends sslmode when the URL does not already carry one.
func ensureSSLMode(databaseURL string, sslEnabled bool) string {
	if strings.Contains(databaseURL, "sslmode=") {
		return databaseURL
	}
	sep := "?"
	if strings.Contains(databaseURL, "?") {
		sep = "&"
	}
	if sslEnabled {
		return databaseURL + sep + "sslmode=require"
	}
	return databaseURL + sep + "sslmode=disable"
}
