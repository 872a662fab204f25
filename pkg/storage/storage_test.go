package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureSSLMode(t *testing.T) {
	tests := []struct {
		name string
		url  string
		ssl  bool
		want string
	}{
		{"adds disable", "postgres://u@db/wa", false, "postgres://u@db/wa?sslmode=disable"},
		{"adds require", "postgres://u@db/wa", true, "postgres://u@db/wa?sslmode=require"},
		{"appends to query", "postgres://u@db/wa?connect_timeout=5", false, "postgres://u@db/wa?connect_timeout=5&sslmode=disable"},
		{"keeps explicit", "postgres://u@db/wa?sslmode=verify-full", false, "postgres://u@db/wa?sslmode=verify-full"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ensureSSLMode(tt.url, tt.ssl))
		})
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "x.db"), filepath.Clean(expandHome("~/x.db")))
	assert.Equal(t, "/var/lib/wa.db", expandHome("/var/lib/wa.db"))
}

func TestOpenRejectsUnknownDialect(t *testing.T) {
	_, err := Open(context.Background(), Config{Dialect: "mysql", DSN: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store dialect")
}

func TestOpenPostgresRequiresURL(t *testing.T) {
	_, err := Open(context.Background(), Config{Dialect: DialectPostgres})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database URL is required")
}

func TestOpenSQLiteCreatesUnpairedDevice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "whatsapp.db")

	ds, err := Open(context.Background(), Config{Dialect: DialectSQLite, DSN: path})
	require.NoError(t, err)
	t.Cleanup(func() { ds.Close() })

	assert.FileExists(t, path)
	assert.Equal(t, DialectSQLite, ds.Dialect())
	require.NoError(t, ds.Ping(context.Background()))

	device, err := ds.Device(context.Background())
	require.NoError(t, err)
	assert.Nil(t, device.ID)
}
