package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
version: "1"
mode: release
server:
  addr: ":9000"
database:
  driver: mysql
  host: db
  port: 3306
  user: lib
  password: secret
  dbname: library
auth:
  jwt_secret: s3cret
  token_ttl: 2h
library:
  loan_length_days: 21
  renew_limit: 2
  daily_fine: "0.25"
  currency:
    symbol: "€"
    after: true
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "library", cfg.DB.DBName)
	assert.Equal(t, 3306, cfg.DB.Port)
	assert.Equal(t, 21, cfg.Library.LoanLengthDays)
	assert.Equal(t, 2, cfg.Library.RenewLimit)
	assert.Equal(t, "0.25", cfg.Library.DailyFine)
	assert.Equal(t, "€", cfg.Library.Currency.Symbol)
	assert.True(t, cfg.Library.Currency.After)
	assert.Equal(t, 2*time.Hour, cfg.TokenTTL())
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, "database:\n  driver: sqlite3\n")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Mode)
	assert.Equal(t, ":8443", cfg.Server.Addr)
	assert.Equal(t, "data/library.db", cfg.DB.Path)
	assert.Equal(t, 12, cfg.Library.LoanLengthDays)
	assert.Equal(t, 0, cfg.Library.RenewLimit)
	assert.Equal(t, "0", cfg.Library.DailyFine)
	assert.Equal(t, "£", cfg.Library.Currency.Symbol)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL())
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "mode: [unterminated"))
	require.Error(t, err)
}

func TestConnectUnknownDriver(t *testing.T) {
	_, err := Connect(DatabaseConfig{Driver: "oracle"})
	require.Error(t, err)
}

func TestRunInTx(t *testing.T) {
	conn, err := OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	ctx := context.Background()
	_, err = conn.ExecContext(ctx, `CREATE TABLE notes (body TEXT NOT NULL)`)
	require.NoError(t, err)

	err = RunInTx(ctx, conn, nil, func(ctx context.Context, tx DBTX) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO notes(body) VALUES (?)`, "kept")
		return err
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = RunInTx(ctx, conn, nil, func(ctx context.Context, tx DBTX) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO notes(body) VALUES (?)`, "dropped"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var n int
	err = ReadOnly(ctx, conn, func(ctx context.Context, tx DBTX) error {
		return tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes`).Scan(&n)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestIsDuplicateKey(t *testing.T) {
	conn, err := OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	ctx := context.Background()
	_, err = conn.ExecContext(ctx, `CREATE TABLE codes (code VARCHAR(8) PRIMARY KEY, label TEXT UNIQUE)`)
	require.NoError(t, err)

	_, err = conn.ExecContext(ctx, `INSERT INTO codes VALUES ('a', 'x')`)
	require.NoError(t, err)

	_, err = conn.ExecContext(ctx, `INSERT INTO codes VALUES ('a', 'y')`)
	assert.True(t, IsDuplicateKey(err), "primary key")
	_, err = conn.ExecContext(ctx, `INSERT INTO codes VALUES ('b', 'x')`)
	assert.True(t, IsDuplicateKey(err), "unique")

	_, err = conn.ExecContext(ctx, `INSERT INTO missing VALUES (1)`)
	assert.False(t, IsDuplicateKey(err))
	assert.False(t, IsDuplicateKey(nil))
}
