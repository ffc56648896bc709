package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"LIBRA-backend/internal/platform/db"
)

type Account struct {
	ID           string
	PasswordHash string
	Role         string
	IsDisabled   bool
	CreatedAt    time.Time
}

// AccountStore is the persistence the auth service needs. GetByID returns
// (nil, nil) when the account does not exist.
type AccountStore interface {
	GetByID(ctx context.Context, id string) (*Account, error)
	Create(ctx context.Context, a *Account) error
	Delete(ctx context.Context, id string) (int64, error)
	UpdateID(ctx context.Context, oldID, newID string) (int64, error)
	Count(ctx context.Context) (int, error)
}

type Store struct {
	db     *sql.DB
	driver string
}

func NewStore(conn *sql.DB, driver string) *Store {
	return &Store{db: conn, driver: driver}
}

// Migrate creates auth_accounts if it is missing.
func (s *Store) Migrate(ctx context.Context) error {
	timeType, opts := "DATETIME(6)", " ENGINE=InnoDB DEFAULT CHARSET=utf8mb4"
	if s.driver == db.DriverSQLite {
		timeType, opts = "DATETIME", ""
	}
	q := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS auth_accounts (
	id            VARCHAR(64)  NOT NULL PRIMARY KEY,
	password_hash VARCHAR(255) NOT NULL,
	role          VARCHAR(32)  NOT NULL,
	is_disabled   TINYINT      NOT NULL DEFAULT 0,
	created_at    %s NOT NULL
)%s`, timeType, opts)
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("migrate auth_accounts: %w", err)
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*Account, error) {
	const q = `
SELECT id, password_hash, role, is_disabled, created_at
FROM auth_accounts
WHERE id = ?
LIMIT 1
`
	var a Account
	var isDisabledInt int
	err := s.db.QueryRowContext(ctx, q, id).Scan(
		&a.ID,
		&a.PasswordHash,
		&a.Role,
		&isDisabledInt,
		&a.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.IsDisabled = isDisabledInt != 0
	return &a, nil
}

func (s *Store) Create(ctx context.Context, a *Account) error {
	const q = `
INSERT INTO auth_accounts (id, password_hash, role, is_disabled, created_at)
VALUES (?, ?, ?, ?, ?)
`
	disabled := 0
	if a.IsDisabled {
		disabled = 1
	}
	_, err := s.db.ExecContext(ctx, q, a.ID, a.PasswordHash, a.Role, disabled, a.CreatedAt.UTC())
	if db.IsDuplicateKey(err) {
		return ErrAlreadyExists
	}
	return err
}

func (s *Store) Delete(ctx context.Context, id string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM auth_accounts WHERE id = ?`, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) UpdateID(ctx context.Context, oldID, newID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE auth_accounts SET id = ? WHERE id = ?`, newID, oldID)
	if db.IsDuplicateKey(err) {
		return 0, ErrAlreadyExists
	}
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM auth_accounts`).Scan(&n)
	return n, err
}
