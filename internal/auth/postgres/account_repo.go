// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QuillPress Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/quillpress/quillpress/internal/auth"
)

// AccountRepository implements auth.AccountRepository using PostgreSQL.
type AccountRepository struct {
	db DB
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db DB) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `id, email, password_hash, name, role, status,
	       email_verified_at, last_login_at, last_login_ip,
	       failed_attempts, locked_until, password_changed_at,
	       created_at, updated_at`

// Create stores a new account. A unique-violation on the email index maps
// to auth.ErrDuplicateEmail so the race against concurrent registration is
// detectable.
func (r *AccountRepository) Create(ctx context.Context, account *auth.Account) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO accounts (
			id, email, password_hash, name, role, status,
			email_verified_at, last_login_at, last_login_ip,
			failed_attempts, locked_until, password_changed_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		account.ID.String(),
		account.Email,
		account.PasswordHash,
		account.Name,
		string(account.Role),
		string(account.Status),
		account.EmailVerifiedAt,
		account.LastLoginAt,
		account.LastLoginIP,
		account.FailedAttempts,
		account.LockedUntil,
		account.PasswordChangedAt,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("ACCOUNT_EMAIL_EXISTS").
				With("email", account.Email).
				Wrap(auth.ErrDuplicateEmail)
		}
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert account").
			With("email", account.Email).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Account, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = $1
	`, id.String())

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_BY_ID_FAILED").
			With("operation", "get account by id").
			With("id", id.String()).
			Wrap(err)
	}
	return account, nil
}

// GetByEmail retrieves an account by email (case-insensitive).
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*auth.Account, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE LOWER(email) = LOWER($1)
	`, email)

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("email", email).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_BY_EMAIL_FAILED").
			With("operation", "get account by email").
			With("email", email).
			Wrap(err)
	}
	return account, nil
}

// UpdatePassword stores a new password digest and stamps the change time.
func (r *AccountRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	now := time.Now()
	result, err := r.db.Exec(ctx, `
		UPDATE accounts
		SET password_hash = $2, password_changed_at = $3, updated_at = $3
		WHERE id = $1
	`, id.String(), passwordHash, now)
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_PASSWORD_FAILED").
			With("operation", "update password").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// RecordLoginFailure persists the failed-attempt counter and any lockout
// expiry computed by the guard.
func (r *AccountRepository) RecordLoginFailure(ctx context.Context, id ulid.ULID, attempts int, lockedUntil *time.Time) error {
	result, err := r.db.Exec(ctx, `
		UPDATE accounts
		SET failed_attempts = $2, locked_until = $3, updated_at = $4
		WHERE id = $1
	`, id.String(), attempts, lockedUntil, time.Now())
	if err != nil {
		return oops.Code("ACCOUNT_RECORD_FAILURE_FAILED").
			With("operation", "record login failure").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// RecordLoginSuccess clears the failure state and stamps the login time and
// source address.
func (r *AccountRepository) RecordLoginSuccess(ctx context.Context, id ulid.ULID, at time.Time, ip string) error {
	var lastIP *string
	if ip != "" {
		lastIP = &ip
	}

	result, err := r.db.Exec(ctx, `
		UPDATE accounts
		SET failed_attempts = 0, locked_until = NULL,
		    last_login_at = $2, last_login_ip = $3, updated_at = $4
		WHERE id = $1
	`, id.String(), at, lastIP, time.Now())
	if err != nil {
		return oops.Code("ACCOUNT_RECORD_SUCCESS_FAILED").
			With("operation", "record login success").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// MarkEmailVerified stamps the verification time and promotes a pending
// account to active, returning the updated row.
func (r *AccountRepository) MarkEmailVerified(ctx context.Context, id ulid.ULID, at time.Time) (*auth.Account, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE accounts
		SET email_verified_at = COALESCE(email_verified_at, $2),
		    status = CASE WHEN status = 'pending' THEN 'active' ELSE status END,
		    updated_at = $3
		WHERE id = $1
		RETURNING `+accountColumns+`
	`, id.String(), at, time.Now())

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_MARK_VERIFIED_FAILED").
			With("operation", "mark email verified").
			With("id", id.String()).
			Wrap(err)
	}
	return account, nil
}

// Delete removes an account. Refresh and single-use tokens go with it via
// the cascading foreign keys.
func (r *AccountRepository) Delete(ctx context.Context, id ulid.ULID) error {
	result, err := r.db.Exec(ctx, `
		DELETE FROM accounts WHERE id = $1
	`, id.String())
	if err != nil {
		return oops.Code("ACCOUNT_DELETE_FAILED").
			With("operation", "delete account").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// scanAccount scans a single row into an Account.
// Callers are responsible for handling pgx.ErrNoRows.
func scanAccount(row pgx.Row) (*auth.Account, error) {
	var (
		idStr             string
		email             string
		passwordHash      string
		name              string
		role              string
		status            string
		emailVerifiedAt   *time.Time
		lastLoginAt       *time.Time
		lastLoginIP       *string
		failedAttempts    int
		lockedUntil       *time.Time
		passwordChangedAt time.Time
		createdAt         time.Time
		updatedAt         time.Time
	)

	err := row.Scan(
		&idStr,
		&email,
		&passwordHash,
		&name,
		&role,
		&status,
		&emailVerifiedAt,
		&lastLoginAt,
		&lastLoginIP,
		&failedAttempts,
		&lockedUntil,
		&passwordChangedAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("ACCOUNT_SCAN_FAILED").
			With("operation", "parse account id").
			With("id", idStr).
			Wrap(err)
	}

	return &auth.Account{
		ID:                id,
		Email:             email,
		PasswordHash:      passwordHash,
		Name:              name,
		Role:              auth.Role(role),
		Status:            auth.Status(status),
		EmailVerifiedAt:   emailVerifiedAt,
		LastLoginAt:       lastLoginAt,
		LastLoginIP:       lastLoginIP,
		FailedAttempts:    failedAttempts,
		LockedUntil:       lockedUntil,
		PasswordChangedAt: passwordChangedAt,
		CreatedAt:         createdAt,
		UpdatedAt:         updatedAt,
	}, nil
}
