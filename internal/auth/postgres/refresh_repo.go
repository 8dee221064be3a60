// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QuillPress Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/quillpress/quillpress/internal/auth"
)

// RefreshTokenRepository implements auth.RefreshTokenRepository using
// PostgreSQL.
type RefreshTokenRepository struct {
	db DB
}

// NewRefreshTokenRepository creates a new RefreshTokenRepository.
func NewRefreshTokenRepository(db DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

// Create stores a new refresh token record.
func (r *RefreshTokenRepository) Create(ctx context.Context, record *auth.RefreshTokenRecord) error {
	var replacedBy *string
	if record.ReplacedBy != nil {
		s := record.ReplacedBy.String()
		replacedBy = &s
	}
	var ipAddress, userAgent *string
	if record.IPAddress != "" {
		ipAddress = &record.IPAddress
	}
	if record.UserAgent != "" {
		userAgent = &record.UserAgent
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO refresh_tokens (
			id, account_id, token_hash, expires_at, issued_at,
			revoked_at, replaced_by, ip_address, user_agent
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		record.ID.String(),
		record.AccountID.String(),
		record.TokenHash,
		record.ExpiresAt,
		record.IssuedAt,
		record.RevokedAt,
		replacedBy,
		ipAddress,
		userAgent,
	)
	if err != nil {
		return oops.Code("REFRESH_CREATE_FAILED").
			With("operation", "insert refresh_token").
			With("account_id", record.AccountID.String()).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a refresh token record by ID.
func (r *RefreshTokenRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.RefreshTokenRecord, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, account_id, token_hash, expires_at, issued_at,
		       revoked_at, replaced_by, ip_address, user_agent
		FROM refresh_tokens
		WHERE id = $1
	`, id.String())

	record, err := scanRefreshToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("REFRESH_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("REFRESH_GET_BY_ID_FAILED").
			With("operation", "get refresh token by id").
			With("id", id.String()).
			Wrap(err)
	}
	return record, nil
}

// Revoke marks the record revoked. Revoking an already-revoked record is a
// no-op, so logout is idempotent.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, id ulid.ULID, at time.Time) error {
	result, err := r.db.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = COALESCE(revoked_at, $2)
		WHERE id = $1
	`, id.String(), at)
	if err != nil {
		return oops.Code("REFRESH_REVOKE_FAILED").
			With("operation", "revoke refresh token").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("REFRESH_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// RevokeRotated revokes the record as part of a rotation, linking it to its
// successor. The update is conditional on the record still being unrevoked;
// when a concurrent rotation got there first, zero rows match and
// auth.ErrAlreadyRevoked is returned so the caller can treat the
// presentation as reuse.
func (r *RefreshTokenRepository) RevokeRotated(ctx context.Context, id ulid.ULID, at time.Time, replacedBy ulid.ULID) error {
	result, err := r.db.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = $2, replaced_by = $3
		WHERE id = $1 AND revoked_at IS NULL
	`, id.String(), at, replacedBy.String())
	if err != nil {
		return oops.Code("REFRESH_ROTATE_FAILED").
			With("operation", "revoke rotated refresh token").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("REFRESH_ALREADY_REVOKED").
			With("id", id.String()).
			Wrap(auth.ErrAlreadyRevoked)
	}
	return nil
}

// RevokeAllForAccount revokes every live record for the account and returns
// how many were hit. Zero is not an error.
func (r *RefreshTokenRepository) RevokeAllForAccount(ctx context.Context, accountID ulid.ULID, at time.Time) (int64, error) {
	result, err := r.db.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = $2
		WHERE account_id = $1 AND revoked_at IS NULL
	`, accountID.String(), at)
	if err != nil {
		return 0, oops.Code("REFRESH_REVOKE_ALL_FAILED").
			With("operation", "revoke all refresh tokens").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// DeleteExpired removes records past their expiry, revoked or not.
func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.Exec(ctx, `
		DELETE FROM refresh_tokens WHERE expires_at < $1
	`, time.Now())
	if err != nil {
		return 0, oops.Code("REFRESH_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired refresh tokens").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// scanRefreshToken scans a single row into a RefreshTokenRecord.
// Callers are responsible for handling pgx.ErrNoRows.
func scanRefreshToken(row pgx.Row) (*auth.RefreshTokenRecord, error) {
	var (
		idStr         string
		accountIDStr  string
		tokenHash     string
		expiresAt     time.Time
		issuedAt      time.Time
		revokedAt     *time.Time
		replacedByStr *string
		ipAddress     *string
		userAgent     *string
	)

	err := row.Scan(
		&idStr,
		&accountIDStr,
		&tokenHash,
		&expiresAt,
		&issuedAt,
		&revokedAt,
		&replacedByStr,
		&ipAddress,
		&userAgent,
	)
	if err != nil {
		return nil, err
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("REFRESH_SCAN_FAILED").
			With("operation", "parse refresh token id").
			With("id", idStr).
			Wrap(err)
	}
	accountID, err := ulid.Parse(accountIDStr)
	if err != nil {
		return nil, oops.Code("REFRESH_SCAN_FAILED").
			With("operation", "parse account id").
			With("account_id", accountIDStr).
			Wrap(err)
	}

	var replacedBy *ulid.ULID
	if replacedByStr != nil {
		parsed, err := ulid.Parse(*replacedByStr)
		if err != nil {
			return nil, oops.Code("REFRESH_SCAN_FAILED").
				With("operation", "parse replaced_by id").
				With("replaced_by", *replacedByStr).
				Wrap(err)
		}
		replacedBy = &parsed
	}

	record := &auth.RefreshTokenRecord{
		ID:         id,
		AccountID:  accountID,
		TokenHash:  tokenHash,
		ExpiresAt:  expiresAt,
		IssuedAt:   issuedAt,
		RevokedAt:  revokedAt,
		ReplacedBy: replacedBy,
	}
	if ipAddress != nil {
		record.IPAddress = *ipAddress
	}
	if userAgent != nil {
		record.UserAgent = *userAgent
	}
	return record, nil
}
