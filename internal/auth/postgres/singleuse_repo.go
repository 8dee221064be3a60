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

// SingleUseTokenRepository implements auth.SingleUseTokenRepository using
// PostgreSQL.
type SingleUseTokenRepository struct {
	db DB
}

// NewSingleUseTokenRepository creates a new SingleUseTokenRepository.
func NewSingleUseTokenRepository(db DB) *SingleUseTokenRepository {
	return &SingleUseTokenRepository{db: db}
}

// Create stores a new single-use token.
func (r *SingleUseTokenRepository) Create(ctx context.Context, token *auth.SingleUseToken) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO single_use_tokens (id, account_id, purpose, token_hash, expires_at, used_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		token.ID.String(),
		token.AccountID.String(),
		string(token.Purpose),
		token.TokenHash,
		token.ExpiresAt,
		token.UsedAt,
		token.CreatedAt,
	)
	if err != nil {
		return oops.Code("TOKEN_CREATE_FAILED").
			With("operation", "insert single_use_token").
			With("account_id", token.AccountID.String()).
			With("purpose", string(token.Purpose)).
			Wrap(err)
	}
	return nil
}

// GetByTokenHash retrieves a token by purpose and hash.
func (r *SingleUseTokenRepository) GetByTokenHash(ctx context.Context, purpose auth.TokenPurpose, tokenHash string) (*auth.SingleUseToken, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, account_id, purpose, token_hash, expires_at, used_at, created_at
		FROM single_use_tokens
		WHERE purpose = $1 AND token_hash = $2
	`, string(purpose), tokenHash)

	token, err := scanSingleUseToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("TOKEN_NOT_FOUND").
			With("purpose", string(purpose)).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("TOKEN_GET_BY_HASH_FAILED").
			With("operation", "get token by hash").
			With("purpose", string(purpose)).
			Wrap(err)
	}
	return token, nil
}

// MarkUsed claims the token. The update is conditional on the token still
// being unused; a concurrent claim leaves zero rows and returns
// auth.ErrAlreadyUsed, so exactly one caller wins.
func (r *SingleUseTokenRepository) MarkUsed(ctx context.Context, id ulid.ULID, at time.Time) error {
	result, err := r.db.Exec(ctx, `
		UPDATE single_use_tokens
		SET used_at = $2
		WHERE id = $1 AND used_at IS NULL
	`, id.String(), at)
	if err != nil {
		return oops.Code("TOKEN_MARK_USED_FAILED").
			With("operation", "mark token used").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("TOKEN_ALREADY_USED").
			With("id", id.String()).
			Wrap(auth.ErrAlreadyUsed)
	}
	return nil
}

// InvalidateForAccount consumes every outstanding token of the purpose for
// the account, so only the most recently issued one works.
func (r *SingleUseTokenRepository) InvalidateForAccount(ctx context.Context, accountID ulid.ULID, purpose auth.TokenPurpose, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE single_use_tokens
		SET used_at = $3
		WHERE account_id = $1 AND purpose = $2 AND used_at IS NULL
	`, accountID.String(), string(purpose), at)
	if err != nil {
		return oops.Code("TOKEN_INVALIDATE_FAILED").
			With("operation", "invalidate tokens for account").
			With("account_id", accountID.String()).
			With("purpose", string(purpose)).
			Wrap(err)
	}
	return nil
}

// DeleteExpired removes tokens past their expiry, used or not.
func (r *SingleUseTokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.Exec(ctx, `
		DELETE FROM single_use_tokens WHERE expires_at < $1
	`, time.Now())
	if err != nil {
		return 0, oops.Code("TOKEN_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired single-use tokens").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// scanSingleUseToken scans a single row into a SingleUseToken.
// Callers are responsible for handling pgx.ErrNoRows.
func scanSingleUseToken(row pgx.Row) (*auth.SingleUseToken, error) {
	var (
		idStr        string
		accountIDStr string
		purpose      string
		tokenHash    string
		expiresAt    time.Time
		usedAt       *time.Time
		createdAt    time.Time
	)

	err := row.Scan(
		&idStr,
		&accountIDStr,
		&purpose,
		&tokenHash,
		&expiresAt,
		&usedAt,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("TOKEN_SCAN_FAILED").
			With("operation", "parse token id").
			With("id", idStr).
			Wrap(err)
	}
	accountID, err := ulid.Parse(accountIDStr)
	if err != nil {
		return nil, oops.Code("TOKEN_SCAN_FAILED").
			With("operation", "parse account id").
			With("account_id", accountIDStr).
			Wrap(err)
	}

	return &auth.SingleUseToken{
		ID:        id,
		AccountID: accountID,
		Purpose:   auth.TokenPurpose(purpose),
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		UsedAt:    usedAt,
		CreatedAt: createdAt,
	}, nil
}
