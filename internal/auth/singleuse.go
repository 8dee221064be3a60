// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QuillPress Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// TokenPurpose distinguishes the two single-use token flows.
type TokenPurpose string

// Single-use token purposes.
const (
	PurposePasswordReset     TokenPurpose = "password_reset"
	PurposeEmailVerification TokenPurpose = "email_verification"
)

// Valid reports whether p is a known purpose.
func (p TokenPurpose) Valid() bool {
	return p == PurposePasswordReset || p == PurposeEmailVerification
}

// SingleUseTokenBytes is the entropy of a generated token value.
// 32 bytes = 64 hex chars.
const SingleUseTokenBytes = 32

// SingleUseToken is a hashed, time-boxed, one-shot credential shared by the
// password-reset and email-verification flows. Only the SHA-256 of the token
// value is stored; the plaintext is handed to the caller exactly once.
type SingleUseToken struct {
	ID        ulid.ULID
	AccountID ulid.ULID
	Purpose   TokenPurpose
	TokenHash string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// NewSingleUseToken creates a validated SingleUseToken.
func NewSingleUseToken(accountID ulid.ULID, purpose TokenPurpose, tokenHash string, expiresAt time.Time) (*SingleUseToken, error) {
	if accountID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("TOKEN_INVALID_ACCOUNT").Errorf("account ID cannot be zero")
	}
	if !purpose.Valid() {
		return nil, oops.Code("TOKEN_INVALID_PURPOSE").With("purpose", string(purpose)).Errorf("unknown token purpose")
	}
	if tokenHash == "" {
		return nil, oops.Code("TOKEN_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if expiresAt.IsZero() {
		return nil, oops.Code("TOKEN_INVALID_EXPIRY").Errorf("expiry time cannot be zero")
	}

	return &SingleUseToken{
		ID:        ulid.Make(),
		AccountID: accountID,
		Purpose:   purpose,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}, nil
}

// IsExpired returns true if the token has expired.
func (t *SingleUseToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// IsUsable returns true while the token is unused and unexpired.
func (t *SingleUseToken) IsUsable() bool {
	return t.UsedAt == nil && !t.IsExpired()
}

// GenerateSingleUseToken creates a secure random token value and its hash.
// Returns (plaintext_token, sha256_hash, error). The plaintext goes to the
// caller for delivery; only the hash is persisted.
func GenerateSingleUseToken() (token, hash string, err error) {
	raw := make([]byte, SingleUseTokenBytes)
	if _, err = rand.Read(raw); err != nil {
		return "", "", oops.Code("TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			Wrap(err)
	}

	token = hex.EncodeToString(raw)
	hash = HashTokenValue(token)
	return token, hash, nil
}

// HashTokenValue computes the SHA-256 of a token value, hex encoded.
// Used for both single-use tokens and refresh token secrets.
func HashTokenValue(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// VerifyTokenValue checks a plaintext token against a stored hash in
// constant time.
func VerifyTokenValue(token, hash string) bool {
	if token == "" || hash == "" {
		return false
	}
	computed := HashTokenValue(token)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}

// SingleUseTokenRepository manages single-use token persistence.
type SingleUseTokenRepository interface {
	// Create stores a new token.
	Create(ctx context.Context, token *SingleUseToken) error

	// GetByTokenHash retrieves a token of the given purpose by its hash.
	GetByTokenHash(ctx context.Context, purpose TokenPurpose, tokenHash string) (*SingleUseToken, error)

	// MarkUsed stamps the token used. The update is conditional on the
	// token being unused; losing that race returns ErrAlreadyUsed
	// (wrapped).
	MarkUsed(ctx context.Context, id ulid.ULID, at time.Time) error

	// InvalidateForAccount marks all unused tokens of the purpose for the
	// account as used, so only the newest issued token works.
	InvalidateForAccount(ctx context.Context, accountID ulid.ULID, purpose TokenPurpose, at time.Time) error

	// DeleteExpired removes expired tokens and returns the count deleted.
	DeleteExpired(ctx context.Context) (int64, error)
}
