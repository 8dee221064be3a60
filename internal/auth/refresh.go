// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QuillPress Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// RefreshTokenRecord is the server-side state for one issued refresh token.
// TokenHash is the SHA-256 of the token's random secret; the plaintext is
// never stored. A record is valid while it is unrevoked and unexpired; its
// one terminal transition is revocation (logout, rotation, or breach
// containment) or natural expiry.
type RefreshTokenRecord struct {
	ID         ulid.ULID
	AccountID  ulid.ULID
	TokenHash  string
	ExpiresAt  time.Time
	IssuedAt   time.Time
	RevokedAt  *time.Time
	ReplacedBy *ulid.ULID
	IPAddress  string
	UserAgent  string
}

// NewRefreshTokenRecord creates a validated record. The ID is supplied by
// the caller because it is embedded in the signed statement before the
// record is persisted.
func NewRefreshTokenRecord(id, accountID ulid.ULID, tokenHash string, expiresAt time.Time, ipAddress, userAgent string) (*RefreshTokenRecord, error) {
	if id.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("REFRESH_INVALID_ID").Errorf("record ID cannot be zero")
	}
	if accountID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("REFRESH_INVALID_ACCOUNT").Errorf("account ID cannot be zero")
	}
	if tokenHash == "" {
		return nil, oops.Code("REFRESH_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if expiresAt.IsZero() {
		return nil, oops.Code("REFRESH_INVALID_EXPIRY").Errorf("expiry time cannot be zero")
	}

	return &RefreshTokenRecord{
		ID:        id,
		AccountID: accountID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		IssuedAt:  time.Now(),
		IPAddress: ipAddress,
		UserAgent: userAgent,
	}, nil
}

// IsExpired returns true if the record has expired.
func (r *RefreshTokenRecord) IsExpired() bool {
	return time.Now().After(r.ExpiresAt)
}

// IsRevoked returns true if the record has been revoked.
func (r *RefreshTokenRecord) IsRevoked() bool {
	return r.RevokedAt != nil
}

// IsValid returns true while the record is unrevoked and unexpired.
func (r *RefreshTokenRecord) IsValid() bool {
	return !r.IsRevoked() && !r.IsExpired()
}

// RefreshTokenRepository manages refresh token record persistence.
type RefreshTokenRepository interface {
	// Create stores a new record.
	Create(ctx context.Context, record *RefreshTokenRecord) error

	// GetByID retrieves a record by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*RefreshTokenRecord, error)

	// Revoke marks a record revoked. Revoking an already-revoked record is
	// a no-op so logout stays idempotent.
	Revoke(ctx context.Context, id ulid.ULID, at time.Time) error

	// RevokeRotated marks a record revoked and links the replacing
	// record's ID. The update is a compare-and-swap on the revoked state:
	// it succeeds only if the record was still unrevoked, so two
	// concurrent rotations of the same token can never both win. The
	// loser gets ErrAlreadyRevoked (wrapped).
	RevokeRotated(ctx context.Context, id ulid.ULID, at time.Time, replacedBy ulid.ULID) error

	// RevokeAllForAccount revokes every live record for the account and
	// returns the count revoked.
	RevokeAllForAccount(ctx context.Context, accountID ulid.ULID, at time.Time) (int64, error)

	// DeleteExpired removes expired records (retention cleanup) and
	// returns the count deleted.
	DeleteExpired(ctx context.Context) (int64, error)
}
