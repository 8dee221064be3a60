// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QuillPress Contributors

package auth

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Role is an account's privilege level. Roles are ordered by convention only;
// nothing is implied beyond the explicit Can* checks.
type Role string

// Account roles.
const (
	RoleUser   Role = "user"
	RoleAuthor Role = "author"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAuthor, RoleEditor, RoleAdmin:
		return true
	}
	return false
}

// IsAdmin reports whether the role is admin.
func (r Role) IsAdmin() bool { return r == RoleAdmin }

// CanPublish reports whether the role may publish content.
func (r Role) CanPublish() bool {
	return r == RoleAuthor || r == RoleEditor || r == RoleAdmin
}

// CanModerate reports whether the role may moderate content.
func (r Role) CanModerate() bool {
	return r == RoleEditor || r == RoleAdmin
}

// Status is an account's lifecycle state.
type Status string

// Account statuses.
const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusDeleted   Status = "deleted"
)

// emailRegex is a permissive shape check; real validation happens when the
// verification email round-trips.
var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Account is the root identity record. PasswordHash is opaque and must never
// appear in any outward view.
type Account struct {
	ID                ulid.ULID
	Email             string
	PasswordHash      string
	Name              string
	Role              Role
	Status            Status
	EmailVerifiedAt   *time.Time
	LastLoginAt       *time.Time
	LastLoginIP       *string
	FailedAttempts    int
	LockedUntil       *time.Time
	PasswordChangedAt time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewAccount creates a validated Account with a fresh ID. The email must
// already be normalized with NormalizeEmail.
func NewAccount(email, passwordHash, name string, role Role, status Status) (*Account, error) {
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code(CodeValidation).Errorf("password hash cannot be empty")
	}
	if name == "" {
		return nil, oops.Code(CodeValidation).Errorf("name cannot be empty")
	}
	if !role.Valid() {
		return nil, oops.Code(CodeValidation).With("role", string(role)).Errorf("unknown role")
	}

	now := time.Now()
	return &Account{
		ID:                ulid.Make(),
		Email:             email,
		PasswordHash:      passwordHash,
		Name:              name,
		Role:              role,
		Status:            status,
		PasswordChangedAt: now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// IsLocked returns true if the account is currently locked out.
func (a *Account) IsLocked() bool {
	return a.LockedUntil != nil && a.LockedUntil.After(time.Now())
}

// IsEmailVerified returns true if the account's email has been verified.
func (a *Account) IsEmailVerified() bool {
	return a.EmailVerifiedAt != nil
}

// CanLogin returns true if the account may authenticate: active status and
// no live lockout.
func (a *Account) CanLogin() bool {
	return a.Status == StatusActive && !a.IsLocked()
}

// NormalizeEmail lowercases and trims an email address. All storage and
// lookup goes through the normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks the basic shape of an email address.
func ValidateEmail(email string) error {
	if email == "" {
		return oops.Code(CodeValidation).Errorf("email cannot be empty")
	}
	if len(email) > 254 || !emailRegex.MatchString(email) {
		return oops.Code(CodeValidation).With("email", email).Errorf("invalid email address")
	}
	return nil
}

// AccountRepository manages account persistence.
type AccountRepository interface {
	// Create stores a new account. Returns ErrDuplicateEmail (wrapped) if
	// the email is already registered.
	Create(ctx context.Context, account *Account) error

	// GetByID retrieves an account by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*Account, error)

	// GetByEmail retrieves an account by email (case-insensitive).
	GetByEmail(ctx context.Context, email string) (*Account, error)

	// UpdatePassword replaces the password digest and stamps
	// password_changed_at.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error

	// RecordLoginFailure persists the failure counter and, when the guard
	// tripped, the lockout expiry.
	RecordLoginFailure(ctx context.Context, id ulid.ULID, attempts int, lockedUntil *time.Time) error

	// RecordLoginSuccess atomically zeroes the failure counter, clears the
	// lockout, and records last-login time and IP.
	RecordLoginSuccess(ctx context.Context, id ulid.ULID, at time.Time, ip string) error

	// MarkEmailVerified stamps the verification time and activates a
	// pending account, returning the updated account.
	MarkEmailVerified(ctx context.Context, id ulid.ULID, at time.Time) (*Account, error)

	// Delete removes an account. Owned token records go with it.
	Delete(ctx context.Context, id ulid.ULID) error
}
