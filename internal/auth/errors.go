// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QuillPress Contributors

package auth

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateEmail is returned when creating an account whose email is
// already registered.
var ErrDuplicateEmail = errors.New("email already registered")

// ErrAlreadyRevoked is returned by the conditional revoke when the refresh
// token record was revoked before the update ran. On the rotation path this
// is the reuse-detection signal.
var ErrAlreadyRevoked = errors.New("refresh token already revoked")

// ErrAlreadyUsed is returned by the conditional mark-used when the single-use
// token was consumed before the update ran.
var ErrAlreadyUsed = errors.New("token already used")

// Stable error codes surfaced to callers. Storage and crypto failures are
// wrapped under operation-specific codes and never expose internals.
const (
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeAccountLocked      = "AUTH_ACCOUNT_LOCKED"
	CodeAccountNotActive   = "AUTH_ACCOUNT_NOT_ACTIVE"
	CodeEmailNotVerified   = "AUTH_EMAIL_NOT_VERIFIED"
	CodeInvalidToken       = "AUTH_INVALID_TOKEN"
	CodeTokenRevoked       = "AUTH_TOKEN_REVOKED"
	CodeUserNotFound       = "AUTH_USER_NOT_FOUND"
	CodeEmailExists        = "AUTH_EMAIL_EXISTS"
	CodeWeakPassword       = "AUTH_WEAK_PASSWORD"
	CodeValidation         = "AUTH_VALIDATION"
)
