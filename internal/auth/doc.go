// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QuillPress Contributors

// Package auth implements the QuillPress authentication core.
//
// # Domain Types
//
// Domain types (Account, RefreshTokenRecord, SingleUseToken) should be
// created using their respective constructors:
//   - NewAccount - creates an Account with a validated email and password hash
//   - NewRefreshTokenRecord - creates a RefreshTokenRecord with validated owner and expiry
//   - NewSingleUseToken - creates a SingleUseToken with validated owner, purpose, and expiry
//
// Direct struct initialization bypasses validation and may create invalid state.
// Repository implementations receive pre-validated types from these constructors.
//
// # Services
//
// Service coordinates the domain operations: registration, login with
// per-account lockout, access/refresh token issuance with rotation and reuse
// detection, password change/reset, and email verification. All mutable state
// lives behind the repository interfaces; a Service value is safe for
// concurrent use.
package auth
