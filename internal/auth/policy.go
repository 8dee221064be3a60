// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QuillPress Contributors

package auth

import (
	"unicode"

	"github.com/samber/oops"
)

// MinPasswordLength is the floor for the configurable minimum; the policy
// never accepts anything shorter regardless of configuration.
const MinPasswordLength = 8

// PasswordPolicy enforces password strength: a minimum length plus at least
// one uppercase letter, one lowercase letter, and one digit.
type PasswordPolicy struct {
	MinLength int
}

// NewPasswordPolicy creates a policy with the given minimum length,
// clamped to MinPasswordLength.
func NewPasswordPolicy(minLength int) PasswordPolicy {
	if minLength < MinPasswordLength {
		minLength = MinPasswordLength
	}
	return PasswordPolicy{MinLength: minLength}
}

// Validate returns nil if the password satisfies the policy.
func (p PasswordPolicy) Validate(password string) error {
	minLen := p.MinLength
	if minLen < MinPasswordLength {
		minLen = MinPasswordLength
	}
	if len(password) < minLen {
		return oops.Code(CodeWeakPassword).
			With("min_length", minLen).
			Errorf("password must be at least %d characters", minLen)
	}

	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}

	if !hasUpper || !hasLower || !hasDigit {
		return oops.Code(CodeWeakPassword).
			Errorf("password must contain an uppercase letter, a lowercase letter, and a digit")
	}
	return nil
}
