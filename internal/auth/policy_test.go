// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QuillPress Contributors

package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quillpress/quillpress/internal/auth"
	"github.com/quillpress/quillpress/pkg/errutil"
)

func TestPasswordPolicy_Validate(t *testing.T) {
	tests := []struct {
		name      string
		minLength int
		password  string
		wantErr   bool
	}{
		{
			name:      "valid password",
			minLength: 8,
			password:  "Sunrise42",
			wantErr:   false,
		},
		{
			name:      "too short",
			minLength: 8,
			password:  "Ab1",
			wantErr:   true,
		},
		{
			name:      "exactly minimum length",
			minLength: 8,
			password:  "Abcdef12",
			wantErr:   false,
		},
		{
			name:      "missing uppercase",
			minLength: 8,
			password:  "sunrise42",
			wantErr:   true,
		},
		{
			name:      "missing lowercase",
			minLength: 8,
			password:  "SUNRISE42",
			wantErr:   true,
		},
		{
			name:      "missing digit",
			minLength: 8,
			password:  "SunriseGlow",
			wantErr:   true,
		},
		{
			name:      "longer configured minimum applies",
			minLength: 12,
			password:  "Sunrise42",
			wantErr:   true,
		},
		{
			name:      "unicode letters count",
			minLength: 8,
			password:  "Грибник42",
			wantErr:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := auth.NewPasswordPolicy(tt.minLength)
			err := policy.Validate(tt.password)
			if tt.wantErr {
				errutil.AssertErrorCode(t, err, auth.CodeWeakPassword)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewPasswordPolicy_ClampsMinimum(t *testing.T) {
	policy := auth.NewPasswordPolicy(3)
	assert.Equal(t, auth.MinPasswordLength, policy.MinLength)

	// A zero-valued policy still enforces the floor.
	var zero auth.PasswordPolicy
	err := zero.Validate("Ab1")
	errutil.AssertErrorCode(t, err, auth.CodeWeakPassword)
}
