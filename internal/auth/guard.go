// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QuillPress Contributors

package auth

import "time"

// Lockout defaults.
const (
	// DefaultLockoutThreshold is the number of consecutive failures that
	// triggers a lockout.
	DefaultLockoutThreshold = 5

	// DefaultLockoutDuration is how long an account stays locked once the
	// threshold is reached.
	DefaultLockoutDuration = 15 * time.Minute
)

// Guard tracks the failed-attempt policy for accounts. It is pure
// computation over the counters stored on the Account; persistence goes
// through AccountRepository. A Guard is an explicitly owned, injected value
// so tests can construct isolated instances.
type Guard struct {
	threshold int
	lockout   time.Duration
}

// NewGuard creates a Guard. Non-positive arguments fall back to the defaults.
func NewGuard(threshold int, lockout time.Duration) *Guard {
	if threshold <= 0 {
		threshold = DefaultLockoutThreshold
	}
	if lockout <= 0 {
		lockout = DefaultLockoutDuration
	}
	return &Guard{threshold: threshold, lockout: lockout}
}

// OnFailure computes the state after one more failed attempt: the new
// counter value and, if the threshold was reached, the lockout expiry.
// Below the threshold the existing lockout value is passed through
// untouched.
func (g *Guard) OnFailure(attempts int, lockedUntil *time.Time) (int, *time.Time) {
	attempts++
	if attempts >= g.threshold {
		until := time.Now().Add(g.lockout)
		return attempts, &until
	}
	return attempts, lockedUntil
}

// OnSuccess returns the values to persist after a successful login: a zero
// counter and no lockout.
func (g *Guard) OnSuccess() (int, *time.Time) {
	return 0, nil
}

// IsLocked returns true if the lockout expiry is set and in the future.
func (g *Guard) IsLocked(lockedUntil *time.Time) bool {
	return lockedUntil != nil && lockedUntil.After(time.Now())
}

// Remaining returns the time until the lockout expires, or zero when not
// locked.
func (g *Guard) Remaining(lockedUntil *time.Time) time.Duration {
	if !g.IsLocked(lockedUntil) {
		return 0
	}
	return time.Until(*lockedUntil)
}

// Threshold returns the configured failure threshold.
func (g *Guard) Threshold() int { return g.threshold }
