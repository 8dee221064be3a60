// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QuillPress Contributors

package auth

import "runtime"

// GatedHasher wraps a PasswordHasher with a bounded worker gate so that a
// burst of concurrent logins cannot saturate the scheduler with argon2
// computations. Each call occupies one slot for the duration of the hash;
// callers beyond the limit queue. The gate is an owned, injected value with
// no package-level state, so tests can construct isolated instances.
type GatedHasher struct {
	inner PasswordHasher
	slots chan struct{}
}

// NewGatedHasher creates a GatedHasher allowing at most maxConcurrent
// simultaneous hash computations. A non-positive limit defaults to
// GOMAXPROCS.
func NewGatedHasher(inner PasswordHasher, maxConcurrent int) *GatedHasher {
	if maxConcurrent <= 0 {
		maxConcurrent = runtime.GOMAXPROCS(0)
	}
	return &GatedHasher{
		inner: inner,
		slots: make(chan struct{}, maxConcurrent),
	}
}

// Hash computes a digest through the gate.
func (g *GatedHasher) Hash(password string) (string, error) {
	g.slots <- struct{}{}
	defer func() { <-g.slots }()
	return g.inner.Hash(password)
}

// Verify checks a password through the gate.
func (g *GatedHasher) Verify(password, digest string) (bool, error) {
	g.slots <- struct{}{}
	defer func() { <-g.slots }()
	return g.inner.Verify(password, digest)
}

// NeedsRehash delegates to the wrapped hasher; it does no key derivation and
// bypasses the gate.
func (g *GatedHasher) NeedsRehash(digest string) bool {
	return g.inner.NeedsRehash(digest)
}
