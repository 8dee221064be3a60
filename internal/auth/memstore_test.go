// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QuillPress Contributors

package auth_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/quillpress/quillpress/internal/auth"
)

// memStore is an in-memory SecretStore for service tests. The repositories
// honor the same contracts as the Postgres implementations, including the
// conditional revoke and mark-used updates. failOnce injects a single
// storage error at a named operation.
type memStore struct {
	mu        sync.Mutex
	accounts  map[ulid.ULID]*auth.Account
	refresh   map[ulid.ULID]*auth.RefreshTokenRecord
	singleUse map[ulid.ULID]*auth.SingleUseToken
	failNext  map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		accounts:  make(map[ulid.ULID]*auth.Account),
		refresh:   make(map[ulid.ULID]*auth.RefreshTokenRecord),
		singleUse: make(map[ulid.ULID]*auth.SingleUseToken),
		failNext:  make(map[string]error),
	}
}

func (m *memStore) secretStore() auth.SecretStore {
	return auth.SecretStore{
		Accounts:        &memAccounts{m},
		RefreshTokens:   &memRefresh{m},
		SingleUseTokens: &memSingleUse{m},
	}
}

func (m *memStore) failOnce(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext[op] = err
}

// takeFailure must be called with mu held.
func (m *memStore) takeFailure(op string) error {
	if err, ok := m.failNext[op]; ok {
		delete(m.failNext, op)
		return err
	}
	return nil
}

func (m *memStore) account(id ulid.ULID) *auth.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[id]; ok {
		c := *a
		return &c
	}
	return nil
}

func (m *memStore) mutateAccount(id ulid.ULID, fn func(*auth.Account)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[id]; ok {
		fn(a)
	}
}

func (m *memStore) onlyRefresh() *auth.RefreshTokenRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.refresh) != 1 {
		panic(fmt.Sprintf("expected exactly one refresh record, have %d", len(m.refresh)))
	}
	for _, r := range m.refresh {
		c := *r
		return &c
	}
	return nil
}

func (m *memStore) refreshRecord(id ulid.ULID) *auth.RefreshTokenRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.refresh[id]; ok {
		c := *r
		return &c
	}
	return nil
}

func (m *memStore) mutateRefresh(id ulid.ULID, fn func(*auth.RefreshTokenRecord)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.refresh[id]; ok {
		fn(r)
	}
}

func (m *memStore) liveRefreshCount(accountID ulid.ULID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.refresh {
		if r.AccountID.Compare(accountID) == 0 && !r.IsRevoked() {
			n++
		}
	}
	return n
}

type memAccounts struct{ s *memStore }

func (m *memAccounts) Create(_ context.Context, account *auth.Account) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.takeFailure("accounts.create"); err != nil {
		return err
	}
	for _, existing := range m.s.accounts {
		if existing.Email == account.Email {
			return fmt.Errorf("account %q: %w", account.Email, auth.ErrDuplicateEmail)
		}
	}
	c := *account
	m.s.accounts[account.ID] = &c
	return nil
}

func (m *memAccounts) GetByID(_ context.Context, id ulid.ULID) (*auth.Account, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.takeFailure("accounts.get"); err != nil {
		return nil, err
	}
	a, ok := m.s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", id, auth.ErrNotFound)
	}
	c := *a
	return &c, nil
}

func (m *memAccounts) GetByEmail(_ context.Context, email string) (*auth.Account, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.takeFailure("accounts.get_by_email"); err != nil {
		return nil, err
	}
	for _, a := range m.s.accounts {
		if a.Email == auth.NormalizeEmail(email) {
			c := *a
			return &c, nil
		}
	}
	return nil, fmt.Errorf("account %q: %w", email, auth.ErrNotFound)
}

func (m *memAccounts) UpdatePassword(_ context.Context, id ulid.ULID, passwordHash string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.takeFailure("accounts.update_password"); err != nil {
		return err
	}
	a, ok := m.s.accounts[id]
	if !ok {
		return fmt.Errorf("account %s: %w", id, auth.ErrNotFound)
	}
	a.PasswordHash = passwordHash
	a.PasswordChangedAt = time.Now()
	return nil
}

func (m *memAccounts) RecordLoginFailure(_ context.Context, id ulid.ULID, attempts int, lockedUntil *time.Time) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.takeFailure("accounts.record_failure"); err != nil {
		return err
	}
	if a, ok := m.s.accounts[id]; ok {
		a.FailedAttempts = attempts
		a.LockedUntil = lockedUntil
	}
	return nil
}

func (m *memAccounts) RecordLoginSuccess(_ context.Context, id ulid.ULID, at time.Time, ip string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.takeFailure("accounts.record_success"); err != nil {
		return err
	}
	if a, ok := m.s.accounts[id]; ok {
		a.FailedAttempts = 0
		a.LockedUntil = nil
		a.LastLoginAt = &at
		if ip != "" {
			a.LastLoginIP = &ip
		}
	}
	return nil
}

func (m *memAccounts) MarkEmailVerified(_ context.Context, id ulid.ULID, at time.Time) (*auth.Account, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.takeFailure("accounts.mark_verified"); err != nil {
		return nil, err
	}
	a, ok := m.s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", id, auth.ErrNotFound)
	}
	if a.EmailVerifiedAt == nil {
		a.EmailVerifiedAt = &at
	}
	if a.Status == auth.StatusPending {
		a.Status = auth.StatusActive
	}
	c := *a
	return &c, nil
}

func (m *memAccounts) Delete(_ context.Context, id ulid.ULID) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	delete(m.s.accounts, id)
	return nil
}

type memRefresh struct{ s *memStore }

func (m *memRefresh) Create(_ context.Context, record *auth.RefreshTokenRecord) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.takeFailure("refresh.create"); err != nil {
		return err
	}
	c := *record
	m.s.refresh[record.ID] = &c
	return nil
}

func (m *memRefresh) GetByID(_ context.Context, id ulid.ULID) (*auth.RefreshTokenRecord, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.takeFailure("refresh.get"); err != nil {
		return nil, err
	}
	r, ok := m.s.refresh[id]
	if !ok {
		return nil, fmt.Errorf("refresh token %s: %w", id, auth.ErrNotFound)
	}
	c := *r
	return &c, nil
}

func (m *memRefresh) Revoke(_ context.Context, id ulid.ULID, at time.Time) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.takeFailure("refresh.revoke"); err != nil {
		return err
	}
	r, ok := m.s.refresh[id]
	if !ok {
		return fmt.Errorf("refresh token %s: %w", id, auth.ErrNotFound)
	}
	if r.RevokedAt == nil {
		r.RevokedAt = &at
	}
	return nil
}

func (m *memRefresh) RevokeRotated(_ context.Context, id ulid.ULID, at time.Time, replacedBy ulid.ULID) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.takeFailure("refresh.revoke_rotated"); err != nil {
		return err
	}
	r, ok := m.s.refresh[id]
	if !ok {
		return fmt.Errorf("refresh token %s: %w", id, auth.ErrNotFound)
	}
	if r.RevokedAt != nil {
		return fmt.Errorf("refresh token %s: %w", id, auth.ErrAlreadyRevoked)
	}
	r.RevokedAt = &at
	r.ReplacedBy = &replacedBy
	return nil
}

func (m *memRefresh) RevokeAllForAccount(_ context.Context, accountID ulid.ULID, at time.Time) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.takeFailure("refresh.revoke_all"); err != nil {
		return 0, err
	}
	var n int64
	for _, r := range m.s.refresh {
		if r.AccountID.Compare(accountID) == 0 && r.RevokedAt == nil {
			r.RevokedAt = &at
			n++
		}
	}
	return n, nil
}

func (m *memRefresh) DeleteExpired(_ context.Context) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.takeFailure("refresh.delete_expired"); err != nil {
		return 0, err
	}
	var n int64
	for id, r := range m.s.refresh {
		if r.IsExpired() {
			delete(m.s.refresh, id)
			n++
		}
	}
	return n, nil
}

type memSingleUse struct{ s *memStore }

func (m *memSingleUse) Create(_ context.Context, token *auth.SingleUseToken) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.takeFailure("singleuse.create"); err != nil {
		return err
	}
	c := *token
	m.s.singleUse[token.ID] = &c
	return nil
}

func (m *memSingleUse) GetByTokenHash(_ context.Context, purpose auth.TokenPurpose, tokenHash string) (*auth.SingleUseToken, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.takeFailure("singleuse.get"); err != nil {
		return nil, err
	}
	for _, tok := range m.s.singleUse {
		if tok.Purpose == purpose && tok.TokenHash == tokenHash {
			c := *tok
			return &c, nil
		}
	}
	return nil, fmt.Errorf("single-use token: %w", auth.ErrNotFound)
}

func (m *memSingleUse) MarkUsed(_ context.Context, id ulid.ULID, at time.Time) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.takeFailure("singleuse.mark_used"); err != nil {
		return err
	}
	tok, ok := m.s.singleUse[id]
	if !ok {
		return fmt.Errorf("single-use token %s: %w", id, auth.ErrNotFound)
	}
	if tok.UsedAt != nil {
		return fmt.Errorf("single-use token %s: %w", id, auth.ErrAlreadyUsed)
	}
	tok.UsedAt = &at
	return nil
}

func (m *memSingleUse) InvalidateForAccount(_ context.Context, accountID ulid.ULID, purpose auth.TokenPurpose, at time.Time) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.takeFailure("singleuse.invalidate"); err != nil {
		return err
	}
	for _, tok := range m.s.singleUse {
		if tok.AccountID.Compare(accountID) == 0 && tok.Purpose == purpose && tok.UsedAt == nil {
			tok.UsedAt = &at
		}
	}
	return nil
}

func (m *memSingleUse) DeleteExpired(_ context.Context) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.takeFailure("singleuse.delete_expired"); err != nil {
		return 0, err
	}
	var n int64
	for id, tok := range m.s.singleUse {
		if tok.IsExpired() {
			delete(m.s.singleUse, id)
			n++
		}
	}
	return n, nil
}

var (
	_ auth.AccountRepository        = (*memAccounts)(nil)
	_ auth.RefreshTokenRepository   = (*memRefresh)(nil)
	_ auth.SingleUseTokenRepository = (*memSingleUse)(nil)
)
