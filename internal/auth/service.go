// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QuillPress Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Single-use token TTL defaults, matching the original deployment.
const (
	DefaultResetTokenTTL        = time.Hour
	DefaultVerificationTokenTTL = 24 * time.Hour
)

// dummyPasswordHash is verified against when a login names an unknown email,
// so the unknown-account path costs the same as a wrong password.
// This is NOT a real credential - it's a fake hash that will never match any password.
//
//nolint:gosec // G101: This is an intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=3,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// SecretStore bundles the three repositories the service persists through.
type SecretStore struct {
	Accounts        AccountRepository
	RefreshTokens   RefreshTokenRepository
	SingleUseTokens SingleUseTokenRepository
}

func (s SecretStore) validate() error {
	if s.Accounts == nil || s.RefreshTokens == nil || s.SingleUseTokens == nil {
		return oops.Code("AUTH_MISSING_DEPENDENCY").Errorf("secret store requires all three repositories")
	}
	return nil
}

// ServiceConfig carries the policy knobs for a Service. Zero values fall
// back to the documented defaults.
type ServiceConfig struct {
	RequireEmailVerification bool
	PasswordPolicy           PasswordPolicy
	ResetTokenTTL            time.Duration
	VerificationTokenTTL     time.Duration
	Logger                   *slog.Logger
	Metrics                  *Metrics
}

// Service orchestrates the authentication operations. It holds no mutable
// state of its own - configuration and keys are read-only after
// construction - and is safe for unbounded concurrent use.
type Service struct {
	store       SecretStore
	hasher      PasswordHasher
	issuer      *TokenIssuer
	guard       *Guard
	policy      PasswordPolicy
	requireMail bool
	resetTTL    time.Duration
	verifyTTL   time.Duration
	logger      *slog.Logger
	metrics     *Metrics
}

// NewService creates a Service. The store, hasher, issuer, and guard are
// required.
func NewService(store SecretStore, hasher PasswordHasher, issuer *TokenIssuer, guard *Guard, cfg ServiceConfig) (*Service, error) {
	if err := store.validate(); err != nil {
		return nil, err
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_MISSING_DEPENDENCY").Errorf("password hasher is required")
	}
	if issuer == nil {
		return nil, oops.Code("AUTH_MISSING_DEPENDENCY").Errorf("token issuer is required")
	}
	if guard == nil {
		return nil, oops.Code("AUTH_MISSING_DEPENDENCY").Errorf("account guard is required")
	}
	if cfg.PasswordPolicy.MinLength == 0 {
		cfg.PasswordPolicy = NewPasswordPolicy(MinPasswordLength)
	}
	if cfg.ResetTokenTTL <= 0 {
		cfg.ResetTokenTTL = DefaultResetTokenTTL
	}
	if cfg.VerificationTokenTTL <= 0 {
		cfg.VerificationTokenTTL = DefaultVerificationTokenTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Service{
		store:       store,
		hasher:      hasher,
		issuer:      issuer,
		guard:       guard,
		policy:      cfg.PasswordPolicy,
		requireMail: cfg.RequireEmailVerification,
		resetTTL:    cfg.ResetTokenTTL,
		verifyTTL:   cfg.VerificationTokenTTL,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
	}, nil
}

// UserView is the outward projection of an Account. The password digest is
// structurally absent, not merely omitted from serialization.
type UserView struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	Role          string `json:"role"`
	EmailVerified bool   `json:"email_verified"`
}

// NewUserView projects an account into its outward view.
func NewUserView(a *Account) UserView {
	return UserView{
		ID:            a.ID.String(),
		Email:         a.Email,
		Name:          a.Name,
		Role:          string(a.Role),
		EmailVerified: a.IsEmailVerified(),
	}
}

// RegisterInput carries the registration fields.
type RegisterInput struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
	Name            string `json:"name"`
}

// RegisterResult is the successful registration response. The verification
// token is handed to the caller for delivery; it is empty when verification
// is not required.
type RegisterResult struct {
	User              UserView `json:"user"`
	VerificationToken string   `json:"verification_token,omitempty"`
}

// LoginInput carries the login fields plus client metadata.
type LoginInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	IPAddress string `json:"-"`
	UserAgent string `json:"-"`
}

// AuthResult is the successful login response.
type AuthResult struct {
	User         UserView `json:"user"`
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int64    `json:"expires_in"`
}

// TokenResult is the successful refresh response.
type TokenResult struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// ChangePasswordInput carries the authenticated password-change fields.
type ChangePasswordInput struct {
	CurrentPassword    string `json:"current_password"`
	NewPassword        string `json:"new_password"`
	NewPasswordConfirm string `json:"new_password_confirm"`
}

// ResetPasswordInput carries the token-based password-reset fields.
type ResetPasswordInput struct {
	Token           string `json:"token"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
}

// Register creates a new account. The account starts pending when email
// verification is required, active otherwise; in the former case the
// verification token is returned for delivery.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	email := NormalizeEmail(in.Email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if in.Name == "" {
		return nil, oops.Code(CodeValidation).Errorf("name cannot be empty")
	}
	if in.Password != in.PasswordConfirm {
		return nil, oops.Code(CodeValidation).Errorf("passwords do not match")
	}
	if err := s.policy.Validate(in.Password); err != nil {
		return nil, err
	}

	if _, err := s.store.Accounts.GetByEmail(ctx, email); err == nil {
		return nil, oops.Code(CodeEmailExists).Errorf("email already registered")
	} else if !errors.Is(err, ErrNotFound) {
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "get account by email").Wrap(err)
	}

	digest, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "hash password").Wrap(err)
	}

	status := StatusActive
	if s.requireMail {
		status = StatusPending
	}

	account, err := NewAccount(email, digest, in.Name, RoleUser, status)
	if err != nil {
		return nil, err
	}

	if err := s.store.Accounts.Create(ctx, account); err != nil {
		// A concurrent registration can win the race past the lookup.
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, oops.Code(CodeEmailExists).Errorf("email already registered")
		}
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "create account").Wrap(err)
	}

	result := &RegisterResult{User: NewUserView(account)}
	if s.requireMail {
		token, err := s.mintSingleUse(ctx, account.ID, PurposeEmailVerification, s.verifyTTL)
		if err != nil {
			return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "mint verification token").Wrap(err)
		}
		result.VerificationToken = token
	}

	s.metrics.recordRegistration()
	s.logger.Info("account registered", "account_id", account.ID.String(), "email", account.Email)
	return result, nil
}

// Login authenticates an account and returns a fresh access/refresh pair.
// An unknown email and a wrong password fail identically so callers cannot
// probe for registered addresses.
func (s *Service) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	email := NormalizeEmail(in.Email)

	account, err := s.store.Accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Burn a verification anyway so the timing matches.
			_, _ = s.hasher.Verify(in.Password, dummyPasswordHash) //nolint:errcheck // intentional dummy verify
			s.metrics.recordLogin(OutcomeInvalidCredentials)
			return nil, oops.Code(CodeInvalidCredentials).Errorf("invalid email or password")
		}
		return nil, oops.Code("AUTH_LOGIN_FAILED").With("operation", "get account by email").Wrap(err)
	}

	if s.guard.IsLocked(account.LockedUntil) {
		s.metrics.recordLogin(OutcomeLocked)
		s.logger.Warn("login attempt on locked account", "account_id", account.ID.String())
		return nil, oops.Code(CodeAccountLocked).
			With("locked_until", account.LockedUntil).
			Errorf("account is temporarily locked")
	}

	if account.Status != StatusActive {
		s.metrics.recordLogin(OutcomeNotActive)
		if account.Status == StatusPending && s.requireMail {
			return nil, oops.Code(CodeEmailNotVerified).Errorf("email address not verified")
		}
		return nil, oops.Code(CodeAccountNotActive).Errorf("account is not active")
	}

	ok, err := s.hasher.Verify(in.Password, account.PasswordHash)
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").With("operation", "verify password").Wrap(err)
	}
	if !ok {
		attempts, lockedUntil := s.guard.OnFailure(account.FailedAttempts, account.LockedUntil)
		if failErr := s.store.Accounts.RecordLoginFailure(ctx, account.ID, attempts, lockedUntil); failErr != nil {
			s.logger.Warn("best-effort login bookkeeping failed",
				"operation", "record_failure",
				"account_id", account.ID.String(),
				"error", failErr.Error())
		}
		if s.guard.IsLocked(lockedUntil) && !s.guard.IsLocked(account.LockedUntil) {
			s.metrics.recordLockout()
			s.logger.Warn("account locked after repeated failures",
				"account_id", account.ID.String(),
				"attempts", attempts)
		}
		s.metrics.recordLogin(OutcomeInvalidCredentials)
		return nil, oops.Code(CodeInvalidCredentials).Errorf("invalid email or password")
	}

	if err := s.store.Accounts.RecordLoginSuccess(ctx, account.ID, time.Now(), in.IPAddress); err != nil {
		s.logger.Warn("best-effort login bookkeeping failed",
			"operation", "record_success",
			"account_id", account.ID.String(),
			"error", err.Error())
	}

	access, refresh, err := s.issuePair(ctx, account, in.IPAddress, in.UserAgent)
	if err != nil {
		return nil, err
	}

	s.metrics.recordLogin(OutcomeSuccess)
	return &AuthResult{
		User:         NewUserView(account),
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.issuer.AccessTokenTTL().Seconds()),
	}, nil
}

// Refresh rotates a refresh token: the presented record is revoked with a
// conditional update and a new pair is issued. Presenting an already-revoked
// token is treated as theft and revokes every live token for the account.
func (s *Service) Refresh(ctx context.Context, refreshToken, ipAddress, userAgent string) (*TokenResult, error) {
	claims, secret, err := s.issuer.ParseRefresh(refreshToken)
	if err != nil {
		return nil, err
	}

	recordID, accountID, err := parseRefreshIDs(claims)
	if err != nil {
		return nil, err
	}

	record, err := s.store.RefreshTokens.GetByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeInvalidToken).Errorf("unknown refresh token")
		}
		return nil, oops.Code("AUTH_REFRESH_FAILED").With("operation", "get refresh record").Wrap(err)
	}

	if record.AccountID.Compare(accountID) != 0 || !VerifyTokenValue(secret, record.TokenHash) {
		return nil, oops.Code(CodeInvalidToken).Errorf("invalid refresh token")
	}

	if record.IsRevoked() {
		return nil, s.containReuse(ctx, record)
	}
	if record.IsExpired() {
		return nil, oops.Code(CodeInvalidToken).Errorf("refresh token expired")
	}

	account, err := s.store.Accounts.GetByID(ctx, record.AccountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeUserNotFound).Errorf("account no longer exists")
		}
		return nil, oops.Code("AUTH_REFRESH_FAILED").With("operation", "get account").Wrap(err)
	}
	if !account.CanLogin() {
		return nil, oops.Code(CodeAccountNotActive).Errorf("account is not active")
	}

	// Exactly one concurrent rotation of the same record can pass this
	// conditional update; the loser observes the token as revoked.
	newID := ulid.Make()
	if err := s.store.RefreshTokens.RevokeRotated(ctx, record.ID, time.Now(), newID); err != nil {
		if errors.Is(err, ErrAlreadyRevoked) {
			return nil, s.containReuse(ctx, record)
		}
		return nil, oops.Code("AUTH_REFRESH_FAILED").With("operation", "revoke rotated record").Wrap(err)
	}

	access, refresh, err := s.issuePairWithID(ctx, account, newID, ipAddress, userAgent)
	if err != nil {
		return nil, err
	}

	s.metrics.recordRotation()
	return &TokenResult{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.issuer.AccessTokenTTL().Seconds()),
	}, nil
}

// Logout revokes the refresh token's record. Only the signature is checked
// - an expired token still revokes - and unknown or malformed tokens are a
// no-op, so the operation is idempotent.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.issuer.ParseRefreshLax(refreshToken)
	if err != nil {
		return nil
	}
	recordID, err := ulid.Parse(claims.TokenID)
	if err != nil {
		return nil
	}

	if err := s.store.RefreshTokens.Revoke(ctx, recordID, time.Now()); err != nil && !errors.Is(err, ErrNotFound) {
		return oops.Code("AUTH_LOGOUT_FAILED").With("operation", "revoke refresh record").Wrap(err)
	}
	return nil
}

// ChangePassword re-verifies the current password, stores a new digest, and
// revokes all refresh tokens so every other session must log in again.
func (s *Service) ChangePassword(ctx context.Context, accountID ulid.ULID, in ChangePasswordInput) error {
	account, err := s.store.Accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code(CodeUserNotFound).Errorf("account not found")
		}
		return oops.Code("AUTH_CHANGE_PASSWORD_FAILED").With("operation", "get account").Wrap(err)
	}

	ok, err := s.hasher.Verify(in.CurrentPassword, account.PasswordHash)
	if err != nil {
		return oops.Code("AUTH_CHANGE_PASSWORD_FAILED").With("operation", "verify password").Wrap(err)
	}
	if !ok {
		return oops.Code(CodeInvalidCredentials).Errorf("current password is incorrect")
	}

	if in.NewPassword != in.NewPasswordConfirm {
		return oops.Code(CodeValidation).Errorf("passwords do not match")
	}
	if err := s.policy.Validate(in.NewPassword); err != nil {
		return err
	}

	digest, err := s.hasher.Hash(in.NewPassword)
	if err != nil {
		return oops.Code("AUTH_CHANGE_PASSWORD_FAILED").With("operation", "hash password").Wrap(err)
	}
	if err := s.store.Accounts.UpdatePassword(ctx, account.ID, digest); err != nil {
		return oops.Code("AUTH_CHANGE_PASSWORD_FAILED").With("operation", "update password").Wrap(err)
	}

	s.revokeAll(ctx, account.ID, "password change")
	s.logger.Info("password changed", "account_id", account.ID.String())
	return nil
}

// ForgotPassword mints a password-reset token for the account, invalidating
// any outstanding ones. An unknown email returns ("", nil), indistinguishable
// from success, so the operation cannot be used to enumerate accounts. The
// plaintext token is handed to the caller for delivery.
func (s *Service) ForgotPassword(ctx context.Context, email string) (string, error) {
	account, err := s.store.Accounts.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return "", oops.Code("AUTH_FORGOT_PASSWORD_FAILED").With("operation", "get account by email").Wrap(err)
	}

	token, err := s.mintSingleUse(ctx, account.ID, PurposePasswordReset, s.resetTTL)
	if err != nil {
		return "", oops.Code("AUTH_FORGOT_PASSWORD_FAILED").With("operation", "mint reset token").Wrap(err)
	}

	s.logger.Info("password reset requested", "account_id", account.ID.String())
	return token, nil
}

// ResetPassword consumes a reset token and stores a new password digest,
// revoking all refresh tokens. The token is claimed with a conditional
// update before the password changes, so it works exactly once.
func (s *Service) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	token, err := s.lookupUsable(ctx, PurposePasswordReset, in.Token)
	if err != nil {
		return err
	}

	if in.Password != in.PasswordConfirm {
		return oops.Code(CodeValidation).Errorf("passwords do not match")
	}
	if err := s.policy.Validate(in.Password); err != nil {
		return err
	}

	if err := s.store.SingleUseTokens.MarkUsed(ctx, token.ID, time.Now()); err != nil {
		if errors.Is(err, ErrAlreadyUsed) {
			return oops.Code(CodeInvalidToken).Errorf("invalid or expired token")
		}
		return oops.Code("AUTH_RESET_PASSWORD_FAILED").With("operation", "mark token used").Wrap(err)
	}

	digest, err := s.hasher.Hash(in.Password)
	if err != nil {
		return oops.Code("AUTH_RESET_PASSWORD_FAILED").With("operation", "hash password").Wrap(err)
	}
	if err := s.store.Accounts.UpdatePassword(ctx, token.AccountID, digest); err != nil {
		return oops.Code("AUTH_RESET_PASSWORD_FAILED").With("operation", "update password").Wrap(err)
	}

	s.revokeAll(ctx, token.AccountID, "password reset")
	s.logger.Info("password reset completed", "account_id", token.AccountID.String())
	return nil
}

// CreateEmailVerification mints a fresh verification token for the account,
// invalidating any outstanding ones. The plaintext is handed to the caller
// for delivery.
func (s *Service) CreateEmailVerification(ctx context.Context, accountID ulid.ULID) (string, error) {
	if _, err := s.store.Accounts.GetByID(ctx, accountID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", oops.Code(CodeUserNotFound).Errorf("account not found")
		}
		return "", oops.Code("AUTH_VERIFICATION_FAILED").With("operation", "get account").Wrap(err)
	}

	token, err := s.mintSingleUse(ctx, accountID, PurposeEmailVerification, s.verifyTTL)
	if err != nil {
		return "", oops.Code("AUTH_VERIFICATION_FAILED").With("operation", "mint verification token").Wrap(err)
	}
	return token, nil
}

// ResendVerification mints a new verification token unless the account is
// already verified, in which case it returns an empty token.
func (s *Service) ResendVerification(ctx context.Context, accountID ulid.ULID) (string, error) {
	account, err := s.store.Accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", oops.Code(CodeUserNotFound).Errorf("account not found")
		}
		return "", oops.Code("AUTH_VERIFICATION_FAILED").With("operation", "get account").Wrap(err)
	}
	if account.IsEmailVerified() {
		return "", nil
	}

	token, err := s.mintSingleUse(ctx, accountID, PurposeEmailVerification, s.verifyTTL)
	if err != nil {
		return "", oops.Code("AUTH_VERIFICATION_FAILED").With("operation", "mint verification token").Wrap(err)
	}
	return token, nil
}

// VerifyEmail consumes a verification token, stamps the account verified,
// and activates it if it was pending.
func (s *Service) VerifyEmail(ctx context.Context, tokenValue string) (*UserView, error) {
	token, err := s.lookupUsable(ctx, PurposeEmailVerification, tokenValue)
	if err != nil {
		return nil, err
	}

	if err := s.store.SingleUseTokens.MarkUsed(ctx, token.ID, time.Now()); err != nil {
		if errors.Is(err, ErrAlreadyUsed) {
			return nil, oops.Code(CodeInvalidToken).Errorf("invalid or expired token")
		}
		return nil, oops.Code("AUTH_VERIFY_EMAIL_FAILED").With("operation", "mark token used").Wrap(err)
	}

	account, err := s.store.Accounts.MarkEmailVerified(ctx, token.AccountID, time.Now())
	if err != nil {
		return nil, oops.Code("AUTH_VERIFY_EMAIL_FAILED").With("operation", "mark email verified").Wrap(err)
	}

	s.logger.Info("email verified", "account_id", account.ID.String())
	view := NewUserView(account)
	return &view, nil
}

// Authenticate validates a bearer access token and returns its claims.
// Purely computational - revocation of access tokens is not a concept.
func (s *Service) Authenticate(token string) (*AccessClaims, error) {
	return s.issuer.ValidateAccess(token)
}

// CurrentUser returns the outward view of the account, for the
// get-current-user operation.
func (s *Service) CurrentUser(ctx context.Context, accountID ulid.ULID) (*UserView, error) {
	account, err := s.store.Accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeUserNotFound).Errorf("account not found")
		}
		return nil, oops.Code("AUTH_GET_USER_FAILED").With("operation", "get account").Wrap(err)
	}
	view := NewUserView(account)
	return &view, nil
}

// PurgeExpired removes naturally expired refresh records and single-use
// tokens. Retention cleanup; scheduling is the operator's concern.
func (s *Service) PurgeExpired(ctx context.Context) (refreshDeleted, singleUseDeleted int64, err error) {
	refreshDeleted, err = s.store.RefreshTokens.DeleteExpired(ctx)
	if err != nil {
		return 0, 0, oops.Code("AUTH_PURGE_FAILED").With("operation", "delete expired refresh records").Wrap(err)
	}
	singleUseDeleted, err = s.store.SingleUseTokens.DeleteExpired(ctx)
	if err != nil {
		return refreshDeleted, 0, oops.Code("AUTH_PURGE_FAILED").With("operation", "delete expired single-use tokens").Wrap(err)
	}
	return refreshDeleted, singleUseDeleted, nil
}

// --- helpers below ---

// containReuse handles presentation of a revoked refresh token: every live
// record for the account is revoked and the caller gets TokenRevoked.
func (s *Service) containReuse(ctx context.Context, record *RefreshTokenRecord) error {
	s.metrics.recordTokenReuse()
	s.logger.Warn("revoked refresh token presented, revoking all account tokens",
		"account_id", record.AccountID.String(),
		"record_id", record.ID.String())

	if _, err := s.store.RefreshTokens.RevokeAllForAccount(ctx, record.AccountID, time.Now()); err != nil {
		return oops.Code("AUTH_REFRESH_FAILED").With("operation", "revoke all account tokens").Wrap(err)
	}
	s.metrics.recordMassRevocation()
	return oops.Code(CodeTokenRevoked).Errorf("refresh token has been revoked")
}

// revokeAll is the best-effort whole-account revocation used after password
// changes; the primary operation already succeeded.
func (s *Service) revokeAll(ctx context.Context, accountID ulid.ULID, reason string) {
	if _, err := s.store.RefreshTokens.RevokeAllForAccount(ctx, accountID, time.Now()); err != nil {
		s.logger.Warn("best-effort token revocation failed",
			"operation", "revoke_all",
			"reason", reason,
			"account_id", accountID.String(),
			"error", err.Error())
		return
	}
	s.metrics.recordMassRevocation()
}

// mintSingleUse invalidates outstanding tokens of the purpose and creates a
// fresh one, returning the plaintext.
func (s *Service) mintSingleUse(ctx context.Context, accountID ulid.ULID, purpose TokenPurpose, ttl time.Duration) (string, error) {
	if err := s.store.SingleUseTokens.InvalidateForAccount(ctx, accountID, purpose, time.Now()); err != nil {
		return "", err
	}

	plaintext, hash, err := GenerateSingleUseToken()
	if err != nil {
		return "", err
	}
	token, err := NewSingleUseToken(accountID, purpose, hash, time.Now().Add(ttl))
	if err != nil {
		return "", err
	}
	if err := s.store.SingleUseTokens.Create(ctx, token); err != nil {
		return "", err
	}
	return plaintext, nil
}

// lookupUsable finds a usable single-use token by its plaintext value.
func (s *Service) lookupUsable(ctx context.Context, purpose TokenPurpose, value string) (*SingleUseToken, error) {
	if value == "" {
		return nil, oops.Code(CodeInvalidToken).Errorf("token cannot be empty")
	}

	token, err := s.store.SingleUseTokens.GetByTokenHash(ctx, purpose, HashTokenValue(value))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeInvalidToken).Errorf("invalid or expired token")
		}
		return nil, oops.Code("AUTH_TOKEN_LOOKUP_FAILED").With("operation", "get token by hash").Wrap(err)
	}
	if !token.IsUsable() {
		return nil, oops.Code(CodeInvalidToken).Errorf("invalid or expired token")
	}
	return token, nil
}

// issuePair mints an access token plus a refresh token under a fresh record.
func (s *Service) issuePair(ctx context.Context, account *Account, ipAddress, userAgent string) (access, refresh string, err error) {
	return s.issuePairWithID(ctx, account, ulid.Make(), ipAddress, userAgent)
}

func (s *Service) issuePairWithID(ctx context.Context, account *Account, recordID ulid.ULID, ipAddress, userAgent string) (access, refresh string, err error) {
	access, err = s.issuer.IssueAccess(account)
	if err != nil {
		return "", "", err
	}

	refresh, secretHash, expiresAt, err := s.issuer.IssueRefresh(account.ID, recordID)
	if err != nil {
		return "", "", err
	}

	record, err := NewRefreshTokenRecord(recordID, account.ID, secretHash, expiresAt, ipAddress, userAgent)
	if err != nil {
		return "", "", err
	}
	if err := s.store.RefreshTokens.Create(ctx, record); err != nil {
		return "", "", oops.Code("AUTH_TOKEN_ISSUE_FAILED").With("operation", "persist refresh record").Wrap(err)
	}
	return access, refresh, nil
}

// parseRefreshIDs extracts the record and account ULIDs from refresh claims.
func parseRefreshIDs(claims *RefreshClaims) (recordID, accountID ulid.ULID, err error) {
	recordID, err = ulid.Parse(claims.TokenID)
	if err != nil {
		return ulid.ULID{}, ulid.ULID{}, oops.Code(CodeInvalidToken).Errorf("invalid refresh token")
	}
	accountID, err = ulid.Parse(claims.Subject)
	if err != nil {
		return ulid.ULID{}, ulid.ULID{}, oops.Code(CodeInvalidToken).Errorf("invalid refresh token")
	}
	return recordID, accountID, nil
}
