// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QuillPress Contributors

package auth

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Token defaults, matching the original deployment.
const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour

	// RefreshSecretBytes is the entropy of the random secret appended to
	// the signed part of a refresh token.
	RefreshSecretBytes = 32

	// MinSigningKeyLength guards against weak HMAC keys.
	MinSigningKeyLength = 32
)

// AccessClaims are the statements carried by an access token. Access tokens
// are stateless: validation never touches storage, so they cannot be
// individually revoked before expiry. The short TTL bounds that exposure.
type AccessClaims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// RefreshClaims are the signed statements inside a refresh token: the
// subject account and the server-side record the token corresponds to.
type RefreshClaims struct {
	TokenID string `json:"tid"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and validates both token classes.
//
// A refresh token on the wire is "<signed statement>.<secret>": an HS256 JWT
// naming the account and record IDs, then a dot, then a high-entropy hex
// secret. Only the SHA-256 of the secret is persisted. Redeeming the token
// requires the signature to verify AND the secret's hash to match the stored
// record, so neither a leaked signing key nor a leaked database is enough by
// itself to forge a usable token.
type TokenIssuer struct {
	signingKey []byte
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenIssuer creates a TokenIssuer. The signing key must be at least
// MinSigningKeyLength bytes. Non-positive TTLs fall back to the defaults.
func NewTokenIssuer(signingKey []byte, issuer, audience string, accessTTL, refreshTTL time.Duration) (*TokenIssuer, error) {
	if len(signingKey) < MinSigningKeyLength {
		return nil, oops.Code("TOKEN_WEAK_KEY").
			With("min_bytes", MinSigningKeyLength).
			Errorf("signing key must be at least %d bytes", MinSigningKeyLength)
	}
	if issuer == "" || audience == "" {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").Errorf("issuer and audience are required")
	}
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTokenTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTokenTTL
	}
	return &TokenIssuer{
		signingKey: signingKey,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}, nil
}

// AccessTokenTTL returns the configured access token lifetime.
func (i *TokenIssuer) AccessTokenTTL() time.Duration { return i.accessTTL }

// RefreshTokenTTL returns the configured refresh token lifetime.
func (i *TokenIssuer) RefreshTokenTTL() time.Duration { return i.refreshTTL }

// IssueAccess mints a signed access token for the account.
func (i *TokenIssuer) IssueAccess(account *Account) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		Email: account.Email,
		Name:  account.Name,
		Role:  string(account.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.ID.String(),
			Issuer:    i.issuer,
			Audience:  jwt.ClaimStrings{i.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.accessTTL)),
			ID:        ulid.Make().String(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.signingKey)
	if err != nil {
		return "", oops.Code("TOKEN_SIGN_FAILED").With("operation", "sign access token").Wrap(err)
	}
	return signed, nil
}

// ValidateAccess checks signature, issuer, audience, and expiry, and returns
// the claims. It is purely computational; no storage lookup happens.
func (i *TokenIssuer) ValidateAccess(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, i.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(i.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return nil, oops.Code(CodeInvalidToken).Errorf("invalid access token")
	}
	return claims, nil
}

// IssueRefresh mints a refresh token bound to the given record ID. Returns
// the wire-format plaintext, the hash to persist, and the record expiry.
func (i *TokenIssuer) IssueRefresh(accountID, recordID ulid.ULID) (token, secretHash string, expiresAt time.Time, err error) {
	now := time.Now()
	expiresAt = now.Add(i.refreshTTL)

	claims := RefreshClaims{
		TokenID: recordID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID.String(),
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.signingKey)
	if err != nil {
		return "", "", time.Time{}, oops.Code("TOKEN_SIGN_FAILED").With("operation", "sign refresh token").Wrap(err)
	}

	raw := make([]byte, RefreshSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", "", time.Time{}, oops.Code("TOKEN_GENERATE_FAILED").With("operation", "crypto/rand.Read").Wrap(err)
	}
	secret := hex.EncodeToString(raw)

	return signed + "." + secret, HashTokenValue(secret), expiresAt, nil
}

// ParseRefresh splits and validates a refresh token's signed statement
// (signature, issuer, expiry) and returns the claims plus the raw secret.
// The secret's hash must still be checked against the stored record.
func (i *TokenIssuer) ParseRefresh(token string) (*RefreshClaims, string, error) {
	signed, secret, err := splitRefreshToken(token)
	if err != nil {
		return nil, "", err
	}

	claims := &RefreshClaims{}
	parsed, err := jwt.ParseWithClaims(signed, claims, i.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return nil, "", oops.Code(CodeInvalidToken).Errorf("invalid refresh token")
	}
	return claims, secret, nil
}

// ParseRefreshLax verifies only the signature, ignoring expiry. Logout uses
// it so an expired token still revokes its record.
func (i *TokenIssuer) ParseRefreshLax(token string) (*RefreshClaims, error) {
	signed, _, err := splitRefreshToken(token)
	if err != nil {
		return nil, err
	}

	claims := &RefreshClaims{}
	parsed, err := jwt.ParseWithClaims(signed, claims, i.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil || !parsed.Valid {
		return nil, oops.Code(CodeInvalidToken).Errorf("invalid refresh token")
	}
	return claims, nil
}

func (i *TokenIssuer) keyFunc(*jwt.Token) (any, error) {
	return i.signingKey, nil
}

// splitRefreshToken separates the signed statement from the trailing
// secret. The statement is itself dotted, so the split is on the last dot.
func splitRefreshToken(token string) (signed, secret string, err error) {
	idx := strings.LastIndex(token, ".")
	if idx <= 0 || idx == len(token)-1 {
		return "", "", oops.Code(CodeInvalidToken).Errorf("malformed refresh token")
	}
	signed, secret = token[:idx], token[idx+1:]
	if strings.Count(signed, ".") != 2 {
		return "", "", oops.Code(CodeInvalidToken).Errorf("malformed refresh token")
	}
	return signed, secret, nil
}
