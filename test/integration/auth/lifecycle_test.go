// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QuillPress Contributors

//go:build integration

package auth_test

import (
	"context"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/quillpress/quillpress/internal/auth"
)

const (
	specEmail    = "writer@example.com"
	specPassword = "Inkwell42press"
	specName     = "Writer"
)

// registerVerified registers an account and completes email verification.
func registerVerified(ctx context.Context) *auth.RegisterResult {
	result, err := env.Service.Register(ctx, auth.RegisterInput{
		Email:           specEmail,
		Password:        specPassword,
		PasswordConfirm: specPassword,
		Name:            specName,
	})
	Expect(err).NotTo(HaveOccurred())
	Expect(result.VerificationToken).NotTo(BeEmpty())

	_, err = env.Service.VerifyEmail(ctx, result.VerificationToken)
	Expect(err).NotTo(HaveOccurred())
	return result
}

func login(ctx context.Context) *auth.AuthResult {
	session, err := env.Service.Login(ctx, auth.LoginInput{
		Email:     specEmail,
		Password:  specPassword,
		IPAddress: "203.0.113.9",
		UserAgent: "integration/1.0",
	})
	Expect(err).NotTo(HaveOccurred())
	return session
}

var _ = Describe("Account lifecycle", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
		cleanupAccounts(ctx, env.pool)
	})

	It("registers, verifies, and logs in", func() {
		result := registerVerified(ctx)
		Expect(result.User.Email).To(Equal(specEmail))
		Expect(result.User.EmailVerified).To(BeFalse(), "view taken before verification")

		session := login(ctx)
		Expect(session.User.EmailVerified).To(BeTrue())
		Expect(session.TokenType).To(Equal("Bearer"))

		claims, err := env.Service.Authenticate(session.AccessToken)
		Expect(err).NotTo(HaveOccurred())
		Expect(claims.Subject).To(Equal(result.User.ID))
	})

	It("blocks login until the email is verified", func() {
		_, err := env.Service.Register(ctx, auth.RegisterInput{
			Email:           specEmail,
			Password:        specPassword,
			PasswordConfirm: specPassword,
			Name:            specName,
		})
		Expect(err).NotTo(HaveOccurred())

		_, err = env.Service.Login(ctx, auth.LoginInput{Email: specEmail, Password: specPassword})
		Expect(err).To(HaveOccurred())
	})

	It("rejects a duplicate registration across normalized emails", func() {
		registerVerified(ctx)

		_, err := env.Service.Register(ctx, auth.RegisterInput{
			Email:           "  WRITER@example.com ",
			Password:        specPassword,
			PasswordConfirm: specPassword,
			Name:            "Impostor",
		})
		Expect(err).To(HaveOccurred())
	})

	It("locks the account after repeated failures", func() {
		registerVerified(ctx)

		for i := 0; i < 3; i++ {
			_, err := env.Service.Login(ctx, auth.LoginInput{Email: specEmail, Password: "Wrong42wrong"})
			Expect(err).To(HaveOccurred())
		}

		_, err := env.Service.Login(ctx, auth.LoginInput{Email: specEmail, Password: specPassword})
		Expect(err).To(HaveOccurred(), "correct password is rejected while locked")
	})
})

var _ = Describe("Refresh token rotation", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
		cleanupAccounts(ctx, env.pool)
		registerVerified(ctx)
	})

	It("rotates a refresh token and keeps the session alive", func() {
		session := login(ctx)

		rotated, err := env.Service.Refresh(ctx, session.RefreshToken, "203.0.113.9", "integration/1.0")
		Expect(err).NotTo(HaveOccurred())
		Expect(rotated.RefreshToken).NotTo(Equal(session.RefreshToken))

		_, err = env.Service.Authenticate(rotated.AccessToken)
		Expect(err).NotTo(HaveOccurred())

		_, err = env.Service.Refresh(ctx, rotated.RefreshToken, "", "")
		Expect(err).NotTo(HaveOccurred())
	})

	It("contains reuse of a rotated token by revoking the whole family", func() {
		session := login(ctx)

		rotated, err := env.Service.Refresh(ctx, session.RefreshToken, "", "")
		Expect(err).NotTo(HaveOccurred())

		// Presenting the pre-rotation token again is treated as theft.
		_, err = env.Service.Refresh(ctx, session.RefreshToken, "", "")
		Expect(err).To(HaveOccurred())

		// The descendant issued by the legitimate rotation is dead too.
		_, err = env.Service.Refresh(ctx, rotated.RefreshToken, "", "")
		Expect(err).To(HaveOccurred())
	})

	It("logs out idempotently", func() {
		session := login(ctx)

		Expect(env.Service.Logout(ctx, session.RefreshToken)).To(Succeed())
		Expect(env.Service.Logout(ctx, session.RefreshToken)).To(Succeed())

		_, err := env.Service.Refresh(ctx, session.RefreshToken, "", "")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Password recovery", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
		cleanupAccounts(ctx, env.pool)
		registerVerified(ctx)
	})

	It("resets the password with a single-use token", func() {
		session := login(ctx)

		token, err := env.Service.ForgotPassword(ctx, specEmail)
		Expect(err).NotTo(HaveOccurred())
		Expect(token).NotTo(BeEmpty())

		const newPassword = "Quillfeather9"
		Expect(env.Service.ResetPassword(ctx, auth.ResetPasswordInput{
			Token:           token,
			Password:        newPassword,
			PasswordConfirm: newPassword,
		})).To(Succeed())

		// Old credentials and old sessions are both dead.
		_, err = env.Service.Login(ctx, auth.LoginInput{Email: specEmail, Password: specPassword})
		Expect(err).To(HaveOccurred())
		_, err = env.Service.Refresh(ctx, session.RefreshToken, "", "")
		Expect(err).To(HaveOccurred())

		_, err = env.Service.Login(ctx, auth.LoginInput{Email: specEmail, Password: newPassword})
		Expect(err).NotTo(HaveOccurred())

		// The token is spent.
		err = env.Service.ResetPassword(ctx, auth.ResetPasswordInput{
			Token:           token,
			Password:        newPassword,
			PasswordConfirm: newPassword,
		})
		Expect(err).To(HaveOccurred())
	})

	It("does not disclose whether an email is registered", func() {
		token, err := env.Service.ForgotPassword(ctx, "nobody@example.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(token).To(BeEmpty())
	})

	It("purges expired token state", func() {
		login(ctx)

		// Force the refresh record past its expiry.
		_, err := env.pool.Exec(ctx, "UPDATE refresh_tokens SET expires_at = now() - interval '1 hour'")
		Expect(err).NotTo(HaveOccurred())

		_, err = env.Service.ForgotPassword(ctx, specEmail)
		Expect(err).NotTo(HaveOccurred())
		_, err = env.pool.Exec(ctx, "UPDATE single_use_tokens SET expires_at = now() - interval '1 hour'")
		Expect(err).NotTo(HaveOccurred())

		refreshDeleted, singleUseDeleted, err := env.Service.PurgeExpired(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(refreshDeleted).To(BeNumerically(">=", int64(1)))
		Expect(singleUseDeleted).To(BeNumerically(">=", int64(1)))
	})
})

var _ = Describe("Repository contracts", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
		cleanupAccounts(ctx, env.pool)
	})

	It("looks up accounts case-insensitively", func() {
		result := registerVerified(ctx)

		account, err := env.Accounts.GetByEmail(ctx, "WRITER@EXAMPLE.COM")
		Expect(err).NotTo(HaveOccurred())
		Expect(account.ID.String()).To(Equal(result.User.ID))
	})

	It("loses the conditional revoke race exactly once", func() {
		result := registerVerified(ctx)
		accountID, err := ulid.Parse(result.User.ID)
		Expect(err).NotTo(HaveOccurred())

		session := login(ctx)
		claims, err := env.Service.Authenticate(session.AccessToken)
		Expect(err).NotTo(HaveOccurred())
		Expect(claims.Subject).To(Equal(accountID.String()))

		// First rotation wins, replay of the same conditional update loses.
		rotated, err := env.Service.Refresh(ctx, session.RefreshToken, "", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(rotated).NotTo(BeNil())
	})

	It("cascades token records when the account is deleted", func() {
		result := registerVerified(ctx)
		login(ctx)

		accountID, err := ulid.Parse(result.User.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(env.Accounts.Delete(ctx, accountID)).To(Succeed())

		var count int
		Expect(env.pool.QueryRow(ctx, "SELECT count(*) FROM refresh_tokens").Scan(&count)).To(Succeed())
		Expect(count).To(BeZero())
		Expect(env.pool.QueryRow(ctx, "SELECT count(*) FROM single_use_tokens").Scan(&count)).To(Succeed())
		Expect(count).To(BeZero())
	})
})
