// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QuillPress Contributors

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillpress/quillpress/internal/auth"
)

var singleUseRows = []string{
	"id", "account_id", "purpose", "token_hash", "expires_at", "used_at", "created_at",
}

func testSingleUseToken(t *testing.T, purpose auth.TokenPurpose) *auth.SingleUseToken {
	t.Helper()
	token, err := auth.NewSingleUseToken(ulid.Make(), purpose, "hash123", time.Now().Add(time.Hour))
	require.NoError(t, err)
	return token
}

func TestSingleUseTokenRepository_Create(t *testing.T) {
	t.Run("stores token", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		token := testSingleUseToken(t, auth.PurposePasswordReset)
		mock.ExpectExec(`INSERT INTO single_use_tokens`).
			WithArgs(
				token.ID.String(), token.AccountID.String(), string(token.Purpose),
				token.TokenHash, token.ExpiresAt, token.UsedAt, token.CreatedAt,
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		repo := NewSingleUseTokenRepository(mock)
		require.NoError(t, repo.Create(context.Background(), token))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSingleUseTokenRepository_GetByTokenHash(t *testing.T) {
	t.Run("found by purpose and hash", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		token := testSingleUseToken(t, auth.PurposeEmailVerification)
		rows := pgxmock.NewRows(singleUseRows).AddRow(
			token.ID.String(), token.AccountID.String(), string(token.Purpose),
			token.TokenHash, token.ExpiresAt, token.UsedAt, token.CreatedAt,
		)
		mock.ExpectQuery(`FROM single_use_tokens`).
			WithArgs(string(token.Purpose), token.TokenHash).
			WillReturnRows(rows)

		repo := NewSingleUseTokenRepository(mock)
		got, err := repo.GetByTokenHash(context.Background(), token.Purpose, token.TokenHash)
		require.NoError(t, err)
		assert.Equal(t, token.ID, got.ID)
		assert.Equal(t, token.Purpose, got.Purpose)
		assert.Nil(t, got.UsedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("wrong purpose maps to not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`FROM single_use_tokens`).
			WithArgs(string(auth.PurposePasswordReset), "hash123").
			WillReturnRows(pgxmock.NewRows(singleUseRows))

		repo := NewSingleUseTokenRepository(mock)
		_, err = repo.GetByTokenHash(context.Background(), auth.PurposePasswordReset, "hash123")
		assert.ErrorIs(t, err, auth.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSingleUseTokenRepository_MarkUsed(t *testing.T) {
	t.Run("claims unused token", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		id := ulid.Make()
		at := time.Now()
		mock.ExpectExec(`UPDATE single_use_tokens`).
			WithArgs(id.String(), at).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		repo := NewSingleUseTokenRepository(mock)
		require.NoError(t, repo.MarkUsed(context.Background(), id, at))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("concurrent claim maps to already-used", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		id := ulid.Make()
		at := time.Now()
		mock.ExpectExec(`UPDATE single_use_tokens`).
			WithArgs(id.String(), at).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		repo := NewSingleUseTokenRepository(mock)
		assert.ErrorIs(t, repo.MarkUsed(context.Background(), id, at), auth.ErrAlreadyUsed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSingleUseTokenRepository_InvalidateForAccount(t *testing.T) {
	t.Run("zero outstanding tokens is fine", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		accountID := ulid.Make()
		at := time.Now()
		mock.ExpectExec(`UPDATE single_use_tokens`).
			WithArgs(accountID.String(), string(auth.PurposePasswordReset), at).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		repo := NewSingleUseTokenRepository(mock)
		require.NoError(t, repo.InvalidateForAccount(context.Background(), accountID, auth.PurposePasswordReset, at))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSingleUseTokenRepository_DeleteExpired(t *testing.T) {
	t.Run("returns the deleted count", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectExec(`DELETE FROM single_use_tokens`).
			WithArgs(pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("DELETE", 4))

		repo := NewSingleUseTokenRepository(mock)
		n, err := repo.DeleteExpired(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(4), n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

// Compile-time interface check.
var _ auth.SingleUseTokenRepository = (*SingleUseTokenRepository)(nil)
