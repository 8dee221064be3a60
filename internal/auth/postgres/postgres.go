// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QuillPress Contributors

// Package postgres provides PostgreSQL-backed implementations of the auth
// repositories. Compare-and-set updates enforce the single-rotation and
// single-use guarantees at the database, so they hold across processes.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool the repositories use. It is satisfied by
// *pgxpool.Pool and by pgxmock pools in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
