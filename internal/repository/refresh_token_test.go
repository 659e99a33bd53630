package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shoesfit/partner-server-go/internal/model"
	"github.com/shoesfit/partner-server-go/internal/util"
)

var refreshTokenColumns = []string{
	"id", "token_hash", "account_id", "expires_at", "absolute_expires_at",
	"refresh_count", "created_at", "updated_at",
}

func TestRefreshTokenRepository(t *testing.T) {
	now := time.Now()
	h1 := util.HashToken("r1")
	h2 := util.HashToken("r2")

	t.Run("Create inserts the hash", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewRefreshTokenRepository(db)
		params := model.CreateRefreshTokenParams{
			ID:                "rt1",
			TokenHash:         h1,
			AccountID:         "p1",
			ExpiresAt:         now.Add(time.Hour),
			AbsoluteExpiresAt: now.Add(2 * time.Hour),
			CreatedAt:         now,
		}

		mock.ExpectQuery("INSERT INTO refresh_tokens").
			WithArgs("rt1", h1, "p1", params.ExpiresAt, params.AbsoluteExpiresAt, now).
			WillReturnRows(sqlmock.NewRows(refreshTokenColumns).
				AddRow("rt1", h1, "p1", params.ExpiresAt, params.AbsoluteExpiresAt, 0, now, now))

		rt, err := repo.Create(context.Background(), params)
		require.NoError(t, err)
		assert.Equal(t, h1, rt.TokenHash)
		assert.Empty(t, rt.Token)
		assert.Zero(t, rt.RefreshCount)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("FindByTokenHash returns nil when absent", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewRefreshTokenRepository(db)

		mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM refresh_tokens WHERE token_hash = $1")).
			WithArgs(h1).
			WillReturnError(sql.ErrNoRows)

		rt, err := repo.FindByTokenHash(context.Background(), h1)
		assert.NoError(t, err)
		assert.Nil(t, rt)
	})

	t.Run("FindByAccountID maps row", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewRefreshTokenRepository(db)

		mock.ExpectQuery(regexp.QuoteMeta("WHERE account_id = $1")).
			WithArgs("p1").
			WillReturnRows(sqlmock.NewRows(refreshTokenColumns).
				AddRow("rt1", h1, "p1", now, now, 3, now, now))

		rt, err := repo.FindByAccountID(context.Background(), "p1")
		require.NoError(t, err)
		assert.Equal(t, 3, rt.RefreshCount)
	})

	t.Run("Rotate is guarded by the old hash", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewRefreshTokenRepository(db)
		expires := now.Add(time.Hour)

		mock.ExpectQuery("UPDATE refresh_tokens SET").
			WithArgs(h1, h2, expires, now).
			WillReturnRows(sqlmock.NewRows(refreshTokenColumns).
				AddRow("rt1", h2, "p1", expires, now.Add(2*time.Hour), 1, now, now))

		rt, err := repo.Rotate(context.Background(), model.RotateRefreshTokenParams{
			OldTokenHash: h1, NewTokenHash: h2, ExpiresAt: expires, UpdatedAt: now,
		})
		require.NoError(t, err)
		assert.Equal(t, h2, rt.TokenHash)
		assert.Equal(t, 1, rt.RefreshCount)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Rotate returns nil when the row is gone", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewRefreshTokenRepository(db)

		mock.ExpectQuery("UPDATE refresh_tokens SET").
			WillReturnRows(sqlmock.NewRows(refreshTokenColumns))

		rt, err := repo.Rotate(context.Background(), model.RotateRefreshTokenParams{OldTokenHash: h1, NewTokenHash: h2})
		assert.NoError(t, err)
		assert.Nil(t, rt)
	})

	t.Run("deletes by account and by hash", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewRefreshTokenRepository(db)

		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM refresh_tokens WHERE account_id = $1")).
			WithArgs("p1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM refresh_tokens WHERE token_hash = $1")).
			WithArgs(h1).
			WillReturnResult(sqlmock.NewResult(0, 0))

		require.NoError(t, repo.DeleteByAccountID(context.Background(), "p1"))
		require.NoError(t, repo.DeleteByTokenHash(context.Background(), h1))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("DeleteExpired reports affected rows", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewRefreshTokenRepository(db)

		mock.ExpectExec("DELETE FROM refresh_tokens").
			WithArgs(now).
			WillReturnResult(sqlmock.NewResult(0, 4))

		count, err := repo.DeleteExpired(context.Background(), now)
		require.NoError(t, err)
		assert.Equal(t, int64(4), count)
	})
}
