package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/shoesfit/partner-server-go/internal/database"
	"github.com/shoesfit/partner-server-go/internal/model"
)

type RefreshTokenRepository interface {
	FindByTokenHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error)
	FindByAccountID(ctx context.Context, accountID string) (*model.RefreshToken, error)
	Create(ctx context.Context, params model.CreateRefreshTokenParams) (*model.RefreshToken, error)
	// Rotate swaps the token hash in place. It returns (nil, nil) when no row
	// carries OldTokenHash anymore.
	Rotate(ctx context.Context, params model.RotateRefreshTokenParams) (*model.RefreshToken, error)
	DeleteByAccountID(ctx context.Context, accountID string) error
	DeleteByTokenHash(ctx context.Context, tokenHash string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) RefreshTokenRepository
}

type refreshTokenRepo struct {
	db database.DBTX
}

func NewRefreshTokenRepository(db *sqlx.DB) RefreshTokenRepository {
	return &refreshTokenRepo{db: db}
}

func (r *refreshTokenRepo) WithTx(tx *sqlx.Tx) RefreshTokenRepository {
	return &refreshTokenRepo{db: tx}
}

func (r *refreshTokenRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
	var rt model.RefreshToken
	err := r.db.GetContext(ctx, &rt, `
		SELECT * FROM refresh_tokens WHERE token_hash = $1
	`, tokenHash)
	return HandleNotFound(&rt, err)
}

func (r *refreshTokenRepo) FindByAccountID(ctx context.Context, accountID string) (*model.RefreshToken, error) {
	var rt model.RefreshToken
	err := r.db.GetContext(ctx, &rt, `
		SELECT * FROM refresh_tokens WHERE account_id = $1
	`, accountID)
	return HandleNotFound(&rt, err)
}

func (r *refreshTokenRepo) Create(ctx context.Context, params model.CreateRefreshTokenParams) (*model.RefreshToken, error) {
	var rt model.RefreshToken
	err := r.db.GetContext(ctx, &rt, `
		INSERT INTO refresh_tokens (
			id, token_hash, account_id, expires_at, absolute_expires_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING *
	`, params.ID, params.TokenHash, params.AccountID, params.ExpiresAt, params.AbsoluteExpiresAt, params.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &rt, nil
}

func (r *refreshTokenRepo) Rotate(ctx context.Context, params model.RotateRefreshTokenParams) (*model.RefreshToken, error) {
	var rt model.RefreshToken
	err := r.db.GetContext(ctx, &rt, `
		UPDATE refresh_tokens SET
			token_hash = $2,
			expires_at = $3,
			refresh_count = refresh_count + 1,
			updated_at = $4
		WHERE token_hash = $1
		RETURNING *
	`, params.OldTokenHash, params.NewTokenHash, params.ExpiresAt, params.UpdatedAt)
	return HandleNotFound(&rt, err)
}

func (r *refreshTokenRepo) DeleteByAccountID(ctx context.Context, accountID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE account_id = $1`, accountID)
	return err
}

func (r *refreshTokenRepo) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE token_hash = $1`, tokenHash)
	return err
}

func (r *refreshTokenRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM refresh_tokens
		WHERE expires_at < $1 OR absolute_expires_at < $1
	`, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
