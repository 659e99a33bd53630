package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/shoesfit/partner-server-go/internal/database"
	apperrors "github.com/shoesfit/partner-server-go/internal/errors"
	"github.com/shoesfit/partner-server-go/internal/model"
	"github.com/shoesfit/partner-server-go/internal/repository"
	"github.com/shoesfit/partner-server-go/internal/util"
)

// Transactor runs fn inside a single database transaction. *database.DB
// satisfies it.
type Transactor interface {
	WithTx(ctx context.Context, fn database.TxFunc) error
}

// RefreshLedger owns the single live refresh token of each account. The
// sliding expiry moves forward on every rotation; the absolute expiry is set
// once when the chain starts and is carried unchanged. Values are hashed
// before they reach the store.
type RefreshLedger struct {
	db          Transactor
	repo        repository.RefreshTokenRepository
	slidingTTL  time.Duration
	absoluteTTL time.Duration
	now         func() time.Time
}

func NewRefreshLedger(
	db Transactor,
	repo repository.RefreshTokenRepository,
	slidingTTL time.Duration,
	absoluteTTL time.Duration,
) *RefreshLedger {
	return &RefreshLedger{
		db:          db,
		repo:        repo,
		slidingTTL:  slidingTTL,
		absoluteTTL: absoluteTTL,
		now:         time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (l *RefreshLedger) WithClock(now func() time.Time) *RefreshLedger {
	l.now = now
	return l
}

// Create starts a new chain for accountID, replacing any prior token.
func (l *RefreshLedger) Create(ctx context.Context, accountID string) (*model.RefreshToken, error) {
	var created *model.RefreshToken
	err := l.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		created, err = l.CreateInTx(ctx, tx, accountID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// CreateInTx is Create joined to a caller's transaction.
func (l *RefreshLedger) CreateInTx(ctx context.Context, tx *sqlx.Tx, accountID string) (*model.RefreshToken, error) {
	repo := l.repo.WithTx(tx)

	if err := repo.DeleteByAccountID(ctx, accountID); err != nil {
		return nil, fmt.Errorf("delete previous refresh token: %w", err)
	}

	value, err := util.GenerateToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	now := l.now()
	created, err := repo.Create(ctx, model.CreateRefreshTokenParams{
		ID:                util.NewID(),
		TokenHash:         util.HashToken(value),
		AccountID:         accountID,
		ExpiresAt:         now.Add(l.slidingTTL),
		AbsoluteExpiresAt: now.Add(l.absoluteTTL),
		CreatedAt:         now,
	})
	if err != nil {
		return nil, fmt.Errorf("create refresh token: %w", err)
	}
	created.Token = value
	return created, nil
}

// Rotate replaces the token value and extends the sliding expiry. Past the
// absolute expiry the row is deleted and SessionExpired returned. If another
// rotation or the sweep removed the row first, InvalidToken is returned.
func (l *RefreshLedger) Rotate(ctx context.Context, existing *model.RefreshToken) (*model.RefreshToken, error) {
	now := l.now()
	if now.After(existing.AbsoluteExpiresAt) {
		if err := l.repo.DeleteByTokenHash(ctx, existing.TokenHash); err != nil {
			log.Error().Err(err).Str("account_id", existing.AccountID).Msg("failed to delete capped refresh token")
		}
		return nil, apperrors.SessionExpired()
	}

	value, err := util.GenerateToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	rotated, err := l.repo.Rotate(ctx, model.RotateRefreshTokenParams{
		OldTokenHash: existing.TokenHash,
		NewTokenHash: util.HashToken(value),
		ExpiresAt:    now.Add(l.slidingTTL),
		UpdatedAt:    now,
	})
	if err != nil {
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}
	if rotated == nil {
		log.Warn().
			Str("account_id", existing.AccountID).
			Str("token", existing.TokenHash[:12]).
			Msg("refresh token vanished during rotation")
		return nil, apperrors.InvalidToken("Invalid refresh token")
	}
	rotated.Token = value
	return rotated, nil
}

// IsValid reports whether neither expiry has passed.
func (l *RefreshLedger) IsValid(token *model.RefreshToken) bool {
	return token.ValidAt(l.now())
}

// FindByToken resolves a presented value. The result carries that value in
// Token; nil means no live row matches.
func (l *RefreshLedger) FindByToken(ctx context.Context, value string) (*model.RefreshToken, error) {
	token, err := l.repo.FindByTokenHash(ctx, util.HashToken(value))
	if err != nil {
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	if token != nil {
		token.Token = value
	}
	return token, nil
}

func (l *RefreshLedger) RevokeAccount(ctx context.Context, accountID string) error {
	if err := l.repo.DeleteByAccountID(ctx, accountID); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

func (l *RefreshLedger) RevokeToken(ctx context.Context, value string) error {
	if err := l.repo.DeleteByTokenHash(ctx, util.HashToken(value)); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// SweepExpired deletes every row past either expiry at now.
func (l *RefreshLedger) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	return l.repo.DeleteExpired(ctx, now)
}
