package model

import (
	"time"
)

// RefreshToken is one row of refresh_tokens. Only the SHA-256 of the value is
// stored; Token carries the raw value while it is in hand (just minted, or
// just presented by the client) and is never persisted.
type RefreshToken struct {
	ID                string    `db:"id" json:"id"`
	TokenHash         string    `db:"token_hash" json:"-"`
	Token             string    `db:"-" json:"-"`
	AccountID         string    `db:"account_id" json:"accountId"`
	ExpiresAt         time.Time `db:"expires_at" json:"expiresAt"`
	AbsoluteExpiresAt time.Time `db:"absolute_expires_at" json:"absoluteExpiresAt"`
	RefreshCount      int       `db:"refresh_count" json:"refreshCount"`
	CreatedAt         time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time `db:"updated_at" json:"updatedAt"`
}

// ValidAt reports whether neither the sliding nor the absolute expiry has passed.
func (t *RefreshToken) ValidAt(now time.Time) bool {
	return !now.After(t.ExpiresAt) && !now.After(t.AbsoluteExpiresAt)
}

type CreateRefreshTokenParams struct {
	ID                string
	TokenHash         string
	AccountID         string
	ExpiresAt         time.Time
	AbsoluteExpiresAt time.Time
	CreatedAt         time.Time
}

type RotateRefreshTokenParams struct {
	OldTokenHash string
	NewTokenHash string
	ExpiresAt    time.Time
	UpdatedAt    time.Time
}
