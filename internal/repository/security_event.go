package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/shoesfit/partner-server-go/internal/database"
	"github.com/shoesfit/partner-server-go/internal/model"
)

// SecurityEventRepository is append only.
type SecurityEventRepository interface {
	Insert(ctx context.Context, event *model.SecurityEvent) error
	FindByAccountID(ctx context.Context, accountID string, limit int) ([]model.SecurityEvent, error)
}

type securityEventRepo struct {
	db database.DBTX
}

func NewSecurityEventRepository(db *sqlx.DB) SecurityEventRepository {
	return &securityEventRepo{db: db}
}

func (r *securityEventRepo) Insert(ctx context.Context, event *model.SecurityEvent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO security_events (
			id, account_id, event_type, result, detail, error_message,
			before_value, after_value, ip_address, user_agent, session_id, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, event.ID, event.AccountID, event.EventType, event.Result, event.Detail, event.ErrorMessage,
		event.BeforeValue, event.AfterValue, event.IPAddress, event.UserAgent, event.SessionID, event.CreatedAt)
	return err
}

func (r *securityEventRepo) FindByAccountID(ctx context.Context, accountID string, limit int) ([]model.SecurityEvent, error) {
	var events []model.SecurityEvent
	err := r.db.SelectContext(ctx, &events, `
		SELECT * FROM security_events
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, err
	}
	return events, nil
}
