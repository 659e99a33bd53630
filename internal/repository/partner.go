package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/shoesfit/partner-server-go/internal/database"
	"github.com/shoesfit/partner-server-go/internal/model"
)

type PartnerRepository interface {
	FindByID(ctx context.Context, id string) (*model.PartnerAccount, error)
	FindByLoginID(ctx context.Context, loginID string) (*model.PartnerAccount, error)
	ExistsByLoginID(ctx context.Context, loginID string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ExistsByBusinessNumber(ctx context.Context, businessNumber string) (bool, error)
	// Create fails with a Conflict AppError when a unique column is taken.
	Create(ctx context.Context, params model.CreatePartnerParams) (*model.PartnerAccount, error)
	SaveLoginState(ctx context.Context, id string, state model.LoginState, at time.Time) error
	SetBusinessRegistrationFile(ctx context.Context, params model.BusinessFileParams) error
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) PartnerRepository
}

type partnerRepo struct {
	db database.DBTX
}

func NewPartnerRepository(db *sqlx.DB) PartnerRepository {
	return &partnerRepo{db: db}
}

func (r *partnerRepo) WithTx(tx *sqlx.Tx) PartnerRepository {
	return &partnerRepo{db: tx}
}

func (r *partnerRepo) FindByID(ctx context.Context, id string) (*model.PartnerAccount, error) {
	var partner model.PartnerAccount
	err := r.db.GetContext(ctx, &partner, `
		SELECT * FROM partners WHERE id = $1
	`, id)
	return HandleNotFound(&partner, err)
}

func (r *partnerRepo) FindByLoginID(ctx context.Context, loginID string) (*model.PartnerAccount, error) {
	var partner model.PartnerAccount
	err := r.db.GetContext(ctx, &partner, `
		SELECT * FROM partners WHERE login_id = $1
	`, loginID)
	return HandleNotFound(&partner, err)
}

func (r *partnerRepo) ExistsByLoginID(ctx context.Context, loginID string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM partners WHERE login_id = $1)`, loginID)
}

func (r *partnerRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM partners WHERE owner_email = $1)`, email)
}

func (r *partnerRepo) ExistsByBusinessNumber(ctx context.Context, businessNumber string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM partners WHERE business_number = $1)`, businessNumber)
}

func (r *partnerRepo) exists(ctx context.Context, query string, arg string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, query, arg)
	return exists, err
}

func (r *partnerRepo) Create(ctx context.Context, params model.CreatePartnerParams) (*model.PartnerAccount, error) {
	var partner model.PartnerAccount
	err := r.db.GetContext(ctx, &partner, `
		INSERT INTO partners (
			id, login_id, password_hash, owner_name, owner_phone, owner_email,
			owner_birth_date, owner_gender, gym_name, gym_type, franchise_name,
			business_number, status, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
		RETURNING *
	`, params.ID, params.LoginID, params.PasswordHash, params.OwnerName, params.OwnerPhone, params.OwnerEmail,
		params.OwnerBirthDate, params.OwnerGender, params.GymName, params.GymType, params.FranchiseName,
		params.BusinessNumber, params.Status, params.CreatedAt)
	if err != nil {
		return nil, mapUniqueViolation(err)
	}
	return &partner, nil
}

func (r *partnerRepo) SaveLoginState(ctx context.Context, id string, state model.LoginState, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE partners SET
			login_fail_count = $2,
			locked_until = $3,
			last_login_at = $4,
			updated_at = $5
		WHERE id = $1
	`, id, state.FailCount, state.LockedUntil, state.LastLoginAt, at)
	return err
}

func (r *partnerRepo) SetBusinessRegistrationFile(ctx context.Context, params model.BusinessFileParams) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE partners SET
			business_registration_file = $2,
			business_file_bucket = $3,
			business_file_key = $4,
			business_file_size = $5,
			business_file_content_type = $6,
			updated_at = $7
		WHERE id = $1
	`, params.PartnerID, params.URL, params.Bucket, params.Key, params.Size, params.ContentType, params.UpdatedAt)
	return err
}
