package model

import (
	"time"
)

type PartnerAccount struct {
	ID                       string        `db:"id" json:"partnerId"`
	LoginID                  string        `db:"login_id" json:"loginId"`
	PasswordHash             string        `db:"password_hash" json:"-"`
	OwnerName                string        `db:"owner_name" json:"ownerName"`
	OwnerPhone               string        `db:"owner_phone" json:"ownerPhone"`
	OwnerEmail               string        `db:"owner_email" json:"ownerEmail"`
	OwnerBirthDate           *time.Time    `db:"owner_birth_date" json:"ownerBirthDate,omitempty"`
	OwnerGender              *Gender       `db:"owner_gender" json:"ownerGender,omitempty"`
	GymName                  string        `db:"gym_name" json:"gymName"`
	GymType                  GymType       `db:"gym_type" json:"gymType"`
	FranchiseName            *string       `db:"franchise_name" json:"franchiseName,omitempty"`
	BusinessNumber           *string       `db:"business_number" json:"businessNumber,omitempty"`
	BusinessRegistrationFile *string       `db:"business_registration_file" json:"businessRegistrationFile,omitempty"`
	BusinessFileBucket       *string       `db:"business_file_bucket" json:"-"`
	BusinessFileKey          *string       `db:"business_file_key" json:"-"`
	BusinessFileSize         *int64        `db:"business_file_size" json:"-"`
	BusinessFileContentType  *string       `db:"business_file_content_type" json:"-"`
	Status                   PartnerStatus `db:"status" json:"partnerStatus"`
	LoginFailCount           int           `db:"login_fail_count" json:"-"`
	LockedUntil              *time.Time    `db:"locked_until" json:"-"`
	LastLoginAt              *time.Time    `db:"last_login_at" json:"lastLoginAt,omitempty"`
	CreatedAt                time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt                time.Time     `db:"updated_at" json:"updatedAt"`
}

// LoginState is the part of an account mutated by login outcomes.
type LoginState struct {
	FailCount   int
	LockedUntil *time.Time
	LastLoginAt *time.Time
}

func (p *PartnerAccount) LoginState() LoginState {
	return LoginState{
		FailCount:   p.LoginFailCount,
		LockedUntil: p.LockedUntil,
		LastLoginAt: p.LastLoginAt,
	}
}

func (p *PartnerAccount) ApplyLoginState(s LoginState) {
	p.LoginFailCount = s.FailCount
	p.LockedUntil = s.LockedUntil
	p.LastLoginAt = s.LastLoginAt
}

// PartnerInfo is the public projection returned alongside a session.
type PartnerInfo struct {
	ID            string        `json:"partnerId"`
	LoginID       string        `json:"loginId"`
	OwnerName     string        `json:"ownerName"`
	OwnerEmail    string        `json:"ownerEmail"`
	OwnerPhone    string        `json:"ownerPhone"`
	GymName       string        `json:"gymName"`
	GymType       GymType       `json:"gymType"`
	FranchiseName *string       `json:"franchiseName,omitempty"`
	Status        PartnerStatus `json:"partnerStatus"`
}

func (p *PartnerAccount) Info() PartnerInfo {
	return PartnerInfo{
		ID:            p.ID,
		LoginID:       p.LoginID,
		OwnerName:     p.OwnerName,
		OwnerEmail:    p.OwnerEmail,
		OwnerPhone:    p.OwnerPhone,
		GymName:       p.GymName,
		GymType:       p.GymType,
		FranchiseName: p.FranchiseName,
		Status:        p.Status,
	}
}

type CreatePartnerParams struct {
	ID             string
	LoginID        string
	PasswordHash   string
	OwnerName      string
	OwnerPhone     string
	OwnerEmail     string
	OwnerBirthDate *time.Time
	OwnerGender    *Gender
	GymName        string
	GymType        GymType
	FranchiseName  *string
	BusinessNumber *string
	Status         PartnerStatus
	CreatedAt      time.Time
}

// BusinessFileParams locates a stored registration document. Bucket and Key
// are what Uploader.Delete needs to remove it later.
type BusinessFileParams struct {
	PartnerID   string
	URL         string
	Bucket      string
	Key         string
	Size        int64
	ContentType string
	UpdatedAt   time.Time
}
