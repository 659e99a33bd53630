package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/shoesfit/partner-server-go/internal/audit"
	"github.com/shoesfit/partner-server-go/internal/database"
	apperrors "github.com/shoesfit/partner-server-go/internal/errors"
	"github.com/shoesfit/partner-server-go/internal/model"
	"github.com/shoesfit/partner-server-go/internal/repository"
	"github.com/shoesfit/partner-server-go/internal/storage"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// memStore backs the in-memory repositories. The transactor snapshots it and
// restores the snapshot when the transaction function fails.
type memStore struct {
	mu       sync.Mutex
	partners map[string]model.PartnerAccount
	tokens   map[string]model.RefreshToken // keyed by account id
	now      func() time.Time
}

func newMemStore(now func() time.Time) *memStore {
	return &memStore{
		partners: map[string]model.PartnerAccount{},
		tokens:   map[string]model.RefreshToken{},
		now:      now,
	}
}

type memSnapshot struct {
	partners map[string]model.PartnerAccount
	tokens   map[string]model.RefreshToken
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := memSnapshot{
		partners: make(map[string]model.PartnerAccount, len(s.partners)),
		tokens:   make(map[string]model.RefreshToken, len(s.tokens)),
	}
	for k, v := range s.partners {
		snap.partners[k] = v
	}
	for k, v := range s.tokens {
		snap.tokens[k] = v
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partners = snap.partners
	s.tokens = snap.tokens
}

func (s *memStore) partnerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.partners)
}

func (s *memStore) tokenFor(accountID string) (model.RefreshToken, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[accountID]
	return t, ok
}

func (s *memStore) partnerByLoginID(loginID string) (model.PartnerAccount, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.partners {
		if p.LoginID == loginID {
			return p, true
		}
	}
	return model.PartnerAccount{}, false
}

func (s *memStore) setStatus(id string, status model.PartnerStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.partners[id]
	p.Status = status
	s.partners[id] = p
}

type memTransactor struct {
	store    *memStore
	beginErr error
}

func (t *memTransactor) WithTx(ctx context.Context, fn database.TxFunc) error {
	if t.beginErr != nil {
		return t.beginErr
	}
	snap := t.store.snapshot()
	if err := fn(nil); err != nil {
		t.store.restore(snap)
		return err
	}
	return nil
}

type memPartnerRepo struct {
	store      *memStore
	setFileErr error
	findErr    error
}

var _ repository.PartnerRepository = (*memPartnerRepo)(nil)

func (r *memPartnerRepo) WithTx(tx *sqlx.Tx) repository.PartnerRepository {
	return r
}

func (r *memPartnerRepo) FindByID(ctx context.Context, id string) (*model.PartnerAccount, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	p, ok := r.store.partners[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *memPartnerRepo) FindByLoginID(ctx context.Context, loginID string) (*model.PartnerAccount, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	p, ok := r.store.partnerByLoginID(loginID)
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *memPartnerRepo) exists(match func(p model.PartnerAccount) bool) bool {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, p := range r.store.partners {
		if match(p) {
			return true
		}
	}
	return false
}

func (r *memPartnerRepo) ExistsByLoginID(ctx context.Context, loginID string) (bool, error) {
	return r.exists(func(p model.PartnerAccount) bool { return p.LoginID == loginID }), nil
}

func (r *memPartnerRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return r.exists(func(p model.PartnerAccount) bool { return p.OwnerEmail == email }), nil
}

func (r *memPartnerRepo) ExistsByBusinessNumber(ctx context.Context, number string) (bool, error) {
	return r.exists(func(p model.PartnerAccount) bool {
		return p.BusinessNumber != nil && *p.BusinessNumber == number
	}), nil
}

func (r *memPartnerRepo) Create(ctx context.Context, params model.CreatePartnerParams) (*model.PartnerAccount, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, p := range r.store.partners {
		switch {
		case p.LoginID == params.LoginID:
			return nil, apperrors.Conflict("loginId")
		case p.OwnerEmail == params.OwnerEmail:
			return nil, apperrors.Conflict("ownerEmail")
		case params.BusinessNumber != nil && p.BusinessNumber != nil && *p.BusinessNumber == *params.BusinessNumber:
			return nil, apperrors.Conflict("businessNumber")
		}
	}
	now := params.CreatedAt
	p := model.PartnerAccount{
		ID:             params.ID,
		LoginID:        params.LoginID,
		PasswordHash:   params.PasswordHash,
		OwnerName:      params.OwnerName,
		OwnerPhone:     params.OwnerPhone,
		OwnerEmail:     params.OwnerEmail,
		OwnerBirthDate: params.OwnerBirthDate,
		OwnerGender:    params.OwnerGender,
		GymName:        params.GymName,
		GymType:        params.GymType,
		FranchiseName:  params.FranchiseName,
		BusinessNumber: params.BusinessNumber,
		Status:         params.Status,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	r.store.partners[p.ID] = p
	return &p, nil
}

func (r *memPartnerRepo) SaveLoginState(ctx context.Context, id string, state model.LoginState, at time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	p, ok := r.store.partners[id]
	if !ok {
		return errors.New("partner not found")
	}
	p.ApplyLoginState(state)
	p.UpdatedAt = at
	r.store.partners[id] = p
	return nil
}

func (r *memPartnerRepo) SetBusinessRegistrationFile(ctx context.Context, params model.BusinessFileParams) error {
	if r.setFileErr != nil {
		return r.setFileErr
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	p := r.store.partners[params.PartnerID]
	p.BusinessRegistrationFile = &params.URL
	p.BusinessFileBucket = &params.Bucket
	p.BusinessFileKey = &params.Key
	p.BusinessFileSize = &params.Size
	p.BusinessFileContentType = &params.ContentType
	p.UpdatedAt = params.UpdatedAt
	r.store.partners[params.PartnerID] = p
	return nil
}

type memRefreshRepo struct {
	store     *memStore
	deleteErr error
}

var _ repository.RefreshTokenRepository = (*memRefreshRepo)(nil)

func (r *memRefreshRepo) WithTx(tx *sqlx.Tx) repository.RefreshTokenRepository {
	return r
}

func (r *memRefreshRepo) findLocked(hash string) (model.RefreshToken, bool) {
	for _, t := range r.store.tokens {
		if t.TokenHash == hash {
			return t, true
		}
	}
	return model.RefreshToken{}, false
}

func (r *memRefreshRepo) FindByTokenHash(ctx context.Context, hash string) (*model.RefreshToken, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	t, ok := r.findLocked(hash)
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (r *memRefreshRepo) FindByAccountID(ctx context.Context, accountID string) (*model.RefreshToken, error) {
	t, ok := r.store.tokenFor(accountID)
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (r *memRefreshRepo) Create(ctx context.Context, params model.CreateRefreshTokenParams) (*model.RefreshToken, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.tokens[params.AccountID]; ok {
		return nil, errors.New("duplicate key value violates unique constraint \"refresh_tokens_account_id_key\"")
	}
	t := model.RefreshToken{
		ID:                params.ID,
		TokenHash:         params.TokenHash,
		AccountID:         params.AccountID,
		ExpiresAt:         params.ExpiresAt,
		AbsoluteExpiresAt: params.AbsoluteExpiresAt,
		CreatedAt:         params.CreatedAt,
		UpdatedAt:         params.CreatedAt,
	}
	r.store.tokens[t.AccountID] = t
	return &t, nil
}

func (r *memRefreshRepo) Rotate(ctx context.Context, params model.RotateRefreshTokenParams) (*model.RefreshToken, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	t, ok := r.findLocked(params.OldTokenHash)
	if !ok {
		return nil, nil
	}
	t.TokenHash = params.NewTokenHash
	t.ExpiresAt = params.ExpiresAt
	t.RefreshCount++
	t.UpdatedAt = params.UpdatedAt
	r.store.tokens[t.AccountID] = t
	return &t, nil
}

func (r *memRefreshRepo) DeleteByAccountID(ctx context.Context, accountID string) error {
	if r.deleteErr != nil {
		return r.deleteErr
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.tokens, accountID)
	return nil
}

func (r *memRefreshRepo) DeleteByTokenHash(ctx context.Context, hash string) error {
	if r.deleteErr != nil {
		return r.deleteErr
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if t, ok := r.findLocked(hash); ok {
		delete(r.store.tokens, t.AccountID)
	}
	return nil
}

func (r *memRefreshRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var n int64
	for id, t := range r.store.tokens {
		if t.ExpiresAt.Before(now) || t.AbsoluteExpiresAt.Before(now) {
			delete(r.store.tokens, id)
			n++
		}
	}
	return n, nil
}

type recordingAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingAudit) Record(ctx context.Context, event audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingAudit) types() []model.SecurityEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.SecurityEventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func (r *recordingAudit) last() audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return audit.Event{}
	}
	return r.events[len(r.events)-1]
}

func (r *recordingAudit) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

type fakeUploader struct {
	mu        sync.Mutex
	uploadErr error
	uploads   []storage.UploadResult
	deleted   []string
}

var _ storage.Uploader = (*fakeUploader)(nil)

func (u *fakeUploader) Upload(ctx context.Context, file storage.File, directory string) (*storage.UploadResult, error) {
	if u.uploadErr != nil {
		return nil, u.uploadErr
	}
	n, err := io.Copy(io.Discard, file.Reader)
	if err != nil {
		return nil, err
	}
	res := storage.UploadResult{
		URL:         "/files/" + directory + "/doc.pdf",
		Bucket:      "partner-documents",
		Key:         directory + "/doc.pdf",
		Size:        n,
		ContentType: "application/pdf",
	}
	u.mu.Lock()
	u.uploads = append(u.uploads, res)
	u.mu.Unlock()
	return &res, nil
}

func (u *fakeUploader) Delete(ctx context.Context, bucket, key string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.deleted = append(u.deleted, key)
	return nil
}
