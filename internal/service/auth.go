package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/shoesfit/partner-server-go/internal/audit"
	"github.com/shoesfit/partner-server-go/internal/config"
	apperrors "github.com/shoesfit/partner-server-go/internal/errors"
	"github.com/shoesfit/partner-server-go/internal/model"
	"github.com/shoesfit/partner-server-go/internal/obs"
	"github.com/shoesfit/partner-server-go/internal/repository"
	"github.com/shoesfit/partner-server-go/internal/storage"
	"github.com/shoesfit/partner-server-go/internal/util"
)

const TokenTypeBearer = "Bearer"

const birthDateLayout = "2006-01-02"

// AccessIssuer mints access tokens. *token.Issuer satisfies it.
type AccessIssuer interface {
	IssueAccess(subject, role string) (string, int64, error)
}

type RegisterRequest struct {
	LoginID        string `json:"loginId"`
	Password       string `json:"password"`
	OwnerName      string `json:"ownerName"`
	OwnerPhone     string `json:"ownerPhone"`
	OwnerEmail     string `json:"ownerEmail"`
	OwnerBirthDate string `json:"ownerBirthDate,omitempty"`
	OwnerGender    string `json:"ownerGender,omitempty"`
	GymName        string `json:"gymName"`
	GymType        string `json:"gymType,omitempty"`
	FranchiseName  string `json:"franchiseName,omitempty"`
	BusinessNumber string `json:"businessNumber,omitempty"`
}

// Session is what a successful register, login or refresh hands back.
type Session struct {
	AccessToken  string            `json:"accessToken"`
	RefreshToken string            `json:"refreshToken"`
	TokenType    string            `json:"tokenType"`
	ExpiresIn    int64             `json:"expiresIn"`
	PartnerInfo  model.PartnerInfo `json:"partnerInfo"`
}

type AuthService struct {
	db       Transactor
	partners repository.PartnerRepository
	ledger   *RefreshLedger
	guard    *LoginGuard
	issuer   AccessIssuer
	uploader storage.Uploader
	audit    audit.Recorder
	now      func() time.Time
}

func NewAuthService(
	db Transactor,
	partners repository.PartnerRepository,
	ledger *RefreshLedger,
	guard *LoginGuard,
	issuer AccessIssuer,
	uploader storage.Uploader,
	recorder audit.Recorder,
) *AuthService {
	return &AuthService{
		db:       db,
		partners: partners,
		ledger:   ledger,
		guard:    guard,
		issuer:   issuer,
		uploader: uploader,
		audit:    recorder,
		now:      time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	s.now = now
	return s
}

// Register creates an ACTIVE account and opens its first session. The account
// row and the refresh token are committed together or not at all.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest, meta audit.RequestMeta) (*Session, error) {
	params, err := s.prepareRegistration(ctx, req, false)
	if err != nil {
		return nil, err
	}

	var session *Session
	err = s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		account, err := s.partners.WithTx(tx).Create(ctx, params)
		if err != nil {
			return err
		}
		session, err = s.openSessionInTx(ctx, tx, account)
		return err
	})
	if err != nil {
		return nil, s.registrationFailed(ctx, params.LoginID, err, meta)
	}

	s.registered(ctx, &session.PartnerInfo, meta)
	return session, nil
}

// RegisterWithDocument registers an account together with its business
// registration document. A failed upload rolls the account back, and an
// uploaded document is deleted again when a later step fails.
func (s *AuthService) RegisterWithDocument(ctx context.Context, req RegisterRequest, doc *storage.File, meta audit.RequestMeta) (*Session, error) {
	params, err := s.prepareRegistration(ctx, req, true)
	if err != nil {
		return nil, err
	}
	if doc == nil || doc.Reader == nil {
		return nil, apperrors.ValidationError(apperrors.FieldErrors{
			"businessRegistrationFile": "business registration file is required",
		})
	}

	var (
		session  *Session
		uploaded *storage.UploadResult
	)
	err = s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		partners := s.partners.WithTx(tx)
		account, err := partners.Create(ctx, params)
		if err != nil {
			return err
		}

		uploaded, err = s.uploader.Upload(ctx, *doc, "partners/"+account.ID+"/business")
		if err != nil {
			if apperrors.IsAppError(err) {
				return err
			}
			return apperrors.External("storage", err)
		}

		if err := partners.SetBusinessRegistrationFile(ctx, model.BusinessFileParams{
			PartnerID:   account.ID,
			URL:         uploaded.URL,
			Bucket:      uploaded.Bucket,
			Key:         uploaded.Key,
			Size:        uploaded.Size,
			ContentType: uploaded.ContentType,
			UpdatedAt:   s.now(),
		}); err != nil {
			return fmt.Errorf("save business registration file: %w", err)
		}
		account.BusinessRegistrationFile = &uploaded.URL
		account.BusinessFileBucket = &uploaded.Bucket
		account.BusinessFileKey = &uploaded.Key

		session, err = s.openSessionInTx(ctx, tx, account)
		return err
	})
	if err != nil {
		if uploaded != nil {
			if delErr := s.uploader.Delete(ctx, uploaded.Bucket, uploaded.Key); delErr != nil {
				log.Error().Err(delErr).Str("key", uploaded.Key).Msg("failed to delete orphaned upload")
			}
		}
		return nil, s.registrationFailed(ctx, params.LoginID, err, meta)
	}

	log.Info().Str("partner_id", session.PartnerInfo.ID).Str("key", uploaded.Key).Msg("business registration file stored")
	s.registered(ctx, &session.PartnerInfo, meta)
	return session, nil
}

func (s *AuthService) prepareRegistration(ctx context.Context, req RegisterRequest, requireBusinessNumber bool) (model.CreatePartnerParams, error) {
	req = normalizeRegisterRequest(req)

	params, fields := validateRegisterRequest(req, requireBusinessNumber)
	if len(fields) > 0 {
		return params, apperrors.ValidationError(fields)
	}

	taken, err := s.partners.ExistsByLoginID(ctx, params.LoginID)
	if err != nil {
		return params, fmt.Errorf("check login id: %w", err)
	}
	if taken {
		return params, apperrors.Conflict("loginId")
	}

	taken, err = s.partners.ExistsByEmail(ctx, params.OwnerEmail)
	if err != nil {
		return params, fmt.Errorf("check email: %w", err)
	}
	if taken {
		return params, apperrors.Conflict("ownerEmail")
	}

	if params.BusinessNumber != nil {
		taken, err = s.partners.ExistsByBusinessNumber(ctx, *params.BusinessNumber)
		if err != nil {
			return params, fmt.Errorf("check business number: %w", err)
		}
		if taken {
			return params, apperrors.Conflict("businessNumber")
		}
	}

	hash, err := util.HashPassword(req.Password)
	if err != nil {
		return params, fmt.Errorf("hash password: %w", err)
	}
	params.PasswordHash = hash
	params.ID = util.NewID()
	params.Status = model.PartnerStatusActive
	params.CreatedAt = s.now()
	return params, nil
}

func normalizeRegisterRequest(req RegisterRequest) RegisterRequest {
	req.LoginID = strings.TrimSpace(req.LoginID)
	req.OwnerName = strings.TrimSpace(req.OwnerName)
	req.OwnerPhone = strings.TrimSpace(req.OwnerPhone)
	req.OwnerEmail = strings.TrimSpace(req.OwnerEmail)
	req.OwnerBirthDate = strings.TrimSpace(req.OwnerBirthDate)
	req.OwnerGender = strings.ToUpper(strings.TrimSpace(req.OwnerGender))
	req.GymName = strings.TrimSpace(req.GymName)
	req.GymType = strings.ToUpper(strings.TrimSpace(req.GymType))
	req.FranchiseName = strings.TrimSpace(req.FranchiseName)
	req.BusinessNumber = strings.TrimSpace(req.BusinessNumber)
	return req
}

func validateRegisterRequest(req RegisterRequest, requireBusinessNumber bool) (model.CreatePartnerParams, apperrors.FieldErrors) {
	fields := apperrors.FieldErrors{}
	params := model.CreatePartnerParams{
		LoginID:    req.LoginID,
		OwnerName:  req.OwnerName,
		OwnerPhone: req.OwnerPhone,
		OwnerEmail: req.OwnerEmail,
		GymName:    req.GymName,
		GymType:    model.GymTypeIndividual,
	}

	switch {
	case req.LoginID == "":
		fields["loginId"] = "login id is required"
	case !util.LengthBetween(req.LoginID, 4, 50):
		fields["loginId"] = "login id must be 4 to 50 characters"
	}

	switch {
	case req.Password == "":
		fields["password"] = "password is required"
	case !util.LengthBetween(req.Password, 8, 100):
		fields["password"] = "password must be 8 to 100 characters"
	}

	if req.OwnerName == "" {
		fields["ownerName"] = "owner name is required"
	}

	switch {
	case req.OwnerPhone == "":
		fields["ownerPhone"] = "phone number is required"
	case !util.IsValidPhone(req.OwnerPhone):
		fields["ownerPhone"] = "invalid phone number"
	}

	switch {
	case req.OwnerEmail == "":
		fields["ownerEmail"] = "email is required"
	case !util.IsValidEmail(req.OwnerEmail):
		fields["ownerEmail"] = "invalid email address"
	}

	if req.OwnerBirthDate != "" {
		birth, err := time.Parse(birthDateLayout, req.OwnerBirthDate)
		if err != nil {
			fields["ownerBirthDate"] = "birth date must be YYYY-MM-DD"
		} else {
			params.OwnerBirthDate = &birth
		}
	}

	if req.OwnerGender != "" {
		gender := model.Gender(req.OwnerGender)
		if !gender.Valid() {
			fields["ownerGender"] = "gender must be MALE or FEMALE"
		} else {
			params.OwnerGender = &gender
		}
	}

	if req.GymName == "" {
		fields["gymName"] = "gym name is required"
	}

	if req.GymType != "" {
		gymType := model.GymType(req.GymType)
		if !gymType.Valid() {
			fields["gymType"] = "gym type must be INDIVIDUAL or FRANCHISE"
		} else {
			params.GymType = gymType
		}
	}

	if req.FranchiseName != "" {
		name := req.FranchiseName
		params.FranchiseName = &name
	}

	switch {
	case req.BusinessNumber == "" && requireBusinessNumber:
		fields["businessNumber"] = "business number is required"
	case req.BusinessNumber == "":
	case !util.IsValidBusinessNumber(req.BusinessNumber):
		fields["businessNumber"] = "business number must be 10 to 12 digits"
	default:
		number := req.BusinessNumber
		params.BusinessNumber = &number
	}

	return params, fields
}

func (s *AuthService) registrationFailed(ctx context.Context, loginID string, err error, meta audit.RequestMeta) error {
	result := model.ResultError
	if apperrors.IsAppError(err) && !apperrors.HasCode(err, apperrors.ErrCodeExternal) {
		result = model.ResultFail
	}
	s.record(ctx, audit.Event{
		Type:         model.EventRegister,
		Result:       result,
		AccountID:    loginID,
		Detail:       "registration failed",
		ErrorMessage: err.Error(),
		Meta:         meta,
	})
	if apperrors.IsAppError(err) {
		return err
	}
	return fmt.Errorf("register partner: %w", err)
}

func (s *AuthService) registered(ctx context.Context, info *model.PartnerInfo, meta audit.RequestMeta) {
	log.Info().Str("partner_id", info.ID).Str("login_id", info.LoginID).Msg("partner registered")
	s.record(ctx, audit.Event{
		Type:      model.EventRegister,
		Result:    model.ResultSuccess,
		AccountID: info.ID,
		Detail:    "partner registered",
		After: map[string]any{
			"loginId": info.LoginID,
			"gymName": info.GymName,
			"gymType": info.GymType,
			"status":  info.Status,
		},
		Meta: meta,
	})
}

// Login verifies credentials. Unknown accounts and wrong passwords produce the
// same InvalidCredentials error. A locked account is rejected before the
// password is looked at and its counter is left alone.
func (s *AuthService) Login(ctx context.Context, loginID, password string, meta audit.RequestMeta) (*Session, error) {
	loginID = strings.TrimSpace(loginID)
	if loginID == "" || password == "" {
		return nil, apperrors.ValidationError(requiredFields(map[string]string{
			"loginId":  loginID,
			"password": password,
		}))
	}

	account, err := s.partners.FindByLoginID(ctx, loginID)
	if err != nil {
		return nil, fmt.Errorf("find partner: %w", err)
	}
	if account == nil {
		obs.ObserveLogin("unknown_account")
		s.loginFailed(ctx, loginID, "unknown account", meta)
		return nil, apperrors.InvalidCredentials()
	}

	now := s.now()
	if locked, remaining := s.guard.Check(account.LoginState(), now); locked {
		obs.ObserveLogin("locked")
		s.loginFailed(ctx, account.ID, "account locked", meta)
		return nil, apperrors.AccountLocked(remaining)
	}

	switch account.Status {
	case model.PartnerStatusSuspended:
		obs.ObserveLogin("suspended")
		s.loginFailed(ctx, account.ID, "account suspended", meta)
		return nil, apperrors.AccountSuspended()
	case model.PartnerStatusWithdrawn:
		obs.ObserveLogin("withdrawn")
		s.loginFailed(ctx, account.ID, "account withdrawn", meta)
		return nil, apperrors.AccountWithdrawn()
	}

	if !util.CheckPasswordHash(password, account.PasswordHash) {
		return nil, s.wrongPassword(ctx, account, now, meta)
	}

	state := s.guard.RecordSuccess(account.LoginState(), now)
	if err := s.partners.SaveLoginState(ctx, account.ID, state, now); err != nil {
		return nil, fmt.Errorf("save login state: %w", err)
	}
	account.ApplyLoginState(state)

	session, err := s.openSession(ctx, account)
	if err != nil {
		obs.ObserveLogin("error")
		return nil, err
	}

	obs.ObserveLogin("success")
	log.Info().Str("partner_id", account.ID).Msg("partner logged in")
	s.record(ctx, audit.Event{
		Type:      model.EventLogin,
		Result:    model.ResultSuccess,
		AccountID: account.ID,
		Detail:    "login succeeded",
		Meta:      meta,
	})
	return session, nil
}

func (s *AuthService) wrongPassword(ctx context.Context, account *model.PartnerAccount, now time.Time, meta audit.RequestMeta) error {
	before := account.LoginFailCount
	next, justLocked := s.guard.RecordFailure(account.LoginState(), now)
	if err := s.partners.SaveLoginState(ctx, account.ID, next, now); err != nil {
		return fmt.Errorf("save login state: %w", err)
	}
	account.ApplyLoginState(next)

	if justLocked {
		obs.ObserveAccountLock()
		log.Warn().
			Str("partner_id", account.ID).
			Int("fail_count", next.FailCount).
			Msg("account locked after repeated login failures")
		s.record(ctx, audit.Event{
			Type:      model.EventAccountLock,
			Result:    model.ResultSuccess,
			AccountID: account.ID,
			Detail:    fmt.Sprintf("locked after %d failed logins", next.FailCount),
			Before:    map[string]any{"loginFailCount": before},
			After: map[string]any{
				"loginFailCount": next.FailCount,
				"lockedUntil":    next.LockedUntil.UTC().Format(time.RFC3339),
				"lockMinutes":    int(s.guard.LockDuration() / time.Minute),
			},
			Meta: meta,
		})
	}

	obs.ObserveLogin("invalid_credentials")
	s.loginFailed(ctx, account.ID, "password mismatch", meta)
	return apperrors.InvalidCredentials()
}

func (s *AuthService) loginFailed(ctx context.Context, accountID, reason string, meta audit.RequestMeta) {
	s.record(ctx, audit.Event{
		Type:      model.EventLoginFail,
		Result:    model.ResultFail,
		AccountID: accountID,
		Detail:    reason,
		Meta:      meta,
	})
}

// Refresh rotates a refresh token and mints a new access token for the same
// subject. An expired token is deleted and SessionExpired returned.
func (s *AuthService) Refresh(ctx context.Context, value string, meta audit.RequestMeta) (*Session, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		obs.ObserveRefresh("invalid")
		return nil, apperrors.InvalidToken("Refresh token is required")
	}

	existing, err := s.ledger.FindByToken(ctx, value)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		obs.ObserveRefresh("invalid")
		return nil, apperrors.InvalidToken("Invalid refresh token")
	}

	if !s.ledger.IsValid(existing) {
		if err := s.ledger.RevokeToken(ctx, existing.Token); err != nil {
			log.Error().Err(err).Str("account_id", existing.AccountID).Msg("failed to delete expired refresh token")
		}
		obs.ObserveRefresh("expired")
		s.refreshFailed(ctx, existing.AccountID, "refresh token expired", meta)
		return nil, apperrors.SessionExpired()
	}

	account, err := s.partners.FindByID(ctx, existing.AccountID)
	if err != nil {
		return nil, fmt.Errorf("find partner: %w", err)
	}
	if account == nil {
		obs.ObserveRefresh("invalid")
		return nil, apperrors.InvalidToken("Invalid refresh token")
	}
	if err := statusError(account.Status); err != nil {
		if revokeErr := s.ledger.RevokeAccount(ctx, account.ID); revokeErr != nil {
			log.Error().Err(revokeErr).Str("partner_id", account.ID).Msg("failed to revoke refresh token")
		}
		obs.ObserveRefresh("rejected")
		s.refreshFailed(ctx, account.ID, string(account.Status), meta)
		return nil, err
	}

	rotated, err := s.ledger.Rotate(ctx, existing)
	if err != nil {
		switch {
		case apperrors.HasCode(err, apperrors.ErrCodeSessionExpired):
			obs.ObserveRefresh("expired")
			s.refreshFailed(ctx, account.ID, "session reached its absolute expiry", meta)
		case apperrors.HasCode(err, apperrors.ErrCodeInvalidToken):
			obs.ObserveRefresh("invalid")
		default:
			obs.ObserveRefresh("error")
		}
		return nil, err
	}

	access, expiresIn, err := s.issuer.IssueAccess(account.LoginID, config.PartnerRole)
	if err != nil {
		obs.ObserveRefresh("error")
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	obs.ObserveRefresh("success")
	s.record(ctx, audit.Event{
		Type:      model.EventTokenRefresh,
		Result:    model.ResultSuccess,
		AccountID: account.ID,
		Detail:    "refresh token rotated",
		After:     map[string]any{"refreshCount": rotated.RefreshCount},
		Meta:      meta,
	})

	return &Session{
		AccessToken:  access,
		RefreshToken: rotated.Token,
		TokenType:    TokenTypeBearer,
		ExpiresIn:    expiresIn,
		PartnerInfo:  account.Info(),
	}, nil
}

func (s *AuthService) refreshFailed(ctx context.Context, accountID, reason string, meta audit.RequestMeta) {
	s.record(ctx, audit.Event{
		Type:      model.EventTokenRefresh,
		Result:    model.ResultFail,
		AccountID: accountID,
		Detail:    reason,
		Meta:      meta,
	})
}

// Logout revokes the account's refresh token. It never fails visibly.
func (s *AuthService) Logout(ctx context.Context, accountID string, meta audit.RequestMeta) {
	if accountID == "" {
		return
	}
	if err := s.ledger.RevokeAccount(ctx, accountID); err != nil {
		log.Error().Err(err).Str("partner_id", accountID).Msg("failed to revoke refresh token on logout")
	}
	log.Info().Str("partner_id", accountID).Msg("partner logged out")
	s.record(ctx, audit.Event{
		Type:      model.EventLogout,
		Result:    model.ResultSuccess,
		AccountID: accountID,
		Detail:    "logout",
		Meta:      meta,
	})
}

// LogoutSubject resolves an access token subject (the login id) and logs the
// account out.
func (s *AuthService) LogoutSubject(ctx context.Context, loginID string, meta audit.RequestMeta) {
	if loginID == "" {
		return
	}
	account, err := s.partners.FindByLoginID(ctx, loginID)
	if err != nil {
		log.Error().Err(err).Msg("failed to resolve partner on logout")
		return
	}
	if account == nil {
		return
	}
	s.Logout(ctx, account.ID, meta)
}

// Profile returns the public info of the account behind an access token
// subject.
func (s *AuthService) Profile(ctx context.Context, loginID string) (*model.PartnerInfo, error) {
	account, err := s.partners.FindByLoginID(ctx, loginID)
	if err != nil {
		return nil, fmt.Errorf("find partner: %w", err)
	}
	if account == nil || account.Status == model.PartnerStatusWithdrawn {
		return nil, apperrors.Unauthorized("Authentication required")
	}
	info := account.Info()
	return &info, nil
}

func (s *AuthService) IsLoginIDAvailable(ctx context.Context, loginID string) (bool, error) {
	taken, err := s.partners.ExistsByLoginID(ctx, strings.TrimSpace(loginID))
	if err != nil {
		return false, fmt.Errorf("check login id: %w", err)
	}
	return !taken, nil
}

func (s *AuthService) IsEmailAvailable(ctx context.Context, email string) (bool, error) {
	taken, err := s.partners.ExistsByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return !taken, nil
}

func (s *AuthService) IsBusinessNumberAvailable(ctx context.Context, businessNumber string) (bool, error) {
	taken, err := s.partners.ExistsByBusinessNumber(ctx, strings.TrimSpace(businessNumber))
	if err != nil {
		return false, fmt.Errorf("check business number: %w", err)
	}
	return !taken, nil
}

func (s *AuthService) openSession(ctx context.Context, account *model.PartnerAccount) (*Session, error) {
	var session *Session
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		session, err = s.openSessionInTx(ctx, tx, account)
		return err
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// openSessionInTx replaces the account's refresh token and mints an access
// token. A signing failure rolls the new refresh token back.
func (s *AuthService) openSessionInTx(ctx context.Context, tx *sqlx.Tx, account *model.PartnerAccount) (*Session, error) {
	refresh, err := s.ledger.CreateInTx(ctx, tx, account.ID)
	if err != nil {
		return nil, err
	}
	access, expiresIn, err := s.issuer.IssueAccess(account.LoginID, config.PartnerRole)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	return &Session{
		AccessToken:  access,
		RefreshToken: refresh.Token,
		TokenType:    TokenTypeBearer,
		ExpiresIn:    expiresIn,
		PartnerInfo:  account.Info(),
	}, nil
}

func (s *AuthService) record(ctx context.Context, event audit.Event) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, event)
}

func statusError(status model.PartnerStatus) error {
	switch status {
	case model.PartnerStatusSuspended:
		return apperrors.AccountSuspended()
	case model.PartnerStatusWithdrawn:
		return apperrors.AccountWithdrawn()
	}
	return nil
}

func requiredFields(values map[string]string) apperrors.FieldErrors {
	fields := apperrors.FieldErrors{}
	for name, value := range values {
		if value == "" {
			fields[name] = name + " is required"
		}
	}
	return fields
}
