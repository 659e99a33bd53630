package handler

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/shoesfit/partner-server-go/internal/audit"
	apperrors "github.com/shoesfit/partner-server-go/internal/errors"
	"github.com/shoesfit/partner-server-go/internal/middleware"
	"github.com/shoesfit/partner-server-go/internal/model"
	"github.com/shoesfit/partner-server-go/internal/service"
	"github.com/shoesfit/partner-server-go/internal/storage"
)

const multipartMemory = 1 << 20

const documentField = "businessRegistrationFile"

// AuthService is the subset of *service.AuthService the handler needs.
type AuthService interface {
	Register(ctx context.Context, req service.RegisterRequest, meta audit.RequestMeta) (*service.Session, error)
	RegisterWithDocument(ctx context.Context, req service.RegisterRequest, doc *storage.File, meta audit.RequestMeta) (*service.Session, error)
	Login(ctx context.Context, loginID, password string, meta audit.RequestMeta) (*service.Session, error)
	Refresh(ctx context.Context, value string, meta audit.RequestMeta) (*service.Session, error)
	LogoutSubject(ctx context.Context, loginID string, meta audit.RequestMeta)
	Profile(ctx context.Context, loginID string) (*model.PartnerInfo, error)
	IsLoginIDAvailable(ctx context.Context, loginID string) (bool, error)
	IsEmailAvailable(ctx context.Context, email string) (bool, error)
	IsBusinessNumberAvailable(ctx context.Context, businessNumber string) (bool, error)
}

// AuthRouteMiddleware holds the per route middleware. Nil entries are skipped.
type AuthRouteMiddleware struct {
	RequireAuth   func(http.Handler) http.Handler
	OptionalAuth  func(http.Handler) http.Handler
	LoginLimit    func(http.Handler) http.Handler
	RegisterLimit func(http.Handler) http.Handler
	RefreshLimit  func(http.Handler) http.Handler
}

type AuthHandler struct {
	authService AuthService
	mw          AuthRouteMiddleware
}

func NewAuthHandler(authService AuthService, mw AuthRouteMiddleware) *AuthHandler {
	return &AuthHandler{authService: authService, mw: mw}
}

func (h *AuthHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.With(use(h.mw.RegisterLimit)...).Post("/register", h.Register)
	r.With(use(h.mw.LoginLimit)...).Post("/login", h.Login)
	r.With(use(h.mw.RefreshLimit)...).Post("/refresh", h.Refresh)
	r.With(use(h.mw.RequireAuth)...).Get("/check", h.Check)
	r.With(use(h.mw.OptionalAuth)...).Post("/logout", h.Logout)

	r.Get("/check-login-id/{loginId}", h.CheckLoginID)
	r.Get("/check-email", h.CheckEmail)
	r.Get("/check-business-number/{businessNumber}", h.CheckBusinessNumber)

	return r
}

func use(mw ...func(http.Handler) http.Handler) []func(http.Handler) http.Handler {
	out := mw[:0]
	for _, m := range mw {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

// POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		h.registerMultipart(w, r)
		return
	}

	var req service.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	session, err := h.authService.Register(r.Context(), req, audit.MetaFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, "Registration succeeded", session)
}

func (h *AuthHandler) registerMultipart(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, apperrors.ValidationError(apperrors.FieldErrors{documentField: "file is too large"}))
			return
		}
		writeError(w, apperrors.ValidationError(apperrors.FieldErrors{"body": "malformed multipart form"}))
		return
	}
	defer r.MultipartForm.RemoveAll()

	req := service.RegisterRequest{
		LoginID:        r.FormValue("loginId"),
		Password:       r.FormValue("password"),
		OwnerName:      r.FormValue("ownerName"),
		OwnerPhone:     r.FormValue("ownerPhone"),
		OwnerEmail:     r.FormValue("ownerEmail"),
		OwnerBirthDate: r.FormValue("ownerBirthDate"),
		OwnerGender:    r.FormValue("ownerGender"),
		GymName:        r.FormValue("gymName"),
		GymType:        r.FormValue("gymType"),
		FranchiseName:  r.FormValue("franchiseName"),
		BusinessNumber: r.FormValue("businessNumber"),
	}

	var doc *storage.File
	file, header, err := r.FormFile(documentField)
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		writeError(w, apperrors.ValidationError(apperrors.FieldErrors{documentField: "unreadable file"}))
		return
	default:
		defer file.Close()
		doc = &storage.File{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Reader:      file,
		}
	}

	session, err := h.authService.RegisterWithDocument(r.Context(), req, doc, audit.MetaFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, "Registration succeeded", session)
}

type loginRequest struct {
	LoginID  string `json:"loginId"`
	Password string `json:"password"`
}

// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	session, err := h.authService.Login(r.Context(), req.LoginID, req.Password, audit.MetaFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, "Login succeeded", session)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// POST /auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	session, err := h.authService.Refresh(r.Context(), req.RefreshToken, audit.MetaFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, "Token refreshed", session)
}

// GET /auth/check
func (h *AuthHandler) Check(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())
	if principal == nil {
		writeError(w, apperrors.Unauthorized("Authentication required"))
		return
	}

	info, err := h.authService.Profile(r.Context(), principal.LoginID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, "Authenticated", info)
}

// POST /auth/logout always succeeds, with or without a valid token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if principal := middleware.GetPrincipal(r.Context()); principal != nil {
		h.authService.LogoutSubject(r.Context(), principal.LoginID, audit.MetaFromRequest(r))
	}
	writeSuccess(w, "Logged out", nil)
}

type availability struct {
	Available bool `json:"available"`
}

// GET /auth/check-login-id/{loginId}
func (h *AuthHandler) CheckLoginID(w http.ResponseWriter, r *http.Request) {
	h.writeAvailability(w, r, "loginId", chi.URLParam(r, "loginId"), h.authService.IsLoginIDAvailable)
}

// GET /auth/check-email?email=
func (h *AuthHandler) CheckEmail(w http.ResponseWriter, r *http.Request) {
	h.writeAvailability(w, r, "email", r.URL.Query().Get("email"), h.authService.IsEmailAvailable)
}

// GET /auth/check-business-number/{businessNumber}
func (h *AuthHandler) CheckBusinessNumber(w http.ResponseWriter, r *http.Request) {
	h.writeAvailability(w, r, "businessNumber", chi.URLParam(r, "businessNumber"), h.authService.IsBusinessNumberAvailable)
}

func (h *AuthHandler) writeAvailability(
	w http.ResponseWriter,
	r *http.Request,
	field, value string,
	check func(context.Context, string) (bool, error),
) {
	value = strings.TrimSpace(value)
	if value == "" {
		writeError(w, apperrors.ValidationError(apperrors.FieldErrors{field: field + " is required"}))
		return
	}

	available, err := check(r.Context(), value)
	if err != nil {
		log.Error().Err(err).Str("field", field).Msg("availability check failed")
		writeError(w, err)
		return
	}
	writeSuccess(w, "", availability{Available: available})
}
