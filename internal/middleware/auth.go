package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	apperrors "github.com/shoesfit/partner-server-go/internal/errors"
	"github.com/shoesfit/partner-server-go/internal/token"
)

type contextKey string

const PrincipalContextKey contextKey = "principal"

// Principal is the caller identified by a verified access token.
type Principal struct {
	LoginID string
	Role    string
	TokenID string
}

func GetPrincipal(ctx context.Context) *Principal {
	if p, ok := ctx.Value(PrincipalContextKey).(*Principal); ok {
		return p
	}
	return nil
}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, PrincipalContextKey, p)
}

// TokenVerifier checks an access token. *token.Issuer satisfies it.
type TokenVerifier interface {
	Verify(token string) (*token.Claims, error)
}

type AuthMiddleware struct {
	verifier TokenVerifier
	role     string
}

func NewAuthMiddleware(verifier TokenVerifier, role string) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier, role: role}
}

// Required rejects requests without a valid bearer token for the configured
// role.
func (m *AuthMiddleware) Required(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := extractToken(r)
		if raw == "" {
			writeError(w, apperrors.Unauthorized("Missing authentication token"))
			return
		}

		principal, ok := m.authenticate(raw)
		if !ok {
			log.Warn().Str("path", r.URL.Path).Msg("auth middleware: invalid access token")
			writeError(w, apperrors.InvalidToken("Invalid or expired access token"))
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
	})
}

// Optional attaches the principal when a valid token is present and lets every
// request through.
func (m *AuthMiddleware) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if raw := extractToken(r); raw != "" {
			if principal, ok := m.authenticate(raw); ok {
				r = r.WithContext(WithPrincipal(r.Context(), principal))
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (m *AuthMiddleware) authenticate(raw string) (*Principal, bool) {
	claims, err := m.verifier.Verify(raw)
	if err != nil {
		return nil, false
	}
	if m.role != "" && claims.Role != m.role {
		return nil, false
	}
	return &Principal{
		LoginID: claims.Subject,
		Role:    claims.Role,
		TokenID: claims.ID,
	}, true
}

func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if len(authHeader) > len("Bearer ") && strings.EqualFold(authHeader[:len("Bearer ")], "Bearer ") {
		return strings.TrimSpace(authHeader[len("Bearer "):])
	}
	return ""
}
