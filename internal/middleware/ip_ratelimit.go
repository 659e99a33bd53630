package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/shoesfit/partner-server-go/internal/errors"
	"github.com/shoesfit/partner-server-go/internal/obs"
	"github.com/shoesfit/partner-server-go/internal/util"
)

// Limiter is satisfied by *service.RateLimiter.
type Limiter interface {
	CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, int, time.Time)
}

type IPRateLimitMiddleware struct {
	limiter Limiter
	limit   int
	window  time.Duration
	prefix  string
	now     func() time.Time
}

func NewIPRateLimitMiddleware(limiter Limiter, limit int, window time.Duration, prefix string) *IPRateLimitMiddleware {
	return &IPRateLimitMiddleware{
		limiter: limiter,
		limit:   limit,
		window:  window,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (m *IPRateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		ip := util.PeerIP(r)
		key := fmt.Sprintf("ip:%s:%s", m.prefix, ip)
		allowed, remaining, resetAt := m.limiter.CheckLimit(r.Context(), key, m.limit, m.window)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(m.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			secondsLeft := int(resetAt.Sub(m.now()).Seconds()) + 1
			if secondsLeft < 1 {
				secondsLeft = 1
			}
			obs.ObserveRateLimited(m.prefix)
			log.Warn().Str("ip", ip).Str("scope", m.prefix).Msg("rate limit exceeded")
			w.Header().Set("Retry-After", strconv.Itoa(secondsLeft))
			writeError(w, apperrors.RateLimitExceeded())
			return
		}

		next.ServeHTTP(w, r)
	})
}
