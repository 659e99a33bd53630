package middleware

import (
	"net/http"
	"strings"

	apperrors "github.com/shoesfit/partner-server-go/internal/errors"
	"github.com/shoesfit/partner-server-go/internal/httputil"
)

const (
	DefaultMaxBodySize = 1 << 20 // 1MB
)

// BodyLimitMiddleware caps request bodies. Multipart requests get the larger
// upload limit.
type BodyLimitMiddleware struct {
	maxSize       int64
	maxUploadSize int64
}

func NewBodyLimitMiddleware(maxSize, maxUploadSize int64) *BodyLimitMiddleware {
	if maxSize <= 0 {
		maxSize = DefaultMaxBodySize
	}
	if maxUploadSize < maxSize {
		maxUploadSize = maxSize
	}
	return &BodyLimitMiddleware{maxSize: maxSize, maxUploadSize: maxUploadSize}
}

func (m *BodyLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit := m.maxSize
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			// Leave room for the multipart framing around the file.
			limit = m.maxUploadSize + DefaultMaxBodySize
		}

		if r.Body != nil && r.ContentLength > limit {
			httputil.WriteErrorWithStatus(w, http.StatusRequestEntityTooLarge,
				apperrors.New(apperrors.ErrCodeValidation, "Request body too large"))
			return
		}

		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
		}
		next.ServeHTTP(w, r)
	})
}
