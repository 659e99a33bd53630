package audit

import (
	"context"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/shoesfit/partner-server-go/internal/model"
	"github.com/shoesfit/partner-server-go/internal/util"
)

// Event is one security-relevant occurrence. AccountID falls back to the raw
// login id when no account could be resolved.
type Event struct {
	Type         model.SecurityEventType
	Result       model.EventResult
	AccountID    string
	Detail       string
	ErrorMessage string
	Before       map[string]any
	After        map[string]any
	Meta         RequestMeta
	OccurredAt   time.Time
}

// RequestMeta identifies the caller that triggered an event.
type RequestMeta struct {
	IP        string
	UserAgent string
	RequestID string
}

func MetaFromRequest(r *http.Request) RequestMeta {
	return RequestMeta{
		IP:        util.ClientIP(r),
		UserAgent: r.UserAgent(),
		RequestID: chimiddleware.GetReqID(r.Context()),
	}
}

// Recorder accepts events without blocking and never reports failure.
type Recorder interface {
	Record(ctx context.Context, event Event)
}

// Sink persists events. Errors are logged by the dispatcher and dropped.
type Sink interface {
	Write(ctx context.Context, event Event) error
}
