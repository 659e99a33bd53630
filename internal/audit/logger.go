package audit

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogSink writes every event to the global zerolog logger.
type LogSink struct{}

func (LogSink) Write(ctx context.Context, event Event) error {
	logger := log.With().
		Str("audit", "security").
		Str("event_type", string(event.Type)).
		Str("result", string(event.Result)).
		Time("timestamp", event.OccurredAt).
		Logger()

	if event.AccountID != "" {
		logger = logger.With().Str("account_id", event.AccountID).Logger()
	}
	if event.Meta.IP != "" {
		logger = logger.With().Str("ip", event.Meta.IP).Logger()
	}
	if event.Meta.UserAgent != "" {
		logger = logger.With().Str("user_agent", event.Meta.UserAgent).Logger()
	}
	if event.Meta.RequestID != "" {
		logger = logger.With().Str("request_id", event.Meta.RequestID).Logger()
	}

	logEvent := logger.Info()
	if event.Detail != "" {
		logEvent = logEvent.Str("detail", event.Detail)
	}
	if event.ErrorMessage != "" {
		logEvent = logEvent.Str("error_message", event.ErrorMessage)
	}
	for k, v := range event.After {
		logEvent = addField(logEvent, k, v)
	}
	logEvent.Msg("security audit event")
	return nil
}

func addField(e *zerolog.Event, key string, value interface{}) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case bool:
		return e.Bool(key, v)
	default:
		return e.Interface(key, v)
	}
}
