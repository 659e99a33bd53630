package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shoesfit/partner-server-go/internal/model"
	"github.com/shoesfit/partner-server-go/internal/repository"
	"github.com/shoesfit/partner-server-go/internal/util"
)

// StoreSink appends events to the security_events table.
type StoreSink struct {
	repo repository.SecurityEventRepository
}

func NewStoreSink(repo repository.SecurityEventRepository) *StoreSink {
	return &StoreSink{repo: repo}
}

func (s *StoreSink) Write(ctx context.Context, event Event) error {
	row, err := toSecurityEvent(event)
	if err != nil {
		return err
	}
	if err := s.repo.Insert(ctx, row); err != nil {
		return fmt.Errorf("insert security event: %w", err)
	}
	return nil
}

func toSecurityEvent(event Event) (*model.SecurityEvent, error) {
	before, err := jsonValue(event.Before)
	if err != nil {
		return nil, fmt.Errorf("encode before value: %w", err)
	}
	after, err := jsonValue(event.After)
	if err != nil {
		return nil, fmt.Errorf("encode after value: %w", err)
	}

	return &model.SecurityEvent{
		ID:           util.NewSortableID(),
		AccountID:    event.AccountID,
		EventType:    event.Type,
		Result:       event.Result,
		Detail:       optional(event.Detail),
		ErrorMessage: optional(event.ErrorMessage),
		BeforeValue:  before,
		AfterValue:   after,
		IPAddress:    optional(event.Meta.IP),
		UserAgent:    optional(event.Meta.UserAgent),
		SessionID:    optional(event.Meta.RequestID),
		CreatedAt:    event.OccurredAt,
	}, nil
}

func jsonValue(v map[string]any) (*string, error) {
	if len(v) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := string(raw)
	return &s, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// MultiSink writes to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Write(ctx context.Context, event Event) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Write(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
