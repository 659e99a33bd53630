package audit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shoesfit/partner-server-go/internal/model"
)

type collectingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (s *collectingSink) Write(ctx context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.err
}

func (s *collectingSink) details() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.Detail
	}
	return out
}

// blockingSink holds the worker inside its first Write until release is closed.
type blockingSink struct {
	collectingSink
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingSink() *blockingSink {
	return &blockingSink{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (s *blockingSink) Write(ctx context.Context, event Event) error {
	s.once.Do(func() {
		close(s.started)
		<-s.release
	})
	return s.collectingSink.Write(ctx, event)
}

func TestDispatcher(t *testing.T) {
	t.Run("delivers every event before Close returns", func(t *testing.T) {
		sink := &collectingSink{}
		d := NewDispatcher(16, sink)

		for _, detail := range []string{"a", "b", "c"} {
			d.Record(context.Background(), Event{Type: model.EventLogin, Detail: detail})
		}
		d.Close()

		assert.Equal(t, []string{"a", "b", "c"}, sink.details())
		assert.Zero(t, d.Dropped())
	})

	t.Run("drops the oldest queued event when full", func(t *testing.T) {
		sink := newBlockingSink()
		d := NewDispatcher(2, sink)

		d.Record(context.Background(), Event{Detail: "e1"})
		<-sink.started

		d.Record(context.Background(), Event{Detail: "e2"})
		d.Record(context.Background(), Event{Detail: "e3"})
		d.Record(context.Background(), Event{Detail: "e4"})

		close(sink.release)
		d.Close()

		assert.Equal(t, []string{"e1", "e3", "e4"}, sink.details())
		assert.Equal(t, uint64(1), d.Dropped())
	})

	t.Run("Record never blocks the caller", func(t *testing.T) {
		sink := newBlockingSink()
		d := NewDispatcher(1, sink)
		d.Record(context.Background(), Event{Detail: "first"})
		<-sink.started

		done := make(chan struct{})
		go func() {
			for i := 0; i < 100; i++ {
				d.Record(context.Background(), Event{Detail: "burst"})
			}
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Record blocked on a full queue")
		}
		close(sink.release)
		d.Close()
		assert.Equal(t, uint64(99), d.Dropped())
	})

	t.Run("swallows sink errors", func(t *testing.T) {
		sink := &collectingSink{err: errors.New("db down")}
		d := NewDispatcher(4, sink)

		assert.NotPanics(t, func() {
			d.Record(context.Background(), Event{Detail: "x"})
			d.Close()
		})
		assert.Equal(t, []string{"x"}, sink.details())
	})

	t.Run("stamps OccurredAt when unset", func(t *testing.T) {
		sink := &collectingSink{}
		d := NewDispatcher(4, sink)
		fixed := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
		d.now = func() time.Time { return fixed }

		d.Record(context.Background(), Event{Detail: "x"})
		d.Close()

		require.Len(t, sink.events, 1)
		assert.Equal(t, fixed, sink.events[0].OccurredAt)
	})

	t.Run("Record after Close is a no-op", func(t *testing.T) {
		sink := &collectingSink{}
		d := NewDispatcher(4, sink)
		d.Close()
		d.Close()

		d.Record(context.Background(), Event{Detail: "late"})
		assert.Empty(t, sink.details())
	})

	t.Run("nil dispatcher is safe", func(t *testing.T) {
		var d *Dispatcher
		assert.NotPanics(t, func() {
			d.Record(context.Background(), Event{})
			d.Close()
		})
		assert.Zero(t, d.Dropped())
	})
}

type fakeEventRepo struct {
	inserted []*model.SecurityEvent
	err      error
}

func (f *fakeEventRepo) Insert(ctx context.Context, event *model.SecurityEvent) error {
	if f.err != nil {
		return f.err
	}
	f.inserted = append(f.inserted, event)
	return nil
}

func (f *fakeEventRepo) FindByAccountID(ctx context.Context, accountID string, limit int) ([]model.SecurityEvent, error) {
	return nil, nil
}

func TestStoreSink(t *testing.T) {
	t.Run("maps event to a row", func(t *testing.T) {
		repo := &fakeEventRepo{}
		sink := NewStoreSink(repo)
		at := time.Now()

		err := sink.Write(context.Background(), Event{
			Type:       model.EventAccountLock,
			Result:     model.ResultSuccess,
			AccountID:  "p1",
			Detail:     "locked after 5 failures",
			After:      map[string]any{"lockMinutes": 30},
			Meta:       RequestMeta{IP: "203.0.113.7", RequestID: "req-1"},
			OccurredAt: at,
		})
		require.NoError(t, err)
		require.Len(t, repo.inserted, 1)

		row := repo.inserted[0]
		assert.Len(t, row.ID, 26)
		assert.Equal(t, "p1", row.AccountID)
		assert.Equal(t, model.EventAccountLock, row.EventType)
		assert.Equal(t, "locked after 5 failures", *row.Detail)
		assert.JSONEq(t, `{"lockMinutes":30}`, *row.AfterValue)
		assert.Nil(t, row.BeforeValue)
		assert.Nil(t, row.UserAgent)
		assert.Equal(t, "req-1", *row.SessionID)
		assert.Equal(t, at, row.CreatedAt)
	})

	t.Run("wraps insert errors", func(t *testing.T) {
		sink := NewStoreSink(&fakeEventRepo{err: errors.New("boom")})
		err := sink.Write(context.Background(), Event{Type: model.EventLogin})
		assert.ErrorContains(t, err, "insert security event")
	})
}

func TestMultiSink(t *testing.T) {
	ok := &collectingSink{}
	failing := &collectingSink{err: errors.New("boom")}
	sink := MultiSink{failing, ok, LogSink{}}

	err := sink.Write(context.Background(), Event{Detail: "x"})
	assert.ErrorContains(t, err, "boom")
	assert.Equal(t, []string{"x"}, ok.details())
	assert.Equal(t, []string{"x"}, failing.details())
}

func TestMetaFromRequest(t *testing.T) {
	var meta RequestMeta
	handler := chimiddleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		meta = MetaFromRequest(r)
	}))

	r := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	r.Header.Set("User-Agent", "partner-app/1.0")
	handler.ServeHTTP(httptest.NewRecorder(), r)

	assert.Equal(t, "203.0.113.7", meta.IP)
	assert.Equal(t, "partner-app/1.0", meta.UserAgent)
	assert.NotEmpty(t, meta.RequestID)
}
