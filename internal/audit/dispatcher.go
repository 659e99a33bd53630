package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shoesfit/partner-server-go/internal/obs"
)

const sinkWriteTimeout = 5 * time.Second

// Dispatcher queues events in a bounded buffer drained by one worker. When the
// buffer is full the oldest queued event is discarded to make room, so Record
// never blocks the caller.
type Dispatcher struct {
	sink      Sink
	ch        chan Event
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
	now       func() time.Time
}

func NewDispatcher(bufferSize int, sink Sink) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = 1
	}

	d := &Dispatcher{
		sink: sink,
		ch:   make(chan Event, bufferSize),
		done: make(chan struct{}),
		now:  time.Now,
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.ch:
			d.write(event)
		case <-d.done:
			for {
				select {
				case event := <-d.ch:
					d.write(event)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) write(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), sinkWriteTimeout)
	defer cancel()

	if err := d.sink.Write(ctx, event); err != nil {
		log.Error().
			Err(err).
			Str("event_type", string(event.Type)).
			Str("account_id", event.AccountID).
			Msg("failed to write security event")
	}
}

// Record enqueues event. It is a no-op after Close.
func (d *Dispatcher) Record(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = d.now()
	}

	for {
		select {
		case d.ch <- event:
			return
		case <-d.done:
			return
		default:
		}

		select {
		case oldest := <-d.ch:
			d.dropped.Add(1)
			obs.ObserveAuditDrop()
			log.Warn().
				Str("event_type", string(oldest.Type)).
				Str("account_id", oldest.AccountID).
				Msg("audit queue full, dropped oldest event")
		default:
		}
	}
}

// Close stops accepting events, drains what is queued and waits for the worker.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
