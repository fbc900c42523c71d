package tracker

import (
	"context"
	"errors"
	"time"

	"github.com/ariefcatur/go-restaurant-orders/internal/logger"
	"github.com/ariefcatur/go-restaurant-orders/internal/metrics"
	"github.com/ariefcatur/go-restaurant-orders/internal/orders"
)

// Stream is one open connection to a status feed. Events is closed when the
// connection drops.
type Stream interface {
	Events() <-chan Event
	Close() error
}

// StatusSource opens status feeds for a single order.
type StatusSource interface {
	Open(ctx context.Context, orderID string) (Stream, error)
}

type Options struct {
	// No event or heartbeat within this window flips the tracker offline.
	LivenessTimeout time.Duration
	// Wait between reconnect attempts.
	ReconnectBackoff time.Duration
	// Optional. Called after every (re)connect to jump to the reported status.
	Resync  func(ctx context.Context) (orders.Status, error)
	Log     *logger.Logger
	Metrics *metrics.Orders
}

func (o *Options) defaults() {
	if o.LivenessTimeout <= 0 {
		o.LivenessTimeout = 45 * time.Second
	}
	if o.ReconnectBackoff <= 0 {
		o.ReconnectBackoff = time.Second
	}
}

// Subscription drives a Tracker from a StatusSource until Close is called, the
// context ends, or the order reaches a terminal state.
type Subscription struct {
	tracker *Tracker
	src     StatusSource
	opts    Options
	updates chan View
	cancel  context.CancelFunc
	done    chan struct{}
}

func Subscribe(ctx context.Context, src StatusSource, t *Tracker, opts Options) *Subscription {
	opts.defaults()
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		tracker: t,
		src:     src,
		opts:    opts,
		updates: make(chan View, 8),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go s.run(ctx)
	return s
}

// Updates emits a fresh View after every state or liveness change. Slow readers
// only miss intermediate views, never the latest one. Closed when the
// subscription ends.
func (s *Subscription) Updates() <-chan View { return s.updates }

func (s *Subscription) Close() {
	s.cancel()
	<-s.done
}

func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) emit() {
	v := s.tracker.Snapshot()
	select {
	case s.updates <- v:
		return
	default:
	}
	select {
	case <-s.updates:
	default:
	}
	select {
	case s.updates <- v:
	default:
	}
}

func (s *Subscription) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.updates)

	s.emit()
	if s.tracker.Terminal() {
		return
	}
	for {
		stream, err := s.src.Open(ctx, s.tracker.OrderID())
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.warn(ctx, "tracker: open status feed", err)
			s.tracker.MarkOffline()
			s.emit()
			if !s.sleep(ctx) {
				return
			}
			continue
		}

		s.tracker.MarkOnline()
		s.resync(ctx)
		s.emit()
		finished := s.pump(ctx, stream)
		_ = stream.Close()
		if finished || ctx.Err() != nil {
			return
		}
		s.tracker.MarkOffline()
		s.emit()
		if !s.sleep(ctx) {
			return
		}
	}
}

// pump reads one stream until it drops (false) or the order is done (true).
// The stream may recover by itself after a silent outage; the first event after
// one triggers a resync since changes made during the outage were not seen.
func (s *Subscription) pump(ctx context.Context, stream Stream) bool {
	timer := time.NewTimer(s.opts.LivenessTimeout)
	defer timer.Stop()

	stale := false
	for {
		if s.tracker.Terminal() {
			return true
		}
		select {
		case <-ctx.Done():
			return true
		case <-timer.C:
			stale = true
			s.tracker.MarkOffline()
			s.emit()
			timer.Reset(s.opts.LivenessTimeout)
		case ev, ok := <-stream.Events():
			if !ok {
				return false
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(s.opts.LivenessTimeout)
			s.apply(ctx, ev)
			if stale {
				stale = false
				s.resync(ctx)
			}
			s.emit()
		}
	}
}

func (s *Subscription) apply(ctx context.Context, ev Event) {
	err := s.tracker.Apply(ev)
	switch {
	case err == nil && ev.Heartbeat:
		s.opts.Metrics.TrackerEvent("heartbeat")
	case err == nil:
		s.opts.Metrics.TrackerEvent("applied")
	case errors.Is(err, ErrTrackerDesync):
		s.opts.Metrics.TrackerEvent("desync")
		s.warn(ctx, "tracker: status event ignored", err)
	default:
		s.warn(ctx, "tracker: apply", err)
	}
}

func (s *Subscription) resync(ctx context.Context) {
	if s.opts.Resync == nil {
		return
	}
	st, err := s.opts.Resync(ctx)
	if err != nil {
		s.warn(ctx, "tracker: resync", err)
		return
	}
	s.apply(ctx, Event{OrderID: s.tracker.OrderID(), Status: st, At: time.Now().UTC()})
}

func (s *Subscription) sleep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(s.opts.ReconnectBackoff):
		return true
	}
}

func (s *Subscription) warn(ctx context.Context, msg string, err error) {
	if s.opts.Log == nil {
		return
	}
	s.opts.Log.Warn(s.opts.Log.WithField(ctx, "order_id", s.tracker.OrderID()), msg, err)
}
