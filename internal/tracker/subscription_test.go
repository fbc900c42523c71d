package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-restaurant-orders/internal/orders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	ch     chan Event
	once   sync.Once
	closed chan struct{}
}

func newFakeStream() *fakeStream {
	return &fakeStream{ch: make(chan Event, 16), closed: make(chan struct{})}
}

func (s *fakeStream) Events() <-chan Event { return s.ch }
func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

type fakeSource struct {
	mu      sync.Mutex
	streams []*fakeStream
	opens   int
	failN   int
}

func (f *fakeSource) Open(context.Context, string) (Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	if f.failN > 0 {
		f.failN--
		return nil, errors.New("redis down")
	}
	s := newFakeStream()
	f.streams = append(f.streams, s)
	return s, nil
}

func (f *fakeSource) stream(i int) *fakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.streams) {
		return nil
	}
	return f.streams[i]
}

func waitStream(t *testing.T, src *fakeSource, i int) *fakeStream {
	t.Helper()
	var s *fakeStream
	require.Eventually(t, func() bool {
		s = src.stream(i)
		return s != nil
	}, time.Second, 5*time.Millisecond)
	return s
}

func TestSubscriptionAppliesEventsAndEndsOnDelivered(t *testing.T) {
	src := &fakeSource{}
	tr := New("o-1", orders.FulfillmentPickup, orders.StatusPending, t0)
	sub := Subscribe(context.Background(), src, tr, Options{LivenessTimeout: time.Second, ReconnectBackoff: time.Millisecond})
	defer sub.Close()

	s := waitStream(t, src, 0)
	s.ch <- ev("o-1", orders.StatusPreparing)
	s.ch <- ev("o-1", orders.StatusConfirmed)
	s.ch <- ev("o-1", orders.StatusReady)
	s.ch <- ev("o-1", orders.StatusDelivered)

	var last View
	for v := range sub.Updates() {
		last = v
	}
	assert.Equal(t, orders.StatusDelivered, last.Status)
	assert.Equal(t, 100, last.Progress)

	select {
	case <-s.closed:
	case <-time.After(time.Second):
		t.Fatal("stream not closed after terminal state")
	}
}

func TestSubscriptionLivenessTimeoutFlipsOffline(t *testing.T) {
	src := &fakeSource{}
	tr := New("o-1", orders.FulfillmentDelivery, orders.StatusPreparing, t0)
	sub := Subscribe(context.Background(), src, tr, Options{LivenessTimeout: 20 * time.Millisecond})
	defer sub.Close()

	s := waitStream(t, src, 0)
	require.Eventually(t, func() bool { return tr.Snapshot().Offline }, time.Second, 5*time.Millisecond)
	assert.Equal(t, orders.StatusPreparing, tr.Current())

	s.ch <- Event{OrderID: "o-1", Heartbeat: true}
	require.Eventually(t, func() bool { return !tr.Snapshot().Offline }, time.Second, time.Millisecond)
}

func TestSubscriptionResyncsAfterSilentOutage(t *testing.T) {
	src := &fakeSource{}
	tr := New("o-1", orders.FulfillmentDelivery, orders.StatusConfirmed, t0)

	var mu sync.Mutex
	dbStatus, resyncs := orders.StatusConfirmed, 0
	resync := func(context.Context) (orders.Status, error) {
		mu.Lock()
		defer mu.Unlock()
		resyncs++
		return dbStatus, nil
	}
	sub := Subscribe(context.Background(), src, tr, Options{
		LivenessTimeout:  20 * time.Millisecond,
		ReconnectBackoff: time.Millisecond,
		Resync:           resync,
	})
	defer sub.Close()

	// the feed stays open but silent while the order moves on
	s := waitStream(t, src, 0)
	require.Eventually(t, func() bool { return tr.Snapshot().Offline }, time.Second, 5*time.Millisecond)
	mu.Lock()
	dbStatus = orders.StatusOutForDelivery
	mu.Unlock()

	s.ch <- Event{OrderID: "o-1", Heartbeat: true}
	require.Eventually(t, func() bool { return tr.Current() == orders.StatusOutForDelivery }, time.Second, time.Millisecond)

	mu.Lock()
	assert.Equal(t, 2, resyncs)
	mu.Unlock()
	src.mu.Lock()
	assert.Equal(t, 1, src.opens)
	src.mu.Unlock()
}

func TestSubscriptionReconnectsAndResyncsWithoutReplay(t *testing.T) {
	src := &fakeSource{failN: 1}
	tr := New("o-1", orders.FulfillmentDelivery, orders.StatusConfirmed, t0)

	var resyncs int
	var mu sync.Mutex
	resync := func(context.Context) (orders.Status, error) {
		mu.Lock()
		defer mu.Unlock()
		resyncs++
		if resyncs == 1 {
			return orders.StatusConfirmed, nil
		}
		return orders.StatusOutForDelivery, nil
	}
	sub := Subscribe(context.Background(), src, tr, Options{
		LivenessTimeout:  time.Second,
		ReconnectBackoff: time.Millisecond,
		Resync:           resync,
	})
	defer sub.Close()

	first := waitStream(t, src, 0)
	assert.Equal(t, orders.StatusConfirmed, tr.Current())

	close(first.ch)
	waitStream(t, src, 1)
	require.Eventually(t, func() bool { return tr.Current() == orders.StatusOutForDelivery }, time.Second, time.Millisecond)
	assert.False(t, tr.Snapshot().Offline)
}

func TestSubscriptionCloseStopsRun(t *testing.T) {
	src := &fakeSource{}
	tr := New("o-1", orders.FulfillmentDelivery, orders.StatusPending, t0)
	sub := Subscribe(context.Background(), src, tr, Options{LivenessTimeout: time.Second})

	s := waitStream(t, src, 0)
	sub.Close()

	select {
	case <-sub.Done():
	default:
		t.Fatal("subscription still running after Close")
	}
	select {
	case <-s.closed:
	default:
		t.Fatal("stream left open")
	}
	for range sub.Updates() {
	}
}

func TestSubscriptionTerminalAtStartReturnsImmediately(t *testing.T) {
	src := &fakeSource{}
	tr := New("o-1", orders.FulfillmentDelivery, orders.StatusCancelled, t0)
	sub := Subscribe(context.Background(), src, tr, Options{})

	v, ok := <-sub.Updates()
	require.True(t, ok)
	assert.True(t, v.Cancelled)
	<-sub.Done()
	assert.Zero(t, src.opens)
}
