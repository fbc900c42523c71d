package kafka

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-restaurant-orders/internal/logger"
	"github.com/ariefcatur/go-restaurant-orders/internal/orders"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	closed bool
	fail   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail {
		return errors.New("broker unavailable")
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	return nil
}

func TestProducerFlushesOnClose(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, 8, nil)
	p.Start()

	env := NewEnvelope(orders.EventOrderPlaced, "order-api", "req-1", "o-1", orders.OrderPlacedPayload{OrderID: "o-1"})
	require.NoError(t, PublishEnvelope(context.Background(), p, env))
	require.NoError(t, p.Publish(context.Background(), []byte("o-2"), []byte("{}")))

	p.Close()
	p.Close()
	p.WaitClosed()

	require.Len(t, w.msgs, 2)
	assert.True(t, w.closed)
	assert.Equal(t, []byte("o-1"), w.msgs[0].Key)
	assert.Equal(t, "x-event-type", w.msgs[0].Headers[0].Key)
	assert.Equal(t, []byte(orders.EventOrderPlaced), w.msgs[0].Headers[0].Value)

	decoded, err := UnwrapPayload[orders.Envelope](w.msgs[0].Value)
	require.NoError(t, err)
	assert.Equal(t, "o-1", decoded.CorrelationID)
	payload, err := UnwrapPayload[orders.OrderPlacedPayload](decoded.Payload)
	require.NoError(t, err)
	assert.Equal(t, "o-1", payload.OrderID)
}

func TestProducerWriteErrorDoesNotStopLoop(t *testing.T) {
	w := &fakeWriter{fail: true}
	p := newProducer(w, 1, nil)
	p.Start()
	require.NoError(t, p.Publish(context.Background(), []byte("k"), []byte("v")))
	p.Close()
	p.WaitClosed()
	assert.True(t, w.closed)
}

func TestPublishRespectsContext(t *testing.T) {
	p := newProducer(&fakeWriter{}, 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Publish(ctx, nil, nil), context.Canceled)
}

type fakeReader struct {
	mu        sync.Mutex
	queue     chan kafka.Message
	committed []kafka.Message
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.queue:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	r.committed = append(r.committed, msgs...)
	r.mu.Unlock()
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

func (r *fakeReader) commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

// syncBuffer is written by several workers at once.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestConsumerCommitsOnlyHandledMessages(t *testing.T) {
	r := &fakeReader{queue: make(chan kafka.Message, 4)}
	r.queue <- kafka.Message{Key: []byte("ok-1")}
	r.queue <- kafka.Message{Key: []byte("bad"), Topic: "order.status.changed", Partition: 3, Offset: 42}
	r.queue <- kafka.Message{Key: []byte("ok-2")}

	logs := &syncBuffer{}
	c := newConsumer(r, 2, logger.New(logger.Options{ServiceName: "test", Output: logs}))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.Start(ctx, func(_ context.Context, m kafka.Message) error {
			if string(m.Key) == "bad" {
				return errors.New("poison")
			}
			return nil
		})
	}()

	require.Eventually(t, func() bool { return r.commits() == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.True(t, r.closed)

	// skipped messages leave their position in the log
	out := logs.String()
	assert.Contains(t, out, `"message":"kafka: message skipped"`)
	assert.Contains(t, out, `"partition":3`)
	assert.Contains(t, out, `"offset":42`)
	assert.Contains(t, out, `"key":"bad"`)
}
