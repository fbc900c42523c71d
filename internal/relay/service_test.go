package relay

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	kafkax "github.com/ariefcatur/go-restaurant-orders/internal/kafka"
	"github.com/ariefcatur/go-restaurant-orders/internal/logger"
	"github.com/ariefcatur/go-restaurant-orders/internal/orders"
	"github.com/ariefcatur/go-restaurant-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) (*Service, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return &Service{
		Redis:       rdb,
		Cache:       &redisx.StatusCache{Redis: rdb},
		Log:         logger.Nop(),
		ServiceName: "status-relay",
	}, rdb
}

func statusMsg(orderID string, from, to orders.Status) (kafkago.Message, orders.Envelope) {
	env := kafkax.NewEnvelope(orders.EventOrderStatusChanged, "order-api", "", orderID, orders.OrderStatusChangedPayload{
		OrderID: orderID, Fulfillment: orders.FulfillmentDelivery, From: from, To: to, ChangedAt: time.Now().UTC(),
	})
	return kafkago.Message{Key: []byte(orderID), Value: kafkax.MustMarshal(env)}, env
}

func TestHandleStatusChangedUpdatesCacheAndPublishes(t *testing.T) {
	svc, rdb := newService(t)
	ctx := context.Background()

	ps := rdb.Subscribe(ctx, "order_status_events:o-1")
	defer ps.Close()
	_, err := ps.Receive(ctx)
	require.NoError(t, err)

	msg, _ := statusMsg("o-1", orders.StatusPending, orders.StatusConfirmed)
	require.NoError(t, svc.HandleStatusChanged(ctx, msg))

	cached, ok, err := svc.Cache.Get(ctx, "o-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, orders.StatusConfirmed, cached.Status)

	select {
	case m := <-ps.Channel():
		assert.Contains(t, m.Payload, `"status":"confirmed"`)
	case <-time.After(time.Second):
		t.Fatal("status not published")
	}
}

func TestHandleStatusChangedDedupsRedelivery(t *testing.T) {
	svc, rdb := newService(t)
	ctx := context.Background()

	msg, env := statusMsg("o-1", orders.StatusConfirmed, orders.StatusPreparing)
	require.NoError(t, svc.HandleStatusChanged(ctx, msg))
	exists, err := redisx.Exists(ctx, rdb, "dedup:status-relay:"+env.EventID)
	require.NoError(t, err)
	assert.True(t, exists)

	// a later event moved the cache on; redelivery of the old one must not roll it back
	require.NoError(t, svc.Cache.Set(ctx, "o-1", redisx.CachedStatus{Status: orders.StatusReady, Fulfillment: orders.FulfillmentDelivery}))
	require.NoError(t, svc.HandleStatusChanged(ctx, msg))
	cached, _, err := svc.Cache.Get(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusReady, cached.Status)
}

func TestHandleStatusChangedIgnoresOtherEvents(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	env := kafkax.NewEnvelope(orders.EventOrderPlaced, "order-api", "", "o-1", orders.OrderPlacedPayload{OrderID: "o-1"})
	require.NoError(t, svc.HandleStatusChanged(ctx, kafkago.Message{Value: kafkax.MustMarshal(env)}))
	require.NoError(t, svc.HandleStatusChanged(ctx, kafkago.Message{Value: []byte("garbage")}))

	_, ok, err := svc.Cache.Get(ctx, "o-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHeartbeatReachesWatchers(t *testing.T) {
	svc, rdb := newService(t)
	ctx := context.Background()

	feed := &redisx.StatusFeed{Redis: rdb}
	stream, err := feed.Open(ctx, "o-7")
	require.NoError(t, err)
	defer stream.Close()

	require.NoError(t, svc.Heartbeat(ctx, time.Now()))
	select {
	case ev := <-stream.Events():
		assert.True(t, ev.Heartbeat)
		assert.Equal(t, "o-7", ev.OrderID)
	case <-time.After(time.Second):
		t.Fatal("no heartbeat")
	}
}
