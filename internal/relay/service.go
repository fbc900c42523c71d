package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkax "github.com/ariefcatur/go-restaurant-orders/internal/kafka"
	"github.com/ariefcatur/go-restaurant-orders/internal/logger"
	"github.com/ariefcatur/go-restaurant-orders/internal/orders"
	"github.com/ariefcatur/go-restaurant-orders/internal/redisx"
	"github.com/ariefcatur/go-restaurant-orders/internal/tracker"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
)

// Service moves status changes from Kafka to the Redis status cache and the
// per-order pub/sub channels the trackers listen on.
type Service struct {
	Redis       redis.Cmdable
	Cache       *redisx.StatusCache
	Log         *logger.Logger
	ServiceName string
}

// HandleStatusChanged is installed as the consumer handler.
func (s *Service) HandleStatusChanged(ctx context.Context, m kafkago.Message) error {
	// 1) decode envelope
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		s.Log.Warn(ctx, "relay: dropping undecodable message", err)
		return nil
	}
	if env.EventType != orders.EventOrderStatusChanged {
		return nil
	}

	// 2) dedup via Redis (event_id); at-least-once delivery means repeats are normal
	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	fresh, err := s.Redis.SetNX(ctx, dkey, "1", redisx.TTLDedup).Result()
	if err != nil {
		return err
	}
	if !fresh {
		return nil
	}

	p, err := kafkax.UnwrapPayload[orders.OrderStatusChangedPayload](env.Payload)
	if err != nil {
		s.Log.Warn(ctx, "relay: bad payload", err)
		return nil
	}
	ctx = s.Log.WithFields(ctx, map[string]any{"order_id": p.OrderID, "status": p.To})

	// 3) cache first so a tracker that resyncs right after the publish sees the new state
	applied, err := s.Cache.Advance(ctx, p.OrderID, redisx.CachedStatus{
		Status: p.To, Fulfillment: p.Fulfillment, UpdatedAt: p.ChangedAt,
	})
	if err != nil {
		_ = s.Redis.Del(ctx, dkey).Err()
		return err
	}
	if !applied {
		s.Log.Debug(ctx, "relay: cache already ahead")
	}

	// 4) fan out; trackers drop anything stale on their own
	if err := redisx.PublishStatus(ctx, s.Redis, tracker.Event{OrderID: p.OrderID, Status: p.To, At: p.ChangedAt}); err != nil {
		_ = s.Redis.Del(ctx, dkey).Err()
		return err
	}
	return nil
}

// RunHeartbeats publishes a heartbeat to every watched order each interval
// until ctx ends.
func (s *Service) RunHeartbeats(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if err := s.Heartbeat(ctx, now); err != nil {
				s.Log.Warn(ctx, "relay: heartbeat", err)
			}
		}
	}
}

func (s *Service) Heartbeat(ctx context.Context, now time.Time) error {
	ids, err := redisx.WatchedOrders(ctx, s.Redis, now)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := redisx.PublishStatus(ctx, s.Redis, tracker.Event{OrderID: id, Heartbeat: true, At: now.UTC()}); err != nil {
			return err
		}
	}
	return nil
}
