package redisx

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ariefcatur/go-restaurant-orders/internal/tracker"
	"github.com/redis/go-redis/v9"
)

// PublishStatus fans a status event (or heartbeat) out to every watcher of the order.
func PublishStatus(ctx context.Context, rdb redis.Cmdable, ev tracker.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return rdb.Publish(ctx, fmt.Sprintf(ChannelOrderStatus, ev.OrderID), b).Err()
}

// WatchedOrders returns orders with a watcher seen within TTLWatch and prunes the rest.
func WatchedOrders(ctx context.Context, rdb redis.Cmdable, now time.Time) ([]string, error) {
	cutoff := strconv.FormatInt(now.Add(-TTLWatch).Unix(), 10)
	if err := rdb.ZRemRangeByScore(ctx, KeyWatchedOrders, "-inf", "("+cutoff).Err(); err != nil {
		return nil, err
	}
	return rdb.ZRangeByScore(ctx, KeyWatchedOrders, &redis.ZRangeBy{Min: cutoff, Max: "+inf"}).Result()
}

func touchWatch(ctx context.Context, rdb redis.Cmdable, orderID string) error {
	return rdb.ZAdd(ctx, KeyWatchedOrders, redis.Z{Score: float64(time.Now().Unix()), Member: orderID}).Err()
}

// StatusFeed is a tracker.StatusSource over Redis pub/sub.
type StatusFeed struct {
	Redis *redis.Client
}

var _ tracker.StatusSource = (*StatusFeed)(nil)

func (f *StatusFeed) Open(ctx context.Context, orderID string) (tracker.Stream, error) {
	ps := f.Redis.Subscribe(ctx, fmt.Sprintf(ChannelOrderStatus, orderID))
	// tunggu konfirmasi subscribe supaya tidak ada event yang hilang
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", orderID, err)
	}
	if err := touchWatch(ctx, f.Redis, orderID); err != nil {
		_ = ps.Close()
		return nil, err
	}

	sctx, cancel := context.WithCancel(context.Background())
	s := &feedStream{
		ps:     ps,
		events: make(chan tracker.Event, 16),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.loop(sctx, f.Redis, orderID)
	return s, nil
}

type feedStream struct {
	ps     *redis.PubSub
	events chan tracker.Event
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

func (s *feedStream) Events() <-chan tracker.Event { return s.events }

func (s *feedStream) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		err = s.ps.Close()
		<-s.done
	})
	return err
}

func (s *feedStream) loop(ctx context.Context, rdb redis.Cmdable, orderID string) {
	defer close(s.done)
	defer close(s.events)

	msgs := s.ps.Channel()
	watch := time.NewTicker(TTLWatch / 2)
	defer watch.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-watch.C:
			_ = touchWatch(ctx, rdb, orderID)
		case m, ok := <-msgs:
			if !ok {
				return
			}
			var ev tracker.Event
			if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
				continue
			}
			select {
			case s.events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}
