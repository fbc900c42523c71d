package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-restaurant-orders/internal/orders"
	"github.com/redis/go-redis/v9"
)

type CachedStatus struct {
	Status      orders.Status      `json:"status"`
	Fulfillment orders.Fulfillment `json:"fulfillment"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// StatusCache is the read-through cache in front of the orders table.
type StatusCache struct {
	Redis redis.Cmdable
	TTL   time.Duration
}

func (c *StatusCache) ttl() time.Duration {
	if c.TTL > 0 {
		return c.TTL
	}
	return TTLStatusCache
}

func (c *StatusCache) Set(ctx context.Context, orderID string, s CachedStatus) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.Redis.Set(ctx, fmt.Sprintf(KeyOrderStatus, orderID), b, c.ttl()).Err()
}

// Get reports ok=false on a cache miss.
func (c *StatusCache) Get(ctx context.Context, orderID string) (CachedStatus, bool, error) {
	raw, err := c.Redis.Get(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return CachedStatus{}, false, nil
	}
	if err != nil {
		return CachedStatus{}, false, err
	}
	var s CachedStatus
	if err := json.Unmarshal(raw, &s); err != nil {
		return CachedStatus{}, false, fmt.Errorf("decode cached status: %w", err)
	}
	return s, true, nil
}

// advanceScript sets KEYS[1] to ARGV[1] with a PX of ARGV[2] when the key is
// missing or its cached status is one of ARGV[3..].
var advanceScript = redis.NewScript(`
local cur = redis.call("GET", KEYS[1])
if cur then
	local st = cjson.decode(cur)["status"]
	local allowed = false
	for i = 3, #ARGV do
		if ARGV[i] == st then
			allowed = true
			break
		end
	end
	if not allowed then
		return 0
	end
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
return 1
`)

var allStatuses = []orders.Status{
	orders.StatusPending, orders.StatusConfirmed, orders.StatusPreparing, orders.StatusReady,
	orders.StatusOutForDelivery, orders.StatusDelivered, orders.StatusCancelled,
}

// Advance only overwrites the cached status when the new one is a valid forward
// move, so a late event cannot roll the cache back. The check and the write run
// as one script.
func (c *StatusCache) Advance(ctx context.Context, orderID string, s CachedStatus) (bool, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return false, err
	}
	args := []any{b, c.ttl().Milliseconds()}
	for _, from := range allStatuses {
		if from == s.Status || orders.CanTransition(from, s.Status, s.Fulfillment) {
			args = append(args, string(from))
		}
	}
	n, err := advanceScript.Run(ctx, c.Redis, []string{fmt.Sprintf(KeyOrderStatus, orderID)}, args...).Int()
	if err != nil {
		return false, fmt.Errorf("advance cached status: %w", err)
	}
	return n == 1, nil
}
