package redisx

import "time"

const (
	// Cart session snapshot: cart:{session_id} -> JSON {items, promo_code}
	KeyCartSession = "cart:%s"

	// Single in-flight checkout per session: lock:checkout:{session_id} -> token
	KeyCheckoutLock = "lock:checkout:%s"

	// Cache status order: order_status:{order_id} -> {"status": "...", "fulfillment": "...", "updated_at": "..."}
	KeyOrderStatus = "order_status:%s"

	// Pub/sub channel of status events per order: order_status_events:{order_id}
	ChannelOrderStatus = "order_status_events:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Orders with at least one live watcher (sorted set, score = last seen unix)
	KeyWatchedOrders = "watched_orders"
)

var (
	TTLCartSession = 72 * time.Hour
	TTLCheckout    = 30 * time.Second
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
	TTLWatch       = 2 * time.Minute
)
