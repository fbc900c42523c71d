package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-restaurant-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
)

// Session is what one browsing session owns: its ledger and the promo code it
// applied, if any.
type Session struct {
	Ledger    *Ledger `json:"items"`
	PromoCode string  `json:"promo_code,omitempty"`
}

func NewSession() *Session { return &Session{Ledger: NewLedger()} }

// RedisStore keeps session snapshots under cart:{session_id} with a sliding TTL.
type RedisStore struct {
	Redis redis.Cmdable
	TTL   time.Duration
}

func (s *RedisStore) key(sessionID string) string {
	return fmt.Sprintf(redisx.KeyCartSession, sessionID)
}

// Load returns an empty session when nothing is stored yet.
func (s *RedisStore) Load(ctx context.Context, sessionID string) (*Session, error) {
	raw, err := s.Redis.Get(ctx, s.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return NewSession(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	sess := NewSession()
	if err := json.Unmarshal(raw, sess); err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}
	if sess.Ledger == nil {
		sess.Ledger = NewLedger()
	}
	return sess, nil
}

func (s *RedisStore) Save(ctx context.Context, sessionID string, sess *Session) error {
	b, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	ttl := s.TTL
	if ttl <= 0 {
		ttl = redisx.TTLCartSession
	}
	return s.Redis.Set(ctx, s.key(sessionID), b, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	return s.Redis.Del(ctx, s.key(sessionID)).Err()
}
