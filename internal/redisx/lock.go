package redisx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLocked = errors.New("operation already in progress")

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock is a best-effort mutex held in Redis. The TTL bounds how long a crashed
// holder can block others.
type Lock struct {
	rdb   redis.Cmdable
	key   string
	token string
}

// Acquire returns ErrLocked when someone else holds key.
func Acquire(ctx context.Context, rdb redis.Cmdable, key string, ttl time.Duration) (*Lock, error) {
	token := uuid.NewString()
	got, err := rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !got {
		return nil, ErrLocked
	}
	return &Lock{rdb: rdb, key: key, token: token}, nil
}

// Release only deletes the key if this lock still owns it.
func (l *Lock) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	return releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Err()
}
