// Package redislock provides a persistence.Locker backed by a Redis key so that
// several processes sharing one database file serialize their mutations.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/example/slot-booking/internal/persistence"
)

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// DefaultKey is the Redis key guarding the booking document.
const DefaultKey = "slotbook:document:lock"

// Client is the subset of *redis.Client used by the locker.
type Client interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// Locker acquires a lease with SET NX PX and releases it only if it still owns it.
type Locker struct {
	client Client
	key    string
	ttl    time.Duration
	retry  time.Duration
	token  func() string
}

var _ persistence.Locker = (*Locker)(nil)

// New returns a Locker holding key for at most ttl per acquisition.
func New(client Client, key string, ttl time.Duration) *Locker {
	if key == "" {
		key = DefaultKey
	}
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &Locker{
		client: client,
		key:    key,
		ttl:    ttl,
		retry:  25 * time.Millisecond,
		token:  uuid.NewString,
	}
}

// Acquire polls until the lease is obtained. Waiting is bounded by ctx and by
// the lease TTL, whichever ends first.
func (l *Locker) Acquire(ctx context.Context) (func(), error) {
	token := l.token()
	deadline := time.NewTimer(l.ttl)
	defer deadline.Stop()

	for {
		ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redislock: set %s: %w", l.key, err)
		}
		if ok {
			return l.releaser(token), nil
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %s", persistence.ErrLockTimeout, l.key)
			}
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, fmt.Errorf("%w: %s", persistence.ErrLockTimeout, l.key)
		case <-time.After(l.retry):
		}
	}
}

func (l *Locker) releaser(token string) func() {
	return func() {
		// Release must not depend on a caller context that may already be cancelled.
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = l.client.Eval(ctx, releaseScript, []string{l.key}, token).Err()
	}
}
