package redislock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/slot-booking/internal/persistence"
)

type fakeRedis struct {
	mu     sync.Mutex
	values map[string]string
	evals  int
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: make(map[string]string)}
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value interface{}, _ time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.values[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.values[key] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Eval(_ context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evals++
	if f.values[keys[0]] == args[0].(string) {
		delete(f.values, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func TestLockerAcquireRelease(t *testing.T) {
	client := newFakeRedis()
	locker := New(client, "", time.Second)
	locker.retry = time.Millisecond

	release, err := locker.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	if client.values[DefaultKey] == "" {
		t.Fatal("expected lock key to be set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := locker.Acquire(ctx); !errors.Is(err, persistence.ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout while held, got %v", err)
	}

	release()
	if _, ok := client.values[DefaultKey]; ok {
		t.Fatal("expected lock key to be deleted on release")
	}

	release2, err := locker.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire after release returned error: %v", err)
	}
	release2()
}

func TestLockerDoesNotReleaseForeignLease(t *testing.T) {
	client := newFakeRedis()
	locker := New(client, "k", time.Second)

	release, err := locker.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}

	// Simulate lease expiry followed by another owner taking the key.
	client.values["k"] = "someone-else"
	release()

	if client.values["k"] != "someone-else" {
		t.Fatalf("release removed a lease it did not own")
	}
}

func TestLockerGivesUpAfterTTL(t *testing.T) {
	client := newFakeRedis()
	client.values["k"] = "held"
	locker := New(client, "k", 30*time.Millisecond)
	locker.retry = time.Millisecond

	_, err := locker.Acquire(context.Background())
	if !errors.Is(err, persistence.ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}
}
