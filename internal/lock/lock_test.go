package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func exerciseMutualExclusion(t *testing.T, l Locker) {
	t.Helper()
	var active, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "session-1")
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			defer unlock()
			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()
	if maxActive != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxActive)
	}
}

func TestLocal_MutualExclusion(t *testing.T) {
	l := NewLocal()
	exerciseMutualExclusion(t, l)
	if l.Len() != 0 {
		t.Errorf("expected no entries after release, got %d", l.Len())
	}
}

func TestLocal_DistinctKeysDoNotBlock(t *testing.T) {
	l := NewLocal()
	unlockA, _ := l.Lock(context.Background(), "a")
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := l.Lock(ctx, "b")
	if err != nil {
		t.Fatalf("lock b blocked by a: %v", err)
	}
	unlockB()
}

func TestLocal_ContextCancel(t *testing.T) {
	l := NewLocal()
	unlock, _ := l.Lock(context.Background(), "a")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, "a"); err == nil {
		t.Fatal("expected timeout while held")
	}
	unlock()
	unlock() // second call is a no-op
	if l.Len() != 0 {
		t.Errorf("entries = %d", l.Len())
	}
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedis_MutualExclusion(t *testing.T) {
	_, client := newRedis(t)
	exerciseMutualExclusion(t, NewRedis(client, WithRetryInterval(time.Millisecond)))
}

func TestRedis_ReleaseOnlyOwnLock(t *testing.T) {
	mr, client := newRedis(t)
	l := NewRedis(client, WithPrefix("t:"), WithTTL(time.Second))

	unlock, err := l.Lock(context.Background(), "s")
	if err != nil {
		t.Fatal(err)
	}
	// Simulate expiry and takeover by another holder.
	mr.FastForward(2 * time.Second)
	mr.Set("t:s", "someone-else")

	unlock()
	if got, _ := mr.Get("t:s"); got != "someone-else" {
		t.Errorf("released a lock owned by another holder, value now %q", got)
	}
}

func TestRedis_ContextCancel(t *testing.T) {
	_, client := newRedis(t)
	l := NewRedis(client, WithRetryInterval(5*time.Millisecond))
	unlock, _ := l.Lock(context.Background(), "s")
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, "s"); err == nil {
		t.Fatal("expected timeout")
	}
}

func TestRedis_RenewedWhileHeld(t *testing.T) {
	mr, client := newRedis(t)
	ttl := 90 * time.Millisecond
	l := NewRedis(client, WithPrefix("t:"), WithTTL(ttl))

	unlock, err := l.Lock(context.Background(), "s")
	if err != nil {
		t.Fatal(err)
	}
	defer unlock()

	// A turn longer than the TTL: two thirds of it pass, the holder renews,
	// then another two thirds pass.
	mr.FastForward(60 * time.Millisecond)
	deadline := time.Now().Add(2 * time.Second)
	for mr.TTL("t:s") <= 60*time.Millisecond {
		if time.Now().After(deadline) {
			t.Fatalf("lock was not renewed, ttl = %v", mr.TTL("t:s"))
		}
		time.Sleep(5 * time.Millisecond)
	}
	mr.FastForward(60 * time.Millisecond)
	if !mr.Exists("t:s") {
		t.Fatal("held lock expired")
	}

	unlock()
	if mr.Exists("t:s") {
		t.Error("lock not released")
	}
}
