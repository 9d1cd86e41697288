package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"certificate-server/locks"
)

func newTestGuard(t *testing.T) *Guard {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	g := NewGuard(Options{Addr: addr, Prefix: "certificate-server:test:", TTL: 5 * time.Second})
	if err := g.Ping(context.Background()); err != nil {
		t.Skipf("redis not reachable: %v", err)
	}
	t.Cleanup(func() { g.Close() })
	return g
}

func TestGuardExclusive(t *testing.T) {
	g := newTestGuard(t)
	ctx := context.Background()
	key := "tpl-" + time.Now().Format("150405.000000")

	release, err := g.Acquire(ctx, key)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if _, err := g.Acquire(ctx, key); err != locks.ErrHeld {
		t.Fatalf("second acquire error mismatch: got %v, want %v", err, locks.ErrHeld)
	}
	release()

	again, err := g.Acquire(ctx, key)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	again()
}
