// Package redis implements locks.Guard on top of Redis so that saves are
// serialized across server instances.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	lowimpl "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"certificate-server/locks"
)

const DefaultTTL = 30 * time.Second

// releaseScript deletes the key only when it still holds our token, so an
// expired lock taken over by another instance is left alone.
var releaseScript = lowimpl.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Guard struct {
	client *lowimpl.Client
	prefix string
	ttl    time.Duration
}

var _ locks.Guard = (*Guard)(nil)

type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

func NewGuard(opts Options) *Guard {
	client := lowimpl.NewClient(&lowimpl.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return NewGuardWithClient(client, opts.Prefix, opts.TTL)
}

func NewGuardWithClient(client *lowimpl.Client, prefix string, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if prefix == "" {
		prefix = "certificate-server:save:"
	}
	return &Guard{client: client, prefix: prefix, ttl: ttl}
}

// Acquire sets the lock key with NX and a TTL. The TTL bounds how long a
// crashed holder can block other saves.
func (g *Guard) Acquire(ctx context.Context, key string) (func(), error) {
	redisKey := g.prefix + key
	token := ulid.Make().String()
	ok, err := g.client.SetNX(ctx, redisKey, token, g.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", redisKey, err)
	}
	if !ok {
		return nil, locks.ErrHeld
	}
	return func() {
		// The caller's context may already be done; release regardless.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, g.client, []string{redisKey}, token).Err(); err != nil && !errors.Is(err, lowimpl.Nil) {
			logrus.WithError(err).WithField("key", redisKey).Warn("Failed to release save lock")
		}
	}, nil
}

func (g *Guard) Ping(ctx context.Context) error {
	return g.client.Ping(ctx).Err()
}

func (g *Guard) Close() error {
	return g.client.Close()
}
