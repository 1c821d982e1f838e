package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kirillkom/property-desk/internal/core/domain"
)

// Deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type backend interface {
	acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	release(ctx context.Context, key, token string) error
}

type Options struct {
	Prefix       string
	TTL          time.Duration
	PollInterval time.Duration
}

// Locker is a lease lock shared by every API process. A lease expires after
// TTL so a crashed holder cannot block a key forever.
type Locker struct {
	backend backend
	prefix  string
	ttl     time.Duration
	poll    time.Duration
}

func New(client *redis.Client, options Options) *Locker {
	return newLocker(clientBackend{client: client}, options)
}

func newLocker(b backend, options Options) *Locker {
	if options.Prefix == "" {
		options.Prefix = "propdesk:lock:"
	}
	if options.TTL <= 0 {
		options.TTL = 30 * time.Second
	}
	if options.PollInterval <= 0 {
		options.PollInterval = 25 * time.Millisecond
	}
	return &Locker{backend: b, prefix: options.Prefix, ttl: options.TTL, poll: options.PollInterval}
}

func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := l.prefix + key
	token, err := newToken()
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()
	for {
		ok, err := l.backend.acquire(ctx, redisKey, token, l.ttl)
		if err != nil {
			return nil, domain.WrapError(domain.ErrTemporary, "acquire lock "+key, err)
		}
		if ok {
			return func() {
				// The caller's context may already be done when it unlocks.
				releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				if err := l.backend.release(releaseCtx, redisKey, token); err != nil {
					slog.Warn("lock_release_failed", "key", key, "error", err)
				}
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, domain.WrapError(domain.ErrTemporary, "acquire lock "+key, ctx.Err())
		case <-ticker.C:
		}
	}
}

func newToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("lock token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

type clientBackend struct {
	client *redis.Client
}

func (b clientBackend) acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	return b.client.SetNX(ctx, key, token, ttl).Result()
}

func (b clientBackend) release(ctx context.Context, key, token string) error {
	return releaseScript.Run(ctx, b.client, []string{key}, token).Err()
}
