package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sdcourse/auth-api/internal/core/domain"
)

const (
	defaultMaxAttempts = 5
	defaultWindow      = 15 * time.Minute
)

// LoginThrottle counts failed logins in fixed windows.
// Key format: login:fail:<scope>:<normalized key>
type LoginThrottle struct {
	client      redis.Cmdable
	maxAttempts int64
	window      time.Duration
}

// NewLoginThrottle blocks a key after maxAttempts failures until window
// elapses from the first of them.
func NewLoginThrottle(client redis.Cmdable, maxAttempts int, window time.Duration) *LoginThrottle {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if window <= 0 {
		window = defaultWindow
	}
	return &LoginThrottle{client: client, maxAttempts: int64(maxAttempts), window: window}
}

// Allowed reports whether key may attempt another login.
func (t *LoginThrottle) Allowed(ctx context.Context, scope domain.ThrottleScope, key string) (bool, error) {
	n, err := t.client.Get(ctx, t.key(scope, key)).Int64()
	if errors.Is(err, redis.Nil) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("throttle check: %w", err)
	}
	return n < t.maxAttempts, nil
}

// RecordFailure increments the counter. The increment and the window expiry run in
// one MULTI/EXEC so a counter never outlives its window; EXPIRE NX leaves the
// window of an existing counter untouched.
func (t *LoginThrottle) RecordFailure(ctx context.Context, scope domain.ThrottleScope, key string) error {
	k := t.key(scope, key)
	_, err := t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, k)
		pipe.ExpireNX(ctx, k, t.window)
		return nil
	})
	if err != nil {
		return fmt.Errorf("throttle record: %w", err)
	}
	return nil
}

// Reset clears the counter after a successful login.
func (t *LoginThrottle) Reset(ctx context.Context, scope domain.ThrottleScope, key string) error {
	return t.client.Del(ctx, t.key(scope, key)).Err()
}

func (t *LoginThrottle) key(scope domain.ThrottleScope, key string) string {
	return "login:fail:" + string(scope) + ":" + domain.NormalizeKey(key)
}
