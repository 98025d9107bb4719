package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kursadbilgin/notifier/internal/domain"
	"github.com/kursadbilgin/notifier/internal/ratelimit"
)

const (
	defaultLimitPerSec = 100
	window             = time.Second
	minWait            = 5 * time.Millisecond
)

// allowScript increments the bucket in KEYS[1] and reports whether it is still
// within ARGV[1]. The bucket expires after ARGV[2] seconds.
var allowScript = goredis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[2])
end
if current > tonumber(ARGV[1]) then
  return 0
end
return 1
`)

var _ ratelimit.RateLimiter = (*RedisRateLimiter)(nil)

// Limits configures sends per second. Channels overrides PerSecond for the
// channels it names.
type Limits struct {
	PerSecond int
	Channels  map[domain.Channel]int
}

func (l Limits) forChannel(channel domain.Channel) int {
	if n, ok := l.Channels[channel]; ok && n > 0 {
		return n
	}
	return l.PerSecond
}

// RedisRateLimiter is a distributed fixed-window limiter backed by Redis.
// Each tenant and channel pair gets its own per-second bucket, shared by every
// worker process.
type RedisRateLimiter struct {
	client *goredis.Client
	limits Limits
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewRedisRateLimiter(client *goredis.Client, limits Limits) (*RedisRateLimiter, error) {
	return newRedisRateLimiter(client, limits, time.Now, sleepWithContext)
}

func newRedisRateLimiter(
	client *goredis.Client,
	limits Limits,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*RedisRateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if limits.PerSecond <= 0 {
		limits.PerSecond = defaultLimitPerSec
	}
	for channel := range limits.Channels {
		if !channel.IsValid() {
			return nil, fmt.Errorf("rate limit for unknown channel %q", channel)
		}
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	return &RedisRateLimiter{
		client: client,
		limits: limits,
		now:    nowFn,
		sleep:  sleepFn,
	}, nil
}

// Allow takes one slot from the current window of key, reporting false when
// the window is already full.
func (r *RedisRateLimiter) Allow(ctx context.Context, key ratelimit.Key) (bool, error) {
	if r == nil || r.client == nil {
		return false, fmt.Errorf("rate limiter is not initialized")
	}
	if err := key.Validate(); err != nil {
		return false, fmt.Errorf("invalid rate limit key: %w", err)
	}

	bucket := bucketKey(key, r.now())
	limit := r.limits.forChannel(key.Channel)
	result, err := allowScript.Run(ctx, r.client, []string{bucket}, limit, int(window/time.Second)).Int()
	if err != nil {
		return false, fmt.Errorf("failed to evaluate rate limit: %w", err)
	}
	return result == 1, nil
}

// Wait blocks until key has a free slot or ctx ends. A full window is waited
// out to its end rather than polled.
func (r *RedisRateLimiter) Wait(ctx context.Context, key ratelimit.Key) error {
	for {
		allowed, err := r.Allow(ctx, key)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		if err := r.sleep(ctx, untilNextWindow(r.now())); err != nil {
			return err
		}
	}
}

func bucketKey(key ratelimit.Key, now time.Time) string {
	return fmt.Sprintf("ratelimit:%s:%d", key, now.UTC().Unix())
}

func untilNextWindow(now time.Time) time.Duration {
	d := now.Truncate(window).Add(window).Sub(now)
	if d < minWait {
		d = minWait
	}
	return d
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
