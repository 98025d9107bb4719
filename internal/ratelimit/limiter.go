package ratelimit

import (
	"context"
	"fmt"
	"strings"

	"github.com/kursadbilgin/notifier/internal/domain"
)

// Key scopes a rate limit bucket to one tenant on one channel.
type Key struct {
	TenantID string
	Channel  domain.Channel
}

func (k Key) Validate() error {
	if strings.TrimSpace(k.TenantID) == "" {
		return fmt.Errorf("tenant is required")
	}
	if !k.Channel.IsValid() {
		return fmt.Errorf("invalid channel %q", k.Channel)
	}
	return nil
}

// String renders the bucket name, e.g. tenant-1:sms.
func (k Key) String() string {
	return strings.TrimSpace(k.TenantID) + ":" + k.Channel.String()
}

// RateLimiter controls message throughput per tenant and channel.
type RateLimiter interface {
	Allow(ctx context.Context, key Key) (bool, error)
	Wait(ctx context.Context, key Key) error
}
