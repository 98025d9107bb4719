package provider

import (
	"fmt"

	"github.com/kursadbilgin/notifier/internal/domain"
)

// Registry maps each channel to exactly one adapter. It is populated once at
// startup and read concurrently afterwards.
type Registry struct {
	providers map[domain.Channel]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[domain.Channel]Provider, len(domain.Channels()))}
}

// Register binds p to channel, replacing any previous binding.
func (r *Registry) Register(channel domain.Channel, p Provider) error {
	if !channel.IsValid() {
		return fmt.Errorf("%w: invalid channel %q", domain.ErrValidation, channel)
	}
	if p == nil {
		return fmt.Errorf("%w: provider for %s is nil", domain.ErrValidation, channel)
	}
	r.providers[channel] = p
	return nil
}

// Lookup returns the adapter for channel. There is no fallback to another
// channel when none is registered.
func (r *Registry) Lookup(channel domain.Channel) (Provider, error) {
	if r != nil {
		if p, ok := r.providers[channel]; ok {
			return p, nil
		}
	}
	return nil, &Error{
		Kind:    KindValidation,
		Message: fmt.Sprintf("no provider for channel %q", channel),
		Cause:   ErrChannelNotConfigured,
	}
}

// Channels lists channels with a registered adapter, in domain order.
func (r *Registry) Channels() []domain.Channel {
	if r == nil {
		return nil
	}
	out := make([]domain.Channel, 0, len(r.providers))
	for _, ch := range domain.Channels() {
		if _, ok := r.providers[ch]; ok {
			out = append(out, ch)
		}
	}
	return out
}
