package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/kursadbilgin/notifier/internal/domain"
)

type fakeProvider struct {
	name   string
	sendFn func(ctx context.Context, msg Message) (*Result, error)
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Send(ctx context.Context, msg Message) (*Result, error) {
	if f.sendFn == nil {
		return &Result{Provider: f.name, Status: "sent"}, nil
	}
	return f.sendFn(ctx, msg)
}

func TestRegistryLookup(t *testing.T) {
	t.Parallel()

	email := &fakeProvider{name: "email"}
	registry := NewRegistry()
	if err := registry.Register(domain.ChannelEmail, email); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	got, err := registry.Lookup(domain.ChannelEmail)
	if err != nil {
		t.Fatalf("Lookup(email) error = %v", err)
	}
	if got != email {
		t.Fatalf("Lookup(email) = %v, want registered provider", got)
	}

	_, err = registry.Lookup(domain.ChannelSMS)
	if !errors.Is(err, ErrChannelNotConfigured) {
		t.Fatalf("Lookup(sms) error = %v, want ErrChannelNotConfigured", err)
	}
	if Classify(err) != KindValidation {
		t.Fatalf("Classify(Lookup(sms)) = %v, want validation", Classify(err))
	}

	if channels := registry.Channels(); len(channels) != 1 || channels[0] != domain.ChannelEmail {
		t.Fatalf("Channels() = %v, want [email]", channels)
	}
}

func TestRegistryRegisterRejectsInvalid(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	if err := registry.Register(domain.Channel("fax"), &fakeProvider{}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Register(fax) error = %v, want ErrValidation", err)
	}
	if err := registry.Register(domain.ChannelPush, nil); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Register(nil) error = %v, want ErrValidation", err)
	}
}

func TestNilRegistryLookup(t *testing.T) {
	t.Parallel()

	var registry *Registry
	if _, err := registry.Lookup(domain.ChannelEmail); !errors.Is(err, ErrChannelNotConfigured) {
		t.Fatalf("Lookup() on nil registry error = %v, want ErrChannelNotConfigured", err)
	}
}
