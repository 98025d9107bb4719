package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/kursadbilgin/notifier/internal/config"
	"github.com/kursadbilgin/notifier/internal/domain"
	"github.com/kursadbilgin/notifier/internal/provider"
)

// buildRegistry registers an adapter for every channel whose credentials are
// configured. Channels left out fail at send time as a validation error.
func buildRegistry(cfg *config.Config, logger *zap.Logger) (*provider.Registry, error) {
	registry := provider.NewRegistry()

	twilio := provider.TwilioConfig{
		BaseURL:    cfg.TwilioBaseURL,
		AccountSID: cfg.TwilioAccountSID,
		AuthToken:  cfg.TwilioAuthToken,
	}

	adapters := []struct {
		channel    domain.Channel
		configured bool
		build      func() (provider.Provider, error)
	}{
		{
			channel:    domain.ChannelEmail,
			configured: cfg.EmailConfigured(),
			build: func() (provider.Provider, error) {
				return provider.NewPostmarkProvider(provider.PostmarkConfig{
					ServerToken:  cfg.PostmarkServerToken,
					AccountToken: cfg.PostmarkAccountToken,
					From:         cfg.EmailFrom,
				})
			},
		},
		{
			channel:    domain.ChannelSMS,
			configured: cfg.SMSConfigured(),
			build: func() (provider.Provider, error) {
				smsCfg := twilio
				smsCfg.From = cfg.TwilioSMSFrom
				return provider.NewTwilioSMSProvider(smsCfg)
			},
		},
		{
			channel:    domain.ChannelWhatsApp,
			configured: cfg.WhatsAppConfigured(),
			build: func() (provider.Provider, error) {
				waCfg := twilio
				waCfg.From = cfg.TwilioWhatsAppFrom
				return provider.NewTwilioWhatsAppProvider(waCfg)
			},
		},
		{
			channel:    domain.ChannelPush,
			configured: cfg.PushConfigured(),
			build: func() (provider.Provider, error) {
				return provider.NewWebhookProvider(provider.WebhookConfig{
					Endpoint: cfg.PushWebhookURL,
					Token:    cfg.PushWebhookToken,
				})
			},
		},
	}

	for _, adapter := range adapters {
		if !adapter.configured {
			logger.Warn("channel has no provider configured", zap.String("channel", adapter.channel.String()))
			continue
		}

		p, err := adapter.build()
		if err != nil {
			return nil, fmt.Errorf("failed to build %s provider: %w", adapter.channel, err)
		}
		if err := registry.Register(adapter.channel, p); err != nil {
			return nil, err
		}
		logger.Info("provider registered",
			zap.String("channel", adapter.channel.String()),
			zap.String("provider", p.Name()),
		)
	}

	return registry, nil
}
