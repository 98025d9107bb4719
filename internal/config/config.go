package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"

	"github.com/kursadbilgin/notifier/internal/domain"
)

// Config is loaded once at startup and passed by value to constructors.
// Provider credentials are optional: a channel whose credentials are absent
// is simply not registered.
type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	DBMaxConns  int    `env:"DB_MAX_CONNS,default=25"`
	RabbitMQURL string `env:"RABBITMQ_URL,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`
	APIPort     int    `env:"API_PORT,default=8080"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`

	WorkerConcurrency int           `env:"WORKER_CONCURRENCY,default=16"`
	WorkerPrefetch    int           `env:"WORKER_PREFETCH,default=4"`
	WorkerHTTPPort    int           `env:"WORKER_HTTP_PORT,default=9091"`
	RateLimitPerSec   int           `env:"RATE_LIMIT_PER_SEC,default=100"`
	RateLimitChannels string        `env:"RATE_LIMIT_CHANNELS"`
	ProviderTimeout   time.Duration `env:"PROVIDER_TIMEOUT,default=10s"`

	RetryMax       int           `env:"RETRY_MAX,default=3"`
	RetryBaseDelay time.Duration `env:"RETRY_BASE_DELAY,default=60s"`
	RetryFactor    float64       `env:"RETRY_FACTOR,default=5"`
	RetryMaxDelay  time.Duration `env:"RETRY_MAX_DELAY,default=15m"`

	LeaseDuration  time.Duration `env:"LEASE_DURATION,default=5m"`
	ReaperInterval time.Duration `env:"REAPER_INTERVAL,default=30s"`
	ReaperBatch    int           `env:"REAPER_BATCH,default=100"`

	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	EmailFrom            string `env:"EMAIL_FROM"`

	TwilioAccountSID   string `env:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken    string `env:"TWILIO_AUTH_TOKEN"`
	TwilioSMSFrom      string `env:"TWILIO_SMS_FROM"`
	TwilioWhatsAppFrom string `env:"TWILIO_WHATSAPP_FROM"`
	TwilioBaseURL      string `env:"TWILIO_BASE_URL,default=https://api.twilio.com"`

	PushWebhookURL   string `env:"PUSH_WEBHOOK_URL"`
	PushWebhookToken string `env:"PUSH_WEBHOOK_TOKEN"`
}

// Load reads the optional dotenv files, then the process environment.
// Variables already set in the environment win over file values.
func Load(dotenvFiles ...string) (*Config, error) {
	if len(dotenvFiles) == 0 {
		dotenvFiles = []string{".env"}
	}
	for _, file := range dotenvFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c Config) Validate() error {
	var errs []error

	if c.WorkerConcurrency < 1 {
		errs = append(errs, fmt.Errorf("WORKER_CONCURRENCY must be positive"))
	}
	if c.RetryMax < 0 {
		errs = append(errs, fmt.Errorf("RETRY_MAX must not be negative"))
	}
	if c.RetryBaseDelay <= 0 {
		errs = append(errs, fmt.Errorf("RETRY_BASE_DELAY must be positive"))
	}
	if c.RetryFactor < 1 {
		errs = append(errs, fmt.Errorf("RETRY_FACTOR must be at least 1"))
	}
	if c.RetryMaxDelay < c.RetryBaseDelay {
		errs = append(errs, fmt.Errorf("RETRY_MAX_DELAY must not be below RETRY_BASE_DELAY"))
	}
	if c.ProviderTimeout <= 0 {
		errs = append(errs, fmt.Errorf("PROVIDER_TIMEOUT must be positive"))
	}
	if c.LeaseDuration <= c.ProviderTimeout {
		errs = append(errs, fmt.Errorf("LEASE_DURATION must exceed PROVIDER_TIMEOUT"))
	}
	if c.ReaperInterval <= 0 {
		errs = append(errs, fmt.Errorf("REAPER_INTERVAL must be positive"))
	}
	if _, err := c.ChannelRateLimits(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// ChannelRateLimits parses RATE_LIMIT_CHANNELS, a comma separated list of
// channel=limit pairs such as "sms=10,whatsapp=20".
func (c Config) ChannelRateLimits() (map[domain.Channel]int, error) {
	limits := make(map[domain.Channel]int)
	for _, pair := range strings.Split(c.RateLimitChannels, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("RATE_LIMIT_CHANNELS entry %q must be channel=limit", pair)
		}
		channel, err := domain.ParseChannelFromString(name)
		if err != nil {
			return nil, fmt.Errorf("RATE_LIMIT_CHANNELS: %w", err)
		}
		limit, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || limit < 1 {
			return nil, fmt.Errorf("RATE_LIMIT_CHANNELS limit for %s must be a positive integer", channel)
		}
		limits[channel] = limit
	}
	return limits, nil
}

func (c Config) EmailConfigured() bool {
	return strings.TrimSpace(c.PostmarkServerToken) != "" && strings.TrimSpace(c.EmailFrom) != ""
}

func (c Config) twilioConfigured() bool {
	return strings.TrimSpace(c.TwilioAccountSID) != "" && strings.TrimSpace(c.TwilioAuthToken) != ""
}

func (c Config) SMSConfigured() bool {
	return c.twilioConfigured() && strings.TrimSpace(c.TwilioSMSFrom) != ""
}

func (c Config) WhatsAppConfigured() bool {
	return c.twilioConfigured() && strings.TrimSpace(c.TwilioWhatsAppFrom) != ""
}

func (c Config) PushConfigured() bool {
	return strings.TrimSpace(c.PushWebhookURL) != ""
}
