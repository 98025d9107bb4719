package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/kursadbilgin/notifier/internal/domain"
)

const (
	DefaultTwilioBaseURL = "https://api.twilio.com"

	twilioName           = "twilio"
	whatsappPrefix       = "whatsapp:"
	defaultTwilioTimeout = 10 * time.Second
)

type TwilioConfig struct {
	BaseURL    string
	AccountSID string
	AuthToken  string
	From       string
}

type twilioMessage struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

type twilioError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
}

// TwilioProvider delivers sms, or whatsapp when built with
// NewTwilioWhatsAppProvider, through the Twilio Messages API.
type TwilioProvider struct {
	client   *resty.Client
	endpoint string
	from     string
	channel  domain.Channel
}

func NewTwilioSMSProvider(cfg TwilioConfig) (*TwilioProvider, error) {
	return newTwilioProvider(cfg, domain.ChannelSMS, nil)
}

func NewTwilioWhatsAppProvider(cfg TwilioConfig) (*TwilioProvider, error) {
	return newTwilioProvider(cfg, domain.ChannelWhatsApp, nil)
}

// NewTwilioProviderWithClient builds an adapter for channel on top of client.
func NewTwilioProviderWithClient(cfg TwilioConfig, channel domain.Channel, client *resty.Client) (*TwilioProvider, error) {
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	return newTwilioProvider(cfg, channel, client)
}

func newTwilioProvider(cfg TwilioConfig, channel domain.Channel, client *resty.Client) (*TwilioProvider, error) {
	if channel != domain.ChannelSMS && channel != domain.ChannelWhatsApp {
		return nil, fmt.Errorf("%w: twilio does not serve channel %q", domain.ErrValidation, channel)
	}

	sid := strings.TrimSpace(cfg.AccountSID)
	token := strings.TrimSpace(cfg.AuthToken)
	from := strings.TrimSpace(cfg.From)
	if sid == "" || token == "" {
		return nil, fmt.Errorf("%w: twilio account sid and auth token are required", domain.ErrValidation)
	}
	if from == "" {
		return nil, fmt.Errorf("%w: twilio %s sender is required", domain.ErrValidation, channel)
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultTwilioBaseURL
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid twilio base url: %w", err)
	}

	if client == nil {
		client = resty.New()
		client.SetTimeout(defaultTwilioTimeout)
	}
	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultTwilioTimeout)
	}
	client.SetRetryCount(0)
	client.SetBasicAuth(sid, token)

	return &TwilioProvider{
		client:   client,
		endpoint: fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", baseURL, url.PathEscape(sid)),
		from:     from,
		channel:  channel,
	}, nil
}

func (p *TwilioProvider) Name() string {
	if p != nil && p.channel == domain.ChannelWhatsApp {
		return twilioName + "-whatsapp"
	}
	return twilioName
}

func (p *TwilioProvider) Send(ctx context.Context, msg Message) (*Result, error) {
	if p == nil || p.client == nil {
		return nil, validationError("twilio provider is not initialized")
	}
	if err := validateMessage(msg, p.channel); err != nil {
		return nil, err
	}

	to, from := msg.Recipient, p.from
	if p.channel == domain.ChannelWhatsApp {
		to, from = withWhatsAppPrefix(to), withWhatsAppPrefix(from)
	}

	response, err := p.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"To":   to,
			"From": from,
			"Body": msg.Body,
		}).
		Post(p.endpoint)
	if err != nil {
		return nil, requestError(err)
	}
	if response == nil {
		return nil, &Error{Kind: KindTransient, Message: "provider returned empty response"}
	}

	statusCode := response.StatusCode()
	body := response.Body()

	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		var sent twilioMessage
		_ = json.Unmarshal(body, &sent)
		return &Result{
			Provider:   p.Name(),
			Status:     firstNonEmpty(sent.Status, "queued"),
			MessageID:  sent.SID,
			StatusCode: statusCode,
			Raw:        rawJSON(body),
		}, nil
	}

	var apiErr twilioError
	_ = json.Unmarshal(body, &apiErr)

	providerErr := &Error{
		Kind:       classifyTwilioStatus(statusCode),
		StatusCode: statusCode,
		Message:    providerErrorMessage(statusCode, firstNonEmpty(apiErr.Message, strings.TrimSpace(string(body)))),
	}
	if apiErr.Code != 0 {
		providerErr.Code = strconv.Itoa(apiErr.Code)
	}
	return nil, providerErr
}

func classifyTwilioStatus(statusCode int) Kind {
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return KindValidation
	case isTransientHTTPStatus(statusCode):
		return KindTransient
	}
	return KindPermanent
}

func withWhatsAppPrefix(address string) string {
	if strings.HasPrefix(address, whatsappPrefix) {
		return address
	}
	return whatsappPrefix + address
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

var _ Provider = (*TwilioProvider)(nil)
