package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/kursadbilgin/notifier/internal/domain"
)

const (
	webhookName           = "webhook"
	defaultWebhookTimeout = 10 * time.Second
)

type pushRequest struct {
	To      string `json:"to"`
	Channel string `json:"channel"`
	Title   string `json:"title,omitempty"`
	Body    string `json:"body"`
}

// WebhookProvider delivers push notifications by POSTing JSON to a push
// gateway endpoint.
type WebhookProvider struct {
	client   *resty.Client
	endpoint string
}

// WebhookConfig points the push adapter at a gateway. Token, when set, is
// sent as a bearer token on every request.
type WebhookConfig struct {
	Endpoint string
	Token    string
}

func NewWebhookProvider(cfg WebhookConfig) (*WebhookProvider, error) {
	client := resty.New()
	client.SetTimeout(defaultWebhookTimeout)

	return NewWebhookProviderWithClient(cfg, client)
}

func NewWebhookProviderWithClient(cfg WebhookConfig, client *resty.Client) (*WebhookProvider, error) {
	trimmedEndpoint := strings.TrimSpace(cfg.Endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("webhook endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid webhook endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultWebhookTimeout)
	}
	client.SetRetryCount(0)
	if token := strings.TrimSpace(cfg.Token); token != "" {
		client.SetAuthToken(token)
	}

	return &WebhookProvider{
		client:   client,
		endpoint: trimmedEndpoint,
	}, nil
}

func (p *WebhookProvider) Name() string { return webhookName }

func (p *WebhookProvider) Send(ctx context.Context, msg Message) (*Result, error) {
	if p == nil || p.client == nil {
		return nil, validationError("webhook provider is not initialized")
	}
	if err := validateMessage(msg, domain.ChannelPush); err != nil {
		return nil, err
	}

	response, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(pushRequest{
			To:      msg.Recipient,
			Channel: msg.Channel.String(),
			Title:   msg.Subject,
			Body:    msg.Body,
		}).
		Post(p.endpoint)
	if err != nil {
		return nil, requestError(err)
	}
	if response == nil {
		return nil, &Error{Kind: KindTransient, Message: "provider returned empty response"}
	}

	statusCode := response.StatusCode()
	responseBody := strings.TrimSpace(response.String())

	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return &Result{
			Provider:   webhookName,
			Status:     "accepted",
			MessageID:  providerMessageID(response),
			StatusCode: statusCode,
			Raw:        rawJSON(response.Body()),
		}, nil
	}

	kind := KindPermanent
	if isTransientHTTPStatus(statusCode) {
		kind = KindTransient
	}
	return nil, &Error{
		Kind:       kind,
		StatusCode: statusCode,
		Message:    providerErrorMessage(statusCode, responseBody),
	}
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

func providerErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("provider returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}

func providerMessageID(response *resty.Response) string {
	if response == nil {
		return ""
	}

	for _, key := range []string{"X-Request-ID", "X-Message-ID", "X-Correlation-ID"} {
		if value := strings.TrimSpace(response.Header().Get(key)); value != "" {
			return value
		}
	}

	return ""
}

var _ Provider = (*WebhookProvider)(nil)
