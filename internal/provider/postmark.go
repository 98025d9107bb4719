package provider

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mrz1836/postmark"

	"github.com/kursadbilgin/notifier/internal/domain"
)

const (
	postmarkName   = "postmark"
	defaultSubject = "Notification"
)

// Postmark API error codes with a non-transient meaning.
const (
	postmarkInvalidToken     = 10
	postmarkInvalidRequest   = 300
	postmarkInactiveAddress  = 406
	postmarkSenderRangeStart = 400
	postmarkSenderRangeEnd   = 412
)

// PostmarkSender is the subset of *postmark.Client used for delivery.
type PostmarkSender interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
}

type PostmarkConfig struct {
	ServerToken  string
	AccountToken string
	From         string
}

// PostmarkProvider delivers the email channel through Postmark.
type PostmarkProvider struct {
	client PostmarkSender
	from   string
}

func NewPostmarkProvider(cfg PostmarkConfig) (*PostmarkProvider, error) {
	if strings.TrimSpace(cfg.ServerToken) == "" {
		return nil, fmt.Errorf("%w: postmark server token is required", domain.ErrValidation)
	}
	return NewPostmarkProviderWithClient(postmark.NewClient(cfg.ServerToken, cfg.AccountToken), cfg.From)
}

func NewPostmarkProviderWithClient(client PostmarkSender, from string) (*PostmarkProvider, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: postmark client is required", domain.ErrValidation)
	}
	from = strings.TrimSpace(from)
	if from == "" {
		return nil, fmt.Errorf("%w: email from address is required", domain.ErrValidation)
	}
	return &PostmarkProvider{client: client, from: from}, nil
}

func (p *PostmarkProvider) Name() string { return postmarkName }

func (p *PostmarkProvider) Send(ctx context.Context, msg Message) (*Result, error) {
	if p == nil || p.client == nil {
		return nil, validationError("postmark provider is not initialized")
	}
	if err := validateMessage(msg, domain.ChannelEmail); err != nil {
		return nil, err
	}

	subject := strings.TrimSpace(msg.Subject)
	if subject == "" {
		subject = defaultSubject
	}

	resp, err := p.client.SendEmail(ctx, postmark.Email{
		From:     p.from,
		To:       msg.Recipient,
		Subject:  subject,
		TextBody: msg.Body,
	})
	if err != nil {
		return nil, postmarkError(resp, err)
	}

	return &Result{
		Provider:  postmarkName,
		Status:    "sent",
		MessageID: resp.MessageID,
		Detail:    resp.Message,
	}, nil
}

// postmarkError classifies a failed send. API rejections (HTTP 4xx) come back
// as postmark.APIError; an accepted request carrying a non-zero ErrorCode
// comes back with the code set on resp. Anything else never reached the API.
func postmarkError(resp postmark.EmailResponse, err error) *Error {
	code, message := resp.ErrorCode, resp.Message

	var apiErr postmark.APIError
	if errors.As(err, &apiErr) {
		code, message = apiErr.ErrorCode, apiErr.Message
	}
	if code == 0 {
		return requestError(err)
	}

	return &Error{
		Kind:    classifyPostmarkCode(code),
		Code:    strconv.FormatInt(code, 10),
		Message: strings.TrimSpace(message),
		Cause:   err,
	}
}

func classifyPostmarkCode(code int64) Kind {
	switch {
	case code == postmarkInvalidRequest || code == postmarkInactiveAddress:
		return KindPermanent
	case code == postmarkInvalidToken:
		return KindValidation
	case code >= postmarkSenderRangeStart && code <= postmarkSenderRangeEnd:
		return KindValidation
	}
	return KindTransient
}

var _ Provider = (*PostmarkProvider)(nil)

