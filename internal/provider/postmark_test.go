package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mrz1836/postmark"

	"github.com/kursadbilgin/notifier/internal/domain"
)

type fakePostmarkSender struct {
	sendEmailFn func(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
}

func (f *fakePostmarkSender) SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error) {
	return f.sendEmailFn(ctx, email)
}

func emailMessage() Message {
	return Message{Channel: domain.ChannelEmail, Recipient: "ada@example.com", Body: "hello"}
}

func TestPostmarkProviderSendSuccess(t *testing.T) {
	t.Parallel()

	var got postmark.Email
	sender := &fakePostmarkSender{
		sendEmailFn: func(_ context.Context, email postmark.Email) (postmark.EmailResponse, error) {
			got = email
			return postmark.EmailResponse{MessageID: "pm-1", Message: "OK"}, nil
		},
	}

	p, err := NewPostmarkProviderWithClient(sender, "noreply@example.com")
	if err != nil {
		t.Fatalf("NewPostmarkProviderWithClient() error = %v", err)
	}

	result, err := p.Send(context.Background(), emailMessage())
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if result.MessageID != "pm-1" || result.Provider != "postmark" {
		t.Fatalf("Send() result = %+v", result)
	}
	if got.Subject != "Notification" {
		t.Fatalf("Subject = %q, want default %q", got.Subject, "Notification")
	}
	if got.From != "noreply@example.com" || got.To != "ada@example.com" || got.TextBody != "hello" {
		t.Fatalf("email = %+v", got)
	}
}

func TestPostmarkProviderErrorCodes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code int64
		want Kind
	}{
		{code: 10, want: KindValidation},
		{code: 300, want: KindPermanent},
		{code: 400, want: KindValidation},
		{code: 406, want: KindPermanent},
		{code: 412, want: KindValidation},
		{code: 500, want: KindTransient},
		{code: 1, want: KindTransient},
	}

	for _, tt := range tests {
		if got := classifyPostmarkCode(tt.code); got != tt.want {
			t.Fatalf("classifyPostmarkCode(%d) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestPostmarkProviderSendAPIRejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		status   int
		body     string
		wantKind Kind
		wantCode string
	}{
		{
			name:     "inactive recipient",
			status:   http.StatusUnprocessableEntity,
			body:     `{"ErrorCode":406,"Message":"You tried to send to a recipient that has been marked as inactive."}`,
			wantKind: KindPermanent,
			wantCode: "406",
		},
		{
			name:     "invalid email request",
			status:   http.StatusUnprocessableEntity,
			body:     `{"ErrorCode":300,"Message":"Invalid email request"}`,
			wantKind: KindPermanent,
			wantCode: "300",
		},
		{
			name:     "bad server token",
			status:   http.StatusUnauthorized,
			body:     `{"ErrorCode":10,"Message":"Bad or missing API token"}`,
			wantKind: KindValidation,
			wantCode: "10",
		},
		{
			name:     "accepted with error code",
			status:   http.StatusOK,
			body:     `{"ErrorCode":406,"Message":"inactive recipient","MessageID":""}`,
			wantKind: KindPermanent,
			wantCode: "406",
		},
		{
			name:     "server error without json",
			status:   http.StatusBadGateway,
			body:     `<html>bad gateway</html>`,
			wantKind: KindTransient,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/email" {
					t.Errorf("path = %s, want /email", r.URL.Path)
				}
				if r.Header.Get("X-Postmark-Server-Token") != "server-token" {
					t.Errorf("server token header = %q", r.Header.Get("X-Postmark-Server-Token"))
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := postmark.NewClient("server-token", "")
			client.BaseURL = server.URL
			p, err := NewPostmarkProviderWithClient(client, "noreply@example.com")
			if err != nil {
				t.Fatalf("NewPostmarkProviderWithClient() error = %v", err)
			}

			_, err = p.Send(context.Background(), emailMessage())
			var providerErr *Error
			if !errors.As(err, &providerErr) {
				t.Fatalf("Send() error = %v, want *Error", err)
			}
			if providerErr.Kind != tt.wantKind || providerErr.Code != tt.wantCode {
				t.Fatalf("Send() error kind=%s code=%q, want kind=%s code=%q (err=%v)",
					providerErr.Kind, providerErr.Code, tt.wantKind, tt.wantCode, err)
			}
		})
	}
}

func TestPostmarkProviderSendAcceptedOverHTTP(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var email postmark.Email
		if err := json.NewDecoder(r.Body).Decode(&email); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if email.To != "ada@example.com" || email.Subject != "Notification" {
			t.Errorf("email = %+v", email)
		}
		_, _ = w.Write([]byte(`{"ErrorCode":0,"Message":"OK","MessageID":"pm-42","To":"ada@example.com"}`))
	}))
	defer server.Close()

	client := postmark.NewClient("server-token", "")
	client.BaseURL = server.URL
	p, err := NewPostmarkProviderWithClient(client, "noreply@example.com")
	if err != nil {
		t.Fatalf("NewPostmarkProviderWithClient() error = %v", err)
	}

	result, err := p.Send(context.Background(), emailMessage())
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if result.MessageID != "pm-42" {
		t.Fatalf("MessageID = %q, want pm-42", result.MessageID)
	}
}

func TestPostmarkProviderSendTransportErrorIsTransient(t *testing.T) {
	t.Parallel()

	sender := &fakePostmarkSender{
		sendEmailFn: func(context.Context, postmark.Email) (postmark.EmailResponse, error) {
			return postmark.EmailResponse{}, errors.New("connection reset by peer")
		},
	}
	p, err := NewPostmarkProviderWithClient(sender, "noreply@example.com")
	if err != nil {
		t.Fatalf("NewPostmarkProviderWithClient() error = %v", err)
	}

	if _, err := p.Send(context.Background(), emailMessage()); !IsTransient(err) {
		t.Fatalf("Send() error = %v, want transient", err)
	}
}

func TestNewPostmarkProviderRequiresConfig(t *testing.T) {
	t.Parallel()

	if _, err := NewPostmarkProvider(PostmarkConfig{From: "a@example.com"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("NewPostmarkProvider() without token error = %v, want ErrValidation", err)
	}
	if _, err := NewPostmarkProvider(PostmarkConfig{ServerToken: "token"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("NewPostmarkProvider() without from error = %v, want ErrValidation", err)
	}
}
