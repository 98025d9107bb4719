package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kursadbilgin/notifier/internal/domain"
)

func twilioConfig(baseURL string) TwilioConfig {
	return TwilioConfig{
		BaseURL:    baseURL,
		AccountSID: "AC123",
		AuthToken:  "secret",
		From:       "+15550001111",
	}
}

func TestTwilioSMSProviderSendSuccess(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2010-04-01/Accounts/AC123/Messages.json" {
			t.Errorf("path = %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC123" || pass != "secret" {
			t.Errorf("basic auth = %q/%q (%v)", user, pass, ok)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm() error = %v", err)
		}
		if r.PostForm.Get("To") != "+15552223333" || r.PostForm.Get("From") != "+15550001111" || r.PostForm.Get("Body") != "hi" {
			t.Errorf("form = %v", r.PostForm)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM1","status":"queued"}`))
	}))
	defer server.Close()

	p, err := NewTwilioSMSProvider(twilioConfig(server.URL))
	if err != nil {
		t.Fatalf("NewTwilioSMSProvider() error = %v", err)
	}

	result, err := p.Send(context.Background(), Message{Channel: domain.ChannelSMS, Recipient: "+15552223333", Body: "hi"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if result.MessageID != "SM1" || result.Status != "queued" || result.Provider != "twilio" {
		t.Fatalf("Send() result = %+v", result)
	}
}

func TestTwilioWhatsAppProviderPrefixesAddresses(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Get("To") != "whatsapp:+15552223333" || r.PostForm.Get("From") != "whatsapp:+15550001111" {
			t.Errorf("form = %v", r.PostForm)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM2","status":"queued"}`))
	}))
	defer server.Close()

	p, err := NewTwilioWhatsAppProvider(twilioConfig(server.URL))
	if err != nil {
		t.Fatalf("NewTwilioWhatsAppProvider() error = %v", err)
	}

	if _, err := p.Send(context.Background(), Message{Channel: domain.ChannelWhatsApp, Recipient: "+15552223333", Body: "hi"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if _, err := p.Send(context.Background(), Message{Channel: domain.ChannelSMS, Recipient: "+1", Body: "hi"}); Classify(err) != KindValidation {
		t.Fatalf("Send() on sms channel error = %v, want validation", err)
	}
}

func TestTwilioProviderStatusClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		statusCode int
		body       string
		wantKind   Kind
		wantCode   string
	}{
		{name: "unauthorized is validation", statusCode: http.StatusUnauthorized, body: `{"code":20003,"message":"Authenticate"}`, wantKind: KindValidation, wantCode: "20003"},
		{name: "forbidden is validation", statusCode: http.StatusForbidden, wantKind: KindValidation},
		{name: "bad request is permanent", statusCode: http.StatusBadRequest, body: `{"code":21211,"message":"Invalid 'To' Phone Number"}`, wantKind: KindPermanent, wantCode: "21211"},
		{name: "not found is permanent", statusCode: http.StatusNotFound, wantKind: KindPermanent},
		{name: "rate limited is transient", statusCode: http.StatusTooManyRequests, wantKind: KindTransient},
		{name: "unavailable is transient", statusCode: http.StatusServiceUnavailable, wantKind: KindTransient},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			p, err := NewTwilioSMSProvider(twilioConfig(server.URL))
			if err != nil {
				t.Fatalf("NewTwilioSMSProvider() error = %v", err)
			}

			_, err = p.Send(context.Background(), Message{Channel: domain.ChannelSMS, Recipient: "+1", Body: "hi"})
			var providerErr *Error
			if !errors.As(err, &providerErr) {
				t.Fatalf("Send() error = %v, want *Error", err)
			}
			if providerErr.Kind != tt.wantKind {
				t.Fatalf("Kind = %v, want %v", providerErr.Kind, tt.wantKind)
			}
			if providerErr.Code != tt.wantCode {
				t.Fatalf("Code = %q, want %q", providerErr.Code, tt.wantCode)
			}
		})
	}
}

func TestNewTwilioProviderRequiresCredentials(t *testing.T) {
	t.Parallel()

	tests := []TwilioConfig{
		{AuthToken: "x", From: "+1"},
		{AccountSID: "AC1", From: "+1"},
		{AccountSID: "AC1", AuthToken: "x"},
	}
	for _, cfg := range tests {
		if _, err := NewTwilioSMSProvider(cfg); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("NewTwilioSMSProvider(%+v) error = %v, want ErrValidation", cfg, err)
		}
	}
}
