package provider

import (
	"context"
	"encoding/json"

	"github.com/kursadbilgin/notifier/internal/domain"
)

// Provider is the outbound delivery port implemented by each channel adapter.
type Provider interface {
	Name() string
	Send(ctx context.Context, msg Message) (*Result, error)
}

// Message is a fully rendered notification ready for delivery.
type Message struct {
	Channel   domain.Channel
	Recipient string
	Subject   string
	Body      string
}

// Result stores provider call metadata. It is persisted verbatim as the
// notification's provider response.
type Result struct {
	Provider   string          `json:"provider"`
	Status     string          `json:"status"`
	MessageID  string          `json:"message_id,omitempty"`
	StatusCode int             `json:"status_code,omitempty"`
	Detail     string          `json:"detail,omitempty"`
	Raw        json.RawMessage `json:"raw,omitempty"`
}

// JSON encodes r for storage.
func (r *Result) JSON() []byte {
	if r == nil {
		return nil
	}
	encoded, err := json.Marshal(r)
	if err != nil {
		return nil
	}
	return encoded
}

func validateMessage(msg Message, want domain.Channel) error {
	if msg.Channel != want {
		return validationError("channel %q not supported by %s adapter", msg.Channel, want)
	}
	if msg.Recipient == "" {
		return validationError("recipient is required")
	}
	if msg.Body == "" {
		return validationError("body is required")
	}
	return nil
}

// rawJSON keeps body when it is valid JSON so the stored response stays
// structured; otherwise it is quoted as a string.
func rawJSON(body []byte) json.RawMessage {
	if len(body) == 0 {
		return nil
	}
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	quoted, err := json.Marshal(string(body))
	if err != nil {
		return nil
	}
	return quoted
}
