package domain

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle state of a notification.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
	// StatusDelivered is reserved for asynchronous delivery receipts and is
	// never produced by the dispatch path.
	StatusDelivered Status = "delivered"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusSent, StatusFailed, StatusDelivered:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition may leave s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSent, StatusFailed, StatusDelivered:
		return true
	}
	return false
}

// IsHandled reports whether a notification in s was already delivered to a
// provider, so a duplicate unit of work must be discarded.
func (s Status) IsHandled() bool {
	return s == StatusSent || s == StatusDelivered
}

// CanTransitionTo reports whether the move s -> next is allowed. Status only
// moves forward; processing -> processing is the retry edge.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusProcessing || next == StatusSent || next == StatusFailed
	case StatusSent:
		return next == StatusDelivered
	}
	return false
}

// Statuses lists every lifecycle state in forward order.
func Statuses() []Status {
	return []Status{StatusPending, StatusProcessing, StatusSent, StatusFailed, StatusDelivered}
}

// ClaimableStatuses are the states from which a worker may start an attempt,
// i.e. those allowed to move to processing.
func ClaimableStatuses() []Status {
	claimable := make([]Status, 0, 2)
	for _, s := range Statuses() {
		if s.CanTransitionTo(StatusProcessing) {
			claimable = append(claimable, s)
		}
	}
	return claimable
}

func ParseStatusFromString(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

// Channel represents the delivery channel.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelPush     Channel = "push"
)

func (c Channel) String() string { return string(c) }

func (c Channel) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelWhatsApp, ChannelPush:
		return true
	}
	return false
}

// Channels returns every supported channel in a stable order.
func Channels() []Channel {
	return []Channel{ChannelEmail, ChannelSMS, ChannelWhatsApp, ChannelPush}
}

func ParseChannelFromString(s string) (Channel, error) {
	ch := Channel(strings.ToLower(strings.TrimSpace(s)))
	if !ch.IsValid() {
		return "", fmt.Errorf("%w: invalid channel %q", ErrValidation, s)
	}
	return ch, nil
}

// Notification is one message-delivery request and its lineage of attempts.
type Notification struct {
	ID        string
	TenantID  string
	Channel   Channel
	Recipient string

	// Content source: TemplateRef (template name or id) XOR inline Body.
	TemplateRef *string
	Subject     *string
	Body        *string
	Variables   map[string]any

	Status           Status
	ProviderResponse []byte
	ErrorMessage     *string
	AttemptCount     int
	LeaseExpiresAt   *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
	SentAt           *time.Time
}

// UsesTemplate reports whether content comes from a stored template.
func (n *Notification) UsesTemplate() bool {
	return n.TemplateRef != nil && strings.TrimSpace(*n.TemplateRef) != ""
}

func (n *Notification) hasInlineBody() bool {
	return n.Body != nil && strings.TrimSpace(*n.Body) != ""
}

func (n *Notification) Validate() error {
	if strings.TrimSpace(n.TenantID) == "" {
		return fmt.Errorf("%w: tenant is required", ErrValidation)
	}
	if !n.Channel.IsValid() {
		return fmt.Errorf("%w: invalid channel %q", ErrValidation, n.Channel)
	}
	if strings.TrimSpace(n.Recipient) == "" {
		return fmt.Errorf("%w: recipient is required", ErrValidation)
	}

	switch usesTemplate, hasInline := n.UsesTemplate(), n.hasInlineBody(); {
	case usesTemplate && hasInline:
		return fmt.Errorf("%w: template and inline body are mutually exclusive", ErrValidation)
	case !usesTemplate && !hasInline:
		return fmt.Errorf("%w: either template or inline body is required", ErrValidation)
	}

	return nil
}
