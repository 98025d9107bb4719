package queue

import (
	"fmt"
	"strings"

	"github.com/kursadbilgin/notifier/internal/domain"
)

// WorkItem is the broker payload for one delivery attempt. Attempt counts the
// attempts already made for the notification, so the first delivery carries 0.
type WorkItem struct {
	NotificationID string         `json:"notificationId"`
	Attempt        int            `json:"attempt"`
	Channel        domain.Channel `json:"channel"`
}

func (m WorkItem) Validate() error {
	if strings.TrimSpace(m.NotificationID) == "" {
		return fmt.Errorf("notificationId is required")
	}
	if m.Attempt < 0 {
		return fmt.Errorf("attempt must not be negative, got %d", m.Attempt)
	}
	if !m.Channel.IsValid() {
		return fmt.Errorf("invalid channel %q", m.Channel)
	}
	return nil
}

// Next returns the unit of work for the following attempt.
func (m WorkItem) Next() WorkItem {
	m.Attempt++
	return m
}

// MessageID identifies one attempt of one notification on the broker.
func (m WorkItem) MessageID() string {
	return fmt.Sprintf("%s:%d", m.NotificationID, m.Attempt)
}
