package domain

import (
	"fmt"
	"strings"
	"time"
)

// FailureKind tells operators why a notification was dead-lettered.
type FailureKind string

const (
	FailureTransient  FailureKind = "transient"
	FailurePermanent  FailureKind = "permanent"
	FailureValidation FailureKind = "validation"
)

func (k FailureKind) String() string { return string(k) }

func (k FailureKind) IsValid() bool {
	switch k {
	case FailureTransient, FailurePermanent, FailureValidation:
		return true
	}
	return false
}

// DeadLetterEntry is the permanent record of a notification that ended in
// the failed state. At most one entry exists per notification and it is
// never updated after creation.
type DeadLetterEntry struct {
	ID             string
	NotificationID string
	TenantID       string
	Channel        Channel
	Reason         string
	FailureKind    FailureKind
	RetryCount     int
	CreatedAt      time.Time
}

// DeadLetterReason prefixes the error text with the failure kind so the
// stored reason keeps provider outages apart from rejected recipients.
func DeadLetterReason(kind FailureKind, message string) string {
	message = strings.TrimSpace(message)
	if message == "" {
		message = "unknown error"
	}
	return fmt.Sprintf("%s: %s", kind, message)
}
