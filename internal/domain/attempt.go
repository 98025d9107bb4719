package domain

import "time"

// AttemptOutcome classifies the result of a single provider invocation.
type AttemptOutcome string

const (
	OutcomeSent       AttemptOutcome = "sent"
	OutcomeTransient  AttemptOutcome = "transient"
	OutcomePermanent  AttemptOutcome = "permanent"
	OutcomeValidation AttemptOutcome = "validation"
)

func (o AttemptOutcome) String() string { return string(o) }

// NotificationAttempt records a single provider call for a notification.
// AttemptNumber starts at 1 and is unique within one notification.
type NotificationAttempt struct {
	ID               string
	NotificationID   string
	AttemptNumber    int
	Provider         string
	Outcome          AttemptOutcome
	ProviderResponse []byte
	Error            *string
	DurationMillis   int64
	CreatedAt        time.Time
}
