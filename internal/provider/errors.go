package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrChannelNotConfigured is wrapped when no adapter is registered for a channel.
var ErrChannelNotConfigured = errors.New("channel not configured")

// Kind tells the dispatch worker how to react to a failed send.
type Kind string

const (
	// KindTransient failures may succeed on a later attempt.
	KindTransient Kind = "transient"
	// KindPermanent failures are rejections of the message itself.
	KindPermanent Kind = "permanent"
	// KindValidation failures come from bad input or bad configuration.
	KindValidation Kind = "validation"
)

func (k Kind) String() string { return string(k) }

// Retryable reports whether a failure of kind k is worth another attempt.
func (k Kind) Retryable() bool { return k == KindTransient }

// Error is a classified provider failure.
type Error struct {
	Kind       Kind
	StatusCode int
	Code       string
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 4)
	parts = append(parts, "provider error")

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if e.Code != "" {
		parts = append(parts, "code="+e.Code)
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func validationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// requestError wraps a transport-level failure such as a timeout or reset.
func requestError(err error) *Error {
	return &Error{Kind: KindTransient, Message: "provider request failed", Cause: err}
}

// Classify returns the failure kind of err. An explicit *Error kind wins.
// Anything else, including deadline and network timeouts, is transient.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}

	var providerErr *Error
	if errors.As(err, &providerErr) && providerErr.Kind != "" {
		return providerErr.Kind
	}
	return KindTransient
}

// IsTimeout reports whether err came from a deadline or a network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	return err != nil && Classify(err).Retryable()
}
