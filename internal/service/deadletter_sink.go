package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kursadbilgin/notifier/internal/domain"
	"github.com/kursadbilgin/notifier/internal/observability"
	"github.com/kursadbilgin/notifier/internal/provider"
	"github.com/kursadbilgin/notifier/internal/repository"
)

// DeadLetterSink moves a claimed notification into failed together with its
// dead-letter entry.
type DeadLetterSink struct {
	notifications repository.NotificationRepository
	logger        *zap.Logger
	metrics       *observability.Metrics
	now           func() time.Time
	newID         func() string
}

func NewDeadLetterSink(notifications repository.NotificationRepository, logger *zap.Logger) (*DeadLetterSink, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DeadLetterSink{
		notifications: notifications,
		logger:        logger,
		now:           time.Now,
		newID:         uuid.NewString,
	}, nil
}

func (s *DeadLetterSink) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Record fails n for the given attempt. retries is the number of retries
// already made and is stored as the entry's retry count. ErrConflict means
// the claim was lost and nothing was written.
func (s *DeadLetterSink) Record(
	ctx context.Context,
	n *domain.Notification,
	attempt int,
	kind domain.FailureKind,
	cause error,
) (*domain.DeadLetterEntry, error) {
	if n == nil {
		return nil, fmt.Errorf("%w: notification is required", domain.ErrValidation)
	}
	if !kind.IsValid() {
		kind = domain.FailureTransient
	}

	message := "unknown error"
	if cause != nil {
		message = cause.Error()
	}

	entry := &domain.DeadLetterEntry{
		ID:             s.newID(),
		NotificationID: n.ID,
		TenantID:       n.TenantID,
		Channel:        n.Channel,
		Reason:         domain.DeadLetterReason(kind, message),
		FailureKind:    kind,
		RetryCount:     attempt,
		CreatedAt:      s.now().UTC(),
	}

	if err := s.notifications.FailWithDeadLetter(ctx, n.ID, attempt, message, entry); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to record dead letter: %w", err)
	}

	s.metrics.IncNotificationFailed(n.Channel.String(), kind.String())
	s.metrics.IncDeadLetter(n.Channel.String(), kind.String())
	observability.WithContextLogger(s.logger, ctx).Warn("notification dead-lettered",
		zap.String("channel", n.Channel.String()),
		zap.String("failureKind", kind.String()),
		zap.Int("retryCount", attempt),
		zap.String("reason", entry.Reason),
	)

	return entry, nil
}

// failureKindOf maps a provider failure kind onto the stored failure kind.
func failureKindOf(kind provider.Kind) domain.FailureKind {
	switch kind {
	case provider.KindPermanent:
		return domain.FailurePermanent
	case provider.KindValidation:
		return domain.FailureValidation
	default:
		return domain.FailureTransient
	}
}
