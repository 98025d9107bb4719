package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kursadbilgin/notifier/internal/domain"
	"github.com/kursadbilgin/notifier/internal/render"
	"github.com/kursadbilgin/notifier/internal/repository"
)

// TemplatePreviewer renders a stored template with sample variables.
type TemplatePreviewer interface {
	Preview(ctx context.Context, tenantID, ref string, vars map[string]any) (render.Rendered, error)
}

// NotificationService is the read side used by the status API. Every
// lookup is scoped to the calling tenant.
type NotificationService struct {
	notifications repository.NotificationRepository
	attempts      repository.AttemptRepository
	deadLetters   repository.DeadLetterRepository
	previewer     TemplatePreviewer
	logger        *zap.Logger
}

// NotificationDetail is a notification with its attempt history and, once
// failed, its dead-letter entry.
type NotificationDetail struct {
	Notification *domain.Notification
	Attempts     []domain.NotificationAttempt
	DeadLetter   *domain.DeadLetterEntry
}

type ListFilter struct {
	Status  string
	Channel string
	Limit   int
}

func NewNotificationService(
	notifications repository.NotificationRepository,
	attempts repository.AttemptRepository,
	deadLetters repository.DeadLetterRepository,
	previewer TemplatePreviewer,
	logger *zap.Logger,
) (*NotificationService, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if attempts == nil {
		return nil, fmt.Errorf("attempt repository is required")
	}
	if deadLetters == nil {
		return nil, fmt.Errorf("dead letter repository is required")
	}
	if previewer == nil {
		return nil, fmt.Errorf("template previewer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &NotificationService{
		notifications: notifications,
		attempts:      attempts,
		deadLetters:   deadLetters,
		previewer:     previewer,
		logger:        logger,
	}, nil
}

// GetByID returns ErrNotFound for malformed ids and for records of another
// tenant, so ids cannot be probed across tenants.
func (s *NotificationService) GetByID(ctx context.Context, tenantID, id string) (*NotificationDetail, error) {
	tenantID, err := requireTenant(tenantID)
	if err != nil {
		return nil, err
	}

	id = strings.TrimSpace(id)
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}

	n, err := s.notifications.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}

	attempts, err := s.attempts.GetByNotificationID(ctx, n.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load attempts: %w", err)
	}

	detail := &NotificationDetail{Notification: n, Attempts: attempts}
	if n.Status == domain.StatusFailed {
		entry, err := s.deadLetters.GetByNotificationID(ctx, n.ID)
		switch {
		case err == nil:
			detail.DeadLetter = entry
		case errors.Is(err, domain.ErrNotFound):
			s.logger.Warn("failed notification has no dead letter",
				zap.String("notificationId", n.ID),
				zap.String("tenantId", n.TenantID),
			)
		default:
			return nil, fmt.Errorf("failed to load dead letter: %w", err)
		}
	}

	return detail, nil
}

func (s *NotificationService) List(ctx context.Context, tenantID string, filter ListFilter) ([]domain.Notification, error) {
	tenantID, err := requireTenant(tenantID)
	if err != nil {
		return nil, err
	}

	params := repository.ListParams{TenantID: tenantID, Limit: filter.Limit}
	if strings.TrimSpace(filter.Status) != "" {
		status, err := domain.ParseStatusFromString(filter.Status)
		if err != nil {
			return nil, err
		}
		params.Status = &status
	}
	if strings.TrimSpace(filter.Channel) != "" {
		channel, err := domain.ParseChannelFromString(filter.Channel)
		if err != nil {
			return nil, err
		}
		params.Channel = &channel
	}

	return s.notifications.List(ctx, params)
}

func (s *NotificationService) ListDeadLetters(ctx context.Context, tenantID string, limit int) ([]domain.DeadLetterEntry, error) {
	tenantID, err := requireTenant(tenantID)
	if err != nil {
		return nil, err
	}
	return s.deadLetters.List(ctx, tenantID, limit)
}

// PreviewTemplate maps render failures onto the domain sentinels: a missing
// template is ErrNotFound, anything else the template cannot render is
// ErrValidation.
func (s *NotificationService) PreviewTemplate(
	ctx context.Context,
	tenantID string,
	ref string,
	vars map[string]any,
) (render.Rendered, error) {
	tenantID, err := requireTenant(tenantID)
	if err != nil {
		return render.Rendered{}, err
	}

	rendered, err := s.previewer.Preview(ctx, tenantID, ref, vars)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrValidation):
			return render.Rendered{}, err
		case render.IsRenderError(err):
			return render.Rendered{}, fmt.Errorf("%w: %v", domain.ErrValidation, err)
		}
		return render.Rendered{}, fmt.Errorf("failed to preview template: %w", err)
	}
	return rendered, nil
}

func requireTenant(tenantID string) (string, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return "", fmt.Errorf("%w: tenant is required", domain.ErrValidation)
	}
	return tenantID, nil
}
