package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/kursadbilgin/notifier/internal/domain"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

type ListParams struct {
	TenantID string
	Status   *domain.Status
	Channel  *domain.Channel
	Limit    int
}

// StaleParams selects notifications whose unit of work appears lost.
type StaleParams struct {
	// Now is compared against lease_expires_at.
	Now time.Time
	// PendingBefore bounds pending notifications that were never leased.
	PendingBefore time.Time
	Limit         int
}

// NotificationRepository is the record store contract of the dispatch core.
// Every write after Claim is guarded on the claimed attempt, so a worker
// that lost its claim can never overwrite a newer outcome.
type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	List(ctx context.Context, params ListParams) ([]domain.Notification, error)

	// Claim moves the notification into processing for attempt, which must
	// equal the stored attempt count. It returns the current record and
	// whether this caller won the claim.
	Claim(ctx context.Context, id string, attempt int, leaseUntil time.Time) (*domain.Notification, bool, error)
	MarkSent(ctx context.Context, id string, attempt int, providerResponse []byte, sentAt time.Time) error
	RecordRetry(ctx context.Context, id string, attempt int, errorMessage string, leaseUntil time.Time) error
	FailWithDeadLetter(ctx context.Context, id string, attempt int, errorMessage string, entry *domain.DeadLetterEntry) error

	GetStale(ctx context.Context, params StaleParams) ([]domain.Notification, error)
	ExtendLease(ctx context.Context, id string, status domain.Status, attemptCount int, now, leaseUntil time.Time) (bool, error)
}

type GormNotificationRepo struct {
	db *gorm.DB
}

func NewGormNotificationRepo(db *gorm.DB) *GormNotificationRepo {
	return &GormNotificationRepo{db: db}
}

func (r *GormNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	model := notificationModelFromDomain(n)
	if model == nil {
		return fmt.Errorf("%w: notification is required", domain.ErrValidation)
	}
	if model.ID == "" {
		model.ID = uuid.NewString()
	}
	if model.Status == "" {
		model.Status = domain.StatusPending
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrConflict
		}
		return err
	}
	*n = *notificationModelToDomain(model)
	return nil
}

func (r *GormNotificationRepo) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	var model NotificationModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return notificationModelToDomain(&model), nil
}

func (r *GormNotificationRepo) List(ctx context.Context, params ListParams) ([]domain.Notification, error) {
	query := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("tenant_id = ?", params.TenantID)

	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.Channel != nil {
		query = query.Where("channel = ?", *params.Channel)
	}

	var models []NotificationModel
	err := query.
		Order("created_at DESC").
		Limit(clampLimit(params.Limit)).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	notifications := make([]domain.Notification, 0, len(models))
	for i := range models {
		notifications = append(notifications, *notificationModelToDomain(&models[i]))
	}

	return notifications, nil
}

func (r *GormNotificationRepo) Claim(ctx context.Context, id string, attempt int, leaseUntil time.Time) (*domain.Notification, bool, error) {
	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ? AND status IN ? AND attempt_count = ?", id, domain.ClaimableStatuses(), attempt).
		Updates(map[string]any{
			"status":           domain.StatusProcessing,
			"attempt_count":    attempt + 1,
			"lease_expires_at": leaseUntil,
			"updated_at":       time.Now().UTC(),
		})
	if result.Error != nil {
		return nil, false, result.Error
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return current, result.RowsAffected == 1, nil
}

func (r *GormNotificationRepo) MarkSent(ctx context.Context, id string, attempt int, providerResponse []byte, sentAt time.Time) error {
	return r.updateClaimed(r.db.WithContext(ctx), id, attempt, map[string]any{
		"status":            domain.StatusSent,
		"provider_response": datatypes.JSON(providerResponse),
		"error_message":     nil,
		"lease_expires_at":  nil,
		"sent_at":           sentAt,
		"updated_at":        time.Now().UTC(),
	})
}

func (r *GormNotificationRepo) RecordRetry(ctx context.Context, id string, attempt int, errorMessage string, leaseUntil time.Time) error {
	return r.updateClaimed(r.db.WithContext(ctx), id, attempt, map[string]any{
		"error_message":    errorMessage,
		"lease_expires_at": leaseUntil,
		"updated_at":       time.Now().UTC(),
	})
}

// FailWithDeadLetter marks the notification failed and stores its dead
// letter in one transaction; neither write is visible without the other.
func (r *GormNotificationRepo) FailWithDeadLetter(ctx context.Context, id string, attempt int, errorMessage string, entry *domain.DeadLetterEntry) error {
	model := deadLetterModelFromDomain(entry)
	if model == nil {
		return fmt.Errorf("%w: dead letter entry is required", domain.ErrValidation)
	}
	if model.NotificationID != id {
		return fmt.Errorf("%w: dead letter entry belongs to %q, not %q", domain.ErrValidation, model.NotificationID, id)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.updateClaimed(tx, id, attempt, map[string]any{
			"status":           domain.StatusFailed,
			"error_message":    errorMessage,
			"lease_expires_at": nil,
			"updated_at":       time.Now().UTC(),
		}); err != nil {
			return err
		}

		if err := tx.Create(model).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: dead letter already exists for %s", domain.ErrConflict, id)
			}
			return fmt.Errorf("failed to create dead letter: %w", err)
		}
		return nil
	})
}

// updateClaimed applies values only while the notification is still in the
// processing state produced by claiming attempt.
func (r *GormNotificationRepo) updateClaimed(db *gorm.DB, id string, attempt int, values map[string]any) error {
	result := db.
		Model(&NotificationModel{}).
		Where("id = ? AND status = ? AND attempt_count = ?", id, domain.StatusProcessing, attempt+1).
		Updates(values)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: notification %s is no longer claimed for attempt %d", domain.ErrConflict, id, attempt)
	}
	return nil
}

func (r *GormNotificationRepo) GetStale(ctx context.Context, params StaleParams) ([]domain.Notification, error) {
	var models []NotificationModel
	err := r.db.WithContext(ctx).
		Where(
			"(status = ? AND lease_expires_at < ?) OR "+
				"(status = ? AND lease_expires_at IS NULL AND created_at < ?) OR "+
				"(status = ? AND lease_expires_at < ?)",
			domain.StatusProcessing, params.Now,
			domain.StatusPending, params.PendingBefore,
			domain.StatusPending, params.Now,
		).
		Order("updated_at ASC").
		Limit(clampLimit(params.Limit)).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	notifications := make([]domain.Notification, 0, len(models))
	for i := range models {
		notifications = append(notifications, *notificationModelToDomain(&models[i]))
	}

	return notifications, nil
}

// ExtendLease pushes the lease of a stale notification forward. Only one of
// several concurrent callers observing the same stale row succeeds.
func (r *GormNotificationRepo) ExtendLease(
	ctx context.Context,
	id string,
	status domain.Status,
	attemptCount int,
	now, leaseUntil time.Time,
) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ? AND status = ? AND attempt_count = ?", id, status, attemptCount).
		Where("(lease_expires_at IS NULL OR lease_expires_at < ?)", now).
		Updates(map[string]any{
			"lease_expires_at": leaseUntil,
			"updated_at":       time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func clampLimit(limit int) int {
	if limit < 1 {
		return defaultListLimit
	}
	return min(limit, maxListLimit)
}
