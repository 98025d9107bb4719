package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/kursadbilgin/notifier/internal/domain"
)

// DeadLetterRepository reads dead letters. Entries are only written through
// NotificationRepository.FailWithDeadLetter.
type DeadLetterRepository interface {
	GetByNotificationID(ctx context.Context, notificationID string) (*domain.DeadLetterEntry, error)
	List(ctx context.Context, tenantID string, limit int) ([]domain.DeadLetterEntry, error)
}

type GormDeadLetterRepo struct {
	db *gorm.DB
}

func NewGormDeadLetterRepo(db *gorm.DB) *GormDeadLetterRepo {
	return &GormDeadLetterRepo{db: db}
}

func (r *GormDeadLetterRepo) GetByNotificationID(ctx context.Context, notificationID string) (*domain.DeadLetterEntry, error) {
	var model DeadLetterModel
	err := r.db.WithContext(ctx).First(&model, "notification_id = ?", notificationID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return deadLetterModelToDomain(&model), nil
}

func (r *GormDeadLetterRepo) List(ctx context.Context, tenantID string, limit int) ([]domain.DeadLetterEntry, error) {
	var models []DeadLetterModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Limit(clampLimit(limit)).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	entries := make([]domain.DeadLetterEntry, 0, len(models))
	for i := range models {
		entries = append(entries, *deadLetterModelToDomain(&models[i]))
	}
	return entries, nil
}
