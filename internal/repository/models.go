package repository

import (
	"time"

	"gorm.io/datatypes"

	"github.com/kursadbilgin/notifier/internal/domain"
)

// NotificationModel is the persistence model for the notifications table.
type NotificationModel struct {
	ID               string            `gorm:"type:uuid;primaryKey"`
	TenantID         string            `gorm:"type:varchar(64);not null;index:idx_notifications_tenant_created,priority:1"`
	Channel          domain.Channel    `gorm:"type:varchar(10);not null"`
	Recipient        string            `gorm:"type:varchar(255);not null"`
	TemplateRef      *string           `gorm:"type:varchar(255)"`
	Subject          *string           `gorm:"type:text"`
	Body             *string           `gorm:"type:text"`
	Variables        datatypes.JSONMap `gorm:"not null"`
	Status           domain.Status     `gorm:"type:varchar(20);not null"`
	ProviderResponse datatypes.JSON
	ErrorMessage     *string `gorm:"type:text"`
	AttemptCount     int     `gorm:"not null;default:0"`
	LeaseExpiresAt   *time.Time
	CreatedAt        time.Time `gorm:"index:idx_notifications_tenant_created,priority:2"`
	UpdatedAt        time.Time
	SentAt           *time.Time
}

func (NotificationModel) TableName() string {
	return "notifications"
}

// NotificationAttemptModel is the persistence model for notification_attempts.
type NotificationAttemptModel struct {
	ID               string                `gorm:"type:uuid;primaryKey"`
	NotificationID   string                `gorm:"type:uuid;not null;uniqueIndex:idx_attempts_notification_attempt,priority:1"`
	AttemptNumber    int                   `gorm:"not null;uniqueIndex:idx_attempts_notification_attempt,priority:2"`
	Provider         string                `gorm:"type:varchar(50);not null;default:''"`
	Outcome          domain.AttemptOutcome `gorm:"type:varchar(20);not null"`
	ProviderResponse datatypes.JSON
	Error            *string `gorm:"type:text"`
	DurationMillis   int64   `gorm:"not null;default:0"`
	CreatedAt        time.Time
}

func (NotificationAttemptModel) TableName() string {
	return "notification_attempts"
}

// TemplateModel is the persistence model for templates. Rows are written by
// the template management surface; this service only reads them.
type TemplateModel struct {
	ID        string            `gorm:"type:uuid;primaryKey"`
	TenantID  string            `gorm:"type:varchar(64);not null;uniqueIndex:idx_templates_tenant_name,priority:1"`
	Name      string            `gorm:"type:varchar(255);not null;uniqueIndex:idx_templates_tenant_name,priority:2"`
	Channel   domain.Channel    `gorm:"type:varchar(10);not null"`
	Subject   *string           `gorm:"type:text"`
	Body      string            `gorm:"type:text;not null"`
	Variables datatypes.JSONMap `gorm:"not null"`
	IsActive  bool              `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (TemplateModel) TableName() string {
	return "templates"
}

// DeadLetterModel is the persistence model for dead_letters.
type DeadLetterModel struct {
	ID             string             `gorm:"type:uuid;primaryKey"`
	NotificationID string             `gorm:"type:uuid;not null;uniqueIndex:idx_dead_letters_notification_id"`
	TenantID       string             `gorm:"type:varchar(64);not null;index:idx_dead_letters_tenant_created,priority:1"`
	Channel        domain.Channel     `gorm:"type:varchar(10);not null"`
	Reason         string             `gorm:"type:text;not null"`
	FailureKind    domain.FailureKind `gorm:"type:varchar(20);not null"`
	RetryCount     int                `gorm:"not null;default:0"`
	CreatedAt      time.Time          `gorm:"index:idx_dead_letters_tenant_created,priority:2"`
}

func (DeadLetterModel) TableName() string {
	return "dead_letters"
}

func notificationModelFromDomain(n *domain.Notification) *NotificationModel {
	if n == nil {
		return nil
	}

	return &NotificationModel{
		ID:               n.ID,
		TenantID:         n.TenantID,
		Channel:          n.Channel,
		Recipient:        n.Recipient,
		TemplateRef:      n.TemplateRef,
		Subject:          n.Subject,
		Body:             n.Body,
		Variables:        jsonMap(n.Variables),
		Status:           n.Status,
		ProviderResponse: datatypes.JSON(n.ProviderResponse),
		ErrorMessage:     n.ErrorMessage,
		AttemptCount:     n.AttemptCount,
		LeaseExpiresAt:   n.LeaseExpiresAt,
		CreatedAt:        n.CreatedAt,
		UpdatedAt:        n.UpdatedAt,
		SentAt:           n.SentAt,
	}
}

func notificationModelToDomain(m *NotificationModel) *domain.Notification {
	if m == nil {
		return nil
	}

	return &domain.Notification{
		ID:               m.ID,
		TenantID:         m.TenantID,
		Channel:          m.Channel,
		Recipient:        m.Recipient,
		TemplateRef:      m.TemplateRef,
		Subject:          m.Subject,
		Body:             m.Body,
		Variables:        map[string]any(m.Variables),
		Status:           m.Status,
		ProviderResponse: []byte(m.ProviderResponse),
		ErrorMessage:     m.ErrorMessage,
		AttemptCount:     m.AttemptCount,
		LeaseExpiresAt:   m.LeaseExpiresAt,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
		SentAt:           m.SentAt,
	}
}

func attemptModelFromDomain(a *domain.NotificationAttempt) *NotificationAttemptModel {
	if a == nil {
		return nil
	}

	return &NotificationAttemptModel{
		ID:               a.ID,
		NotificationID:   a.NotificationID,
		AttemptNumber:    a.AttemptNumber,
		Provider:         a.Provider,
		Outcome:          a.Outcome,
		ProviderResponse: datatypes.JSON(a.ProviderResponse),
		Error:            a.Error,
		DurationMillis:   a.DurationMillis,
		CreatedAt:        a.CreatedAt,
	}
}

func attemptModelToDomain(m *NotificationAttemptModel) *domain.NotificationAttempt {
	if m == nil {
		return nil
	}

	return &domain.NotificationAttempt{
		ID:               m.ID,
		NotificationID:   m.NotificationID,
		AttemptNumber:    m.AttemptNumber,
		Provider:         m.Provider,
		Outcome:          m.Outcome,
		ProviderResponse: []byte(m.ProviderResponse),
		Error:            m.Error,
		DurationMillis:   m.DurationMillis,
		CreatedAt:        m.CreatedAt,
	}
}

func templateModelFromDomain(t *domain.Template) *TemplateModel {
	if t == nil {
		return nil
	}

	return &TemplateModel{
		ID:        t.ID,
		TenantID:  t.TenantID,
		Name:      t.Name,
		Channel:   t.Channel,
		Subject:   t.Subject,
		Body:      t.Body,
		Variables: jsonMap(t.Variables),
		IsActive:  t.IsActive,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

func templateModelToDomain(m *TemplateModel) *domain.Template {
	if m == nil {
		return nil
	}

	return &domain.Template{
		ID:        m.ID,
		TenantID:  m.TenantID,
		Name:      m.Name,
		Channel:   m.Channel,
		Subject:   m.Subject,
		Body:      m.Body,
		Variables: map[string]any(m.Variables),
		IsActive:  m.IsActive,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func deadLetterModelFromDomain(e *domain.DeadLetterEntry) *DeadLetterModel {
	if e == nil {
		return nil
	}

	return &DeadLetterModel{
		ID:             e.ID,
		NotificationID: e.NotificationID,
		TenantID:       e.TenantID,
		Channel:        e.Channel,
		Reason:         e.Reason,
		FailureKind:    e.FailureKind,
		RetryCount:     e.RetryCount,
		CreatedAt:      e.CreatedAt,
	}
}

func deadLetterModelToDomain(m *DeadLetterModel) *domain.DeadLetterEntry {
	if m == nil {
		return nil
	}

	return &domain.DeadLetterEntry{
		ID:             m.ID,
		NotificationID: m.NotificationID,
		TenantID:       m.TenantID,
		Channel:        m.Channel,
		Reason:         m.Reason,
		FailureKind:    m.FailureKind,
		RetryCount:     m.RetryCount,
		CreatedAt:      m.CreatedAt,
	}
}

func jsonMap(values map[string]any) datatypes.JSONMap {
	if values == nil {
		return datatypes.JSONMap{}
	}
	return datatypes.JSONMap(values)
}
