package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/kursadbilgin/notifier/internal/repository"
)

// createNotificationsAttemptsTable adds the per-call audit trail. Rows are
// keyed by (notification_id, attempt_number) so a replayed attempt is a no-op.
func createNotificationsAttemptsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_notification_attempts",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&repository.NotificationAttemptModel{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.NotificationAttemptModel{})
		},
	}
}
