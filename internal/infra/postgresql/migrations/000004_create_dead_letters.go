package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/kursadbilgin/notifier/internal/repository"
)

// Dead letters reference notifications one-to-one; the unique index on
// notification_id comes from the model tags.
func createDeadLettersTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000004_create_dead_letters",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&repository.DeadLetterModel{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.DeadLetterModel{})
		},
	}
}
