package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/careloop/reminder-engine/internal/repository"
)

func createRemindersTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_reminders",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.ReminderModel{}); err != nil {
				return err
			}
			indexes := []string{
				// The claim predicate: due items filtered by status and next_run_at.
				`CREATE INDEX IF NOT EXISTS idx_reminders_due ON reminders (next_run_at) WHERE status IN ('SCHEDULED', 'FAILED')`,
				`CREATE INDEX IF NOT EXISTS idx_reminders_org_status_created ON reminders (org_id, status, created_at)`,
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_reminders_idempotency_key ON reminders (org_id, idempotency_key) WHERE idempotency_key IS NOT NULL`,
				`CREATE INDEX IF NOT EXISTS idx_reminders_claimed_at ON reminders (claimed_at) WHERE status = 'CLAIMED'`,
				`CREATE INDEX IF NOT EXISTS idx_reminders_address_created ON reminders (address, created_at)`,
				`CREATE INDEX IF NOT EXISTS idx_reminders_appointment_id ON reminders (appointment_id) WHERE appointment_id IS NOT NULL`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.ReminderModel{})
		},
	}
}
