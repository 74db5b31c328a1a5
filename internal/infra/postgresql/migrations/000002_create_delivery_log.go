package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/careloop/reminder-engine/internal/repository"
)

func createDeliveryLogTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_delivery_log",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.DeliveryLogModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_delivery_log_work_item ON delivery_log (work_item_id) WHERE work_item_id IS NOT NULL`,
				`CREATE INDEX IF NOT EXISTS idx_delivery_log_provider_message_id ON delivery_log (provider_message_id) WHERE provider_message_id IS NOT NULL`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.DeliveryLogModel{})
		},
	}
}
