package repository

import (
	"fmt"

	"github.com/darzihub/darzi-notify/models"
	"gorm.io/gorm"
)

// Migrate creates the schema and the partial unique index that enforces
// at-most-once sent delivery per non-reminder tuple. The predicate works on
// both SQLite and Postgres.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.NotificationEvent{},
		&models.ReminderCounter{},
		&models.PollReport{},
	); err != nil {
		return fmt.Errorf("failed to run auto migration: %w", err)
	}

	// Reminder events carry reminder_seq and are allowed to repeat; everything
	// else gets exactly one sent row per tuple.
	if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS uniq_notification_events_sent
		ON notification_events (customer_id, order_id, message_type, sheet_type)
		WHERE status = 'sent' AND reminder_seq IS NULL`).Error; err != nil {
		return fmt.Errorf("failed to create sent uniqueness index: %w", err)
	}

	return nil
}
