package models

import "time"

// ReminderCounter stores the last issued reminder sequence number per
// (customer, order, message type). Kept outside the notification ledger so
// the mapper does not rescan history on every poll.
type ReminderCounter struct {
	CustomerID   string      `gorm:"primaryKey;size:20" json:"customer_id"`
	OrderID      string      `gorm:"primaryKey;size:64" json:"order_id"`
	MessageType  MessageType `gorm:"primaryKey;size:32" json:"message_type"`
	LastSequence int         `gorm:"not null;default:0" json:"last_sequence"`
	CreatedAt    time.Time   `gorm:"default:(CURRENT_TIMESTAMP)" json:"created_at"`
	UpdatedAt    time.Time   `gorm:"default:(CURRENT_TIMESTAMP)" json:"updated_at"`
}

func (ReminderCounter) TableName() string { return "reminder_counters" }
