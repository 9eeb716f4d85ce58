package models

import "time"

// MessageType enumerates the semantic kinds of customer notifications
type MessageType string

const (
	MessageTypeWelcome               MessageType = "welcome"
	MessageTypeOrderConfirmation     MessageType = "order_confirmation"
	MessageTypeOrderReady            MessageType = "order_ready"
	MessageTypeDeliveryNotification  MessageType = "delivery_notification"
	MessageTypePickupReminder        MessageType = "pickup_reminder"
	MessageTypePaymentReminder       MessageType = "payment_reminder"
	MessageTypeFabricWelcome         MessageType = "fabric_welcome"
	MessageTypeFabricPurchase        MessageType = "fabric_purchase"
	MessageTypeFabricPaymentReminder MessageType = "fabric_payment_reminder"
	MessageTypeCombinedOrder         MessageType = "combined_order"
	MessageTypeWorkerDailyData       MessageType = "worker_daily_data"
	MessageTypeTest                  MessageType = "test"
	MessageTypeFallback              MessageType = "fallback"
)

// IsReminder reports whether the type is expected to repeat per order
// with an increasing sequence number.
func (t MessageType) IsReminder() bool {
	switch t {
	case MessageTypePickupReminder, MessageTypePaymentReminder, MessageTypeFabricPaymentReminder:
		return true
	}
	return false
}

// SheetType disambiguates identically named order IDs across source sheets
type SheetType string

const (
	SheetTypeTailor   SheetType = "tailor"
	SheetTypeFabric   SheetType = "fabric"
	SheetTypeCombined SheetType = "combined"
	SheetTypeWorker   SheetType = "worker"
	// SheetTypeManual marks events that did not originate from a sheet row,
	// such as operator test messages.
	SheetTypeManual SheetType = "manual"
)

// EventStatus enumerates the outcome recorded for a notification attempt
type EventStatus string

const (
	EventStatusSent    EventStatus = "sent"
	EventStatusBlocked EventStatus = "blocked"
	EventStatusFailed  EventStatus = "failed"
)

// BlockReason enumerates classifier verdicts recorded on blocked events
type BlockReason string

const (
	BlockReasonExactDuplicate    BlockReason = "exact_duplicate"
	BlockReasonRateLimitExceeded BlockReason = "rate_limit_exceeded"
	BlockReasonCooldownActive    BlockReason = "cooldown_active"
	BlockReasonSimilarContent    BlockReason = "similar_content_recently_sent"
)

// NotificationEvent is one attempted or completed notification. Rows are
// append-only: consumers never mutate historical events, only the retention
// prune removes them.
//
// At most one sent event may exist per (customer_id, order_id, message_type,
// sheet_type) tuple for non-reminder types; the partial unique index created
// in repository.Migrate enforces this at the store level.
type NotificationEvent struct {
	ID                uint         `gorm:"primaryKey" json:"id"`
	CustomerID        string       `gorm:"size:20;not null;index:idx_notification_events_customer_attempted,priority:1" json:"customer_id"`
	OrderID           string       `gorm:"size:64;not null;index:idx_notification_events_order_id" json:"order_id"`
	MessageType       MessageType  `gorm:"size:32;not null" json:"message_type"`
	SheetType         SheetType    `gorm:"size:16;not null" json:"sheet_type"`
	ContentHash       string       `gorm:"size:64;not null" json:"content_hash"`
	Status            EventStatus  `gorm:"size:16;not null;index:idx_notification_events_status" json:"status"`
	BlockReason       *BlockReason `gorm:"size:40" json:"block_reason,omitempty"`
	ReminderSeq       *int         `json:"reminder_seq,omitempty"`
	TrackingID        string       `gorm:"size:64;not null" json:"tracking_id"`
	ExternalMessageID *string      `gorm:"size:128" json:"external_message_id,omitempty"`
	ErrorText         *string      `gorm:"size:512" json:"error_text,omitempty"`
	AttemptedAt       time.Time    `gorm:"not null;index:idx_notification_events_customer_attempted,priority:2" json:"attempted_at"`
	CreatedAt         time.Time    `gorm:"default:(CURRENT_TIMESTAMP)" json:"created_at"`
}

func (NotificationEvent) TableName() string { return "notification_events" }

// NotificationEventFilter provides filter fields for repository queries
type NotificationEventFilter struct {
	ID              *uint
	CustomerID      *string
	OrderID         *string
	MessageType     *MessageType
	SheetType       *SheetType
	Status          *EventStatus
	ContentHash     *string
	AttemptedAfter  *time.Time
	AttemptedBefore *time.Time
}
