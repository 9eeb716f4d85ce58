package testing

import (
	"time"

	"github.com/darzihub/darzi-notify/models"
	"github.com/darzihub/darzi-notify/utils"
	"github.com/google/uuid"
)

// SentEvent builds a sent ledger row with sensible defaults.
func SentEvent(customerID, orderID string, msgType models.MessageType, attemptedAt time.Time) *models.NotificationEvent {
	return &models.NotificationEvent{
		CustomerID:        customerID,
		OrderID:           orderID,
		MessageType:       msgType,
		SheetType:         models.SheetTypeTailor,
		ContentHash:       utils.ContentHash(string(msgType) + orderID),
		Status:            models.EventStatusSent,
		TrackingID:        uuid.NewString(),
		ExternalMessageID: utils.ToPtr("wamid-" + uuid.NewString()[:8]),
		AttemptedAt:       attemptedAt,
	}
}

// FailedEvent builds a failed ledger row.
func FailedEvent(customerID, orderID string, msgType models.MessageType, attemptedAt time.Time) *models.NotificationEvent {
	return &models.NotificationEvent{
		CustomerID:  customerID,
		OrderID:     orderID,
		MessageType: msgType,
		SheetType:   models.SheetTypeTailor,
		ContentHash: utils.ContentHash(string(msgType) + orderID),
		Status:      models.EventStatusFailed,
		TrackingID:  uuid.NewString(),
		ErrorText:   utils.ToPtr("send timed out"),
		AttemptedAt: attemptedAt,
	}
}

// BlockedEvent builds a blocked ledger row with the given reason.
func BlockedEvent(customerID, orderID string, msgType models.MessageType, reason models.BlockReason, attemptedAt time.Time) *models.NotificationEvent {
	return &models.NotificationEvent{
		CustomerID:  customerID,
		OrderID:     orderID,
		MessageType: msgType,
		SheetType:   models.SheetTypeTailor,
		ContentHash: utils.ContentHash(string(msgType) + orderID),
		Status:      models.EventStatusBlocked,
		BlockReason: &reason,
		TrackingID:  uuid.NewString(),
		AttemptedAt: attemptedAt,
	}
}
