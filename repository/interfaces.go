// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/darzihub/darzi-notify/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// NotificationEventRepository is the notification ledger: the append-only
// authoritative history of every notification attempt and outcome.
type NotificationEventRepository interface {
	Repository[models.NotificationEvent, models.NotificationEventFilter]
	// Append records one attempt. The write is durable before Append returns;
	// an error means the outcome is unknown and must not be assumed recorded.
	Append(ctx context.Context, event *models.NotificationEvent) error
	// FindSent returns the sent event for the exact tuple, or nil. Blocked and
	// failed events never match, so a failed candidate stays retryable.
	FindSent(ctx context.Context, customerID, orderID string, messageType models.MessageType, sheetType models.SheetType) (*models.NotificationEvent, error)
	// ListRecentByCustomer returns the customer's events since the given time,
	// ascending by attempted_at.
	ListRecentByCustomer(ctx context.Context, customerID string, since time.Time) ([]*models.NotificationEvent, error)
	// CountSentInWindow counts sent events for the customer since windowStart.
	CountSentInWindow(ctx context.Context, customerID string, windowStart time.Time) (int64, error)
	// Prune removes events older than the retention horizon and reports how
	// many were dropped.
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}

// ReminderCounterRepository issues gapless per-order reminder sequence numbers.
type ReminderCounterRepository interface {
	Next(ctx context.Context, customerID, orderID string, messageType models.MessageType) (int, error)
	Current(ctx context.Context, customerID, orderID string, messageType models.MessageType) (int, error)
}

// PollReportRepository stores per-cycle summaries.
type PollReportRepository interface {
	Repository[models.PollReport, models.PollReportFilter]
	ListRecent(ctx context.Context, limit int) ([]*models.PollReport, error)
}
