package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/darzihub/darzi-notify/models"
	"gorm.io/gorm"
)

// ErrDuplicateSentEvent is returned by Append when the partial unique index
// rejects a second sent event for a non-reminder tuple. Callers treat the
// notification as already delivered.
var ErrDuplicateSentEvent = errors.New("sent event already recorded for this tuple")

// NotificationEventRepositoryImpl implements NotificationEventRepository
type NotificationEventRepositoryImpl struct {
	*BaseRepository[models.NotificationEvent, models.NotificationEventFilter]
}

func NewNotificationEventRepository(db *gorm.DB) NotificationEventRepository {
	return &NotificationEventRepositoryImpl{BaseRepository: NewBaseRepository[models.NotificationEvent, models.NotificationEventFilter](db)}
}

func (r *NotificationEventRepositoryImpl) Append(ctx context.Context, event *models.NotificationEvent) error {
	if err := r.Save(ctx, event); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateSentEvent
		}
		return err
	}
	return nil
}

func (r *NotificationEventRepositoryImpl) FindSent(ctx context.Context, customerID, orderID string, messageType models.MessageType, sheetType models.SheetType) (*models.NotificationEvent, error) {
	db := r.getDB(ctx)
	var row models.NotificationEvent
	err := db.Where("customer_id = ? AND order_id = ? AND message_type = ? AND sheet_type = ? AND status = ?",
		customerID, orderID, messageType, sheetType, models.EventStatusSent).
		Order("attempted_at DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find sent event: %w", err)
	}
	return &row, nil
}

func (r *NotificationEventRepositoryImpl) ListRecentByCustomer(ctx context.Context, customerID string, since time.Time) ([]*models.NotificationEvent, error) {
	filter := models.NotificationEventFilter{
		CustomerID:     &customerID,
		AttemptedAfter: &since,
	}
	return r.ByFilter(ctx, filter, "attempted_at ASC", 0, 0)
}

func (r *NotificationEventRepositoryImpl) CountSentInWindow(ctx context.Context, customerID string, windowStart time.Time) (int64, error) {
	sent := models.EventStatusSent
	filter := models.NotificationEventFilter{
		CustomerID:     &customerID,
		Status:         &sent,
		AttemptedAfter: &windowStart,
	}
	return r.Count(ctx, filter)
}

func (r *NotificationEventRepositoryImpl) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	db := r.getDB(ctx)
	res := db.Where("attempted_at < ?", olderThan).Delete(&models.NotificationEvent{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to prune notification events: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *NotificationEventRepositoryImpl) applyFilter(db *gorm.DB, f models.NotificationEventFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.CustomerID != nil {
		db = db.Where("customer_id = ?", *f.CustomerID)
	}
	if f.OrderID != nil {
		db = db.Where("order_id = ?", *f.OrderID)
	}
	if f.MessageType != nil {
		db = db.Where("message_type = ?", *f.MessageType)
	}
	if f.SheetType != nil {
		db = db.Where("sheet_type = ?", *f.SheetType)
	}
	if f.Status != nil {
		db = db.Where("status = ?", *f.Status)
	}
	if f.ContentHash != nil {
		db = db.Where("content_hash = ?", *f.ContentHash)
	}
	if f.AttemptedAfter != nil {
		db = db.Where("attempted_at >= ?", *f.AttemptedAfter)
	}
	if f.AttemptedBefore != nil {
		db = db.Where("attempted_at < ?", *f.AttemptedBefore)
	}
	return db
}

func (r *NotificationEventRepositoryImpl) ByFilter(ctx context.Context, filter models.NotificationEventFilter, orderBy string, limit, offset int) ([]*models.NotificationEvent, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.NotificationEvent{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.NotificationEvent
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *NotificationEventRepositoryImpl) Count(ctx context.Context, filter models.NotificationEventFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.NotificationEvent{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *NotificationEventRepositoryImpl) Exists(ctx context.Context, filter models.NotificationEventFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
