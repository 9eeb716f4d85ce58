package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/darzihub/darzi-notify/models"
	"github.com/darzihub/darzi-notify/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReminderCounterRepositoryImpl implements ReminderCounterRepository
type ReminderCounterRepositoryImpl struct {
	db *gorm.DB
}

func NewReminderCounterRepository(db *gorm.DB) ReminderCounterRepository {
	return &ReminderCounterRepositoryImpl{db: db}
}

func (r *ReminderCounterRepositoryImpl) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(TxContextKey).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return r.db
}

// Next increments and returns the sequence for the tuple. The read-modify-write
// runs inside a transaction with a row lock so sequences stay gapless even if
// pollers ever run concurrently.
func (r *ReminderCounterRepositoryImpl) Next(ctx context.Context, customerID, orderID string, messageType models.MessageType) (int, error) {
	var next int
	err := WithTransaction(ctx, r.db, func(txCtx context.Context) error {
		tx := r.getDB(txCtx)

		var counter models.ReminderCounter
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("customer_id = ? AND order_id = ? AND message_type = ?", customerID, orderID, messageType).
			First(&counter).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			counter = models.ReminderCounter{
				CustomerID:   customerID,
				OrderID:      orderID,
				MessageType:  messageType,
				LastSequence: 1,
				CreatedAt:    utils.UTCNow(),
				UpdatedAt:    utils.UTCNow(),
			}
			if err := tx.Create(&counter).Error; err != nil {
				return fmt.Errorf("failed to create reminder counter: %w", err)
			}
		case err != nil:
			return fmt.Errorf("failed to load reminder counter: %w", err)
		default:
			counter.LastSequence++
			if err := tx.Model(&models.ReminderCounter{}).
				Where("customer_id = ? AND order_id = ? AND message_type = ?", customerID, orderID, messageType).
				Updates(map[string]any{"last_sequence": counter.LastSequence, "updated_at": utils.UTCNow()}).Error; err != nil {
				return fmt.Errorf("failed to update reminder counter: %w", err)
			}
		}

		next = counter.LastSequence
		return nil
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

// Current returns the last issued sequence, 0 when none was issued yet.
func (r *ReminderCounterRepositoryImpl) Current(ctx context.Context, customerID, orderID string, messageType models.MessageType) (int, error) {
	db := r.getDB(ctx)
	var counter models.ReminderCounter
	err := db.Where("customer_id = ? AND order_id = ? AND message_type = ?", customerID, orderID, messageType).
		First(&counter).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to load reminder counter: %w", err)
	}
	return counter.LastSequence, nil
}
