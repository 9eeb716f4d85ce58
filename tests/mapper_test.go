package tests

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/darzihub/darzi-notify/app/scheduler"
	"github.com/darzihub/darzi-notify/app/services"
	"github.com/darzihub/darzi-notify/config"
	"github.com/darzihub/darzi-notify/models"
	"github.com/darzihub/darzi-notify/repository"
	testingutil "github.com/darzihub/darzi-notify/testing"
)

func newTestMapper(t *testing.T, db *gorm.DB) (*scheduler.Mapper, repository.ReminderCounterRepository) {
	t.Helper()
	renderer, err := services.NewRenderer("")
	require.NoError(t, err)
	counters := repository.NewReminderCounterRepository(db)
	cfg := config.SchedulerConfig{ReminderOffsetDays: []int{3, 10, 25, 55}}
	return scheduler.NewMapper(renderer, counters, cfg, log.New(io.Discard, "", 0)), counters
}

func tailorRow(index int, values ...string) services.SheetRow {
	return services.SheetRow{Index: index, Ref: "Orders!row" + string(rune('0'+index)), Values: values}
}

func daysAgo(n int) string {
	return time.Now().AddDate(0, 0, -n).Format("2006-01-02")
}

func TestMapperTailorSheet(t *testing.T) {
	err := testingutil.TestWithDB(func(db *gorm.DB) error {
		m, _ := newTestMapper(t, db)
		ctx := context.Background()

		t.Run("NewOrderYieldsWelcomeAndConfirmation", func(t *testing.T) {
			rows := []services.SheetRow{
				tailorRow(1, "order_id", "name", "phone", "item", "status"),
				tailorRow(2, "ORD-1", "Ramesh", "98765 43210", "Kurta", "New", "", "1200", "0"),
			}
			cands, stats := m.MapRows(ctx, models.SheetTypeTailor, rows)
			assert.Equal(t, 1, stats.RowsRead)
			assert.Equal(t, 0, stats.RowsSkipped)
			require.Len(t, cands, 2)

			assert.Equal(t, models.MessageTypeWelcome, cands[0].MessageType)
			assert.Equal(t, models.MessageTypeOrderConfirmation, cands[1].MessageType)
			for _, c := range cands {
				assert.Equal(t, "919876543210", c.CustomerID)
				assert.Equal(t, "ORD-1", c.OrderID)
				assert.Contains(t, c.Body, "Ramesh")
				assert.NotEmpty(t, c.ContentHash)
			}
			assert.NotEqual(t, cands[0].ContentHash, cands[1].ContentHash)
		})

		t.Run("BadPhoneRowSkipped", func(t *testing.T) {
			rows := []services.SheetRow{
				tailorRow(2, "ORD-2", "Suresh", "12", "Shirt", "New"),
			}
			cands, stats := m.MapRows(ctx, models.SheetTypeTailor, rows)
			assert.Empty(t, cands)
			assert.Equal(t, 1, stats.RowsSkipped)
		})

		t.Run("UnknownStatusSkipped", func(t *testing.T) {
			rows := []services.SheetRow{
				tailorRow(2, "ORD-3", "Mohan", "9876543211", "Coat", "mystery"),
			}
			cands, stats := m.MapRows(ctx, models.SheetTypeTailor, rows)
			assert.Empty(t, cands)
			assert.Equal(t, 1, stats.RowsSkipped)
		})

		t.Run("BlankRowsIgnored", func(t *testing.T) {
			rows := []services.SheetRow{
				tailorRow(2, "", "", "", "", ""),
			}
			cands, stats := m.MapRows(ctx, models.SheetTypeTailor, rows)
			assert.Empty(t, cands)
			assert.Equal(t, 1, stats.RowsSkipped)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestMapperReminders(t *testing.T) {
	err := testingutil.TestWithDB(func(db *gorm.DB) error {
		m, counters := newTestMapper(t, db)
		ctx := context.Background()

		t.Run("PickupReminderDueAfterFirstOffset", func(t *testing.T) {
			rows := []services.SheetRow{
				tailorRow(2, "ORD-10", "Ramesh", "9876543210", "Kurta", "Ready", daysAgo(4)),
			}
			cands, _ := m.MapRows(ctx, models.SheetTypeTailor, rows)
			require.Len(t, cands, 2)
			assert.Equal(t, models.MessageTypeOrderReady, cands[0].MessageType)
			assert.Equal(t, models.MessageTypePickupReminder, cands[1].MessageType)
			require.NotNil(t, cands[1].ReminderSeq)
			assert.Equal(t, 1, *cands[1].ReminderSeq)
			assert.Contains(t, cands[1].Body, "1")
		})

		t.Run("NoReminderBeforeFirstOffset", func(t *testing.T) {
			rows := []services.SheetRow{
				tailorRow(2, "ORD-11", "Ramesh", "9876543210", "Kurta", "Ready", daysAgo(2)),
			}
			cands, _ := m.MapRows(ctx, models.SheetTypeTailor, rows)
			require.Len(t, cands, 1)
			assert.Equal(t, models.MessageTypeOrderReady, cands[0].MessageType)
		})

		t.Run("SecondReminderWaitsForSecondOffset", func(t *testing.T) {
			// First reminder already issued; day 4 is before the 10 day offset.
			_, err := counters.Next(ctx, "919876543210", "ORD-12", models.MessageTypePickupReminder)
			require.NoError(t, err)

			rows := []services.SheetRow{
				tailorRow(2, "ORD-12", "Ramesh", "9876543210", "Kurta", "Ready", daysAgo(4)),
			}
			cands, _ := m.MapRows(ctx, models.SheetTypeTailor, rows)
			require.Len(t, cands, 1)

			rows = []services.SheetRow{
				tailorRow(2, "ORD-12", "Ramesh", "9876543210", "Kurta", "Ready", daysAgo(11)),
			}
			cands, _ = m.MapRows(ctx, models.SheetTypeTailor, rows)
			require.Len(t, cands, 2)
			require.NotNil(t, cands[1].ReminderSeq)
			assert.Equal(t, 2, *cands[1].ReminderSeq)
		})

		t.Run("RemindersStopPastLastOffset", func(t *testing.T) {
			for i := 0; i < 4; i++ {
				_, err := counters.Next(ctx, "919876543210", "ORD-13", models.MessageTypePickupReminder)
				require.NoError(t, err)
			}
			rows := []services.SheetRow{
				tailorRow(2, "ORD-13", "Ramesh", "9876543210", "Kurta", "Ready", daysAgo(100)),
			}
			cands, _ := m.MapRows(ctx, models.SheetTypeTailor, rows)
			require.Len(t, cands, 1)
		})

		t.Run("PaymentReminderNeedsOutstandingDue", func(t *testing.T) {
			rows := []services.SheetRow{
				tailorRow(2, "ORD-14", "Ramesh", "9876543210", "Kurta", "Delivered", daysAgo(5), "1500", "₹500"),
			}
			cands, _ := m.MapRows(ctx, models.SheetTypeTailor, rows)
			require.Len(t, cands, 2)
			assert.Equal(t, models.MessageTypePaymentReminder, cands[1].MessageType)

			rows = []services.SheetRow{
				tailorRow(2, "ORD-15", "Ramesh", "9876543210", "Kurta", "Delivered", daysAgo(5), "1500", "0"),
			}
			cands, _ = m.MapRows(ctx, models.SheetTypeTailor, rows)
			require.Len(t, cands, 1)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestMapperWorkerSheet(t *testing.T) {
	err := testingutil.TestWithDB(func(db *gorm.DB) error {
		m, _ := newTestMapper(t, db)
		ctx := context.Background()

		rows := []services.SheetRow{
			{Index: 2, Ref: "Workers!row2", Values: []string{"Dinesh", "9876500000", "Kurta stitching", "ORD-20", daysAgo(0)}},
		}
		cands, stats := m.MapRows(ctx, models.SheetTypeWorker, rows)
		assert.Equal(t, 0, stats.RowsSkipped)
		require.Len(t, cands, 1)
		assert.Equal(t, models.MessageTypeWorkerDailyData, cands[0].MessageType)
		// Day-scoped order ID so tomorrow's run forms a fresh tuple.
		assert.Contains(t, cands[0].OrderID, "ORD-20-")
		assert.Contains(t, cands[0].Body, "Kurta stitching")
		return nil
	})
	require.NoError(t, err)
}
