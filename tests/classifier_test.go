package tests

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	businessflow "github.com/darzihub/darzi-notify/business_flow"
	"github.com/darzihub/darzi-notify/models"
	"github.com/darzihub/darzi-notify/repository"
	testingutil "github.com/darzihub/darzi-notify/testing"
	"github.com/darzihub/darzi-notify/utils"
)

func candidate(customerID, orderID string, msgType models.MessageType, body string) businessflow.Candidate {
	return businessflow.Candidate{
		CustomerID:  customerID,
		Phone:       customerID,
		Name:        "Ramesh",
		OrderID:     orderID,
		MessageType: msgType,
		SheetType:   models.SheetTypeTailor,
		Body:        body,
		ContentHash: utils.ContentHash(body),
	}
}

func TestClassifier(t *testing.T) {
	err := testingutil.TestWithDB(func(db *gorm.DB) error {
		events := repository.NewNotificationEventRepository(db)
		classifier := businessflow.NewClassifier(events, policyConfig())
		ctx := context.Background()
		now := utils.UTCNow()

		t.Run("FreshCandidateAllowed", func(t *testing.T) {
			got, err := classifier.Classify(ctx, candidate("919000000001", "ORD-1", models.MessageTypeWelcome, "hello"), now)
			require.NoError(t, err)
			assert.Equal(t, businessflow.VerdictAllow, got)
		})

		t.Run("SentTupleIsExactDuplicate", func(t *testing.T) {
			// Sent long ago so cooldown and rate limit cannot fire first.
			ev := testingutil.SentEvent("919000000002", "ORD-2", models.MessageTypeOrderReady, now.Add(-23*time.Hour))
			require.NoError(t, events.Append(ctx, ev))

			got, err := classifier.Classify(ctx, candidate("919000000002", "ORD-2", models.MessageTypeOrderReady, "ready"), now)
			require.NoError(t, err)
			assert.Equal(t, businessflow.VerdictExactDuplicate, got)
		})

		t.Run("ExactDuplicateOutranksPolicy", func(t *testing.T) {
			// Same tuple sent one minute ago: both exact duplicate and
			// cooldown apply, exact duplicate must be reported.
			ev := testingutil.SentEvent("919000000003", "ORD-3", models.MessageTypeOrderReady, now.Add(-time.Minute))
			require.NoError(t, events.Append(ctx, ev))

			got, err := classifier.Classify(ctx, candidate("919000000003", "ORD-3", models.MessageTypeOrderReady, "ready"), now)
			require.NoError(t, err)
			assert.Equal(t, businessflow.VerdictExactDuplicate, got)
		})

		t.Run("FailedTupleStaysRetryable", func(t *testing.T) {
			ev := testingutil.FailedEvent("919000000004", "ORD-4", models.MessageTypeWelcome, now.Add(-23*time.Hour))
			require.NoError(t, events.Append(ctx, ev))

			got, err := classifier.Classify(ctx, candidate("919000000004", "ORD-4", models.MessageTypeWelcome, "hello"), now)
			require.NoError(t, err)
			assert.Equal(t, businessflow.VerdictAllow, got)
		})

		t.Run("CooldownBlocksDifferentOrder", func(t *testing.T) {
			ev := testingutil.SentEvent("919000000005", "ORD-5", models.MessageTypeWelcome, now.Add(-time.Minute))
			require.NoError(t, events.Append(ctx, ev))

			got, err := classifier.Classify(ctx, candidate("919000000005", "ORD-6", models.MessageTypeOrderReady, "ready"), now)
			require.NoError(t, err)
			assert.Equal(t, businessflow.VerdictCooldown, got)
		})

		t.Run("AllowedAgainAfterCooldown", func(t *testing.T) {
			got, err := classifier.Classify(ctx, candidate("919000000005", "ORD-6", models.MessageTypeOrderReady, "ready"), now.Add(6*time.Minute))
			require.NoError(t, err)
			assert.Equal(t, businessflow.VerdictAllow, got)
		})

		t.Run("RateLimitAfterWindowBudget", func(t *testing.T) {
			for i := 0; i < 5; i++ {
				ev := testingutil.SentEvent("919000000007", "ORD-R", models.MessageTypePaymentReminder, now.Add(-time.Duration(i+1)*time.Hour))
				ev.ReminderSeq = utils.ToPtr(i + 1)
				ev.ContentHash = utils.ContentHash(string(rune('a' + i)))
				require.NoError(t, events.Append(ctx, ev))
			}
			got, err := classifier.Classify(ctx, candidate("919000000007", "ORD-9", models.MessageTypeWelcome, "hello"), now)
			require.NoError(t, err)
			assert.Equal(t, businessflow.VerdictRateLimit, got)
		})

		t.Run("SimilarContentSameOrderBlocked", func(t *testing.T) {
			body := "same body"
			ev := testingutil.SentEvent("919000000008", "ORD-10", models.MessageTypeWelcome, now.Add(-6*time.Minute))
			ev.ContentHash = utils.ContentHash(body)
			require.NoError(t, events.Append(ctx, ev))

			got, err := classifier.Classify(ctx, candidate("919000000008", "ORD-10", models.MessageTypeOrderReady, body), now)
			require.NoError(t, err)
			assert.Equal(t, businessflow.VerdictSimilarContent, got)
		})

		t.Run("SimilarContentOtherOrderAllowed", func(t *testing.T) {
			// An identical body for a different order is a fresh notification.
			got, err := classifier.Classify(ctx, candidate("919000000008", "ORD-11", models.MessageTypeOrderReady, "same body"), now)
			require.NoError(t, err)
			assert.Equal(t, businessflow.VerdictAllow, got)
		})

		t.Run("ReminderSkipsExactDuplicateCheck", func(t *testing.T) {
			sent := testingutil.SentEvent("919000000009", "ORD-12", models.MessageTypePickupReminder, now.Add(-23*time.Hour))
			sent.ReminderSeq = utils.ToPtr(1)
			require.NoError(t, events.Append(ctx, sent))

			cand := candidate("919000000009", "ORD-12", models.MessageTypePickupReminder, "reminder two")
			cand.ReminderSeq = utils.ToPtr(2)
			got, err := classifier.Classify(ctx, cand, now)
			require.NoError(t, err)
			assert.Equal(t, businessflow.VerdictAllow, got)
		})

		return nil
	})
	require.NoError(t, err)
}
