package tests

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/darzihub/darzi-notify/app/services"
	businessflow "github.com/darzihub/darzi-notify/business_flow"
	"github.com/darzihub/darzi-notify/config"
	"github.com/darzihub/darzi-notify/models"
	"github.com/darzihub/darzi-notify/repository"
	testingutil "github.com/darzihub/darzi-notify/testing"
	"github.com/darzihub/darzi-notify/utils"
)

type flowFixture struct {
	flow      *businessflow.DispatchFlow
	events    repository.NotificationEventRepository
	counters  repository.ReminderCounterRepository
	transport *services.MockTransport
	breaker   *businessflow.CircuitBreaker
}

func newFlowFixture(db *gorm.DB, policy config.PolicyConfig) *flowFixture {
	return newFlowFixtureWithScheduler(db, policy, config.SchedulerConfig{SendTimeout: 5 * time.Second}, nil)
}

func newFlowFixtureWithScheduler(db *gorm.DB, policy config.PolicyConfig, schedCfg config.SchedulerConfig, fallbackBody func(businessflow.Candidate) string) *flowFixture {
	logger := log.New(io.Discard, "", 0)
	events := repository.NewNotificationEventRepository(db)
	counters := repository.NewReminderCounterRepository(db)
	transport := services.NewMockTransport(nil)
	breaker := businessflow.NewCircuitBreaker(businessflow.NewMemorySuspensionStore(), policy)
	classifier := businessflow.NewClassifier(events, policy)
	metrics := businessflow.NewDispatchMetrics(prometheus.NewRegistry())
	flow := businessflow.NewDispatchFlow(
		db, events, counters, classifier, breaker, transport, metrics, logger,
		schedCfg, fallbackBody,
	)
	return &flowFixture{flow: flow, events: events, counters: counters, transport: transport, breaker: breaker}
}

func TestDispatchFlow(t *testing.T) {
	err := testingutil.TestWithDB(func(db *gorm.DB) error {
		policy := policyConfig()
		policy.BreakerThreshold = 3
		policy.BreakerWindow = 15 * time.Minute
		policy.BreakerSuspension = time.Hour
		f := newFlowFixture(db, policy)
		ctx := context.Background()

		t.Run("SuccessfulSendIsRecorded", func(t *testing.T) {
			cand := candidate("919100000001", "ORD-1", models.MessageTypeWelcome, "hello")
			result, err := f.flow.Dispatch(ctx, cand)
			require.NoError(t, err)
			assert.Equal(t, models.EventStatusSent, result.Status)
			require.NotNil(t, result.MessageID)

			row, err := f.events.FindSent(ctx, cand.CustomerID, cand.OrderID, cand.MessageType, cand.SheetType)
			require.NoError(t, err)
			require.NotNil(t, row)
			assert.Equal(t, *result.MessageID, *row.ExternalMessageID)
			assert.Len(t, f.transport.Sent(), 1)
		})

		t.Run("SecondAttemptBlockedAsDuplicate", func(t *testing.T) {
			cand := candidate("919100000001", "ORD-1", models.MessageTypeWelcome, "hello")
			result, err := f.flow.Dispatch(ctx, cand)
			require.NoError(t, err)
			assert.Equal(t, models.EventStatusBlocked, result.Status)
			require.NotNil(t, result.BlockReason)
			assert.Equal(t, models.BlockReasonExactDuplicate, *result.BlockReason)
			// Nothing new went out.
			assert.Len(t, f.transport.Sent(), 1)
		})

		t.Run("InvalidCandidateRejectedUpfront", func(t *testing.T) {
			cand := candidate("919100000002", "", models.MessageTypeWelcome, "hello")
			_, err := f.flow.Dispatch(ctx, cand)
			assert.ErrorIs(t, err, businessflow.ErrInvalidCandidate)
		})

		t.Run("DisconnectedTransportRecordsNothing", func(t *testing.T) {
			f.transport.SetConnected(false)
			defer f.transport.SetConnected(true)
			cand := candidate("919100000003", "ORD-2", models.MessageTypeWelcome, "hello")
			_, err := f.flow.Dispatch(ctx, cand)
			assert.ErrorIs(t, err, businessflow.ErrTransportNotConnected)

			recent, err := f.events.ListRecentByCustomer(ctx, cand.CustomerID, utils.UTCNow().Add(-time.Hour))
			require.NoError(t, err)
			assert.Empty(t, recent)
		})

		t.Run("SendFailureRecordedAndRetryable", func(t *testing.T) {
			sendErr := errors.New("number unreachable")
			f.transport.FailPhone("919100000004", sendErr)
			cand := candidate("919100000004", "ORD-3", models.MessageTypeOrderReady, "ready")

			result, err := f.flow.Dispatch(ctx, cand)
			require.NoError(t, err)
			assert.Equal(t, models.EventStatusFailed, result.Status)

			// The failed row does not satisfy the exact-duplicate check.
			f.transport.HealPhone("919100000004")
			result, err = f.flow.Dispatch(ctx, cand)
			require.NoError(t, err)
			assert.Equal(t, models.EventStatusSent, result.Status)
		})

		t.Run("BreakerSuspendsAfterConsecutiveFailures", func(t *testing.T) {
			sendErr := errors.New("number unreachable")
			f.transport.FailPhone("919100000005", sendErr)

			// Orders differ so duplicate checks stay out of the way.
			for i := 0; i < 3; i++ {
				cand := candidate("919100000005", "ORD-F"+string(rune('1'+i)), models.MessageTypeWelcome, "hello "+string(rune('1'+i)))
				result, err := f.flow.Dispatch(ctx, cand)
				require.NoError(t, err)
				assert.Equal(t, models.EventStatusFailed, result.Status)
			}

			// Fourth attempt is refused without touching the ledger.
			cand := candidate("919100000005", "ORD-F4", models.MessageTypeWelcome, "hello again")
			result, err := f.flow.Dispatch(ctx, cand)
			require.NoError(t, err)
			assert.Equal(t, models.EventStatusFailed, result.Status)
			assert.ErrorIs(t, result.Err, businessflow.ErrCustomerSuspended)

			recent, err := f.events.ListRecentByCustomer(ctx, "919100000005", utils.UTCNow().Add(-time.Hour))
			require.NoError(t, err)
			assert.Len(t, recent, 3)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestDispatchFlowReminders(t *testing.T) {
	err := testingutil.TestWithDB(func(db *gorm.DB) error {
		f := newFlowFixture(db, policyConfig())
		ctx := context.Background()

		t.Run("ReminderWithoutSeqRejected", func(t *testing.T) {
			cand := candidate("919200000001", "ORD-1", models.MessageTypePickupReminder, "reminder")
			_, err := f.flow.Dispatch(ctx, cand)
			assert.ErrorIs(t, err, businessflow.ErrReminderSequenceMissing)
		})

		t.Run("SentReminderAdvancesCounter", func(t *testing.T) {
			cand := candidate("919200000001", "ORD-1", models.MessageTypePickupReminder, "reminder one")
			cand.ReminderSeq = utils.ToPtr(1)
			result, err := f.flow.Dispatch(ctx, cand)
			require.NoError(t, err)
			assert.Equal(t, models.EventStatusSent, result.Status)

			current, err := f.counters.Current(ctx, cand.CustomerID, cand.OrderID, cand.MessageType)
			require.NoError(t, err)
			assert.Equal(t, 1, current)
		})

		t.Run("StaleSequenceRejected", func(t *testing.T) {
			cand := candidate("919200000001", "ORD-1", models.MessageTypePickupReminder, "reminder one again")
			cand.ReminderSeq = utils.ToPtr(1)
			_, err := f.flow.Dispatch(ctx, cand)
			assert.ErrorIs(t, err, businessflow.ErrReminderSequenceStale)
		})

		return nil
	})
	require.NoError(t, err)
}

func newFallbackFixture(db *gorm.DB, policy config.PolicyConfig) *flowFixture {
	schedCfg := config.SchedulerConfig{SendTimeout: 5 * time.Second, FallbackEnabled: true}
	body := func(c businessflow.Candidate) string {
		return "क्षमा करें " + c.Name + ", आपका संदेश अभी नहीं भेजा जा सका।"
	}
	return newFlowFixtureWithScheduler(db, policy, schedCfg, body)
}

func TestDispatchFallback(t *testing.T) {
	err := testingutil.TestWithDB(func(db *gorm.DB) error {
		f := newFallbackFixture(db, policyConfig())
		ctx := context.Background()

		t.Run("BlockedDispatchTriggersFallback", func(t *testing.T) {
			// The welcome went out an hour ago, so the duplicate block fires
			// while cooldown stays quiet and the apology itself can be sent.
			prior := testingutil.SentEvent("919300000001", "ORD-1", models.MessageTypeWelcome, utils.UTCNow().Add(-time.Hour))
			require.NoError(t, f.events.Append(ctx, prior))

			cand := candidate("919300000001", "ORD-1", models.MessageTypeWelcome, "hello")
			result, err := f.flow.Dispatch(ctx, cand)
			require.NoError(t, err)
			assert.Equal(t, models.EventStatusBlocked, result.Status)
			require.NotNil(t, result.Fallback)
			assert.Equal(t, models.EventStatusSent, result.Fallback.Status)
			// Only the apology went over the wire.
			require.Len(t, f.transport.Sent(), 1)

			row, err := f.events.FindSent(ctx, cand.CustomerID, cand.OrderID, models.MessageTypeFallback, cand.SheetType)
			require.NoError(t, err)
			require.NotNil(t, row)
		})

		t.Run("BlockedFallbackDoesNotChain", func(t *testing.T) {
			cand := candidate("919300000001", "ORD-1", models.MessageTypeWelcome, "hello")
			result, err := f.flow.Dispatch(ctx, cand)
			require.NoError(t, err)
			assert.Equal(t, models.EventStatusBlocked, result.Status)
			require.NotNil(t, result.Fallback)
			assert.Equal(t, models.EventStatusBlocked, result.Fallback.Status)
			assert.Nil(t, result.Fallback.Fallback)
			// Nothing new went out.
			assert.Len(t, f.transport.Sent(), 1)
		})

		t.Run("FailedSendGetsNoFallback", func(t *testing.T) {
			f.transport.FailPhone("919300000002", errors.New("number unreachable"))
			cand := candidate("919300000002", "ORD-2", models.MessageTypeWelcome, "hello")
			result, err := f.flow.Dispatch(ctx, cand)
			require.NoError(t, err)
			assert.Equal(t, models.EventStatusFailed, result.Status)
			assert.Nil(t, result.Fallback)
		})

		return nil
	})
	require.NoError(t, err)
}

// stalledCounters fails every sequence advance while reads keep working.
type stalledCounters struct {
	repository.ReminderCounterRepository
}

func (stalledCounters) Next(ctx context.Context, customerID, orderID string, messageType models.MessageType) (int, error) {
	return 0, errors.New("counter store unavailable")
}

func TestDispatchReminderCounterFailureLeavesNoSentRow(t *testing.T) {
	err := testingutil.TestWithDB(func(db *gorm.DB) error {
		logger := log.New(io.Discard, "", 0)
		policy := policyConfig()
		events := repository.NewNotificationEventRepository(db)
		counters := stalledCounters{repository.NewReminderCounterRepository(db)}
		transport := services.NewMockTransport(nil)
		breaker := businessflow.NewCircuitBreaker(businessflow.NewMemorySuspensionStore(), policy)
		classifier := businessflow.NewClassifier(events, policy)
		metrics := businessflow.NewDispatchMetrics(prometheus.NewRegistry())
		flow := businessflow.NewDispatchFlow(
			db, events, counters, classifier, breaker, transport, metrics, logger,
			config.SchedulerConfig{SendTimeout: 5 * time.Second}, nil,
		)

		cand := candidate("919400000001", "ORD-1", models.MessageTypePickupReminder, "reminder one")
		cand.ReminderSeq = utils.ToPtr(1)
		ctx := context.Background()

		_, err := flow.Dispatch(ctx, cand)
		require.Error(t, err)

		// The ledger write rolled back together with the counter failure, so
		// the same sequence number stays dispatchable next cycle.
		row, err := events.FindSent(ctx, cand.CustomerID, cand.OrderID, cand.MessageType, cand.SheetType)
		require.NoError(t, err)
		assert.Nil(t, row)
		return nil
	})
	require.NoError(t, err)
}

func TestDispatchTest(t *testing.T) {
	err := testingutil.TestWithDB(func(db *gorm.DB) error {
		f := newFlowFixture(db, policyConfig())
		ctx := context.Background()

		t.Run("BypassesClassifierButIsRecorded", func(t *testing.T) {
			// Two identical test sends in a row both go out.
			for i := 0; i < 2; i++ {
				result, err := f.flow.DispatchTest(ctx, "98765 43210", "test message")
				require.NoError(t, err)
				assert.Equal(t, models.EventStatusSent, result.Status)
			}
			assert.Len(t, f.transport.Sent(), 2)
			assert.Equal(t, "919876543210", f.transport.Sent()[0].Phone)

			recent, err := f.events.ListRecentByCustomer(ctx, "919876543210", utils.UTCNow().Add(-time.Hour))
			require.NoError(t, err)
			require.Len(t, recent, 2)
			assert.Equal(t, models.MessageTypeTest, recent[0].MessageType)
			assert.Equal(t, models.SheetTypeManual, recent[0].SheetType)
		})

		t.Run("BadPhoneRejected", func(t *testing.T) {
			_, err := f.flow.DispatchTest(ctx, "12", "test")
			assert.ErrorIs(t, err, businessflow.ErrInvalidCandidate)
		})

		return nil
	})
	require.NoError(t, err)
}
