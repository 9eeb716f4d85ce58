package businessflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/darzihub/darzi-notify/config"
	"github.com/darzihub/darzi-notify/models"
	"github.com/darzihub/darzi-notify/repository"
	"github.com/darzihub/darzi-notify/utils"
)

// Transport delivers a rendered message to one phone number and returns the
// provider's message ID.
type Transport interface {
	SendText(ctx context.Context, phone, body string) (string, error)
	Connected() bool
}

// DispatchResult reports what happened to one candidate. Status mirrors the
// ledger row that was written, except for suspension refusals, which write no
// row at all.
type DispatchResult struct {
	Status      models.EventStatus
	BlockReason *models.BlockReason
	TrackingID  string
	MessageID   *string
	Err         error
	// Fallback is set when a blocked dispatch triggered a fallback message.
	Fallback *DispatchResult
}

// DispatchFlow runs candidates through suspension check, classification,
// send, and ledger append. The ledger write is the commit point: a candidate
// whose attempt is not recorded as sent remains eligible next cycle.
type DispatchFlow struct {
	db           *gorm.DB
	events       repository.NotificationEventRepository
	counters     repository.ReminderCounterRepository
	classifier   *Classifier
	breaker      *CircuitBreaker
	transport    Transport
	metrics      *DispatchMetrics
	logger       *log.Logger
	sendTimeout  time.Duration
	fallbackOn   bool
	fallbackBody func(Candidate) string
}

func NewDispatchFlow(
	db *gorm.DB,
	events repository.NotificationEventRepository,
	counters repository.ReminderCounterRepository,
	classifier *Classifier,
	breaker *CircuitBreaker,
	transport Transport,
	metrics *DispatchMetrics,
	logger *log.Logger,
	schedCfg config.SchedulerConfig,
	fallbackBody func(Candidate) string,
) *DispatchFlow {
	return &DispatchFlow{
		db:           db,
		events:       events,
		counters:     counters,
		classifier:   classifier,
		breaker:      breaker,
		transport:    transport,
		metrics:      metrics,
		logger:       logger,
		sendTimeout:  schedCfg.SendTimeout,
		fallbackOn:   schedCfg.FallbackEnabled,
		fallbackBody: fallbackBody,
	}
}

// Dispatch processes one candidate end to end.
//
// An error return means infrastructure trouble (ledger unreachable, transport
// disconnected) and no outcome was recorded; the candidate stays eligible. A
// nil error with a result means the outcome was decided and, except for
// suspensions, durably recorded.
func (f *DispatchFlow) Dispatch(ctx context.Context, cand Candidate) (*DispatchResult, error) {
	if err := cand.Validate(); err != nil {
		return nil, err
	}
	now := utils.UTCNow()

	// Reminder sequences are gapless per tuple: the candidate must carry
	// exactly the next sequence, otherwise another cycle got there first.
	if cand.MessageType.IsReminder() {
		current, err := f.counters.Current(ctx, cand.CustomerID, cand.OrderID, cand.MessageType)
		if err != nil {
			return nil, err
		}
		if *cand.ReminderSeq != current+1 {
			return nil, ErrReminderSequenceStale
		}
	}

	suspended, err := f.breaker.Suspended(ctx, cand.CustomerID, now)
	if err != nil {
		return nil, err
	}
	if suspended {
		f.metrics.SuspendedTotal.Inc()
		f.logger.Printf("dispatch refused, customer %s suspended (order %s, type %s)",
			cand.CustomerID, cand.OrderID, cand.MessageType)
		return &DispatchResult{
			Status:     models.EventStatusFailed,
			TrackingID: uuid.NewString(),
			Err:        ErrCustomerSuspended,
		}, nil
	}

	if !f.transport.Connected() {
		return nil, ErrTransportNotConnected
	}

	verdict, err := f.classifier.Classify(ctx, cand, now)
	if err != nil {
		return nil, err
	}
	trackingID := uuid.NewString()
	if verdict != VerdictAllow {
		reason := verdict.BlockReason()
		if err := f.appendEvent(ctx, cand, trackingID, models.EventStatusBlocked, reason, nil, nil, now); err != nil {
			return nil, err
		}
		f.metrics.DispatchTotal.WithLabelValues(string(models.EventStatusBlocked)).Inc()
		f.metrics.BlockedTotal.WithLabelValues(string(*reason)).Inc()
		f.logger.Printf("dispatch blocked: customer=%s order=%s type=%s reason=%s",
			cand.CustomerID, cand.OrderID, cand.MessageType, *reason)
		result := &DispatchResult{Status: models.EventStatusBlocked, BlockReason: reason, TrackingID: trackingID}

		// The blocked customer still gets a short apology message, itself
		// subject to the full pipeline so fallbacks cannot storm.
		if f.fallbackOn && f.fallbackBody != nil {
			fbResult, fbErr := f.dispatchFallback(ctx, cand)
			if fbErr != nil {
				f.logger.Printf("fallback dispatch error for %s/%s: %v", cand.CustomerID, cand.OrderID, fbErr)
			} else {
				result.Fallback = fbResult
			}
		}
		return result, nil
	}

	messageID, sendErr := f.send(ctx, cand.Phone, cand.Body)
	if sendErr != nil {
		return f.recordFailure(ctx, cand, trackingID, sendErr, now)
	}
	return f.recordSuccess(ctx, cand, trackingID, messageID, now)
}

// DispatchTest sends an operator-initiated test message. It bypasses the
// classifier and the circuit breaker but is still recorded on the ledger so
// reports show it.
func (f *DispatchFlow) DispatchTest(ctx context.Context, rawPhone, body string) (*DispatchResult, error) {
	phone, err := utils.NormalizePhone(rawPhone)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCandidate, err)
	}
	if !f.transport.Connected() {
		return nil, ErrTransportNotConnected
	}

	trackingID := uuid.NewString()
	cand := Candidate{
		CustomerID:  phone,
		Phone:       phone,
		OrderID:     "test-" + trackingID,
		MessageType: models.MessageTypeTest,
		SheetType:   models.SheetTypeManual,
		Body:        body,
		ContentHash: utils.ContentHash(body),
	}
	now := utils.UTCNow()

	messageID, sendErr := f.send(ctx, cand.Phone, cand.Body)
	if sendErr != nil {
		errText := sendErr.Error()
		if err := f.appendEvent(ctx, cand, trackingID, models.EventStatusFailed, nil, nil, &errText, now); err != nil {
			return nil, err
		}
		f.metrics.DispatchTotal.WithLabelValues(string(models.EventStatusFailed)).Inc()
		return &DispatchResult{Status: models.EventStatusFailed, TrackingID: trackingID, Err: sendErr}, nil
	}
	if err := f.appendEvent(ctx, cand, trackingID, models.EventStatusSent, nil, &messageID, nil, now); err != nil {
		return nil, err
	}
	f.metrics.DispatchTotal.WithLabelValues(string(models.EventStatusSent)).Inc()
	return &DispatchResult{Status: models.EventStatusSent, TrackingID: trackingID, MessageID: &messageID}, nil
}

func (f *DispatchFlow) send(ctx context.Context, phone, body string) (string, error) {
	sendCtx, cancel := context.WithTimeout(ctx, f.sendTimeout)
	defer cancel()
	start := time.Now()
	messageID, err := f.transport.SendText(sendCtx, phone, body)
	f.metrics.SendDuration.Observe(time.Since(start).Seconds())
	return messageID, err
}

func (f *DispatchFlow) recordSuccess(ctx context.Context, cand Candidate, trackingID, messageID string, now time.Time) (*DispatchResult, error) {
	// The sent row and the reminder counter advance commit together, so a
	// storage failure cannot leave the counter behind the ledger and reissue
	// an already-used sequence number next cycle.
	err := repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		if aerr := f.appendEvent(txCtx, cand, trackingID, models.EventStatusSent, nil, &messageID, nil, now); aerr != nil {
			return aerr
		}
		if cand.MessageType.IsReminder() {
			if _, cerr := f.counters.Next(txCtx, cand.CustomerID, cand.OrderID, cand.MessageType); cerr != nil {
				return cerr
			}
		}
		return nil
	})
	if errors.Is(err, repository.ErrDuplicateSentEvent) {
		// The message went out but a sent row for the tuple already existed.
		// Keep the original row and surface the anomaly in the log.
		f.logger.Printf("WARNING: duplicate sent row suppressed after live send: customer=%s order=%s type=%s",
			cand.CustomerID, cand.OrderID, cand.MessageType)
	} else if err != nil {
		return nil, err
	}

	if berr := f.breaker.OnSuccess(ctx, cand.CustomerID); berr != nil {
		f.logger.Printf("failed to reset breaker streak for %s: %v", cand.CustomerID, berr)
	}
	f.metrics.DispatchTotal.WithLabelValues(string(models.EventStatusSent)).Inc()
	f.logger.Printf("dispatch sent: customer=%s order=%s type=%s msgid=%s",
		cand.CustomerID, cand.OrderID, cand.MessageType, messageID)
	return &DispatchResult{Status: models.EventStatusSent, TrackingID: trackingID, MessageID: &messageID}, nil
}

func (f *DispatchFlow) recordFailure(ctx context.Context, cand Candidate, trackingID string, sendErr error, now time.Time) (*DispatchResult, error) {
	errText := sendErr.Error()
	if err := f.appendEvent(ctx, cand, trackingID, models.EventStatusFailed, nil, nil, &errText, now); err != nil {
		return nil, err
	}
	if berr := f.breaker.OnFailure(ctx, cand.CustomerID, now); berr != nil {
		f.logger.Printf("failed to record breaker failure for %s: %v", cand.CustomerID, berr)
	}
	f.metrics.DispatchTotal.WithLabelValues(string(models.EventStatusFailed)).Inc()
	f.logger.Printf("dispatch failed: customer=%s order=%s type=%s err=%v",
		cand.CustomerID, cand.OrderID, cand.MessageType, sendErr)
	// A failed candidate stays eligible for the next cycle, so no fallback
	// goes out for it.
	return &DispatchResult{Status: models.EventStatusFailed, TrackingID: trackingID, Err: sendErr}, nil
}

// dispatchFallback runs the apology message through the full pipeline so it is
// classified and recorded like any other message. A fallback never spawns
// another fallback.
func (f *DispatchFlow) dispatchFallback(ctx context.Context, cand Candidate) (*DispatchResult, error) {
	if cand.MessageType == models.MessageTypeFallback {
		return nil, ErrFallbackDepthExceeded
	}
	fb := Candidate{
		CustomerID:  cand.CustomerID,
		Phone:       cand.Phone,
		Name:        cand.Name,
		OrderID:     cand.OrderID,
		MessageType: models.MessageTypeFallback,
		SheetType:   cand.SheetType,
		RowRef:      cand.RowRef,
	}
	fb.Body = f.fallbackBody(cand)
	fb.ContentHash = utils.ContentHash(fb.Body)
	f.metrics.FallbackTotal.Inc()
	return f.Dispatch(ctx, fb)
}

func (f *DispatchFlow) appendEvent(ctx context.Context, cand Candidate, trackingID string, status models.EventStatus, reason *models.BlockReason, messageID, errText *string, now time.Time) error {
	return f.events.Append(ctx, &models.NotificationEvent{
		CustomerID:        cand.CustomerID,
		OrderID:           cand.OrderID,
		MessageType:       cand.MessageType,
		SheetType:         cand.SheetType,
		ContentHash:       cand.ContentHash,
		Status:            status,
		BlockReason:       reason,
		ReminderSeq:       cand.ReminderSeq,
		TrackingID:        trackingID,
		ExternalMessageID: messageID,
		ErrorText:         errText,
		AttemptedAt:       now,
	})
}
