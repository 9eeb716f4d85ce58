package businessflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/darzihub/darzi-notify/config"
	"github.com/darzihub/darzi-notify/models"
	"github.com/darzihub/darzi-notify/repository"
)

// Candidate is one notification the mapper wants sent. It carries everything
// the pipeline needs to classify, send, and record the attempt.
type Candidate struct {
	CustomerID  string // normalized phone digits, doubles as customer identity
	Phone       string // same digits, kept separate in case identity ever changes
	Name        string
	OrderID     string
	MessageType models.MessageType
	SheetType   models.SheetType
	Body        string
	ContentHash string
	ReminderSeq *int // set for reminder-class types only
	RowRef      string
}

// Validate checks structural completeness. A candidate that fails here never
// reaches the classifier or the ledger.
func (c Candidate) Validate() error {
	if strings.TrimSpace(c.CustomerID) == "" ||
		strings.TrimSpace(c.OrderID) == "" ||
		c.MessageType == "" || c.SheetType == "" ||
		strings.TrimSpace(c.Body) == "" || c.ContentHash == "" {
		return ErrInvalidCandidate
	}
	if c.MessageType.IsReminder() && c.ReminderSeq == nil {
		return ErrReminderSequenceMissing
	}
	return nil
}

// Verdict is the classifier's decision for one candidate.
type Verdict string

const (
	VerdictAllow          Verdict = "ALLOW"
	VerdictExactDuplicate Verdict = "EXACT_DUPLICATE"
	VerdictRateLimit      Verdict = "RATE_LIMIT_EXCEEDED"
	VerdictCooldown       Verdict = "COOLDOWN_ACTIVE"
	VerdictSimilarContent Verdict = "SIMILAR_CONTENT"
)

// BlockReason maps a blocking verdict to the reason recorded on the ledger
// row. Allow has no reason.
func (v Verdict) BlockReason() *models.BlockReason {
	var r models.BlockReason
	switch v {
	case VerdictExactDuplicate:
		r = models.BlockReasonExactDuplicate
	case VerdictRateLimit:
		r = models.BlockReasonRateLimitExceeded
	case VerdictCooldown:
		r = models.BlockReasonCooldownActive
	case VerdictSimilarContent:
		r = models.BlockReasonSimilarContent
	default:
		return nil
	}
	return &r
}

// Classifier decides, from ledger history alone, whether a candidate may be
// sent. Checks short-circuit in a fixed order: exact duplicate, rate limit,
// cooldown, similar content. The first hit wins and is the recorded reason.
type Classifier struct {
	events repository.NotificationEventRepository
	cfg    config.PolicyConfig
}

func NewClassifier(events repository.NotificationEventRepository, cfg config.PolicyConfig) *Classifier {
	return &Classifier{events: events, cfg: cfg}
}

// Classify evaluates one candidate at the given instant.
//
// Reminder-class candidates skip the exact-duplicate check: the same tuple is
// expected to repeat, distinguished by sequence number. Everything else still
// applies to them.
func (c *Classifier) Classify(ctx context.Context, cand Candidate, now time.Time) (Verdict, error) {
	if c.cfg.Bypassed(cand.CustomerID) {
		return VerdictAllow, nil
	}

	if !cand.MessageType.IsReminder() {
		prior, err := c.events.FindSent(ctx, cand.CustomerID, cand.OrderID, cand.MessageType, cand.SheetType)
		if err != nil {
			return "", fmt.Errorf("failed to look up prior sent event: %w", err)
		}
		if prior != nil {
			return VerdictExactDuplicate, nil
		}
	}

	recent, err := c.events.ListRecentByCustomer(ctx, cand.CustomerID, now.Add(-c.cfg.Lookback))
	if err != nil {
		return "", fmt.Errorf("failed to load recent customer events: %w", err)
	}

	switch EvaluatePolicy(c.cfg, cand.CustomerID, now, recent) {
	case PolicyRateLimitExceeded:
		return VerdictRateLimit, nil
	case PolicyCooldownActive:
		return VerdictCooldown, nil
	}

	// Similar content only counts against the same order; an identical body
	// for a different order is a fresh notification.
	for _, ev := range recent {
		if ev.OrderID == cand.OrderID && ev.Status == models.EventStatusSent && ev.ContentHash == cand.ContentHash {
			return VerdictSimilarContent, nil
		}
	}

	return VerdictAllow, nil
}
