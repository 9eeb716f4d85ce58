package businessflow

import (
	"time"

	"github.com/darzihub/darzi-notify/config"
	"github.com/darzihub/darzi-notify/models"
)

// PolicyVerdict is the outcome of evaluating send-rate policy for a customer.
type PolicyVerdict string

const (
	PolicyOK                PolicyVerdict = "OK"
	PolicyRateLimitExceeded PolicyVerdict = "RATE_LIMIT_EXCEEDED"
	PolicyCooldownActive    PolicyVerdict = "COOLDOWN_ACTIVE"
)

// EvaluatePolicy decides whether a customer may receive another message right
// now, given their recent ledger history. The function is pure: it reads only
// its arguments, so identical inputs always yield the same verdict.
//
// Only sent events count against the customer. Blocked and failed attempts
// never consume rate-limit budget or start a cooldown.
//
// Rate limiting outranks cooldown: a customer who is both over budget and
// inside the cooldown window is reported as rate limited.
func EvaluatePolicy(cfg config.PolicyConfig, customerID string, now time.Time, recent []*models.NotificationEvent) PolicyVerdict {
	if cfg.Bypassed(customerID) {
		return PolicyOK
	}

	windowStart := now.Add(-cfg.Lookback)
	sentInWindow := 0
	var lastSent time.Time
	for _, ev := range recent {
		if ev.Status != models.EventStatusSent {
			continue
		}
		if ev.AttemptedAt.Before(windowStart) {
			continue
		}
		sentInWindow++
		if ev.AttemptedAt.After(lastSent) {
			lastSent = ev.AttemptedAt
		}
	}

	if sentInWindow >= cfg.MaxMessagesPerWindow {
		return PolicyRateLimitExceeded
	}
	if !lastSent.IsZero() && now.Sub(lastSent) < cfg.Cooldown {
		return PolicyCooldownActive
	}
	return PolicyOK
}
