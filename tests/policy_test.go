package tests

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	businessflow "github.com/darzihub/darzi-notify/business_flow"
	"github.com/darzihub/darzi-notify/config"
	"github.com/darzihub/darzi-notify/models"
	testingutil "github.com/darzihub/darzi-notify/testing"
)

func policyConfig() config.PolicyConfig {
	return config.PolicyConfig{
		MaxMessagesPerWindow: 5,
		Cooldown:             5 * time.Minute,
		Lookback:             24 * time.Hour,
		Retention:            7 * 24 * time.Hour,
	}
}

func TestEvaluatePolicy(t *testing.T) {
	cfg := policyConfig()
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	const customer = "919876543210"

	sentAt := func(ago time.Duration) *models.NotificationEvent {
		return testingutil.SentEvent(customer, "ORD-1", models.MessageTypeWelcome, now.Add(-ago))
	}

	t.Run("EmptyHistoryAllows", func(t *testing.T) {
		got := businessflow.EvaluatePolicy(cfg, customer, now, nil)
		assert.Equal(t, businessflow.PolicyOK, got)
	})

	t.Run("RecentSendTriggersCooldown", func(t *testing.T) {
		got := businessflow.EvaluatePolicy(cfg, customer, now, []*models.NotificationEvent{sentAt(1 * time.Minute)})
		assert.Equal(t, businessflow.PolicyCooldownActive, got)
	})

	t.Run("CooldownExpiresExactlyAtBoundary", func(t *testing.T) {
		got := businessflow.EvaluatePolicy(cfg, customer, now, []*models.NotificationEvent{sentAt(5 * time.Minute)})
		assert.Equal(t, businessflow.PolicyOK, got)
	})

	t.Run("RateLimitAtWindowBudget", func(t *testing.T) {
		var recent []*models.NotificationEvent
		for i := 0; i < 5; i++ {
			recent = append(recent, sentAt(time.Duration(i+1)*time.Hour))
		}
		got := businessflow.EvaluatePolicy(cfg, customer, now, recent)
		assert.Equal(t, businessflow.PolicyRateLimitExceeded, got)
	})

	t.Run("RateLimitOutranksCooldown", func(t *testing.T) {
		recent := []*models.NotificationEvent{sentAt(1 * time.Minute)}
		for i := 0; i < 4; i++ {
			recent = append(recent, sentAt(time.Duration(i+1)*time.Hour))
		}
		got := businessflow.EvaluatePolicy(cfg, customer, now, recent)
		assert.Equal(t, businessflow.PolicyRateLimitExceeded, got)
	})

	t.Run("EventsOutsideLookbackDoNotCount", func(t *testing.T) {
		var recent []*models.NotificationEvent
		for i := 0; i < 5; i++ {
			recent = append(recent, sentAt(25*time.Hour+time.Duration(i)*time.Hour))
		}
		got := businessflow.EvaluatePolicy(cfg, customer, now, recent)
		assert.Equal(t, businessflow.PolicyOK, got)
	})

	t.Run("BlockedAndFailedEventsConsumeNoBudget", func(t *testing.T) {
		var recent []*models.NotificationEvent
		for i := 0; i < 5; i++ {
			recent = append(recent, testingutil.FailedEvent(customer, "ORD-1", models.MessageTypeWelcome, now.Add(-time.Duration(i+1)*time.Minute)))
		}
		recent = append(recent,
			testingutil.BlockedEvent(customer, "ORD-1", models.MessageTypeWelcome, models.BlockReasonCooldownActive, now.Add(-time.Minute)))
		got := businessflow.EvaluatePolicy(cfg, customer, now, recent)
		assert.Equal(t, businessflow.PolicyOK, got)
	})

	t.Run("BypassListSkipsEverything", func(t *testing.T) {
		bypassCfg := cfg
		bypassCfg.DeveloperBypass = []string{customer}
		var recent []*models.NotificationEvent
		for i := 0; i < 10; i++ {
			recent = append(recent, sentAt(time.Duration(i)*time.Minute))
		}
		got := businessflow.EvaluatePolicy(bypassCfg, customer, now, recent)
		assert.Equal(t, businessflow.PolicyOK, got)
	})
}
