package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darzihub/darzi-notify/models"
)

func TestRendererCoversAllCustomerMessageTypes(t *testing.T) {
	r, err := NewRenderer("")
	require.NoError(t, err)

	data := TemplateData{
		Name:         "Ramesh",
		OrderID:      "ORD-1",
		Item:         "Kurta",
		Amount:       "1200",
		DueAmount:    "500",
		DeliveryDate: "2026-09-01",
		Seq:          1,
	}

	for msgType := range map[models.MessageType]struct{}{
		models.MessageTypeWelcome:               {},
		models.MessageTypeOrderConfirmation:     {},
		models.MessageTypeOrderReady:            {},
		models.MessageTypeDeliveryNotification:  {},
		models.MessageTypePickupReminder:        {},
		models.MessageTypePaymentReminder:       {},
		models.MessageTypeFabricWelcome:         {},
		models.MessageTypeFabricPurchase:        {},
		models.MessageTypeFabricPaymentReminder: {},
		models.MessageTypeCombinedOrder:         {},
		models.MessageTypeWorkerDailyData:       {},
		models.MessageTypeFallback:              {},
	} {
		body, err := r.Render(msgType, data)
		require.NoError(t, err, "type %s", msgType)
		assert.NotEmpty(t, body)
		assert.Contains(t, body, "Ramesh")
	}
}

func TestRendererUnknownTypeFails(t *testing.T) {
	r, err := NewRenderer("")
	require.NoError(t, err)
	_, err = r.Render(models.MessageType("nonsense"), TemplateData{})
	assert.Error(t, err)
}

func TestRendererShopNameDefault(t *testing.T) {
	r, err := NewRenderer("")
	require.NoError(t, err)
	body, err := r.Render(models.MessageTypeWelcome, TemplateData{Name: "Ramesh", OrderID: "ORD-1"})
	require.NoError(t, err)
	assert.Contains(t, body, "दर्ज़ी हब")

	custom, err := NewRenderer("Sharma Tailors")
	require.NoError(t, err)
	body, err = custom.Render(models.MessageTypeWelcome, TemplateData{Name: "Ramesh", OrderID: "ORD-1"})
	require.NoError(t, err)
	assert.Contains(t, body, "Sharma Tailors")
}
