package dto

import "time"

// TestMessageRequest asks for a one-off message outside the poll pipeline.
type TestMessageRequest struct {
	Phone string `json:"phone" validate:"required,min=10,max=16"`
	Body  string `json:"body" validate:"required,min=1,max=1000"`
}

// TestMessageResponse reports the outcome of a test send.
type TestMessageResponse struct {
	Status     string  `json:"status"`
	TrackingID string  `json:"tracking_id"`
	MessageID  *string `json:"message_id,omitempty"`
}

// PollNowResponse returns the report of a manually triggered cycle.
type PollNowResponse struct {
	RowsRead    int `json:"rows_read"`
	RowsSkipped int `json:"rows_skipped"`
	Candidates  int `json:"candidates"`
	Sent        int `json:"sent"`
	Blocked     int `json:"blocked"`
	Failed      int `json:"failed"`
}

// ReportItem is one historical poll cycle.
type ReportItem struct {
	ID              uint      `json:"id"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	RowsRead        int       `json:"rows_read"`
	RowsSkipped     int       `json:"rows_skipped"`
	Candidates      int       `json:"candidates"`
	Sent            int       `json:"sent"`
	BlockedExact    int       `json:"blocked_exact"`
	BlockedRate     int       `json:"blocked_rate"`
	BlockedCooldown int       `json:"blocked_cooldown"`
	BlockedSimilar  int       `json:"blocked_similar"`
	Failed          int       `json:"failed"`
	PrunedEvents    int64     `json:"pruned_events"`
}

// HealthResponse reports process liveness and transport state.
type HealthResponse struct {
	Status            string    `json:"status"`
	WhatsAppConnected bool      `json:"whatsapp_connected"`
	Timestamp         time.Time `json:"timestamp"`
}
