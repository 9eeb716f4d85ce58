package models

import "time"

// PollReport summarizes one completed poll cycle for operator visibility.
type PollReport struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	StartedAt       time.Time `gorm:"not null;index:idx_poll_reports_started_at" json:"started_at"`
	FinishedAt      time.Time `gorm:"not null" json:"finished_at"`
	RowsRead        int       `gorm:"not null;default:0" json:"rows_read"`
	RowsSkipped     int       `gorm:"not null;default:0" json:"rows_skipped"`
	Candidates      int       `gorm:"not null;default:0" json:"candidates"`
	Sent            int       `gorm:"not null;default:0" json:"sent"`
	BlockedExact    int       `gorm:"not null;default:0" json:"blocked_exact"`
	BlockedRate     int       `gorm:"not null;default:0" json:"blocked_rate"`
	BlockedCooldown int       `gorm:"not null;default:0" json:"blocked_cooldown"`
	BlockedSimilar  int       `gorm:"not null;default:0" json:"blocked_similar"`
	Failed          int       `gorm:"not null;default:0" json:"failed"`
	PrunedEvents    int64     `gorm:"not null;default:0" json:"pruned_events"`
	CreatedAt       time.Time `gorm:"default:(CURRENT_TIMESTAMP)" json:"created_at"`
}

func (PollReport) TableName() string { return "poll_reports" }

// PollReportFilter provides filter fields for repository queries
type PollReportFilter struct {
	ID            *uint
	StartedAfter  *time.Time
	StartedBefore *time.Time
}
