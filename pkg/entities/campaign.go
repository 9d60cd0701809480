package entities

import (
	"time"

	"gorm.io/gorm"
)

type CampaignStatus string

const (
	CampaignPending   CampaignStatus = "pending"
	CampaignRunning   CampaignStatus = "running"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
	CampaignFailed    CampaignStatus = "failed"
	CampaignCancelled CampaignStatus = "cancelled"
)

// Terminal reports whether no further processing can happen for the status.
func (s CampaignStatus) Terminal() bool {
	return s == CampaignCompleted || s == CampaignFailed || s == CampaignCancelled
}

// CampaignStats holds the per-campaign counters. Committed rows always satisfy
// Sent + Failed + Skipped + Pending == Total.
type CampaignStats struct {
	Total   int `json:"total" gorm:"not null;default:0"`
	Sent    int `json:"sent" gorm:"not null;default:0"`
	Failed  int `json:"failed" gorm:"not null;default:0"`
	Skipped int `json:"skipped" gorm:"not null;default:0"`
	Pending int `json:"pending" gorm:"not null;default:0"`
}

// Campaign is a bulk send job owned by one tenant account.
type Campaign struct {
	gorm.Model
	OwnerID uint           `json:"owner_id" gorm:"index;not null"`
	Name    string         `json:"name" gorm:"type:varchar(255);not null"`
	Message string         `json:"message" gorm:"type:text;not null"`
	Status  CampaignStatus `json:"status" gorm:"type:varchar(20);index:idx_campaign_claim,priority:1;not null;default:pending"`
	Cursor  int            `json:"cursor" gorm:"column:cursor_pos;not null;default:0"`
	Stats   CampaignStats  `json:"stats" gorm:"embedded;embeddedPrefix:stats_"`

	// Pacing: DelayMin/DelayMax in seconds, PauseBetweenBatches in minutes.
	DelayMin            int `json:"delay_min" gorm:"not null;default:0"`
	DelayMax            int `json:"delay_max" gorm:"not null;default:0"`
	BatchSize           int `json:"batch_size" gorm:"not null;default:0"`
	PauseBetweenBatches int `json:"pause_between_batches" gorm:"not null;default:0"`

	ScheduledFor time.Time  `json:"scheduled_for" gorm:"index:idx_campaign_claim,priority:2;not null"`
	StartedAt    *time.Time `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at"`
	Attempts     int        `json:"attempts" gorm:"not null;default:0"`
	LastError    string     `json:"last_error" gorm:"type:text"`

	// ClaimToken identifies the run that owns a running campaign.
	ClaimToken string `json:"-" gorm:"type:varchar(36)"`

	Contacts []Contact `json:"contacts,omitempty" gorm:"foreignKey:CampaignID"`
}

// Contact is one recipient of a campaign at a fixed position in its list.
type Contact struct {
	ID         uint              `json:"id" gorm:"primarykey"`
	CampaignID uint              `json:"campaign_id" gorm:"uniqueIndex:idx_contact_position,priority:1;not null"`
	Position   int               `json:"position" gorm:"uniqueIndex:idx_contact_position,priority:2;not null"`
	Name       string            `json:"name" gorm:"type:varchar(255)"`
	Phone      string            `json:"phone" gorm:"type:varchar(50);not null"`
	Email      string            `json:"email" gorm:"type:varchar(255)"`
	Attributes map[string]string `json:"attributes" gorm:"serializer:json;type:text"`
}
