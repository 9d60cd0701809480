package entities

import (
	"time"

	"gorm.io/gorm"
)

// WhatsAppSession mirrors the in-memory session state of one tenant so status
// survives restarts.
type WhatsAppSession struct {
	gorm.Model
	OwnerID           uint      `json:"owner_id" gorm:"uniqueIndex;not null"`
	State             string    `json:"state" gorm:"type:varchar(20);not null"`
	IsConnected       bool      `json:"is_connected" gorm:"default:false"`
	IsLoggedIn        bool      `json:"is_logged_in" gorm:"default:false"`
	ReconnectAttempts int       `json:"reconnect_attempts" gorm:"default:0"`
	LastError         string    `json:"last_error" gorm:"type:text"`
	LastActiveAt      time.Time `json:"last_active_at"`
}
