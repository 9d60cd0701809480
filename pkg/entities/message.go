package entities

import (
	"time"

	"gorm.io/gorm"
)

const (
	DirectionOutbound = "outbound"
	DirectionInbound  = "inbound"

	MessagePending  = "pending"
	MessageSent     = "sent"
	MessageFailed   = "failed"
	MessageReceived = "received"
)

// Message is an append-only record of one send outcome or one inbound message.
// Only Replied changes after insert.
type Message struct {
	gorm.Model
	OwnerID    uint      `json:"owner_id" gorm:"index:idx_message_chat,priority:1;not null"`
	CampaignID *uint     `json:"campaign_id" gorm:"index"`
	ContactID  *uint     `json:"contact_id"`
	ChatID     string    `json:"chat_id" gorm:"type:varchar(64);index:idx_message_chat,priority:2;not null"`
	Direction  string    `json:"direction" gorm:"type:varchar(10);index:idx_message_chat,priority:3;not null"`
	Status     string    `json:"status" gorm:"type:varchar(20);not null"`
	Body       string    `json:"body" gorm:"type:text"`
	Error      string    `json:"error,omitempty" gorm:"type:text"`
	Replied    bool      `json:"replied" gorm:"default:false"`
	Timestamp  time.Time `json:"timestamp"`
}
