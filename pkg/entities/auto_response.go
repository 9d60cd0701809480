package entities

import (
	"time"

	"gorm.io/gorm"
)

const (
	MatchExact    = "exact"
	MatchContains = "contains"
)

// AutoResponseRule answers inbound replies. NormalizedKeyword is empty only for
// the owner's fallback rule, so the unique index also allows one fallback.
type AutoResponseRule struct {
	gorm.Model
	OwnerID           uint    `json:"owner_id" gorm:"uniqueIndex:idx_rule_keyword,priority:1;not null"`
	Keyword           *string `json:"keyword" gorm:"type:varchar(255)"`
	NormalizedKeyword string  `json:"-" gorm:"type:varchar(255);uniqueIndex:idx_rule_keyword,priority:2;not null;default:''"`
	MatchMode         string  `json:"match_mode" gorm:"type:varchar(10);not null;default:exact"`
	Response          string  `json:"response" gorm:"type:text;not null"`
	Active            bool    `json:"active" gorm:"not null"`
	IsFallback        bool    `json:"is_fallback" gorm:"not null"`
}

// AutoResponseLog records a sent auto reply; recent rows suppress further
// replies to the same chat.
type AutoResponseLog struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	OwnerID   uint      `json:"owner_id" gorm:"index:idx_autoresponse_window,priority:1;not null"`
	ChatID    string    `json:"chat_id" gorm:"type:varchar(64);index:idx_autoresponse_window,priority:2;not null"`
	RuleID    uint      `json:"rule_id"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_autoresponse_window,priority:3"`
}
