package dtos

import (
	"time"

	"github.com/wadispatch/pkg/entities"
)

type ContactDTO struct {
	Name       string            `json:"name" binding:"max=255"`
	Phone      string            `json:"phone" binding:"required,max=50"`
	Email      string            `json:"email" binding:"omitempty,isemail"`
	Attributes map[string]string `json:"attributes"`
}

// DTO for campaign creation. Delays are seconds, the batch pause is minutes.
type CreateCampaignDTO struct {
	Name                string       `json:"name" binding:"required,max=255"`
	Message             string       `json:"message" binding:"required"`
	Contacts            []ContactDTO `json:"contacts" binding:"required,min=1,dive"`
	DelayMin            int          `json:"delay_min" binding:"gte=0"`
	DelayMax            int          `json:"delay_max" binding:"gte=0"`
	BatchSize           int          `json:"batch_size" binding:"gte=0"`
	PauseBetweenBatches int          `json:"pause_between_batches" binding:"gte=0"`
	ScheduledFor        *time.Time   `json:"scheduled_for"`
}

type CampaignDTO struct {
	ID                  uint                    `json:"id"`
	Name                string                  `json:"name"`
	Message             string                  `json:"message"`
	Status              entities.CampaignStatus `json:"status"`
	Cursor              int                     `json:"cursor"`
	Stats               entities.CampaignStats  `json:"stats"`
	DelayMin            int                     `json:"delay_min"`
	DelayMax            int                     `json:"delay_max"`
	BatchSize           int                     `json:"batch_size"`
	PauseBetweenBatches int                     `json:"pause_between_batches"`
	ScheduledFor        time.Time               `json:"scheduled_for"`
	StartedAt           *time.Time              `json:"started_at"`
	FinishedAt          *time.Time              `json:"finished_at"`
	Attempts            int                     `json:"attempts"`
	LastError           string                  `json:"last_error,omitempty"`
	CreatedAt           time.Time               `json:"created_at"`
}

func NewCampaignDTO(c entities.Campaign) CampaignDTO {
	return CampaignDTO{
		ID:                  c.ID,
		Name:                c.Name,
		Message:             c.Message,
		Status:              c.Status,
		Cursor:              c.Cursor,
		Stats:               c.Stats,
		DelayMin:            c.DelayMin,
		DelayMax:            c.DelayMax,
		BatchSize:           c.BatchSize,
		PauseBetweenBatches: c.PauseBetweenBatches,
		ScheduledFor:        c.ScheduledFor,
		StartedAt:           c.StartedAt,
		FinishedAt:          c.FinishedAt,
		Attempts:            c.Attempts,
		LastError:           c.LastError,
		CreatedAt:           c.CreatedAt,
	}
}

type MessageDTO struct {
	ID        uint      `json:"id"`
	ContactID *uint     `json:"contact_id"`
	ChatID    string    `json:"chat_id"`
	Direction string    `json:"direction"`
	Status    string    `json:"status"`
	Body      string    `json:"body"`
	Error     string    `json:"error,omitempty"`
	Replied   bool      `json:"replied"`
	Timestamp time.Time `json:"timestamp"`
}

func NewMessageDTO(m entities.Message) MessageDTO {
	return MessageDTO{
		ID:        m.ID,
		ContactID: m.ContactID,
		ChatID:    m.ChatID,
		Direction: m.Direction,
		Status:    m.Status,
		Body:      m.Body,
		Error:     m.Error,
		Replied:   m.Replied,
		Timestamp: m.Timestamp,
	}
}

type PageDTO struct {
	Page       int         `json:"page"`
	TotalPages int         `json:"total_pages"`
	Items      interface{} `json:"items"`
}
