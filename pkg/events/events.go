package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	CampaignProgress      = "campaign.progress"
	CampaignStatus        = "campaign.status"
	CampaignsChanged      = "campaign.list_changed"
	SessionState          = "session.state"
	SessionPairingCode    = "session.pairing_code"
	SessionPairingExpired = "session.pairing_expired"
	InboundMessage        = "message.inbound"
	AutoReplySent         = "message.auto_reply"
)

// Event is one notification for observers of a tenant account.
type Event struct {
	ID       string      `json:"id"`
	Type     string      `json:"type"`
	TenantID uint        `json:"tenant_id"`
	Payload  interface{} `json:"payload"`
	At       time.Time   `json:"at"`
}

func New(eventType string, tenantID uint, payload interface{}) Event {
	return Event{
		ID:       uuid.NewString(),
		Type:     eventType,
		TenantID: tenantID,
		Payload:  payload,
		At:       time.Now().UTC(),
	}
}

// Publisher delivers events best-effort. Publish never blocks on slow
// observers and never reports failure to the caller.
type Publisher interface {
	Publish(ctx context.Context, evt Event)
}

// Multi fans an event out to every publisher in order.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, evt Event) {
	for _, p := range m {
		p.Publish(ctx, evt)
	}
}

type Noop struct{}

func (Noop) Publish(context.Context, Event) {}
