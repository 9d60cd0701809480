package whatsapp

import (
	"context"
)

// Service is the operator surface over the tenant sessions.
type Service interface {
	Status(ctx context.Context, tenantID uint) (Status, error)
	GetPairingCode(ctx context.Context, tenantID uint) (Status, error)
	ForceNewSession(ctx context.Context, tenantID uint) (Status, error)
	Logout(ctx context.Context, tenantID uint) error
	QueueStatus() AdmissionStatus
}

var _ Service = (*Manager)(nil)
