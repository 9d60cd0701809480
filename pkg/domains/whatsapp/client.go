package whatsapp

import (
	"context"
	"time"
)

type EventKind string

const (
	EventPairingCode   EventKind = "pairing_code"
	EventAuthenticated EventKind = "authenticated"
	EventReady         EventKind = "ready"
	EventDisconnected  EventKind = "disconnected"
	EventAuthFailure   EventKind = "auth_failure"
	EventInbound       EventKind = "inbound"
)

const (
	ReasonSuperseded     = "superseded"
	ReasonConnectionLost = "connection_lost"
)

// ClientEvent is a lifecycle or message notification from a protocol client.
type ClientEvent struct {
	Kind    EventKind
	Code    string
	Reason  string
	Message *InboundMessage
}

// InboundMessage is a text message received on a tenant's session. ChatID is
// the sender's phone digits, the same key used for outbound records.
type InboundMessage struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	PushName  string    `json:"push_name"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

// Client is one protocol connection for one tenant account.
type Client interface {
	Connect(ctx context.Context) error
	Disconnect()
	Logout(ctx context.Context) error
	SendText(ctx context.Context, to, body string) error
	IsLoggedIn() bool
}

// ClientFactory builds clients and owns the per-tenant credential folders.
type ClientFactory interface {
	NewClient(ctx context.Context, tenantID uint, sink func(ClientEvent)) (Client, error)
	Purge(tenantID uint) error
	Tenants() ([]uint, error)
}
