package whatsapp

import (
	"context"
	"sync"
	"time"

	"github.com/wadispatch/pkg/config"
	"github.com/wadispatch/pkg/events"
)

type sentMessage struct {
	To   string
	Body string
}

type fakeClient struct {
	sink       func(ClientEvent)
	onConnect  []ClientEvent
	connectErr error

	mu           sync.Mutex
	sendErrs     []error
	sent         []sentMessage
	loggedIn     bool
	disconnected bool
	loggedOut    bool
}

// Connect emits the scripted events synchronously.
func (c *fakeClient) Connect(context.Context) error {
	if c.connectErr != nil {
		return c.connectErr
	}
	for _, evt := range c.onConnect {
		c.sink(evt)
	}
	return nil
}

func (c *fakeClient) Disconnect() {
	c.mu.Lock()
	c.disconnected = true
	c.mu.Unlock()
}

func (c *fakeClient) Logout(context.Context) error {
	c.mu.Lock()
	c.loggedOut = true
	c.mu.Unlock()
	return nil
}

func (c *fakeClient) SendText(_ context.Context, to, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sendErrs) > 0 {
		err := c.sendErrs[0]
		c.sendErrs = c.sendErrs[1:]
		if err != nil {
			return err
		}
	}
	c.sent = append(c.sent, sentMessage{To: to, Body: body})
	return nil
}

func (c *fakeClient) IsLoggedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loggedIn
}

func (c *fakeClient) isDisconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

func (c *fakeClient) sentMessages() []sentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sentMessage(nil), c.sent...)
}

// fakeFactory hands out fakeClients scripted per creation index.
type fakeFactory struct {
	script     func(index int) []ClientEvent
	connectErr func(index int) error

	mu      sync.Mutex
	clients []*fakeClient
	purged  []uint
	tenants []uint
}

func (f *fakeFactory) NewClient(_ context.Context, _ uint, sink func(ClientEvent)) (Client, error) {
	f.mu.Lock()
	index := len(f.clients)
	c := &fakeClient{sink: sink}
	if f.script != nil {
		c.onConnect = f.script(index)
	}
	if f.connectErr != nil {
		c.connectErr = f.connectErr(index)
	}
	f.clients = append(f.clients, c)
	f.mu.Unlock()
	return c, nil
}

func (f *fakeFactory) Purge(tenantID uint) error {
	f.mu.Lock()
	f.purged = append(f.purged, tenantID)
	f.mu.Unlock()
	return nil
}

func (f *fakeFactory) Tenants() ([]uint, error) {
	return f.tenants, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

func (f *fakeFactory) client(i int) *fakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clients[i]
}

func (f *fakeFactory) last() *fakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clients[len(f.clients)-1]
}

func (f *fakeFactory) purgedTenants() []uint {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint(nil), f.purged...)
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, evt events.Event) {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

func (r *recorder) count(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

func testConfig() config.WhatsApp {
	return config.WhatsApp{
		PairingTTL:           time.Second,
		SettleDelay:          time.Millisecond,
		ReconnectBase:        5 * time.Millisecond,
		ReconnectMaxDelay:    20 * time.Millisecond,
		MaxReconnects:        3,
		ForceNewAttempts:     2,
		BringUpGrace:         200 * time.Millisecond,
		AdmissionConcurrency: 3,
	}
}

func always(evts ...ClientEvent) func(int) []ClientEvent {
	return func(int) []ClientEvent { return evts }
}

var (
	readyEvent   = ClientEvent{Kind: EventReady}
	pairingEvent = ClientEvent{Kind: EventPairingCode, Code: "2@pairing-code"}
)
