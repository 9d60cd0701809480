package whatsapp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/binary/proto"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
	_ "modernc.org/sqlite"
)

const (
	tenantDirPrefix = "tenant-"
	storeFile       = "store.db"
)

// WhatsmeowFactory creates whatsmeow clients whose device credentials live in
// <Dir>/tenant-<id>/store.db.
type WhatsmeowFactory struct {
	Dir      string
	LogLevel string
}

func NewWhatsmeowFactory(dir, logLevel string) *WhatsmeowFactory {
	return &WhatsmeowFactory{Dir: dir, LogLevel: logLevel}
}

func (f *WhatsmeowFactory) tenantDir(tenantID uint) string {
	return filepath.Join(f.Dir, fmt.Sprintf("%s%d", tenantDirPrefix, tenantID))
}

func (f *WhatsmeowFactory) NewClient(ctx context.Context, tenantID uint, sink func(ClientEvent)) (Client, error) {
	dir := f.tenantDir(tenantID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("whatsapp: create credential dir: %w", err)
	}

	clientLog := waLog.Stdout(fmt.Sprintf("Tenant_%d", tenantID), f.LogLevel, true)
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", filepath.Join(dir, storeFile))
	container, err := sqlstore.New(ctx, "sqlite", dsn, clientLog)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: open credential store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		container.Close()
		return nil, fmt.Errorf("whatsapp: load device: %w", err)
	}

	wa := whatsmeow.NewClient(deviceStore, clientLog)
	// Reconnects are driven by the session state machine.
	wa.EnableAutoReconnect = false

	clientCtx, cancel := context.WithCancel(context.Background())
	c := &whatsmeowClient{
		tenantID:  tenantID,
		wa:        wa,
		container: container,
		sink:      sink,
		ctx:       clientCtx,
		cancel:    cancel,
		log:       logrus.WithFields(logrus.Fields{"component": "whatsmeow", "tenant_id": tenantID}),
	}
	wa.AddEventHandler(c.handleEvent)
	return c, nil
}

// Purge deletes every credential file of the tenant.
func (f *WhatsmeowFactory) Purge(tenantID uint) error {
	if err := os.RemoveAll(f.tenantDir(tenantID)); err != nil {
		return fmt.Errorf("whatsapp: purge credentials: %w", err)
	}
	return nil
}

// Tenants lists tenants that have a persisted credential store.
func (f *WhatsmeowFactory) Tenants() ([]uint, error) {
	entries, err := os.ReadDir(f.Dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("whatsapp: list credential dirs: %w", err)
	}

	var tenants []uint
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), tenantDirPrefix) {
			continue
		}
		id, err := strconv.ParseUint(strings.TrimPrefix(e.Name(), tenantDirPrefix), 10, 64)
		if err != nil || id == 0 {
			continue
		}
		if _, err := os.Stat(filepath.Join(f.Dir, e.Name(), storeFile)); err != nil {
			continue
		}
		tenants = append(tenants, uint(id))
	}
	return tenants, nil
}

type whatsmeowClient struct {
	tenantID  uint
	wa        *whatsmeow.Client
	container *sqlstore.Container
	sink      func(ClientEvent)
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	log       *logrus.Entry
}

// Connect opens the websocket. Without stored credentials the QR channel has
// to be requested before connecting.
func (c *whatsmeowClient) Connect(ctx context.Context) error {
	if c.wa.Store.ID == nil {
		qrChan, err := c.wa.GetQRChannel(c.ctx)
		if err != nil {
			return fmt.Errorf("whatsapp: get qr channel: %w", err)
		}
		go c.watchQR(qrChan)
	}
	if err := c.wa.Connect(); err != nil {
		return fmt.Errorf("whatsapp: connect: %w", err)
	}
	return nil
}

func (c *whatsmeowClient) watchQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for evt := range qrChan {
		switch evt.Event {
		case "code":
			c.sink(ClientEvent{Kind: EventPairingCode, Code: evt.Code})
		case "success":
			c.sink(ClientEvent{Kind: EventAuthenticated})
		case "timeout":
			// Expiry is handled by the session's own pairing timer.
			c.log.Debug("qr channel timed out")
		default:
			reason := evt.Event
			if evt.Error != nil {
				reason = evt.Error.Error()
			}
			c.log.WithField("event", evt.Event).Warn("pairing failed")
			c.sink(ClientEvent{Kind: EventAuthFailure, Reason: reason})
		}
	}
}

func (c *whatsmeowClient) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Connected:
		c.sink(ClientEvent{Kind: EventReady})
	case *events.PairSuccess:
		c.sink(ClientEvent{Kind: EventAuthenticated})
	case *events.LoggedOut:
		c.sink(ClientEvent{Kind: EventAuthFailure, Reason: fmt.Sprint(v.Reason)})
	case *events.StreamReplaced:
		c.sink(ClientEvent{Kind: EventDisconnected, Reason: ReasonSuperseded})
	case *events.Disconnected:
		c.sink(ClientEvent{Kind: EventDisconnected, Reason: ReasonConnectionLost})
	case *events.ConnectFailure:
		if v.Reason.IsLoggedOut() {
			c.sink(ClientEvent{Kind: EventAuthFailure, Reason: fmt.Sprint(v.Reason)})
			return
		}
		c.sink(ClientEvent{Kind: EventDisconnected, Reason: ReasonConnectionLost})
	case *events.Message:
		if msg := inboundFromEvent(v); msg != nil {
			c.sink(ClientEvent{Kind: EventInbound, Message: msg})
		}
	}
}

// inboundFromEvent keeps direct text messages whose chat resolves to a phone
// number.
func inboundFromEvent(v *events.Message) *InboundMessage {
	if v.Info.IsFromMe || v.Info.IsGroup {
		return nil
	}
	phone, ok := chatPhone(v.Info.MessageSource)
	if !ok {
		return nil
	}
	var body string
	switch {
	case v.Message.GetConversation() != "":
		body = v.Message.GetConversation()
	case v.Message.GetExtendedTextMessage() != nil:
		body = v.Message.GetExtendedTextMessage().GetText()
	default:
		return nil
	}
	return &InboundMessage{
		ID:        v.Info.ID,
		ChatID:    phone,
		PushName:  v.Info.PushName,
		Body:      body,
		Timestamp: v.Info.Timestamp,
	}
}

// chatPhone returns the phone number of a direct chat. LID-addressed chats
// carry the phone number in the sender's alternate JID.
func chatPhone(src types.MessageSource) (string, bool) {
	switch src.Chat.Server {
	case types.DefaultUserServer:
		return src.Chat.User, true
	case types.HiddenUserServer:
		if src.SenderAlt.Server == types.DefaultUserServer && src.SenderAlt.User != "" {
			return src.SenderAlt.User, true
		}
	}
	return "", false
}

func (c *whatsmeowClient) Disconnect() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.wa.Disconnect()
		if err := c.container.Close(); err != nil {
			c.log.WithError(err).Warn("failed to close credential store")
		}
	})
}

func (c *whatsmeowClient) Logout(ctx context.Context) error {
	if c.wa.Store.ID == nil {
		return nil
	}
	return c.wa.Logout(ctx)
}

func (c *whatsmeowClient) SendText(ctx context.Context, to, body string) error {
	recipient := types.NewJID(to, types.DefaultUserServer)
	msg := &waProto.Message{
		Conversation: proto.String(body),
	}
	if _, err := c.wa.SendMessage(ctx, recipient, msg); err != nil {
		return fmt.Errorf("whatsapp: send message: %w", err)
	}
	return nil
}

func (c *whatsmeowClient) IsLoggedIn() bool {
	return c.wa.Store.ID != nil
}
