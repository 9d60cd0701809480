package events

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

type subscriber struct {
	send chan Event
}

// Hub pushes events to websocket subscribers of the event's tenant.
type Hub struct {
	mu       sync.RWMutex
	subs     map[uint]map[*subscriber]struct{}
	buffer   int
	upgrader websocket.Upgrader
	log      *logrus.Entry
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{
		subs:   make(map[uint]map[*subscriber]struct{}),
		buffer: buffer,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		log: logrus.WithField("component", "events.hub"),
	}
}

// Publish drops the event for subscribers whose buffer is full.
func (h *Hub) Publish(_ context.Context, evt Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs[evt.TenantID] {
		select {
		case s.send <- evt:
		default:
			h.log.WithFields(logrus.Fields{"tenant_id": evt.TenantID, "type": evt.Type}).Warn("subscriber buffer full, dropping event")
		}
	}
}

// Subscribe registers a channel for tenantID's events. The returned func
// unregisters it and closes the channel.
func (h *Hub) Subscribe(tenantID uint) (<-chan Event, func()) {
	s := &subscriber{send: make(chan Event, h.buffer)}
	h.mu.Lock()
	if h.subs[tenantID] == nil {
		h.subs[tenantID] = make(map[*subscriber]struct{})
	}
	h.subs[tenantID][s] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return s.send, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[tenantID], s)
			if len(h.subs[tenantID]) == 0 {
				delete(h.subs, tenantID)
			}
			h.mu.Unlock()
			close(s.send)
		})
	}
}

// Subscribers returns the number of live subscribers for tenantID.
func (h *Hub) Subscribers(tenantID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[tenantID])
}

// ServeWS upgrades the request and streams tenantID's events until the peer
// goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, tenantID uint) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	ch, unsubscribe := h.Subscribe(tenantID)
	log := h.log.WithField("tenant_id", tenantID)
	log.Info("websocket subscriber connected")

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		unsubscribe()
		conn.Close()
		log.Info("websocket subscriber disconnected")
	}()

	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return nil
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(evt); err != nil {
				log.WithError(err).Warn("websocket write failed, closing subscriber")
				return nil
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		case <-done:
			return nil
		}
	}
}
