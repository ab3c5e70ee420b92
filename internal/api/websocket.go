package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/roomgate/internal/gateway"
	"github.com/nerrad567/roomgate/internal/infrastructure/config"
	"github.com/nerrad567/roomgate/internal/infrastructure/logging"
)

// Frame types exchanged on the event feed.
//
// Client to server: subscribe, unsubscribe, ping.
// Server to client: event, subscribed, unsubscribed, pong, error.
const (
	WSTypeSubscribe    = "subscribe"
	WSTypeUnsubscribe  = "unsubscribe"
	WSTypePing         = "ping"
	WSTypePong         = "pong"
	WSTypeEvent        = "event"
	WSTypeSubscribed   = "subscribed"
	WSTypeUnsubscribed = "unsubscribed"
	WSTypeError        = "error"

	// wsSendBufferSize is how many frames a slow console may fall behind
	// before events for it are dropped.
	wsSendBufferSize = 64
)

// Feed channels, one per gateway.EventKind.
const (
	ChannelUplink  = string(gateway.EventUplink)
	ChannelCommand = string(gateway.EventCommand)
)

// feedChannels lists every channel a console may subscribe to.
var feedChannels = []string{ChannelUplink, ChannelCommand}

// WSRequest is a frame sent by a console.
//
//	{"type":"subscribe","id":"1","channels":["uplink"],"rooms":["101"]}
//
// Rooms narrows uplink reading events to the listed rooms. Status uplinks
// and commands are not room-scoped and always pass the room filter.
type WSRequest struct {
	Type     string   `json:"type"`
	ID       string   `json:"id,omitempty"`
	Channels []string `json:"channels,omitempty"`
	Rooms    []string `json:"rooms,omitempty"`
}

// WSFrame is a frame sent to a console.
type WSFrame struct {
	Type     string         `json:"type"`
	ID       string         `json:"id,omitempty"`
	Channel  string         `json:"channel,omitempty"`
	Event    *gateway.Event `json:"event,omitempty"`
	Channels []string       `json:"channels,omitempty"`
	Rooms    []string       `json:"rooms,omitempty"`
	Error    string         `json:"error,omitempty"`
	SentAt   time.Time      `json:"sent_at"`
}

// Hub fans gateway events out to connected operator consoles.
// It implements gateway.Notifier.
//
// The hub lock guards both the client set and every close of a client's
// send channel, so a delivery never races a disconnect.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	dropped atomic.Uint64
}

// wsClient is one console connection and its subscription filter.
type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu       sync.RWMutex
	channels map[string]struct{}
	rooms    map[string]struct{}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CORS middleware decides which origins reach this handler.
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// NewHub creates an event hub for consoles.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger.With("component", "event-feed"),
		clients: make(map[*wsClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every console.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.detachLocked(c)
		if c.conn != nil {
			c.conn.Close()
		}
	}
}

// Notify implements gateway.Notifier. The event is encoded once and queued
// for every console whose filter accepts it; full queues drop the event.
func (h *Hub) Notify(ctx context.Context, ev gateway.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	channel := string(ev.Kind)
	data, err := json.Marshal(WSFrame{
		Type:    WSTypeEvent,
		Channel: channel,
		Event:   &ev,
		SentAt:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", channel, err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for c := range h.clients {
		if !c.accepts(channel, ev.RoomID) {
			continue
		}
		select {
		case c.send <- data:
			delivered++
		default:
			h.dropped.Add(1)
		}
	}
	if delivered > 0 {
		h.logger.Debug("event delivered", "channel", channel, "consoles", delivered)
	}
	return nil
}

// ClientCount returns the number of connected consoles.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many events were discarded for slow consoles.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("console connected", "consoles", n)
}

// unregister removes c. Repeated calls are harmless.
func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	h.detachLocked(c)
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("console disconnected", "consoles", n)
}

// detachLocked drops c from the set and closes its queue. h.mu must be held.
func (h *Hub) detachLocked(c *wsClient) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// queue sends a reply frame to c unless c has already been detached.
func (h *Hub) queue(c *wsClient, frame WSFrame) {
	frame.SentAt = time.Now().UTC()
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
		h.dropped.Add(1)
	}
}

// handleWebSocket upgrades an authenticated request to the event feed.
// Browsers present a ticket from POST /auth/ws-ticket; other consoles send
// a read or admin credential in the Authorization header. Channels and
// rooms given in the query string are subscribed on connect:
//
//	/api/v1/ws?ticket=...&channels=uplink,command&rooms=101,102
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if ticket := q.Get("ticket"); ticket != "" {
		if !s.validateTicket(ticket) {
			writeUnauthorized(w, "invalid or expired ticket")
			return
		}
	} else if !s.authorizeConsole(r.Header.Get("Authorization")) {
		writeUnauthorized(w, "ticket or read token is required")
		return
	}

	channels := splitList(q.Get("channels"))
	if unknown := unknownChannels(channels); len(unknown) > 0 {
		writeBadRequest(w, "unknown channels: "+strings.Join(unknown, ", "))
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &wsClient{
		hub:      s.hub,
		conn:     conn,
		send:     make(chan []byte, wsSendBufferSize),
		channels: make(map[string]struct{}),
		rooms:    make(map[string]struct{}),
	}
	c.subscribe(channels, splitList(q.Get("rooms")))

	s.hub.register(c)
	go c.writeLoop(s.wsCfg)
	go c.readLoop(s.wsCfg)
}

// readLoop handles console frames until the connection fails.
func (c *wsClient) readLoop(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	idle := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	extend := func(string) error { return c.conn.SetReadDeadline(time.Now().Add(idle)) }

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	_ = extend("") //nolint:errcheck // write side notices a dead conn
	c.conn.SetPongHandler(extend)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("console read failed", "error", err)
			}
			return
		}
		// Browsers that ignore protocol pings stay alive by talking.
		_ = extend("") //nolint:errcheck // as above
		c.handle(data)
	}
}

// writeLoop drains the send queue and pings on an interval.
func (c *wsClient) writeLoop(cfg config.WebSocketConfig) {
	ticker := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	writeWait := time.Duration(cfg.PongTimeout) * time.Second
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return err
		}
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				_ = write(websocket.CloseMessage, nil) //nolint:errcheck // closing anyway
				return
			}
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handle answers one console frame.
func (c *wsClient) handle(data []byte) {
	var req WSRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.hub.queue(c, WSFrame{Type: WSTypeError, Error: "invalid JSON frame"})
		return
	}

	switch req.Type {
	case WSTypeSubscribe:
		if unknown := unknownChannels(req.Channels); len(unknown) > 0 {
			c.hub.queue(c, WSFrame{Type: WSTypeError, ID: req.ID, Error: "unknown channels: " + strings.Join(unknown, ", ")})
			return
		}
		if len(req.Channels) == 0 && len(req.Rooms) == 0 {
			c.hub.queue(c, WSFrame{Type: WSTypeError, ID: req.ID, Error: "channels or rooms required"})
			return
		}
		channels, rooms := c.subscribe(req.Channels, req.Rooms)
		c.hub.queue(c, WSFrame{Type: WSTypeSubscribed, ID: req.ID, Channels: channels, Rooms: rooms})

	case WSTypeUnsubscribe:
		channels, rooms := c.unsubscribe(req.Channels, req.Rooms)
		c.hub.queue(c, WSFrame{Type: WSTypeUnsubscribed, ID: req.ID, Channels: channels, Rooms: rooms})

	case WSTypePing:
		c.hub.queue(c, WSFrame{Type: WSTypePong, ID: req.ID})

	default:
		c.hub.queue(c, WSFrame{Type: WSTypeError, ID: req.ID, Error: "unknown frame type: " + req.Type})
	}
}

// subscribe adds to the filter and returns the resulting sets.
func (c *wsClient) subscribe(channels, rooms []string) ([]string, []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range channels {
		c.channels[ch] = struct{}{}
	}
	for _, r := range rooms {
		c.rooms[r] = struct{}{}
	}
	return sortedKeys(c.channels), sortedKeys(c.rooms)
}

// unsubscribe removes from the filter and returns the resulting sets.
func (c *wsClient) unsubscribe(channels, rooms []string) ([]string, []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range channels {
		delete(c.channels, ch)
	}
	for _, r := range rooms {
		delete(c.rooms, r)
	}
	return sortedKeys(c.channels), sortedKeys(c.rooms)
}

// accepts reports whether an event on channel for roomID passes the filter.
func (c *wsClient) accepts(channel, roomID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.channels[channel]; !ok {
		return false
	}
	if roomID == "" || len(c.rooms) == 0 {
		return true
	}
	_, ok := c.rooms[roomID]
	return ok
}

func unknownChannels(channels []string) []string {
	var unknown []string
	for _, ch := range channels {
		if !slices.Contains(feedChannels, ch) {
			unknown = append(unknown, ch)
		}
	}
	return unknown
}

// splitList parses a comma-separated query value, skipping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
