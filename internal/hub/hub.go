// Package hub broadcasts analytics snapshots and log entries to WebSocket
// subscribers. A slow or dead subscriber is dropped, never waited on, so
// delivery can never block the ingestion pipeline.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/quantumnexus/journal-engine/internal/metrics"
	"github.com/quantumnexus/journal-engine/internal/model"
)

// Subscription channels.
const (
	ChannelData = "data"
	ChannelLogs = "logs"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 64
)

// DataUpdate is the push payload recomputed after each reconciliation.
type DataUpdate struct {
	Type           string                  `json:"type"` // "data_update"
	Stats          *model.AnalyticsPeriod  `json:"stats"`
	AccountData    *model.AccountSnapshot  `json:"account_data"`
	AccountHistory []model.AccountSnapshot `json:"account_history"`
}

// LogUpdate is the push payload for one log entry.
type LogUpdate struct {
	Type      string    `json:"type"` // "log_update"
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

type envelope struct {
	channel string
	version int64
	force   bool
	payload []byte
}

// controlMessage is what subscribers send to adjust their channel set.
type controlMessage struct {
	Action   string   `json:"action"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	mu       sync.RWMutex
	channels map[string]bool

	// lastDataVersion is touched only by the hub loop.
	lastDataVersion int64
}

func (c *client) subscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channels[channel]
}

func (c *client) setChannels(channels []string, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range channels {
		if ch == ChannelData || ch == ChannelLogs {
			if on {
				c.channels[ch] = true
			} else {
				delete(c.channels, ch)
			}
		}
	}
}

// Hub manages subscriber connections and fan-out.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan envelope
	register   chan *client
	unregister chan *client

	mu              sync.RWMutex
	snapshot        []byte // marshaled last DataUpdate, sent immediately on subscribe
	snapshotVersion int64
}

// New creates a hub. Run must be started in a goroutine before use.
func New() *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan envelope, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
	}
}

// Run drives the hub's event loop until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			metrics.WebSocketClients.Set(0)
			return

		case c := <-h.register:
			h.clients[c] = true
			metrics.WebSocketClients.Set(float64(len(h.clients)))
			slog.Info("subscriber connected", "id", c.id, "total", len(h.clients))

			// New viewers are never shown a blank state: push the cached
			// snapshot without waiting for the next sync tick.
			h.mu.RLock()
			snap, version := h.snapshot, h.snapshotVersion
			h.mu.RUnlock()
			if snap != nil && c.subscribed(ChannelData) {
				if h.trySend(c, snap) {
					c.lastDataVersion = version
				}
			}

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				metrics.WebSocketClients.Set(float64(len(h.clients)))
				slog.Info("subscriber disconnected", "id", c.id, "total", len(h.clients))
			}

		case env := <-h.broadcast:
			for c := range h.clients {
				if !c.subscribed(env.channel) {
					continue
				}
				// Skip subscribers that already hold this data version,
				// unless a forced refresh was requested.
				if env.channel == ChannelData && !env.force && c.lastDataVersion == env.version {
					continue
				}
				if h.trySend(c, env.payload) && env.channel == ChannelData {
					c.lastDataVersion = env.version
				}
			}
		}
	}
}

// trySend queues a payload without blocking; a subscriber with a full
// buffer is dropped.
func (h *Hub) trySend(c *client, payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	default:
		delete(h.clients, c)
		close(c.send)
		metrics.WebSocketClients.Set(float64(len(h.clients)))
		slog.Warn("subscriber dropped: send buffer full", "id", c.id)
		return false
	}
}

// PublishData caches upd as the current snapshot and broadcasts it to the
// data channel. version is the reconciliation version used for per-
// subscriber diffing; force overrides the unchanged-skip.
// Never blocks: if the broadcast buffer is full the update is dropped and
// subscribers catch up on the next publish.
func (h *Hub) PublishData(upd DataUpdate, version int64, force bool) {
	upd.Type = "data_update"
	payload, err := json.Marshal(upd)
	if err != nil {
		slog.Error("hub: marshal data update", "err", err)
		return
	}

	h.mu.Lock()
	h.snapshot = payload
	h.snapshotVersion = version
	h.mu.Unlock()

	select {
	case h.broadcast <- envelope{channel: ChannelData, version: version, force: force, payload: payload}:
	default:
		metrics.BroadcastsDropped.Inc()
	}
}

// PublishLog broadcasts one log entry to the logs channel.
func (h *Hub) PublishLog(ts time.Time, level, message string) {
	payload, err := json.Marshal(LogUpdate{
		Type:      "log_update",
		Timestamp: ts,
		Level:     level,
		Message:   message,
	})
	if err != nil {
		return
	}
	select {
	case h.broadcast <- envelope{channel: ChannelLogs, payload: payload}:
	default:
		metrics.BroadcastsDropped.Inc()
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true // viewers connect cross-origin from the UI host
	},
}

// HandleWS upgrades GET /api/v1/ws. The initial channel set comes from the
// ?channels=data,logs query parameter (default: data only); subscribers can
// adjust it later with subscribe/unsubscribe control messages.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "err", err)
		return
	}

	channels := map[string]bool{ChannelData: true}
	if raw := r.URL.Query().Get("channels"); raw != "" {
		channels = make(map[string]bool)
		for _, ch := range strings.Split(raw, ",") {
			if ch == ChannelData || ch == ChannelLogs {
				channels[ch] = true
			}
		}
	}

	c := &client{
		id:       uuid.New().String(),
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		channels: channels,
	}

	h.register <- c

	go c.writePump()
	go c.readPump(h)
}

// readPump consumes control messages and detects disconnects.
func (c *client) readPump(h *Hub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(1024)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg controlMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Action {
		case "subscribe":
			c.setChannels(msg.Channels, true)
		case "unsubscribe":
			c.setChannels(msg.Channels, false)
		}
	}
}

// writePump drains the send queue and keeps the connection alive through
// proxies with periodic pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
