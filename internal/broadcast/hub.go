package broadcast

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/token-analytics/internal/logging"
	"github.com/token-analytics/internal/observability"
)

// Message types exchanged with clients
const (
	MessageWelcome      = "welcome"
	MessageSubscribe    = "subscribe"
	MessageUnsubscribe  = "unsubscribe"
	MessageSubscribed   = "subscribed"
	MessageUnsubscribed = "unsubscribed"
	MessagePing         = "ping"
	MessagePong         = "pong"
	MessageData         = "data"
	MessageError        = "error"
)

// HubConfig configures websocket connection handling
type HubConfig struct {
	// PingInterval is the interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout closes connections that send nothing, not even a pong, for this long.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// SendBuffer is the number of queued messages per client before messages are dropped.
	SendBuffer int
}

// DefaultHubConfig returns 30s pings and a 60s read timeout
func DefaultHubConfig() HubConfig {
	return HubConfig{
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
		SendBuffer:   64,
	}
}

// Message is the JSON envelope of every server message
type Message struct {
	Type      string      `json:"type"`
	ClientID  string      `json:"clientId,omitempty"`
	Channel   string      `json:"channel,omitempty"`
	Channels  []string    `json:"channels,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// clientMessage is what clients send. Both channel and channels are accepted.
type clientMessage struct {
	Type     string   `json:"type"`
	Channel  string   `json:"channel"`
	Channels []string `json:"channels"`
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once

	mu       sync.RWMutex
	channels map[string]struct{}
}

func (c *client) subscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.channels[channel]
	return ok
}

func (c *client) subscriptions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.channels))
	for ch := range c.channels {
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// Hub tracks websocket clients and their channel subscriptions. It implements Publisher.
type Hub struct {
	cfg      HubConfig
	upgrader websocket.Upgrader
	now      func() time.Time

	mu      sync.RWMutex
	clients map[string]*client
	wg      sync.WaitGroup
}

// NewHub creates a hub with no clients
func NewHub(cfg HubConfig) *Hub {
	def := DefaultHubConfig()
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = def.SendBuffer
	}

	return &Hub{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		now:     time.Now,
		clients: make(map[string]*client),
	}
}

// ServeHTTP upgrades the request and serves the client until it disconnects
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	c := &client{
		id:       uuid.New().String(),
		conn:     conn,
		send:     make(chan []byte, h.cfg.SendBuffer),
		done:     make(chan struct{}),
		channels: make(map[string]struct{}),
	}
	h.register(c)
	defer h.unregister(c)

	h.wg.Add(1)
	go h.writeLoop(c)

	h.reply(c, Message{Type: MessageWelcome, ClientID: c.id, Channels: Channels()})
	h.readLoop(c)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()

	observability.UpdateWebsocketClients(n)
	logging.WithFields(map[string]interface{}{"client": c.id, "clients": n}).Info("Websocket client connected")
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c.id)
	n := len(h.clients)
	h.mu.Unlock()

	c.close()
	_ = c.conn.Close()

	observability.UpdateWebsocketClients(n)
	logging.WithFields(map[string]interface{}{"client": c.id, "clients": n}).Info("Websocket client disconnected")
}

// readLoop handles client messages until the connection fails
func (h *Hub) readLoop(c *client) {
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(h.now().Add(h.cfg.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(h.now().Add(h.cfg.ReadTimeout))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.WithError(err).WithField("client", c.id).Warn("Websocket read failed")
			}
			return
		}
		_ = c.conn.SetReadDeadline(h.now().Add(h.cfg.ReadTimeout))
		h.handleMessage(c, data)
	}
}

// writeLoop is the only writer of c.conn
func (h *Hub) writeLoop(c *client) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), h.now().Add(h.cfg.WriteTimeout))
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(h.now().Add(h.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.close()
				_ = c.conn.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, h.now().Add(h.cfg.WriteTimeout)); err != nil {
				c.close()
				_ = c.conn.Close()
				return
			}
		}
	}
}

func (h *Hub) handleMessage(c *client, data []byte) {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.reply(c, Message{Type: MessageError, Message: "invalid message format"})
		return
	}

	requested := msg.Channels
	if msg.Channel != "" {
		requested = append(requested, msg.Channel)
	}

	switch msg.Type {
	case MessageSubscribe:
		if h.updateSubscriptions(c, requested, true) {
			h.reply(c, Message{Type: MessageSubscribed, Channels: c.subscriptions()})
		}
	case MessageUnsubscribe:
		if h.updateSubscriptions(c, requested, false) {
			h.reply(c, Message{Type: MessageUnsubscribed, Channels: c.subscriptions()})
		}
	case MessagePing:
		h.reply(c, Message{Type: MessagePong})
	default:
		h.reply(c, Message{Type: MessageError, Message: "unknown message type: " + msg.Type})
	}
}

// updateSubscriptions applies the known channels and reports unknown ones.
// It returns false when nothing was applied.
func (h *Hub) updateSubscriptions(c *client, channels []string, subscribe bool) bool {
	applied := 0
	for _, ch := range channels {
		if !IsChannel(ch) {
			h.reply(c, Message{Type: MessageError, Channel: ch, Message: (&ErrUnknownChannel{Channel: ch}).Error()})
			continue
		}
		c.mu.Lock()
		if subscribe {
			c.channels[ch] = struct{}{}
		} else {
			delete(c.channels, ch)
		}
		c.mu.Unlock()
		applied++
	}
	if len(channels) == 0 {
		h.reply(c, Message{Type: MessageError, Message: "no channel given"})
	}
	return applied > 0
}

// reply queues a message for one client
func (h *Hub) reply(c *client, msg Message) {
	msg.Timestamp = h.now().UnixMilli()
	data, err := json.Marshal(msg)
	if err != nil {
		logging.WithError(err).Error("Failed to encode websocket message")
		return
	}
	h.enqueue(c, data)
}

func (h *Hub) enqueue(c *client, data []byte) {
	select {
	case <-c.done:
	case c.send <- data:
	default:
		logging.WithField("client", c.id).Warn("Websocket client is too slow, dropping message")
	}
}

// Publish sends payload to every client subscribed to channel
func (h *Hub) Publish(channel string, payload interface{}) error {
	if !IsChannel(channel) {
		return &ErrUnknownChannel{Channel: channel}
	}

	data, err := json.Marshal(Message{
		Type:      MessageData,
		Channel:   channel,
		Data:      payload,
		Timestamp: h.now().UnixMilli(),
	})
	if err != nil {
		return err
	}

	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		if c.subscribed(channel) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.enqueue(c, data)
	}
	observability.RecordBroadcast(channel)
	return nil
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SubscriptionStats returns the number of subscribers per channel
func (h *Hub) SubscriptionStats() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := make(map[string]int)
	for _, c := range h.clients {
		for _, ch := range c.subscriptions() {
			stats[ch]++
		}
	}
	return stats
}

// Close disconnects every client and waits for their writers to exit
func (h *Hub) Close() {
	h.mu.RLock()
	for _, c := range h.clients {
		c.close()
	}
	h.mu.RUnlock()
	h.wg.Wait()

	h.mu.RLock()
	for _, c := range h.clients {
		_ = c.conn.Close()
	}
	h.mu.RUnlock()
}
