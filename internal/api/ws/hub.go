package ws

import (
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/workbenchd/workbench/internal/infrastructure/logging"
	"github.com/workbenchd/workbench/internal/infrastructure/monitoring"
	"github.com/workbenchd/workbench/internal/shared/id"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBuffer     = 64
)

// Hub tracks connected control-channel clients and fans messages out to
// them. Reconnection is client-driven: a reconnect only re-establishes
// future delivery, there is no replay of missed commands.
type Hub struct {
	log     *logging.Logger
	metrics *monitoring.Metrics

	mu      sync.RWMutex
	clients map[*Client]bool
}

// NewHub creates an empty hub.
func NewHub(log *logging.Logger, metrics *monitoring.Metrics) *Hub {
	return &Hub{
		log:     log,
		metrics: metrics,
		clients: make(map[*Client]bool),
	}
}

// Broadcast sends a message to every connected client. Slow clients get
// disconnected rather than blocking the fan-out.
func (h *Hub) Broadcast(msg Message) {
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().Unix()
	}
	data, err := sonic.Marshal(msg)
	if err != nil {
		h.log.Error("control message marshal failed", zap.String("type", msg.Type), zap.Error(err))
		return
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.enqueue(data)
	}
	if h.metrics != nil {
		h.metrics.WSMessages.WithLabelValues("out", msg.Type).Add(float64(len(clients)))
	}
}

// ClientCount reports connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	n := len(h.clients)
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.WSConnections.Set(float64(n))
	}
	h.log.Info("control client connected", zap.String("client", c.id.String()), zap.Int("clients", n))
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	c.shutdown()
	if h.metrics != nil {
		h.metrics.WSConnections.Set(float64(n))
	}
	h.log.Info("control client disconnected", zap.String("client", c.id.String()), zap.Int("clients", n))
}

// Client is one control-channel connection. The send channel is never
// closed: Broadcast fans out without holding the hub lock, so a
// concurrent disconnect must not turn an in-flight enqueue into a send
// on a closed channel. Teardown is signalled through done instead.
type Client struct {
	id   id.ClientID
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:   id.NewClientID(),
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

func (c *Client) shutdown() {
	c.once.Do(func() { close(c.done) })
}

// Send marshals and queues one message for this client only.
func (c *Client) Send(msg Message) {
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().Unix()
	}
	data, err := sonic.Marshal(msg)
	if err != nil {
		c.hub.log.Error("control message marshal failed", zap.String("type", msg.Type), zap.Error(err))
		return
	}
	c.enqueue(data)
	if c.hub.metrics != nil {
		c.hub.metrics.WSMessages.WithLabelValues("out", msg.Type).Inc()
	}
}

func (c *Client) enqueue(data []byte) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- data:
	default:
		// Backpressure: drop the laggard, it will reconnect.
		c.hub.log.Warn("control client send buffer full, dropping connection", zap.String("client", c.id.String()))
		c.shutdown()
		if c.conn != nil {
			go c.conn.Close()
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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

func (c *Client) readPump(dispatch func(*Client, Message)) {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Warn("control read error", zap.String("client", c.id.String()), zap.Error(err))
			}
			return
		}
		var msg Message
		if err := sonic.Unmarshal(data, &msg); err != nil {
			c.Send(Message{Type: MsgError, Error: "malformed message"})
			continue
		}
		if c.hub.metrics != nil {
			c.hub.metrics.WSMessages.WithLabelValues("in", msg.Type).Inc()
		}
		dispatch(c, msg)
	}
}
