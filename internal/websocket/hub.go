package websocket

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/futenglish/coach/internal/engine"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 16 * 1024

	// Budget for one full reply: generation plus per-span synthesis.
	replyTimeout = 30 * time.Second

	// pendingBuffer bounds chat messages waiting for their reply.
	pendingBuffer = 16
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Hub maintains the set of active clients and routes their messages
// through the conversation engine.
type Hub struct {
	clients map[string]*Client
	mu      sync.RWMutex

	engine *engine.Engine
	logger *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(eng *engine.Engine, logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		engine:  eng,
		logger:  logger,
	}
}

func (h *Hub) register(client *Client) {
	h.mu.Lock()
	old, replaced := h.clients[client.userID]
	h.clients[client.userID] = client
	h.mu.Unlock()

	if replaced {
		old.shutdown()
	}
	h.logger.Info("Client registered", zap.String("user_id", client.userID))
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	if current, ok := h.clients[client.userID]; ok && current == client {
		delete(h.clients, client.userID)
	}
	h.mu.Unlock()

	client.shutdown()
	h.logger.Info("Client unregistered", zap.String("user_id", client.userID))
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Client is a middleman between the websocket connection and the hub.
// Outgoing frames go through enqueue, which checks the closed flag under
// the mutex; shutdown is the only place the channels close, so a reply
// finishing after a disconnect is dropped instead of panicking.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	pending chan string
	done    chan struct{}
	userID  string
	logger  *zap.Logger

	mu     sync.Mutex
	closed bool
}

// HandleWebSocket upgrades the connection for a pre-authenticated user
// and starts the read/write/reply pumps.
func HandleWebSocket(hub *Hub, c echo.Context, userID string, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, 64),
		pending: make(chan string, pendingBuffer),
		done:    make(chan struct{}),
		userID:  userID,
		logger:  logger,
	}

	hub.register(client)

	go client.writePump()
	go client.readPump()
	go client.replyPump()

	return nil
}

// shutdown marks the client closed and releases its pumps. Safe to call
// from any goroutine, any number of times.
func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	close(c.done)
}

// readPump pumps messages from the websocket connection into the
// engine.
func (c *Client) readPump() {
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
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}
		c.processMessage(message)
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
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

// replyPump answers queued chat messages one at a time. readPump is the
// only producer on pending, so replies leave in the order their messages
// arrived even when the engine takes seconds per reply.
func (c *Client) replyPump() {
	for {
		select {
		case <-c.done:
			return
		case text := <-c.pending:
			c.respond(text)
		}
	}
}

// processMessage dispatches one incoming frame.
func (c *Client) processMessage(data []byte) {
	parsed, err := ParseIncoming(data)
	if err != nil {
		c.logger.Warn("Rejected client message",
			zap.String("user_id", c.userID),
			zap.Error(err))
		c.enqueue(NewErrorMessage("invalid_message", err.Error()))
		return
	}

	switch msg := parsed.(type) {
	case *ChatMessage:
		// Queue for replyPump so pings keep flowing and replies keep
		// arrival order.
		select {
		case c.pending <- msg.Text:
		default:
			c.enqueue(NewErrorMessage("too_many_pending", "muitas mensagens na fila, espera a resposta chegar"))
		}
	case *PingMessage:
		c.enqueue(&PingMessage{BaseMessage: BaseMessage{Type: MessageTypePong}})
	case *BaseMessage: // reset
		c.hub.engine.Reset(c.userID)
		c.enqueue(&BaseMessage{Type: MessageTypeReset})
	}
}

func (c *Client) respond(text string) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
	defer cancel()

	bundle, err := c.hub.engine.HandleMessage(ctx, c.userID, text)
	if errors.Is(err, engine.ErrBusy) {
		c.enqueue(NewErrorMessage("too_many_pending", "muitas mensagens na fila, espera a resposta chegar"))
		return
	}
	if err != nil {
		c.logger.Error("Failed to handle message",
			zap.String("user_id", c.userID),
			zap.Error(err))
		c.enqueue(NewErrorMessage("processing_failed", "não consegui processar sua mensagem, tenta de novo"))
		return
	}

	var audio string
	if bundle.HasAudio() {
		audio = base64.StdEncoding.EncodeToString(bundle.Audio)
	}
	c.enqueue(NewReplyMessage(bundle.Text, audio, time.Since(start)))
}

// enqueue marshals and queues an outgoing message. Messages for a
// disconnected client or a full buffer are dropped.
func (c *Client) enqueue(msg interface{}) {
	payload, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("Failed to marshal outgoing message", zap.Error(err))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		c.logger.Debug("Dropped outgoing message, client disconnected",
			zap.String("user_id", c.userID))
		return
	}
	select {
	case c.send <- payload:
	default:
		c.logger.Warn("Dropped outgoing message, send buffer full",
			zap.String("user_id", c.userID))
	}
}
