package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"furrydomains/backend/internal/auth/jwt"
	"furrydomains/backend/internal/domain"
	"furrydomains/backend/internal/monitoring"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = 54 * time.Second
	sendBuffer   = 64
	previewRunes = 100
)

// TokenValidator 校验连接时携带的 JWT
type TokenValidator interface {
	ValidateToken(token string) (*jwt.Claims, error)
}

// Relay 跨实例转发新邮件通知
type Relay interface {
	Publish(ctx context.Context, userID string, message *domain.Message) error
}

// MessageType WebSocket 消息类型
type MessageType string

const (
	MessageTypeNewMail MessageType = "new_mail"
	MessageTypePing    MessageType = "ping"
	MessageTypePong    MessageType = "pong"
	MessageTypeError   MessageType = "error"
)

// Message WebSocket 消息结构
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMailData 新邮件通知数据
type NewMailData struct {
	MessageID string `json:"messageId"`
	InboxID   string `json:"inboxId"`
	From      string `json:"from"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
	Preview   string `json:"preview,omitempty"`
	CreatedAt string `json:"createdAt"`
}

// Client 一个已认证的 WebSocket 连接
type Client struct {
	ID     string
	UserID string
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
}

type delivery struct {
	userID string
	data   []byte
}

// Hub 按租户管理连接并推送新邮件
type Hub struct {
	users      map[string]map[string]*Client // userID -> clientID -> Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan delivery
	done       chan struct{}
	mu         sync.RWMutex

	tokens         TokenValidator
	relay          Relay
	allowedOrigins []string
	metrics        *monitoring.Metrics
	log            *zap.Logger
}

// NewHub 创建 Hub；allowedOrigins 为空时允许所有来源
func NewHub(tokens TokenValidator, allowedOrigins []string, metrics *monitoring.Metrics, log *zap.Logger) *Hub {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return &Hub{
		users:          make(map[string]map[string]*Client),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		broadcast:      make(chan delivery, 256),
		done:           make(chan struct{}),
		tokens:         tokens,
		allowedOrigins: allowedOrigins,
		metrics:        metrics,
		log:            log,
	}
}

// SetRelay 启用跨实例通知
func (h *Hub) SetRelay(relay Relay) {
	h.relay = relay
}

// Run 启动 Hub，直到 ctx 结束
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.log.Info("websocket hub stopped")
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.users[client.UserID] == nil {
				h.users[client.UserID] = make(map[string]*Client)
			}
			h.users[client.UserID][client.ID] = client
			h.mu.Unlock()
			h.clientsChanged(1)
			h.log.Debug("websocket client registered", zap.String("id", client.ID), zap.String("user_id", client.UserID))

		case client := <-h.unregister:
			h.remove(client)

		case d := <-h.broadcast:
			h.deliver(d)
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	clients, ok := h.users[client.UserID]
	if ok {
		if _, ok = clients[client.ID]; ok {
			delete(clients, client.ID)
			if len(clients) == 0 {
				delete(h.users, client.UserID)
			}
			close(client.send)
		}
	}
	h.mu.Unlock()
	if ok {
		h.clientsChanged(-1)
		h.log.Debug("websocket client unregistered", zap.String("id", client.ID))
	}
}

func (h *Hub) clientsChanged(delta float64) {
	if h.metrics != nil {
		h.metrics.WebSocketClients.Add(delta)
	}
}

// ClientCount 当前连接数
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, clients := range h.users {
		n += len(clients)
	}
	return n
}

// NotifyNewMail 通知租户有新邮件；配置了 Relay 时经由 Relay 广播到所有实例
func (h *Hub) NotifyNewMail(ctx context.Context, userID string, message *domain.Message) {
	if h.relay != nil {
		err := h.relay.Publish(ctx, userID, message)
		if err == nil {
			return
		}
		h.log.Warn("new mail relay failed, delivering locally", zap.String("user_id", userID), zap.Error(err))
	}
	h.Push(userID, message)
}

// Push 只向本实例的连接推送
func (h *Hub) Push(userID string, message *domain.Message) {
	data, err := json.Marshal(newMailEnvelope(message))
	if err != nil {
		h.log.Error("failed to marshal new mail notification", zap.Error(err))
		return
	}
	select {
	case h.broadcast <- delivery{userID: userID, data: data}:
	case <-h.done:
	default:
		h.log.Warn("websocket broadcast queue full, notification dropped", zap.String("user_id", userID))
	}
}

func newMailEnvelope(message *domain.Message) *Message {
	preview := message.Text
	if utf8.RuneCountInString(preview) > previewRunes {
		preview = string([]rune(preview)[:previewRunes])
	}
	data, _ := json.Marshal(NewMailData{
		MessageID: message.ID,
		InboxID:   message.InboxID,
		From:      message.From,
		To:        message.To,
		Subject:   message.Subject,
		Preview:   preview,
		CreatedAt: message.CreatedAt.Format(time.RFC3339),
	})
	return &Message{Type: MessageTypeNewMail, Data: data, Timestamp: time.Now()}
}

func (h *Hub) deliver(d delivery) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.users[d.userID] {
		select {
		case client.send <- d.data:
		default:
			h.log.Warn("websocket client blocked, skipping", zap.String("id", client.ID))
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	n := 0
	for _, clients := range h.users {
		for _, client := range clients {
			close(client.send)
			n++
		}
	}
	h.users = make(map[string]map[string]*Client)
	h.mu.Unlock()
	h.clientsChanged(float64(-n))
}

// authenticate 从查询参数 token 或 Authorization 头读取 JWT
func (h *Hub) authenticate(c *gin.Context) (*jwt.Claims, error) {
	token := c.Query("token")
	if token == "" {
		parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			token = strings.TrimSpace(parts[1])
		}
	}
	if token == "" {
		return nil, errors.New("missing authentication token")
	}
	return h.tokens.ValidateToken(token)
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// HandleWebSocket 处理 WebSocket 连接
func HandleWebSocket(hub *Hub) gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     hub.checkOrigin,
	}

	return func(c *gin.Context) {
		claims, err := hub.authenticate(c)
		if err != nil {
			hub.log.Warn("websocket authentication failed", zap.Error(err), zap.String("remote_addr", c.ClientIP()))
			c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "msg": "authentication required"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.log.Warn("failed to upgrade websocket connection",
				zap.Error(err),
				zap.String("origin", c.Request.Header.Get("Origin")),
			)
			return
		}

		client := &Client{
			ID:     uuid.NewString(),
			UserID: claims.UserID,
			conn:   conn,
			send:   make(chan []byte, sendBuffer),
			hub:    hub,
		}
		select {
		case hub.register <- client:
		case <-hub.done:
			_ = conn.Close()
			return
		}

		go client.writePump()
		go client.readPump()
	}
}

// readPump 读取客户端消息，连接断开时注销
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debug("websocket read error", zap.String("id", c.ID), zap.Error(err))
			}
			return
		}
		c.handleMessage(&msg)
	}
}

func (c *Client) handleMessage(msg *Message) {
	switch msg.Type {
	case MessageTypePing:
		c.sendMessage(&Message{Type: MessageTypePong, Timestamp: time.Now()})
	case MessageTypePong:
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	default:
		c.sendMessage(&Message{Type: MessageTypeError, Error: "unsupported message type", Timestamp: time.Now()})
	}
}

func (c *Client) sendMessage(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	defer func() {
		// send 可能已被 Hub 关闭
		_ = recover()
	}()
	select {
	case c.send <- data:
	default:
	}
}

// writePump 把 send 中的消息写到连接，并定期 ping
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
