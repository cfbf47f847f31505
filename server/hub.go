package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"AmbientFM/logger"
	"AmbientFM/metrics"
	"AmbientFM/model"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // ping 间隔 (必须小于 pongWait)
	maxMessageSize = 512
)

// StatusMessage 推送给客户端的状态消息
type StatusMessage struct {
	Type      string             `json:"type"`
	Status    model.PlayerStatus `json:"status"`
	Timestamp int64              `json:"timestamp"`
}

// Client WebSocket 客户端
type Client struct {
	ID   string
	Hub  *Hub
	Conn *websocket.Conn
	Send chan []byte
}

// Hub 管理所有状态订阅连接
type Hub struct {
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte

	mu   sync.RWMutex
	done chan struct{}
	once sync.Once
}

// NewHub 创建 Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 64),
		done:       make(chan struct{}),
	}
}

// Run 启动 Hub 主循环
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			metrics.StatusClients.Set(float64(n))
			logger.Info("状态订阅已连接", logger.String("client", client.ID), logger.Int("clients", n))

		case client := <-h.unregister:
			h.removeClient(client)

		case msg := <-h.broadcast:
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for c := range h.clients {
				clients = append(clients, c)
			}
			h.mu.RUnlock()
			for _, c := range clients {
				select {
				case c.Send <- msg:
				default:
					// 发送缓冲区满，移除客户端
					h.removeClient(c)
				}
			}

		case <-h.done:
			h.cleanup()
			return
		}
	}
}

// Stop 停止 Hub，可重复调用
func (h *Hub) Stop() {
	h.once.Do(func() { close(h.done) })
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	close(client.Send)
	n := len(h.clients)
	h.mu.Unlock()
	metrics.StatusClients.Set(float64(n))
	logger.Info("状态订阅已断开", logger.String("client", client.ID), logger.Int("clients", n))
}

func (h *Hub) cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.Send)
		delete(h.clients, c)
	}
	metrics.StatusClients.Set(0)
}

// ClientCount 返回当前连接数
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Register 注册客户端
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

// Unregister 注销客户端
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Broadcast 向所有客户端广播，Hub 繁忙时丢弃
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	default:
		logger.Warn("广播队列已满，丢弃状态消息")
	}
}

// NewClient 为连接分配 ID
func (h *Hub) NewClient(conn *websocket.Conn) *Client {
	return &Client{
		ID:   uuid.NewString(),
		Hub:  h,
		Conn: conn,
		Send: make(chan []byte, 16),
	}
}

func encodeStatus(st model.PlayerStatus) ([]byte, error) {
	return json.Marshal(StatusMessage{Type: "status", Status: st, Timestamp: time.Now().UnixMilli()})
}

// ReadPump 只处理控制帧，连接断开时注销客户端
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for ctx.Err() == nil {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket 读取错误", logger.String("client", c.ID), logger.ErrorField(err))
			}
			return
		}
	}
}

// WritePump 写入消息循环
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub 关闭了通道
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// 状态消息是完整快照，只发送最新的一条
			for n := len(c.Send); n > 0; n-- {
				next, ok := <-c.Send
				if !ok {
					break
				}
				message = next
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
