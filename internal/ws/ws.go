package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"token_purchase/internal/common"
	"token_purchase/internal/model"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var (
	writeWait  = time.Second * 10
	pongWait   = time.Second * 60
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 32
)

// Hub 向链下观察者推送购买事件
type Hub struct {
	upgrader websocket.Upgrader
	clients  map[*client]struct{}
	mutex    sync.Mutex
	closed   bool
}

type client struct {
	conn   *websocket.Conn
	wallet string // 为空时接收全部事件
	send   chan []byte
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP 升级连接并注册观察者，?wallet= 只订阅该钱包的事件
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		common.Log.WithError(err).Warn("WebSocket升级失败")
		return
	}

	c := &client{
		conn:   conn,
		wallet: r.URL.Query().Get("wallet"),
		send:   make(chan []byte, sendBuffer),
	}

	h.mutex.Lock()
	if h.closed {
		h.mutex.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mutex.Unlock()

	common.Log.WithFields(logrus.Fields{
		"remote":  r.RemoteAddr,
		"wallet":  c.wallet,
		"clients": total,
	}).Info("观察者已连接")

	go h.writeLoop(c)
	go h.readLoop(c)
}

// HandleMessage 实现 queue.MessageHandler，广播给匹配的观察者
func (h *Hub) HandleMessage(msg *model.QueueMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		common.Log.WithError(err).Error("序列化推送消息失败")
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	for c := range h.clients {
		if c.wallet != "" && c.wallet != msg.WalletAddress {
			continue
		}
		select {
		case c.send <- data:
		default:
			// 消费太慢的观察者直接断开
			h.removeLocked(c)
		}
	}
}

// Clients 当前连接数
func (h *Hub) Clients() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.clients)
}

// Close 断开所有观察者
func (h *Hub) Close() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}

func (h *Hub) remove(c *client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// readLoop 只处理控制帧，读失败即视为断开
func (h *Hub) readLoop(c *client) {
	defer h.remove(c)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				common.Log.WithError(err).Debug("推送消息失败")
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
