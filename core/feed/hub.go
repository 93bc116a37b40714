// Package feed 账本事件的 WebSocket 实时推送
package feed

import (
	"encoding/json"
	"sync"
	"time"

	"FlowCash/logger"
	"FlowCash/model"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 512
	sendBuffer     = 256
)

// MessageType 消息类型
type MessageType string

const (
	MsgTypeEvent     MessageType = "event"     // 账本事件
	MsgTypePing      MessageType = "ping"      // 心跳
	MsgTypePong      MessageType = "pong"      // 心跳响应
	MsgTypeSubscribe MessageType = "subscribe" // 修改订阅过滤条件
	MsgTypeError     MessageType = "error"
)

// WSMessage WebSocket 消息结构
type WSMessage struct {
	Type      MessageType        `json:"type"`
	Event     *model.LedgerEvent `json:"event,omitempty"`
	Filter    *Filter            `json:"filter,omitempty"`
	Error     string             `json:"error,omitempty"`
	Timestamp int64              `json:"timestamp"`
}

// Filter 订阅过滤条件，零值表示接收全部事件
type Filter struct {
	TrackID uint64 `json:"trackId,omitempty"`
	Account string `json:"account,omitempty"` // 匹配事件的 caller 或 account
}

// Match reports whether ev passes the filter.
func (f Filter) Match(ev *model.LedgerEvent) bool {
	if f.TrackID != 0 && ev.TrackID != f.TrackID {
		return false
	}
	if f.Account != "" && ev.Account != f.Account && ev.Caller != f.Account {
		return false
	}
	return true
}

// Client WebSocket 客户端
type Client struct {
	Hub    *Hub
	Conn   *websocket.Conn
	Send   chan []byte
	mu     sync.RWMutex
	filter Filter

	// 补发期间暂存实时事件，lastSeq 用于去重
	catchingUp bool
	pending    []*broadcastMessage
	lastSeq    uint64
}

func (c *Client) Filter() Filter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.filter
}

func (c *Client) setFilter(f Filter) {
	c.mu.Lock()
	c.filter = f
	c.mu.Unlock()
}

type broadcastMessage struct {
	event   model.LedgerEvent
	payload []byte
}

// Hub fans committed ledger events out to connected clients.
type Hub struct {
	clients    map[*Client]bool
	unregister chan *Client
	broadcast  chan *broadcastMessage
	mu         sync.RWMutex
	done       chan struct{}
	stopOnce   sync.Once
}

// NewHub 创建 Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		unregister: make(chan *Client),
		broadcast:  make(chan *broadcastMessage, sendBuffer),
		done:       make(chan struct{}),
	}
}

// Run 启动 Hub 主循环
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.unregister:
			h.mu.Lock()
			h.removeClient(client)
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.fanOut(msg)

		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				h.removeClient(client)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop 停止 Hub，关闭所有客户端
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// removeClient 需要持有锁
func (h *Hub) removeClient(client *Client) {
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.Send)
	}
}

func (h *Hub) fanOut(msg *broadcastMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if !client.Filter().Match(&msg.event) {
			continue
		}
		client.deliver(msg)
	}
}

// deliver requires h.mu held so Send cannot be closed underneath it.
func (c *Client) deliver(msg *broadcastMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.catchingUp {
		if len(c.pending) < sendBuffer {
			c.pending = append(c.pending, msg)
		}
		return
	}
	c.send(msg.event.Seq, msg.payload)
}

// send requires c.mu held. Events at or below the last sent seq were
// already delivered by the backlog.
func (c *Client) send(seq uint64, payload []byte) {
	if seq != 0 && seq <= c.lastSeq {
		return
	}
	select {
	case c.Send <- payload:
		if seq > c.lastSeq {
			c.lastSeq = seq
		}
	default:
		// 客户端消费过慢，丢弃本条消息
		logger.Warn("[Feed] client send buffer full, event dropped", logger.Uint64("seq", seq))
	}
}

// Notify queues ev for broadcast without blocking. It satisfies the
// ledger's notifier contract and is also used to relay events from other
// instances.
func (h *Hub) Notify(ev model.LedgerEvent) {
	payload, err := encodeEvent(ev)
	if err != nil {
		logger.Error("[Feed] failed to encode event", logger.Uint64("seq", ev.Seq), logger.ErrorField(err))
		return
	}
	select {
	case h.broadcast <- &broadcastMessage{event: ev, payload: payload}:
	default:
		logger.Warn("[Feed] broadcast queue full, event dropped", logger.Uint64("seq", ev.Seq))
	}
}

func encodeEvent(ev model.LedgerEvent) ([]byte, error) {
	return json.Marshal(&WSMessage{Type: MsgTypeEvent, Event: &ev, Timestamp: time.Now().UnixMilli()})
}

// Attach registers a connection and starts its pumps. When load is not
// nil the client is registered before load runs and live events are held
// until the loaded backlog is queued, so an event committed while the
// backlog is read is neither lost nor sent twice.
func (h *Hub) Attach(conn *websocket.Conn, filter Filter, load func() ([]model.LedgerEvent, error)) (*Client, error) {
	client := &Client{
		Hub:        h,
		Conn:       conn,
		Send:       make(chan []byte, sendBuffer),
		filter:     filter,
		catchingUp: load != nil,
	}

	h.add(client)
	go client.WritePump()
	go client.ReadPump()

	if load == nil {
		return client, nil
	}
	backlog, err := load()
	client.catchUp(backlog)
	if err != nil {
		client.reply(&WSMessage{Type: MsgTypeError, Error: "failed to load backlog"})
	}
	return client, err
}

// add registers client directly so that every event broadcast after it
// returns reaches the client. A stopped hub closes the client at once.
func (h *Hub) add(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.done:
		close(client.Send)
		return
	default:
	}
	h.clients[client] = true
	logger.Debug("[Feed] client registered", logger.Int("clients", len(h.clients)))
}

// catchUp queues backlog events that pass the filter, then the live
// events held while it was loaded.
func (c *Client) catchUp(backlog []model.LedgerEvent) {
	c.Hub.mu.RLock()
	defer c.Hub.mu.RUnlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	pending := c.pending
	c.pending = nil
	c.catchingUp = false
	if !c.Hub.clients[c] {
		return
	}
	for i := range backlog {
		if !c.filter.Match(&backlog[i]) {
			continue
		}
		payload, err := encodeEvent(backlog[i])
		if err != nil {
			continue
		}
		c.send(backlog[i].Seq, payload)
	}
	for _, msg := range pending {
		c.send(msg.event.Seq, msg.payload)
	}
}

// ReadPump 读取消息循环，处理心跳与订阅变更
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("[Feed] unexpected close", logger.ErrorField(err))
			}
			return
		}

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.reply(&WSMessage{Type: MsgTypeError, Error: "invalid message format"})
			continue
		}

		switch msg.Type {
		case MsgTypePing:
			c.reply(&WSMessage{Type: MsgTypePong})
		case MsgTypeSubscribe:
			f := Filter{}
			if msg.Filter != nil {
				f = *msg.Filter
			}
			c.setFilter(f)
			c.reply(&WSMessage{Type: MsgTypeSubscribe, Filter: &f})
		default:
			c.reply(&WSMessage{Type: MsgTypeError, Error: "unsupported message type"})
		}
	}
}

// reply 直接回复当前客户端，缓冲区满时丢弃
func (c *Client) reply(msg *WSMessage) {
	msg.Timestamp = time.Now().UnixMilli()
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.Hub.mu.RLock()
	defer c.Hub.mu.RUnlock()
	if !c.Hub.clients[c] {
		return
	}
	select {
	case c.Send <- data:
	default:
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
