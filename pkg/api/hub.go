package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/harrisonrobin/pomodo/pkg/logger"
	"github.com/harrisonrobin/pomodo/pkg/model"
	"github.com/harrisonrobin/pomodo/pkg/store"
	"github.com/harrisonrobin/pomodo/pkg/view"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 25 * time.Second
	sendBuffer = 64
)

// Message is the envelope for everything pushed over /ws.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

const (
	MsgTasks = "tasks"
	MsgTimer = "timer"
	MsgPhase = "phase"
)

// Hub fans task views and timer events out to WebSocket clients. Each
// client has its own filter; the view is recomputed for every client after
// a store change.
type Hub struct {
	load func(context.Context) ([]model.Task, error)

	mu      sync.Mutex
	clients map[*Client]struct{}
	closed  bool

	refresh chan struct{}
	stop    chan struct{}
	done    chan struct{}
}

func NewHub(load func(context.Context) ([]model.Task, error)) *Hub {
	h := &Hub{
		load:    load,
		clients: make(map[*Client]struct{}),
		refresh: make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go h.run()
	return h
}

// OnChange is a store subscriber. It never blocks: bursts of changes
// collapse into one recomputation.
func (h *Hub) OnChange(store.Change) {
	h.Refresh()
}

func (h *Hub) Refresh() {
	select {
	case h.refresh <- struct{}{}:
	default:
	}
}

func (h *Hub) run() {
	defer close(h.done)
	for {
		select {
		case <-h.stop:
			return
		case <-h.refresh:
			tasks, err := h.loadTasks()
			if err != nil {
				logger.Warn("ws: could not load tasks", "error", err)
				continue
			}
			for _, c := range h.snapshot() {
				c.pushView(tasks)
			}
		}
	}
}

func (h *Hub) loadTasks() ([]model.Task, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return h.load(ctx)
}

func (h *Hub) snapshot() []*Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		out = append(out, c)
	}
	return out
}

// Broadcast queues msg for every client.
func (h *Hub) Broadcast(msg Message) {
	b, err := json.Marshal(msg)
	if err != nil {
		logger.Error("ws: could not encode message", "type", msg.Type, "error", err)
		return
	}
	for _, c := range h.snapshot() {
		c.push(b)
	}
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Serve registers conn and blocks until the peer goes away.
func (h *Hub) Serve(conn *websocket.Conn) {
	c := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	logger.Debug("ws: client connected", "clients", h.Len())

	go c.writePump()
	if tasks, err := h.loadTasks(); err == nil {
		c.pushView(tasks)
	}
	c.readPump()
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Close disconnects every client and stops the refresh loop.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()

	close(h.stop)
	<-h.done
	return nil
}

// Client is one WebSocket connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	filter view.Filter
}

func (c *Client) Filter() view.Filter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter
}

func (c *Client) pushView(tasks []model.Task) {
	b, err := json.Marshal(Message{Type: MsgTasks, Data: view.Apply(tasks, c.Filter())})
	if err != nil {
		logger.Error("ws: could not encode view", "error", err)
		return
	}
	c.push(b)
}

// push drops the message when the client is not keeping up.
func (c *Client) push(b []byte) {
	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()
	if _, ok := c.hub.clients[c]; !ok {
		return
	}
	select {
	case c.send <- b:
	default:
		logger.Warn("ws: client send buffer full, dropping message")
	}
}

// readPump accepts filter updates until the connection fails.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
		logger.Debug("ws: client disconnected")
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("ws: read error", "error", err)
			}
			return
		}
		var f view.Filter
		if err := json.Unmarshal(msg, &f); err != nil {
			logger.Debug("ws: ignoring malformed filter", "error", err)
			continue
		}
		c.mu.Lock()
		c.filter = f
		c.mu.Unlock()

		tasks, err := c.hub.loadTasks()
		if err != nil {
			logger.Warn("ws: could not load tasks", "error", err)
			continue
		}
		c.pushView(tasks)
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
