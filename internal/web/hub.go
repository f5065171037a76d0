package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"photomap/internal/listview"
	"photomap/internal/mapview"
)

// Channels carried in an Envelope.
const (
	ChannelMap    = "map"
	ChannelList   = "list"
	ChannelImport = "import"
	ChannelError  = "error"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 512
)

// Envelope is one server-to-page message.
type Envelope struct {
	Channel string `json:"channel"`
	Cmd     any    `json:"cmd"`
}

// Dispatcher accepts decoded page events and replays state to new pages.
type Dispatcher interface {
	Dispatch(ev any) error
	Replay(ctx context.Context, m mapview.Renderer, l listview.Renderer) error
}

// Decoder turns raw page messages into events.
type Decoder func(data []byte) (any, error)

type client struct {
	conn *websocket.Conn
	send chan []byte
}

type outbound struct {
	to   *client // nil broadcasts
	data []byte
}

// WebSocketHub fans render commands out to every connected page. All
// outbound traffic passes through one channel so per-page order matches
// the order commands were produced.
type WebSocketHub struct {
	log        *slog.Logger
	upgrader   websocket.Upgrader
	clients    map[*client]bool
	broadcast  chan outbound
	register   chan *client
	unregister chan *client
	done       chan struct{}
	count      chan int
}

// NewHub returns a hub; call Run before serving.
func NewHub(log *slog.Logger) *WebSocketHub {
	return &WebSocketHub{
		log: log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients:    make(map[*client]bool),
		broadcast:  make(chan outbound, 1024),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		count:      make(chan int),
	}
}

// Run owns the client set until ctx is done.
func (h *WebSocketHub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			return

		case c := <-h.register:
			h.clients[c] = true
			h.log.Info("websocket client connected", "clients", len(h.clients))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				h.log.Info("websocket client disconnected", "clients", len(h.clients))
			}

		case h.count <- len(h.clients):

		case msg := <-h.broadcast:
			if msg.to != nil {
				if h.clients[msg.to] {
					h.deliver(msg.to, msg.data)
				}
				continue
			}
			for c := range h.clients {
				h.deliver(c, msg.data)
			}
		}
	}
}

func (h *WebSocketHub) deliver(c *client, data []byte) {
	select {
	case c.send <- data:
	default:
		h.log.Warn("websocket client too slow, dropping connection")
		delete(h.clients, c)
		close(c.send)
	}
}

// Clients returns the number of connected pages.
func (h *WebSocketHub) Clients() int {
	select {
	case n := <-h.count:
		return n
	case <-h.done:
		return 0
	}
}

// RenderMap broadcasts a map command.
func (h *WebSocketHub) RenderMap(c mapview.Command) { h.publish(nil, ChannelMap, c) }

// RenderList broadcasts a sidebar command.
func (h *WebSocketHub) RenderList(c listview.Command) { h.publish(nil, ChannelList, c) }

// Publish broadcasts an arbitrary payload on channel.
func (h *WebSocketHub) Publish(channel string, payload any) { h.publish(nil, channel, payload) }

func (h *WebSocketHub) publish(to *client, channel string, payload any) {
	data, err := json.Marshal(Envelope{Channel: channel, Cmd: payload})
	if err != nil {
		h.log.Error("failed to encode message", "channel", channel, "error", err)
		return
	}
	select {
	case h.broadcast <- outbound{to: to, data: data}:
	case <-h.done:
	}
}

// clientRenderer sends to a single page through the hub queue.
type clientRenderer struct {
	h *WebSocketHub
	c *client
}

func (r clientRenderer) RenderMap(c mapview.Command)   { r.h.publish(r.c, ChannelMap, c) }
func (r clientRenderer) RenderList(c listview.Command) { r.h.publish(r.c, ChannelList, c) }

// Handler upgrades a request, replays current state to the page and feeds
// its messages to d.
func (h *WebSocketHub) Handler(d Dispatcher, decode Decoder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.log.Warn("websocket upgrade failed", "error", err)
			return
		}
		c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
		select {
		case h.register <- c:
		case <-h.done:
			conn.Close()
			return
		}
		go h.writePump(c)

		rr := clientRenderer{h: h, c: c}
		if err := d.Replay(r.Context(), rr, rr); err != nil {
			h.log.Warn("replay failed", "error", err)
		}
		h.readPump(c, d, decode)
	}
}

func (h *WebSocketHub) readPump(c *client, d Dispatcher, decode Decoder) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(64 << 10)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		ev, err := decode(data)
		if err != nil {
			h.log.Warn("bad websocket message", "error", err)
			h.publish(c, ChannelError, map[string]string{"error": err.Error()})
			continue
		}
		if err := d.Dispatch(ev); err != nil {
			h.log.Warn("dispatch failed", "error", err)
			return
		}
	}
}

func (h *WebSocketHub) writePump(c *client) {
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
