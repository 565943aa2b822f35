package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"gebeta-delivery/internal/models"
	"gebeta-delivery/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
	sendBuffer     = 16
)

// CountFunc recomputes the number of unclaimed orders. Wired to the delivery
// repository at startup.
type CountFunc func(ctx context.Context) (int, error)

// frame is the wire format in both directions: {"event": ..., "data": ...}.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outFrame struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

type envelope struct {
	room    string
	payload []byte
}

type joinRequest struct {
	c    *client
	room string
}

// Hub tracks connected clients and their room membership. All membership
// mutation happens on the run goroutine; Publish is safe from any goroutine.
type Hub struct {
	register   chan *client
	unregister chan *client
	join       chan joinRequest
	outbound   chan envelope

	clients map[*client]struct{}
	countFn CountFunc
	done    chan struct{}
	log     logger.ILogger
}

func NewHub(countFn CountFunc, log logger.ILogger) *Hub {
	return &Hub{
		register:   make(chan *client),
		unregister: make(chan *client),
		join:       make(chan joinRequest),
		outbound:   make(chan envelope, 64),
		clients:    make(map[*client]struct{}),
		countFn:    countFn,
		done:       make(chan struct{}),
		log:        log,
	}
}

// Run owns the client set. It exits when ctx is cancelled; done is closed
// first so pump goroutines blocked on add/drop/joinRoom are released.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
		case req := <-h.join:
			if _, ok := h.clients[req.c]; ok {
				req.c.rooms[req.room] = struct{}{}
			}
		case env := <-h.outbound:
			for c := range h.clients {
				if _, in := c.rooms[env.room]; !in {
					continue
				}
				select {
				case c.send <- env.payload:
				default:
					// Slow client: drop it rather than block the hub.
					delete(h.clients, c)
					close(c.send)
				}
			}
		}
	}
}

// add, drop and joinRoom hand a client to the run goroutine. They return
// immediately after shutdown so no pump goroutine is left blocked.
func (h *Hub) add(c *client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

func (h *Hub) drop(c *client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) joinRoom(c *client, room string) {
	select {
	case h.join <- joinRequest{c: c, room: room}:
	case <-h.done:
	}
}

// Publish marshals event+payload and fans it out to every client in room.
func (h *Hub) Publish(room, event string, payload interface{}) {
	raw, err := json.Marshal(outFrame{Event: event, Data: payload})
	if err != nil {
		h.log.Error("realtime: marshal event", logger.String("event", event), logger.Error(err))
		return
	}
	select {
	case h.outbound <- envelope{room: room, payload: raw}:
	default:
		h.log.Warning("realtime: outbound queue full, dropping event", logger.String("event", event))
	}
}

// BroadcastCount recomputes the unclaimed-order count and pushes it to the
// deliveries room.
func (h *Hub) BroadcastCount(ctx context.Context) {
	if h.countFn == nil {
		return
	}
	count, err := h.countFn(ctx)
	if err != nil {
		h.log.Error("realtime: count available orders", logger.Error(err))
		return
	}
	h.Publish(RoomDeliveries, EventAvailableCount, map[string]int{"count": count})
}

// client is one websocket connection with its joined rooms. rooms is only
// touched on the hub's run goroutine.
type client struct {
	hub   *Hub
	conn  *websocket.Conn
	send  chan []byte
	rooms map[string]struct{}
}

func (c *client) readPump() {
	defer func() {
		c.hub.drop(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var f frame
		if err := json.Unmarshal(raw, &f); err != nil {
			continue
		}
		c.handleFrame(f)
	}
}

func (c *client) handleFrame(f frame) {
	switch f.Event {
	case "joinRole":
		var role string
		if err := json.Unmarshal(f.Data, &role); err != nil {
			return
		}
		switch role {
		case RoleDeliveryPerson:
			c.hub.joinRoom(c, RoomDeliveries)
			c.hub.BroadcastCount(context.Background())
		case RoleAdmin, RoleManager:
			c.hub.joinRoom(c, RoomAdmin)
		}
	case "joinDeliveryMethod":
		var data struct {
			Method string `json:"method"`
		}
		if err := json.Unmarshal(f.Data, &data); err != nil {
			return
		}
		if models.ValidVehicle(data.Method) {
			c.hub.joinRoom(c, VehicleRoom(data.Method))
		}
	case "get-available-orders-count":
		c.hub.BroadcastCount(context.Background())
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case raw, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
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
