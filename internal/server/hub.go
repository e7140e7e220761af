package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BioHazard786/Warpcall/internal/api"
	"github.com/BioHazard786/Warpcall/internal/signaling"
)

var ErrHubStopped = errors.New("signaling hub stopped")

// envelope pairs a decoded frame with the client that sent it.
type envelope struct {
	client *Client
	msg    signaling.Message
}

// Hub is the central brain of the signaling server.
// It manages all active rooms and clients from the single goroutine in Run.
type Hub struct {
	log     *slog.Logger
	metrics *Metrics

	rooms   map[string]*Room
	clients map[*Client]struct{}

	registerCh   chan *Client
	unregisterCh chan *Client
	inbound      chan envelope
	requests     chan func()
	done         chan struct{}
}

// NewHub creates a new Hub instance.
func NewHub(log *slog.Logger, metrics *Metrics) *Hub {
	return &Hub{
		log:          log,
		metrics:      metrics,
		rooms:        make(map[string]*Room),
		clients:      make(map[*Client]struct{}),
		registerCh:   make(chan *Client),
		unregisterCh: make(chan *Client),
		inbound:      make(chan envelope, 256),
		requests:     make(chan func()),
		done:         make(chan struct{}),
	}
}

// Run starts the hub's main processing loop.
// This is the single goroutine that safely manages all state (rooms, clients).
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case c := <-h.registerCh:
			h.clients[c] = struct{}{}
			h.metrics.Connections.Inc()
			c.log.Debug("client registered")

		case c := <-h.unregisterCh:
			h.remove(c)

		case e := <-h.inbound:
			h.handle(e)

		case fn := <-h.requests:
			fn()

		case <-ctx.Done():
			for c := range h.clients {
				h.remove(c)
			}
			return
		}
	}
}

func (h *Hub) register(c *Client) bool {
	select {
	case h.registerCh <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregister(c *Client) {
	select {
	case h.unregisterCh <- c:
	case <-h.done:
	}
}

func (h *Hub) dispatch(e envelope) bool {
	select {
	case h.inbound <- e:
		return true
	case <-h.done:
		return false
	}
}

// do runs fn on the hub goroutine and waits for it.
func (h *Hub) do(fn func()) error {
	finished := make(chan struct{})
	select {
	case h.requests <- func() { fn(); close(finished) }:
	case <-h.done:
		return ErrHubStopped
	}
	<-finished
	return nil
}

// CreateRoom reserves a new room with a generated ID.
func (h *Hub) CreateRoom(name string) (api.Room, error) {
	var info api.Room
	err := h.do(func() {
		id := newRoomID(func(id string) bool {
			_, ok := h.rooms[id]
			return ok
		})
		if name == "" {
			name = id
		}
		room := newRoom(id, name)
		h.rooms[id] = room
		h.metrics.Rooms.Inc()
		h.log.Info("room created", slog.String("room", id))
		info = roomInfo(room)
	})
	return info, err
}

// GetRoom reports a room and its current size.
func (h *Hub) GetRoom(id string) (api.Room, bool, error) {
	var (
		info  api.Room
		found bool
	)
	err := h.do(func() {
		if room, ok := h.rooms[id]; ok {
			info, found = roomInfo(room), true
		}
	})
	return info, found, err
}

func roomInfo(r *Room) api.Room {
	return api.Room{ID: r.ID, Name: r.Name, Participants: r.size(), CreatedAt: r.CreatedAt}
}

func (h *Hub) remove(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.metrics.Connections.Dec()

	if !c.joined() {
		return
	}
	room, ok := h.rooms[c.RoomID]
	if !ok || !room.remove(c) {
		return
	}

	c.log.Info("participant left", slog.String("id", c.ID))
	h.broadcast(room, signaling.UserLeft{UserID: c.ID}, nil)

	if room.size() == 0 {
		delete(h.rooms, room.ID)
		h.metrics.Rooms.Dec()
		h.log.Info("room deleted", slog.String("room", room.ID))
	}
}

func (h *Hub) handle(e envelope) {
	c := e.client
	if _, ok := h.clients[c]; !ok {
		return
	}
	h.metrics.Messages.WithLabelValues(string(e.msg.MessageType())).Inc()

	if join, ok := e.msg.(signaling.Join); ok {
		h.join(c, join)
		return
	}

	if !c.joined() {
		c.log.Warn("message before join", slog.String("type", string(e.msg.MessageType())))
		return
	}
	room, ok := h.rooms[c.RoomID]
	if !ok {
		return
	}

	switch m := e.msg.(type) {
	case signaling.Offer:
		m.From, m.FromName = c.ID, c.Name
		h.relay(room, m.Target, m)
	case signaling.Answer:
		m.From = c.ID
		h.relay(room, m.Target, m)
	case signaling.ICECandidate:
		m.From = c.ID
		h.relay(room, m.Target, m)
	case signaling.ChatMessage:
		if m.Timestamp.IsZero() {
			m.Timestamp = time.Now().UTC().Truncate(time.Millisecond)
		}
		h.broadcast(room, m, nil)
	default:
		c.log.Debug("ignoring client message", slog.String("type", string(m.MessageType())))
	}
}

func (h *Hub) join(c *Client, m signaling.Join) {
	if c.joined() {
		c.log.Warn("duplicate join", slog.String("id", c.ID))
		return
	}

	room, ok := h.rooms[c.RoomID]
	if !ok {
		room = newRoom(c.RoomID, c.RoomID)
		h.rooms[room.ID] = room
		h.metrics.Rooms.Inc()
		h.log.Info("room opened on join", slog.String("room", room.ID))
	}

	c.ID, c.Name = m.ClientID, m.Name
	if prev := room.add(c); prev != nil {
		// Same participant on a new connection: retire the old one.
		c.log.Info("participant replaced connection", slog.String("id", c.ID))
		h.broadcast(room, signaling.UserLeft{UserID: c.ID}, c)
		prev.ID = ""
		h.remove(prev)
	}

	c.log.Info("participant joined", slog.String("id", c.ID), slog.Int("members", room.size()))
	h.send(c, signaling.RoomUsers{Users: room.users(c.ID)})
	h.broadcast(room, signaling.UserJoined{UserID: c.ID, Name: c.Name}, c)
}

func (h *Hub) relay(room *Room, target string, msg signaling.Message) {
	to, ok := room.member(target)
	if !ok {
		h.log.Debug("relay target not in room",
			slog.String("room", room.ID),
			slog.String("target", target),
			slog.String("type", string(msg.MessageType())))
		return
	}
	h.send(to, msg)
}

func (h *Hub) broadcast(room *Room, msg signaling.Message, except *Client) {
	frame, err := signaling.Encode(msg)
	if err != nil {
		h.log.Error("failed to encode broadcast", slog.Any("error", err))
		return
	}
	for _, c := range room.clients() {
		if c != except {
			h.enqueue(c, frame)
		}
	}
}

func (h *Hub) send(c *Client, msg signaling.Message) {
	frame, err := signaling.Encode(msg)
	if err != nil {
		h.log.Error("failed to encode message", slog.Any("error", err))
		return
	}
	h.enqueue(c, frame)
}

func (h *Hub) enqueue(c *Client, frame []byte) {
	select {
	case c.send <- frame:
	default:
		h.metrics.Dropped.Inc()
		c.log.Warn("send buffer full, dropping frame")
	}
}
