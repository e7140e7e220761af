package server

import (
	"errors"
	"log/slog"
	"time"

	"github.com/BioHazard786/Warpcall/internal/signaling"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024 // 64 KB - enough for SDP with bundled candidates

	sendBuffer = 256
)

// Client is a wrapper for a single websocket connection (a participant)
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	log  *slog.Logger

	// RoomID comes from the connection URL; ID and Name from the join message.
	RoomID string
	ID     string
	Name   string

	// send is a buffered channel of encoded outbound frames.
	// Only the hub writes to it and only the hub closes it.
	send chan []byte
}

func newClient(hub *Hub, conn *websocket.Conn, roomID string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		log:    hub.log.With(slog.String("room", roomID), slog.String("remote", conn.RemoteAddr().String())),
		RoomID: roomID,
		send:   make(chan []byte, sendBuffer),
	}
}

func (c *Client) joined() bool { return c.ID != "" }

// ReadPump pumps messages from the websocket connection to the hub.
//
// The application runs ReadPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) ReadPump() {
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
				c.log.Debug("connection lost", slog.Any("error", err))
			}
			return
		}

		msg, err := signaling.Decode(data)
		if err != nil {
			if errors.Is(err, signaling.ErrUnknownType) {
				c.log.Debug("ignoring unknown frame", slog.Any("error", err))
			} else {
				c.log.Warn("dropping malformed frame", slog.Any("error", err))
			}
			continue
		}

		if !c.hub.dispatch(envelope{client: c, msg: msg}) {
			return
		}
	}
}

// WritePump pumps messages from the hub to the websocket connection.
//
// A goroutine running WritePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Debug("write failed", slog.Any("error", err))
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
