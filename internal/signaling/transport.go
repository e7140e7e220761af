// Package signaling talks to the room-scoped signaling server: a JSON frame
// codec and a WebSocket transport that reconnects on its own.
package signaling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/BioHazard786/Warpcall/internal/callerr"
	"github.com/BioHazard786/Warpcall/internal/dns"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 64

	DefaultReconnectDelay = 3 * time.Second
)

var (
	ErrReconnectLimit  = errors.New("reconnect limit reached")
	ErrAlreadyStarted  = errors.New("transport already connected")
	ErrTransportClosed = errors.New("transport closed")
)

// Options tune reconnection. MaxReconnects counts consecutive failed
// attempts; zero retries forever.
type Options struct {
	ReconnectDelay time.Duration
	MaxReconnects  int
	Dialer         *websocket.Dialer
}

// Transport is a duplex channel to one signaling endpoint. After an
// unexpected close it dials again every ReconnectDelay until Close is called.
type Transport struct {
	log    *slog.Logger
	opts   Options
	dialer *websocket.Dialer

	mu       sync.Mutex
	conn     *websocket.Conn
	outgoing chan []byte
	started  bool
	closed   bool

	done      chan struct{}
	closeOnce sync.Once
	stopped   chan struct{}

	onOpen    func(reconnected bool)
	onMessage func(Message)
	onClose   func(error)
}

func NewTransport(log *slog.Logger, opts Options) *Transport {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			NetDialContext:   dns.DialContext,
			HandshakeTimeout: writeWait,
		}
	}
	return &Transport{
		log:     log,
		opts:    opts,
		dialer:  dialer,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// OnOpen is called each time the channel opens; reconnected is false only
// for the first open.
func (t *Transport) OnOpen(fn func(reconnected bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onOpen = fn
}

func (t *Transport) OnMessage(fn func(Message)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onMessage = fn
}

// OnClose is called when an open channel drops (err wraps
// callerr.ErrTransport), when reconnection gives up (err also wraps
// ErrReconnectLimit), and once with a nil error after Close.
func (t *Transport) OnClose(fn func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onClose = fn
}

// Connect validates endpoint and starts dialing in the background.
func (t *Transport) Connect(ctx context.Context, endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid signaling URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid signaling URL scheme %q", u.Scheme)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTransportClosed
	}
	if t.started {
		return ErrAlreadyStarted
	}
	t.started = true

	go t.run(ctx, u.String())
	return nil
}

// Send queues msg on the open channel. It fails with callerr.ErrNotReady
// while the channel is connecting or reconnecting.
func (t *Transport) Send(msg Message) error {
	data, err := Encode(msg)
	if err != nil {
		return callerr.NewError("encode "+string(msg.MessageType()), err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.outgoing == nil {
		return callerr.ErrNotReady
	}
	select {
	case t.outgoing <- data:
		return nil
	default:
		return callerr.WrapError("send "+string(msg.MessageType()), callerr.ErrNotReady, "send buffer full")
	}
}

// Connected reports whether the channel is currently open.
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.outgoing != nil
}

// Close shuts the channel with a normal closure and stops reconnecting.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		conn := t.conn
		started := t.started
		t.mu.Unlock()

		close(t.done)
		if conn != nil {
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait),
			)
			_ = conn.Close()
		}
		if !started {
			close(t.stopped)
		}
	})
	return nil
}

// Done is closed once the background loop has exited.
func (t *Transport) Done() <-chan struct{} {
	return t.stopped
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *Transport) run(ctx context.Context, endpoint string) {
	defer close(t.stopped)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-t.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	opened := false
	failures := 0
	for {
		conn, _, err := t.dialer.DialContext(ctx, endpoint, nil)
		if err == nil {
			reconnected := opened
			opened = true
			failures = 0

			err = t.serve(conn, reconnected)
			if t.isClosed() {
				t.emitClose(nil)
				return
			}
			t.log.Warn("signaling channel closed, reconnecting", "endpoint", endpoint, "error", err, "delay", t.opts.ReconnectDelay)
			t.emitClose(callerr.WrapError("signaling", callerr.ErrTransport, err.Error()))
		} else {
			if t.isClosed() {
				t.emitClose(nil)
				return
			}
			t.log.Warn("signaling dial failed", "endpoint", endpoint, "error", err, "attempt", failures+1)
		}

		failures++
		if t.opts.MaxReconnects > 0 && failures > t.opts.MaxReconnects {
			t.log.Error("giving up on signaling server", "endpoint", endpoint, "attempts", failures)
			t.emitClose(fmt.Errorf("%w: %w after %d attempts", callerr.ErrTransport, ErrReconnectLimit, failures))
			return
		}

		select {
		case <-time.After(t.opts.ReconnectDelay):
		case <-t.done:
			t.emitClose(nil)
			return
		case <-ctx.Done():
			t.emitClose(nil)
			return
		}
	}
}

// serve pumps one connection until it fails or Close is called.
func (t *Transport) serve(conn *websocket.Conn, reconnected bool) error {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	outgoing := make(chan []byte, sendBuffer)
	stop := make(chan struct{})

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		conn.Close()
		return ErrTransportClosed
	}
	t.conn = conn
	t.outgoing = outgoing
	t.mu.Unlock()

	go t.writePump(conn, outgoing, stop)

	defer func() {
		t.mu.Lock()
		t.conn = nil
		t.outgoing = nil
		t.mu.Unlock()
		close(stop)
		conn.Close()
	}()

	t.emitOpen(reconnected)
	return t.readPump(conn)
}

func (t *Transport) readPump(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		msg, err := Decode(data)
		if err != nil {
			if errors.Is(err, ErrUnknownType) {
				t.log.Debug("ignoring signaling frame", "error", err)
			} else {
				t.log.Warn("dropping signaling frame", "error", err)
			}
			continue
		}
		t.emitMessage(msg)
	}
}

func (t *Transport) writePump(conn *websocket.Conn, outgoing <-chan []byte, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data := <-outgoing:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				conn.Close()
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}

		case <-stop:
			return
		}
	}
}

func (t *Transport) emitOpen(reconnected bool) {
	t.mu.Lock()
	fn := t.onOpen
	t.mu.Unlock()
	if fn != nil {
		fn(reconnected)
	}
}

func (t *Transport) emitMessage(msg Message) {
	t.mu.Lock()
	fn := t.onMessage
	t.mu.Unlock()
	if fn != nil {
		fn(msg)
	}
}

func (t *Transport) emitClose(err error) {
	t.mu.Lock()
	fn := t.onClose
	t.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}
