package signaling

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BioHazard786/Warpcall/internal/callerr"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// echoServer accepts websocket connections and hands each one to serve.
type echoServer struct {
	*httptest.Server
	connections atomic.Int32
}

func newEchoServer(t *testing.T, serve func(n int32, conn *websocket.Conn)) *echoServer {
	t.Helper()
	s := &echoServer{}
	upgrader := websocket.Upgrader{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n := s.connections.Add(1)
		serve(n, conn)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *echoServer) endpoint() string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + "/ws/signaling/abc/"
}

func fastOptions() Options {
	return Options{ReconnectDelay: 20 * time.Millisecond}
}

func TestTransport_SendBeforeOpen(t *testing.T) {
	transport := NewTransport(slog.Default(), fastOptions())
	err := transport.Send(Join{Name: "Alice", ClientID: "c1"})
	require.ErrorIs(t, err, callerr.ErrNotReady)
}

func TestTransport_RejectsBadEndpoint(t *testing.T) {
	req := require.New(t)
	transport := NewTransport(slog.Default(), fastOptions())

	req.Error(transport.Connect(context.Background(), "http://localhost/ws"))
	req.Error(transport.Connect(context.Background(), "://"))
}

func TestTransport_DeliversInOrderAndSkipsUnknown(t *testing.T) {
	req := require.New(t)
	server := newEchoServer(t, func(_ int32, conn *websocket.Conn) {
		defer conn.Close()
		// Wait for the join handshake before answering with frames
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"room_users","users":[{"id":"u2","name":"Bob"}]}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"whiteboard","strokes":[]}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"user_left","userId":"u2"}`))
		_, _, _ = conn.ReadMessage()
	})

	transport := NewTransport(slog.Default(), fastOptions())
	defer transport.Close()

	received := make(chan Message, 4)
	transport.OnOpen(func(bool) {
		_ = transport.Send(Join{Name: "Alice", ClientID: "c1"})
	})
	transport.OnMessage(func(m Message) { received <- m })
	req.NoError(transport.Connect(context.Background(), server.endpoint()))

	first := <-received
	second := <-received
	req.Equal(RoomUsers{Users: []User{{ID: "u2", Name: "Bob"}}}, first)
	req.Equal(UserLeft{UserID: "u2"}, second)
}

func TestTransport_ReconnectsAfterAbnormalClose(t *testing.T) {
	req := require.New(t)
	server := newEchoServer(t, func(n int32, conn *websocket.Conn) {
		if n == 1 {
			// Drop the first connection without a close frame
			conn.UnderlyingConn().Close()
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	transport := NewTransport(slog.Default(), fastOptions())
	defer transport.Close()

	var mu sync.Mutex
	var opens []bool
	var closes []error
	reopened := make(chan struct{})
	transport.OnOpen(func(reconnected bool) {
		mu.Lock()
		defer mu.Unlock()
		opens = append(opens, reconnected)
		if reconnected {
			close(reopened)
		}
	})
	transport.OnClose(func(err error) {
		mu.Lock()
		defer mu.Unlock()
		closes = append(closes, err)
	})
	req.NoError(transport.Connect(context.Background(), server.endpoint()))

	select {
	case <-reopened:
	case <-time.After(5 * time.Second):
		req.Fail("transport did not reconnect")
	}

	mu.Lock()
	defer mu.Unlock()
	req.Equal([]bool{false, true}, opens)
	req.Len(closes, 1)
	req.ErrorIs(closes[0], callerr.ErrTransport)
	req.True(transport.Connected())
}

func TestTransport_CloseSuppressesReconnect(t *testing.T) {
	req := require.New(t)
	server := newEchoServer(t, func(_ int32, conn *websocket.Conn) {
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	transport := NewTransport(slog.Default(), fastOptions())
	opened := make(chan struct{}, 1)
	closed := make(chan error, 2)
	transport.OnOpen(func(bool) { opened <- struct{}{} })
	transport.OnClose(func(err error) { closed <- err })
	req.NoError(transport.Connect(context.Background(), server.endpoint()))
	<-opened

	req.NoError(transport.Close())
	req.NoError(transport.Close())

	select {
	case <-transport.Done():
	case <-time.After(5 * time.Second):
		req.Fail("transport loop did not stop")
	}
	req.NoError(<-closed)

	time.Sleep(100 * time.Millisecond)
	req.Equal(int32(1), server.connections.Load())
	req.ErrorIs(transport.Send(UserLeft{UserID: "x"}), callerr.ErrNotReady)
}

func TestTransport_GivesUpAfterMaxReconnects(t *testing.T) {
	req := require.New(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	req.NoError(err)
	addr := ln.Addr().String()
	ln.Close()

	transport := NewTransport(slog.Default(), Options{ReconnectDelay: 10 * time.Millisecond, MaxReconnects: 2})
	defer transport.Close()

	closed := make(chan error, 1)
	transport.OnClose(func(err error) { closed <- err })
	req.NoError(transport.Connect(context.Background(), "ws://"+addr+"/ws/signaling/abc/"))

	select {
	case err := <-closed:
		req.True(errors.Is(err, ErrReconnectLimit))
		req.ErrorIs(err, callerr.ErrTransport)
	case <-time.After(5 * time.Second):
		req.Fail("transport kept retrying")
	}
}
